package voice

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// defaultEndThreshold is the minimum Jaro-Winkler score a phonetically
// matching token must reach before it counts as the END keyword. The value
// is tuned so "ent" (0.82 vs "end") passes while "and" (0.78) does not.
const defaultEndThreshold = 0.80

// EndDetector recognises the spoken END keyword in an STT transcript.
//
// Detection is token-based: a word that equals "end" case-insensitively is
// always a match; otherwise a word whose Double Metaphone code overlaps the
// keyword's and whose Jaro-Winkler similarity exceeds the threshold is
// accepted. This catches near-miss transcriptions ("End.", "ent") without
// tripping on words that merely contain the letters, like "send" or
// "weekend".
//
// EndDetector is read-only after construction and safe for concurrent use.
type EndDetector struct {
	keyword   string
	codes     map[string]struct{}
	threshold float64
}

// EndOption is a functional option for configuring an [EndDetector].
type EndOption func(*EndDetector)

// WithEndThreshold sets the minimum Jaro-Winkler score for a phonetic
// match. Default: 0.80.
func WithEndThreshold(threshold float64) EndOption {
	return func(d *EndDetector) {
		d.threshold = threshold
	}
}

// NewEndDetector returns a detector for the END keyword.
func NewEndDetector(opts ...EndOption) *EndDetector {
	d := &EndDetector{
		keyword:   "end",
		threshold: defaultEndThreshold,
	}
	for _, o := range opts {
		o(d)
	}
	primary, secondary := matchr.DoubleMetaphone(d.keyword)
	d.codes = make(map[string]struct{}, 2)
	if primary != "" {
		d.codes[primary] = struct{}{}
	}
	if secondary != "" {
		d.codes[secondary] = struct{}{}
	}
	return d
}

// Detect reports whether transcript contains the spoken END keyword.
func (d *EndDetector) Detect(transcript string) bool {
	for _, token := range strings.Fields(strings.ToLower(transcript)) {
		token = strings.Trim(token, ".,!?;:\"'()")
		if token == "" {
			continue
		}
		if token == d.keyword {
			return true
		}
		primary, secondary := matchr.DoubleMetaphone(token)
		if _, ok := d.codes[primary]; !ok {
			if _, ok := d.codes[secondary]; !ok {
				continue
			}
		}
		if matchr.JaroWinkler(token, d.keyword, false) >= d.threshold {
			return true
		}
	}
	return false
}
