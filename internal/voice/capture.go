package voice

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/leadamp/pitchdrill/pkg/audio"
)

const (
	// silenceGap is how long the rep must stay quiet before the buffered
	// audio is treated as a finished utterance.
	silenceGap = 1200 * time.Millisecond

	// minUtterance filters out key-up blips and stray packets that are too
	// short to contain speech.
	minUtterance = 200 * time.Millisecond
)

// Recorder accumulates decoded PCM for a single speaker and emits one buffer
// per utterance, where an utterance ends after [silenceGap] of silence.
//
// Packets are demuxed by SSRC: only the stream belonging to the rep who
// started the session is decoded, everything else on the channel is ignored.
// The rep's SSRC is not known until Discord delivers a speaking update, so it
// is set late via [Recorder.SetUserSSRC].
type Recorder struct {
	mu        sync.Mutex
	ssrc      uint32
	ssrcKnown bool

	gap    time.Duration
	logger *slog.Logger

	// decode converts one Opus packet to interleaved 48 kHz stereo PCM.
	// Defaults to a gopus decoder; overridden in tests.
	decode func(opus []byte) ([]byte, error)
}

// RecorderOption is a functional option for configuring a [Recorder].
type RecorderOption func(*Recorder)

// WithSilenceGap overrides the utterance-ending silence gap.
func WithSilenceGap(gap time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.gap = gap
	}
}

// WithRecorderLogger sets the logger. Defaults to slog.Default().
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = l
	}
}

// NewRecorder creates a Recorder. The rep's SSRC must be supplied via
// [Recorder.SetUserSSRC] before any audio is captured.
func NewRecorder(opts ...RecorderOption) (*Recorder, error) {
	dec, err := audio.NewOpusDecoder()
	if err != nil {
		return nil, err
	}
	r := &Recorder{
		gap:    silenceGap,
		logger: slog.Default(),
		decode: dec.Decode,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// SetUserSSRC records which SSRC belongs to the rep. Called from the voice
// connection's speaking-update handler.
func (r *Recorder) SetUserSSRC(ssrc uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ssrc = ssrc
	r.ssrcKnown = true
}

// targetSSRC returns the rep's SSRC and whether it is known yet.
func (r *Recorder) targetSSRC() (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ssrc, r.ssrcKnown
}

// Run consumes Opus packets until ctx is cancelled or packets is closed,
// sending each finished utterance (48 kHz stereo PCM bytes) to utterances.
// The utterances channel is closed when Run returns.
func (r *Recorder) Run(ctx context.Context, packets <-chan *discordgo.Packet, utterances chan<- []byte) {
	defer close(utterances)

	minBytes := int(minUtterance.Milliseconds()) * audio.DiscordSampleRate / 1000 * audio.DiscordChannels * 2

	var buf []byte

	timer := time.NewTimer(r.gap)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	flush := func() {
		if len(buf) < minBytes {
			buf = buf[:0]
			return
		}
		utterance := make([]byte, len(buf))
		copy(utterance, buf)
		buf = buf[:0]
		select {
		case utterances <- utterance:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			flush()
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}
			ssrc, known := r.targetSSRC()
			if !known || pkt.SSRC != ssrc {
				continue
			}
			pcm, err := r.decode(pkt.Opus)
			if err != nil {
				r.logger.Warn("voice: opus decode error", "ssrc", pkt.SSRC, "error", err)
				continue
			}
			buf = append(buf, pcm...)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(r.gap)
		}
	}
}
