package voice

import "testing"

func TestEndDetector(t *testing.T) {
	t.Parallel()
	d := NewEndDetector()

	tests := []struct {
		name       string
		transcript string
		want       bool
	}{
		{"bare keyword", "END", true},
		{"lowercase", "end", true},
		{"trailing punctuation", "End.", true},
		{"inside sentence", "Okay, let's end the call now", true},
		{"near-miss transcription", "Ent.", true},
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"embedded letters", "Just send me the info", false},
		{"weekend", "Call me back next weekend", false},
		{"and is not end", "Pricing and timelines work for me", false},
		{"normal pitch line", "We help roofing companies book more demos", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := d.Detect(tc.transcript); got != tc.want {
				t.Errorf("Detect(%q) = %v, want %v", tc.transcript, got, tc.want)
			}
		})
	}
}

func TestEndDetector_ThresholdOption(t *testing.T) {
	t.Parallel()
	// With the bar raised to exact-similarity territory, the phonetic
	// near-miss no longer passes but the literal keyword still does.
	d := NewEndDetector(WithEndThreshold(0.99))
	if d.Detect("ent") {
		t.Error("near-miss should not pass a 0.99 threshold")
	}
	if !d.Detect("end") {
		t.Error("literal keyword must always pass")
	}
}
