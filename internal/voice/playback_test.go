package voice

import (
	"context"
	"testing"

	"github.com/leadamp/pitchdrill/pkg/audio"
)

type speakingLog struct {
	calls []bool
}

func (s *speakingLog) set(b bool) error {
	s.calls = append(s.calls, b)
	return nil
}

func TestPlayer_Play(t *testing.T) {
	t.Parallel()
	send := make(chan []byte, 64)
	speaking := &speakingLog{}
	p, err := NewPlayer(send, speaking.set, nil)
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}

	// 20 ms of 24 kHz mono silence: 480 samples. Resampled to 48 kHz and
	// widened to stereo this is exactly one Opus frame of input.
	pcm := make([]byte, 480*2)
	if err := p.Play(context.Background(), pcm); err != nil {
		t.Fatalf("Play: %v", err)
	}
	close(send)

	frames := 0
	for range send {
		frames++
	}
	if frames != 1 {
		t.Errorf("sent %d frames, want 1", frames)
	}
	if len(speaking.calls) != 2 || !speaking.calls[0] || speaking.calls[1] {
		t.Errorf("speaking calls = %v, want [true false]", speaking.calls)
	}
}

func TestPlayer_PadsFinalFrame(t *testing.T) {
	t.Parallel()
	send := make(chan []byte, 64)
	speaking := &speakingLog{}
	p, err := NewPlayer(send, speaking.set, nil)
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}

	// 30 ms of input becomes one and a half frames; the tail is padded so
	// two frames go out.
	pcm := make([]byte, 720*2)
	if err := p.Play(context.Background(), pcm); err != nil {
		t.Fatalf("Play: %v", err)
	}
	close(send)

	frames := 0
	for range send {
		frames++
	}
	if frames != 2 {
		t.Errorf("sent %d frames, want 2", frames)
	}
}

func TestPlayer_EmptyInputIsNoop(t *testing.T) {
	t.Parallel()
	send := make(chan []byte, 1)
	speaking := &speakingLog{}
	p, err := NewPlayer(send, speaking.set, nil)
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}

	if err := p.Play(context.Background(), nil); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if len(send) != 0 {
		t.Error("no frames should be sent for empty input")
	}
	if len(speaking.calls) != 0 {
		t.Errorf("speaking calls = %v, want none", speaking.calls)
	}
}

func TestPlayer_CancelledContext(t *testing.T) {
	t.Parallel()
	// Unbuffered send channel with no reader: the first frame can only be
	// handed off if the context path is broken.
	send := make(chan []byte)
	speaking := &speakingLog{}
	p, err := NewPlayer(send, speaking.set, nil)
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pcm := make([]byte, audio.FrameBytes)
	if err := p.Play(ctx, pcm); err == nil {
		t.Error("expected an error when the context is cancelled")
	}
	if len(speaking.calls) != 2 || speaking.calls[1] {
		t.Errorf("speaking calls = %v, want [true false]", speaking.calls)
	}
}
