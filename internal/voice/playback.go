package voice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leadamp/pitchdrill/pkg/audio"
	"github.com/leadamp/pitchdrill/pkg/provider/tts"
)

// Player converts synthesized speech into Opus frames and sends them over a
// Discord voice connection. TTS providers emit 24 kHz mono PCM; Discord wants
// 48 kHz stereo Opus in 20 ms frames, so each reply is resampled, widened to
// stereo, chunked and encoded before transmission.
type Player struct {
	send     chan<- []byte
	speaking func(bool) error
	enc      *audio.OpusEncoder
	logger   *slog.Logger
}

// NewPlayer creates a Player that writes Opus frames to send. speaking is
// called with true before the first frame and false after the last one.
func NewPlayer(send chan<- []byte, speaking func(bool) error, logger *slog.Logger) (*Player, error) {
	enc, err := audio.NewOpusEncoder()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		send:     send,
		speaking: speaking,
		enc:      enc,
		logger:   logger,
	}, nil
}

// Play transmits one synthesized reply (16-bit mono PCM at [tts.SampleRate])
// and blocks until every frame has been handed to the connection or ctx is
// cancelled.
func (p *Player) Play(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}

	p.setSpeaking(true)
	defer p.setSpeaking(false)

	data := audio.MonoToStereo(audio.ResampleMono16(pcm, tts.SampleRate, audio.DiscordSampleRate))

	// Pad the tail so the final partial frame still encodes.
	if rem := len(data) % audio.FrameBytes; rem != 0 {
		data = append(data, make([]byte, audio.FrameBytes-rem)...)
	}

	for off := 0; off < len(data); off += audio.FrameBytes {
		opus, err := p.enc.Encode(data[off : off+audio.FrameBytes])
		if err != nil {
			return fmt.Errorf("voice: encode playback frame: %w", err)
		}
		select {
		case p.send <- opus:
		case <-ctx.Done():
			return fmt.Errorf("voice: playback interrupted: %w", ctx.Err())
		}
	}
	return nil
}

func (p *Player) setSpeaking(b bool) {
	if err := p.speaking(b); err != nil {
		p.logger.Warn("voice: speaking notification error", "speaking", b, "error", err)
	}
}
