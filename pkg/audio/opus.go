package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// OpusDecoder wraps a gopus Opus decoder for a single speaker stream. Each
// speaker gets its own decoder to maintain decoder state correctly across
// consecutive frames.
type OpusDecoder struct {
	dec *gopus.Decoder
}

// NewOpusDecoder creates a new Opus decoder configured for Discord audio
// (48 kHz stereo).
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(DiscordSampleRate, DiscordChannels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode decodes an Opus packet into interleaved PCM int16 samples and returns
// the result as a byte slice (little-endian int16 pairs).
func (d *OpusDecoder) Decode(opus []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(opus, FrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	return Int16sToBytes(pcm), nil
}

// OpusEncoder wraps a gopus Opus encoder for the playback stream.
type OpusEncoder struct {
	enc *gopus.Encoder
}

// NewOpusEncoder creates a new Opus encoder configured for Discord audio
// (48 kHz stereo).
func NewOpusEncoder() (*OpusEncoder, error) {
	enc, err := gopus.NewEncoder(DiscordSampleRate, DiscordChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus encoder: %w", err)
	}
	return &OpusEncoder{enc: enc}, nil
}

// Encode encodes one 20 ms frame of interleaved PCM int16 data (as bytes,
// little-endian) into an Opus packet.
func (e *OpusEncoder) Encode(pcmBytes []byte) ([]byte, error) {
	pcm := BytesToInt16s(pcmBytes)
	opus, err := e.enc.Encode(pcm, FrameSize, len(pcmBytes))
	if err != nil {
		return nil, fmt.Errorf("audio: opus encode: %w", err)
	}
	return opus, nil
}
