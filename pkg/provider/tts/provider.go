// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., OpenAI or ElevenLabs)
// and presents a uniform batch interface: one prospect reply in, one PCM clip
// out. Replies in a roleplay turn are short (a sentence or two), so batch
// synthesis keeps the pipeline simple without a perceptible latency cost.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// SampleRate is the sample rate of all PCM returned by Synthesize, in Hz.
const SampleRate = 24000

// Voice identifies a synthesis voice on the backing service. The zero value
// selects the provider's default voice.
type Voice struct {
	// ID is the provider-specific voice identifier (an ElevenLabs voice ID,
	// an OpenAI voice name such as "alloy").
	ID string
	// Name is a human-readable label, used only for logging.
	Name string
}

// Provider is the abstraction over any TTS backend.
//
// Multiple synthesis requests may run in parallel (one per active voice
// session).
type Provider interface {
	// Synthesize renders text as speech and returns the full clip as raw
	// 16-bit little-endian mono PCM at [SampleRate] Hz.
	//
	// Returns an error if text is empty, the requested voice is unknown, or
	// the backing service fails.
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)
}
