// Package stt defines the Provider interface for speech-to-text backends.
//
// The voice pipeline is utterance-batched: audio is captured until a silence
// gap marks the end of an utterance, then the whole utterance is wrapped in a
// WAV container and submitted as a single transcription request. Providers
// therefore expose a simple batch contract rather than a streaming one.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe submits a complete WAV-contained utterance and returns the
	// recognised text, trimmed of surrounding whitespace. An empty string
	// with a nil error means the provider heard nothing intelligible.
	//
	// Returns an error for transport or upstream failures; callers decide
	// whether to drop the utterance or surface the failure.
	Transcribe(ctx context.Context, wav []byte) (string, error)
}
