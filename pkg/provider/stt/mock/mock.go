// Package mock provides a test double for the stt package interfaces.
//
// Pre-populate Transcript (or Transcripts for multi-utterance tests) with the
// text the consumer should receive, then inspect TranscribeCalls to verify
// which audio payloads were submitted.
package mock

import (
	"context"
	"sync"

	"github.com/leadamp/pitchdrill/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// WAV is a copy of the audio bytes that were passed to Transcribe.
	WAV []byte
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Transcript is the text returned by every Transcribe call when
	// Transcripts is empty.
	Transcript string

	// Transcripts, if non-empty, is consumed one entry per Transcribe call.
	// Once drained, Transcribe falls back to Transcript.
	Transcripts []string

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the next queued transcript,
// TranscribeErr.
func (p *Provider) Transcribe(ctx context.Context, wav []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(wav))
	copy(cp, wav)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, WAV: cp})
	if p.TranscribeErr != nil {
		return "", p.TranscribeErr
	}
	if len(p.Transcripts) > 0 {
		next := p.Transcripts[0]
		p.Transcripts = p.Transcripts[1:]
		return next, nil
	}
	return p.Transcript, nil
}

// TranscribeCallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) TranscribeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
