package resilience

import (
	"context"

	"github.com/leadamp/pitchdrill/pkg/provider/llm"
)

// LLMFallback is an [llm.Provider] that fails over across multiple completion
// backends. Each backend has its own breaker; when the primary fails or its
// breaker is open the next healthy backup answers instead. Prospect replies
// keep flowing during a primary outage, at whatever quality the backup model
// offers.
type LLMFallback struct {
	group *Group[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] preferring primary.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg BreakerConfig) *LLMFallback {
	return &LLMFallback{group: NewGroup(primary, primaryName, cfg)}
}

// AddFallback registers a backup completion provider.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.Add(name, provider)
}

// Complete sends req to the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}
