package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leadamp/pitchdrill/pkg/provider/llm"
	"github.com/leadamp/pitchdrill/pkg/provider/llm/mock"
)

func TestLLMFallback_UsesPrimary(t *testing.T) {
	t.Parallel()
	primary := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "primary"}}
	backup := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "backup"}}
	f := NewLLMFallback(primary, "openai", BreakerConfig{})
	f.AddFallback("ollama", backup)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "primary" {
		t.Errorf("Content = %q, want primary", resp.Content)
	}
	if len(backup.CompleteCalls) != 0 {
		t.Errorf("backup received %d calls, want 0", len(backup.CompleteCalls))
	}
}

func TestLLMFallback_FailsOverToBackup(t *testing.T) {
	t.Parallel()
	primary := &mock.Provider{CompleteErr: errBoom}
	backup := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "backup"}}
	f := NewLLMFallback(primary, "openai", BreakerConfig{})
	f.AddFallback("ollama", backup)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "backup" {
		t.Errorf("Content = %q, want backup", resp.Content)
	}
	if len(backup.CompleteCalls) != 1 {
		t.Fatalf("backup received %d calls, want 1", len(backup.CompleteCalls))
	}
	if got := backup.CompleteCalls[0].Req.Messages[0].Content; got != "hi" {
		t.Errorf("backup saw message %q, want the original request", got)
	}
}

func TestLLMFallback_AllBackendsDown(t *testing.T) {
	t.Parallel()
	f := NewLLMFallback(&mock.Provider{CompleteErr: errBoom}, "openai", BreakerConfig{})
	f.AddFallback("ollama", &mock.Provider{CompleteErr: errBoom})

	_, err := f.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("Complete() error = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_TrippedPrimaryIsSkipped(t *testing.T) {
	t.Parallel()
	primary := &mock.Provider{CompleteErr: errBoom}
	backup := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "backup"}}
	f := NewLLMFallback(primary, "openai", BreakerConfig{TripAfter: 1, CoolDown: time.Hour})
	f.AddFallback("ollama", backup)

	for i := 0; i < 3; i++ {
		if _, err := f.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
			t.Fatalf("Complete() %d error = %v", i, err)
		}
	}
	if len(primary.CompleteCalls) != 1 {
		t.Errorf("primary received %d calls, want 1 after its breaker opened", len(primary.CompleteCalls))
	}
}
