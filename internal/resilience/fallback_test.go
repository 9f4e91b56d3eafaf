package resilience

import (
	"errors"
	"testing"
	"time"
)

// stub is the provider type the group tests fail over across.
type stub struct {
	reply string
	err   error
	calls int
}

func call(s *stub) (string, error) {
	s.calls++
	return s.reply, s.err
}

func TestGroup_PrimaryAnswers(t *testing.T) {
	t.Parallel()
	primary := &stub{reply: "primary"}
	backup := &stub{reply: "backup"}
	g := NewGroup(primary, "a", BreakerConfig{})
	g.Add("b", backup)

	got, err := Do(g, call)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "primary" {
		t.Errorf("Do() = %q, want primary", got)
	}
	if backup.calls != 0 {
		t.Errorf("backup called %d times, want 0", backup.calls)
	}
}

func TestGroup_FailsOverInOrder(t *testing.T) {
	t.Parallel()
	first := &stub{err: errBoom}
	second := &stub{err: errBoom}
	third := &stub{reply: "third"}
	g := NewGroup(first, "a", BreakerConfig{})
	g.Add("b", second)
	g.Add("c", third)

	got, err := Do(g, call)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "third" {
		t.Errorf("Do() = %q, want third", got)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = (%d, %d), want both tried once", first.calls, second.calls)
	}
}

func TestGroup_AllFailed(t *testing.T) {
	t.Parallel()
	g := NewGroup(&stub{err: errBoom}, "a", BreakerConfig{})
	g.Add("b", &stub{err: errBoom})

	_, err := Do(g, call)
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("Do() error = %v, want ErrAllFailed", err)
	}
}

func TestGroup_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	primary := &stub{err: errBoom}
	backup := &stub{reply: "backup"}
	g := NewGroup(primary, "a", BreakerConfig{TripAfter: 1, CoolDown: time.Hour})
	g.Add("b", backup)

	// First call trips the primary's breaker.
	if _, err := Do(g, call); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if _, err := Do(g, call); err != nil {
		t.Fatalf("Do() second error = %v", err)
	}
	if primary.calls != 1 {
		t.Errorf("primary called %d times, want 1 (breaker should skip it)", primary.calls)
	}
	if backup.calls != 2 {
		t.Errorf("backup called %d times, want 2", backup.calls)
	}
}
