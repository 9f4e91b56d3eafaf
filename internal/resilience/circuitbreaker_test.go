package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

// newTestBreaker returns a breaker plus a function to advance its clock.
func newTestBreaker(cfg BreakerConfig) (*Breaker, func(time.Duration)) {
	b := NewBreaker(cfg)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, func(d time.Duration) { now = now.Add(d) }
}

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(BreakerConfig{TripAfter: 3})

	for i := 0; i < 3; i++ {
		if err := b.Do(fail); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v, want errBoom", i, err)
		}
	}
	if !b.Open() {
		t.Fatal("breaker still closed after trip threshold")
	}
	if err := b.Do(succeed); !errors.Is(err, ErrOpen) {
		t.Errorf("open breaker err = %v, want ErrOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(BreakerConfig{TripAfter: 3})

	b.Do(fail)
	b.Do(fail)
	b.Do(succeed)
	b.Do(fail)
	b.Do(fail)
	if b.Open() {
		t.Error("breaker opened despite the reset in between")
	}
}

func TestBreaker_ProbesAfterCoolDown(t *testing.T) {
	t.Parallel()
	b, advance := newTestBreaker(BreakerConfig{TripAfter: 1, CoolDown: 10 * time.Second, Probes: 2})

	b.Do(fail)
	if err := b.Do(succeed); !errors.Is(err, ErrOpen) {
		t.Fatalf("err before cool down = %v, want ErrOpen", err)
	}

	advance(11 * time.Second)
	if err := b.Do(succeed); err != nil {
		t.Fatalf("first probe err = %v", err)
	}
	if err := b.Do(succeed); err != nil {
		t.Fatalf("second probe err = %v", err)
	}
	if b.Open() {
		t.Error("breaker open after enough successful probes")
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()
	b, advance := newTestBreaker(BreakerConfig{TripAfter: 1, CoolDown: 10 * time.Second, Probes: 2})

	b.Do(fail)
	advance(11 * time.Second)
	if err := b.Do(fail); !errors.Is(err, errBoom) {
		t.Fatalf("probe err = %v, want errBoom", err)
	}
	if !b.Open() {
		t.Error("breaker closed after failed probe")
	}
	if err := b.Do(succeed); !errors.Is(err, ErrOpen) {
		t.Errorf("err after failed probe = %v, want ErrOpen", err)
	}
}

func TestBreaker_Defaults(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "llm"})
	if b.tripAfter != defaultTripAfter || b.coolDown != defaultCoolDown || b.probes != defaultProbes {
		t.Errorf("defaults = (%d, %v, %d), want (%d, %v, %d)",
			b.tripAfter, b.coolDown, b.probes, defaultTripAfter, defaultCoolDown, defaultProbes)
	}
}
