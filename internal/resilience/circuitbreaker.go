// Package resilience keeps model outages from taking practice sessions down
// with them. A [Breaker] stops hammering a backend that keeps failing, and a
// [Group] fails over from the primary completion provider to configured
// backups while the primary's breaker is open.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and the cool
// down period has not elapsed.
var ErrOpen = errors.New("resilience: circuit open")

// breakerState tracks where a [Breaker] is in its trip cycle.
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateProbing
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateProbing:
		return "probing"
	}
	return "unknown"
}

const (
	defaultTripAfter = 5
	defaultCoolDown  = 30 * time.Second
	defaultProbes    = 3
)

// BreakerConfig tunes a [Breaker]. Zero values fall back to defaults.
type BreakerConfig struct {
	// Name labels the breaker in logs.
	Name string

	// TripAfter is how many consecutive failures open the breaker. Default 5.
	TripAfter int

	// CoolDown is how long the breaker stays open before letting probe calls
	// through. Default 30s.
	CoolDown time.Duration

	// Probes is how many calls must succeed while probing before the breaker
	// closes again. Default 3.
	Probes int
}

// Breaker is a consecutive-failure circuit breaker. After TripAfter failures
// in a row it rejects calls for CoolDown, then lets probe calls through; a
// probe failure re-opens it, Probes successes close it.
type Breaker struct {
	name      string
	tripAfter int
	coolDown  time.Duration
	probes    int

	now func() time.Time // overridden in tests

	mu        sync.Mutex
	state     breakerState
	failures  int
	openedAt  time.Time
	probeWins int
}

// NewBreaker creates a closed [Breaker] from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = defaultTripAfter
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = defaultCoolDown
	}
	if cfg.Probes <= 0 {
		cfg.Probes = defaultProbes
	}
	return &Breaker{
		name:      cfg.Name,
		tripAfter: cfg.TripAfter,
		coolDown:  cfg.CoolDown,
		probes:    cfg.Probes,
		now:       time.Now,
	}
}

// Do runs fn unless the breaker is open, in which case it returns [ErrOpen]
// without calling fn. fn's error feeds the breaker's failure accounting and
// is returned unchanged.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.state == stateOpen {
		if b.now().Sub(b.openedAt) < b.coolDown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = stateProbing
		b.probeWins = 0
		slog.Info("resilience: breaker probing", "name", b.name)
	}
	probing := b.state == stateProbing
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	if probing {
		b.state = stateOpen
		b.openedAt = b.now()
		slog.Warn("resilience: breaker re-opened on failed probe", "name", b.name)
		return
	}
	b.failures++
	if b.failures >= b.tripAfter {
		b.state = stateOpen
		b.openedAt = b.now()
		slog.Warn("resilience: breaker opened", "name", b.name, "failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		b.probeWins++
		if b.probeWins >= b.probes {
			b.state = stateClosed
			b.failures = 0
			slog.Info("resilience: breaker closed", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// Open reports whether the breaker would currently reject a call.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen && b.now().Sub(b.openedAt) < b.coolDown
}
