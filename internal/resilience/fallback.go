package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [Group] either failed or
// had an open breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// member pairs a provider with its own breaker.
type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group holds a primary provider and ordered backups of the same type. Each
// member gets its own [Breaker]; calls skip members whose breaker is open and
// move on to the next. Members must all be added before the first call.
type Group[T any] struct {
	members []member[T]
	cfg     BreakerConfig
}

// NewGroup creates a [Group] with primary as the first member. cfg is applied
// to every member's breaker; the Name field is replaced per member.
func NewGroup[T any](primary T, primaryName string, cfg BreakerConfig) *Group[T] {
	g := &Group[T]{cfg: cfg}
	g.Add(primaryName, primary)
	return g
}

// Add appends a backup provider, tried after everything added before it.
func (g *Group[T]) Add(name string, value T) {
	cfg := g.cfg
	cfg.Name = name
	g.members = append(g.members, member[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(cfg),
	})
}

// Do calls fn with each member in order until one succeeds. Members with open
// breakers are skipped. When no member succeeds the last error is wrapped in
// [ErrAllFailed].
//
// Do is a package function because methods cannot add type parameters.
func Do[T, R any](g *Group[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range g.members {
		m := &g.members[i]
		var result R
		err := m.breaker.Do(func() error {
			var callErr error
			result, callErr = fn(m.value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("resilience: skipping provider, circuit open", "provider", m.name)
		} else {
			slog.Warn("resilience: provider failed, trying next", "provider", m.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
