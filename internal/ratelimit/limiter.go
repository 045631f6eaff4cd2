// Package ratelimit tracks per-provider daily call budgets. Counters are
// process-local: at the documented scale (hundreds of calls per day on a
// single function instance) an in-memory map is sufficient, and the narrow
// interface leaves room to swap in a shared counter store later.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// Check is the answer to a budget query. ResetAt is the next UTC reset.
type Check struct {
	Allowed   bool
	Current   int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Stats extends Check with derived fields for the status surface.
type Stats struct {
	Check
	PercentUsed    float64
	TimeUntilReset time.Duration
}

type state struct {
	count   int
	resetAt time.Time
}

// Limiter maintains one daily counter per provider. Reset is lazy: any read
// past resetAt reinitializes the counter before answering.
type Limiter struct {
	mu        sync.Mutex
	limits    map[string]int
	states    map[string]*state
	resetHour int
	now       func() time.Time
}

// Option customizes the limiter.
type Option func(*Limiter)

// WithClock overrides the time source (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a limiter with per-provider daily limits and a UTC reset hour.
func New(limits map[string]int, resetHour int, opts ...Option) *Limiter {
	l := &Limiter{
		limits:    limits,
		states:    make(map[string]*state, len(limits)),
		resetHour: resetHour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckLimit reports whether provider has budget left today. It has no side
// effects beyond the lazy reset.
func (l *Limiter) CheckLimit(provider string) Check {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stateLocked(provider)
	limit := l.limits[provider]
	remaining := limit - s.count
	if remaining < 0 {
		remaining = 0
	}
	return Check{
		Allowed:   s.count < limit,
		Current:   s.count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   s.resetAt,
	}
}

// Increment records one successful outbound call. Call it exactly once per
// call that actually went out.
func (l *Limiter) Increment(provider string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stateLocked(provider)
	s.count++

	limit := l.limits[provider]
	if limit <= 0 {
		return
	}
	used := float64(s.count) / float64(limit)
	switch {
	case used >= 0.9:
		slog.Warn("Provider daily budget nearly exhausted.", "provider", provider, "used", s.count, "limit", limit)
	case used >= 0.75:
		slog.Warn("Provider daily budget past 75%.", "provider", provider, "used", s.count, "limit", limit)
	}
}

// GetStats returns the status-surface view for provider.
func (l *Limiter) GetStats(provider string) Stats {
	check := l.CheckLimit(provider)
	var percent float64
	if check.Limit > 0 {
		percent = float64(check.Current) / float64(check.Limit) * 100
	}
	return Stats{
		Check:          check,
		PercentUsed:    percent,
		TimeUntilReset: check.ResetAt.Sub(l.now()),
	}
}

// Providers lists every provider the limiter knows about.
func (l *Limiter) Providers() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.limits))
	for name := range l.limits {
		names = append(names, name)
	}
	return names
}

// stateLocked returns the provider state, resetting it if the current window
// has passed. Caller must hold l.mu.
func (l *Limiter) stateLocked(provider string) *state {
	now := l.now().UTC()
	s, ok := l.states[provider]
	if !ok {
		s = &state{resetAt: l.nextReset(now)}
		l.states[provider] = s
	}
	if !now.Before(s.resetAt) {
		s.count = 0
		s.resetAt = l.nextReset(now)
	}
	return s
}

// nextReset computes today at the reset hour UTC, or tomorrow if already past.
func (l *Limiter) nextReset(now time.Time) time.Time {
	reset := time.Date(now.Year(), now.Month(), now.Day(), l.resetHour, 0, 0, 0, time.UTC)
	if !now.Before(reset) {
		reset = reset.Add(24 * time.Hour)
	}
	return reset
}
