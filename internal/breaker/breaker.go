// Package breaker provides a per-provider circuit breaker: after a run of
// consecutive failures the breaker opens and rejects calls immediately until
// the cooldown elapses, so the provider chain can fall through without
// waiting on a dependency that is already down.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while the breaker is open. Callers treat it as
// a circuit_open classification and skip to the next provider.
var ErrOpen = errors.New("circuit breaker open")

// Status is the read surface for one breaker.
type Status struct {
	IsOpen       bool      `json:"isOpen"`
	FailureCount int       `json:"failureCount"`
	OpenUntil    time.Time `json:"openUntil,omitempty"`
}

// Breaker guards a single provider. Thresholds and cooldowns are tuned per
// provider risk profile by the caller.
type Breaker struct {
	mu           sync.Mutex
	threshold    int
	cooldown     time.Duration
	failureCount int
	openUntil    time.Time
	now          func() time.Time
}

// Option customizes the breaker.
type Option func(*Breaker)

// WithClock overrides the time source (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a breaker that opens after threshold consecutive failures and
// stays open for cooldown.
func New(threshold int, cooldown time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a call may proceed. While open it returns ErrOpen
// without any side effects; once the cooldown has elapsed the breaker closes
// and the failure count starts fresh.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openUntil.IsZero() {
		return nil
	}
	if b.now().Before(b.openUntil) {
		return ErrOpen
	}
	b.openUntil = time.Time{}
	b.failureCount = 0
	return nil
}

// RecordFailure counts one failed call, opening the breaker at the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	if b.failureCount >= b.threshold {
		b.openUntil = b.now().Add(b.cooldown)
	}
}

// RecordSuccess resets the consecutive-failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.openUntil = time.Time{}
}

// Status returns the current breaker state for the status surface.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	open := !b.openUntil.IsZero() && b.now().Before(b.openUntil)
	s := Status{IsOpen: open, FailureCount: b.failureCount}
	if open {
		s.OpenUntil = b.openUntil
	}
	return s
}
