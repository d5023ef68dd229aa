// Package breaker implements the Closed/Open/HalfOpen circuit breaker that
// guards every subprocess invocation (component 4.A).
//
// The shape is grounded on the teacher's health-registry pattern
// (C360Studio-semspec/model/health.go's healthState: a single mutex guarding
// counters plus an "opened at" timestamp) but collapsed from a per-endpoint
// map to a single breaker per gateway instance, since describes
// one CircuitState per process rather than per provider.
package breaker

import (
	"sync"
	"time"
)

// State is the circuit breaker's current posture.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Config tunes the breaker's thresholds.
type Config struct {
	FailureThreshold int           // failures within FailureWindow before opening
	SuccessThreshold int           // successes in HalfOpen before closing
	TimeoutDuration  time.Duration // how long Open lasts before probing
	FailureWindow    time.Duration // rolling window for counting failures
}

// DefaultConfig matches its defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		TimeoutDuration:  60 * time.Second,
		FailureWindow:    300 * time.Second,
	}
}

// failureRecord is one failure timestamp, used to evict entries older than
// FailureWindow before evaluating the threshold.
type failureRecord struct {
	at time.Time
}

// TransitionFunc is invoked after every state change, with the prior and
// new state. Registered by the caller that owns the event bus (breaker
// itself has no events dependency) so Open/Closed/HalfOpen transitions can
// be published as BreakerTripped/BreakerReset events.
type TransitionFunc func(from, to State)

// Breaker is a single circuit breaker instance. All operations are atomic
// with respect to concurrent callers.
type Breaker struct {
	mu sync.Mutex

	cfg   Config
	state State

	failures      []failureRecord
	successCount  int
	openedAt      time.Time
	totalRequests uint64
	totalFailures uint64

	onTransition TransitionFunc
}

// New creates a Breaker in the Closed state.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: Closed}
}

// OnTransition registers fn to be called after every subsequent state
// change. Only one callback is kept; a later call replaces an earlier one.
func (b *Breaker) OnTransition(fn TransitionFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTransition = fn
}

// notify fires the registered transition callback, if any, for a from->to
// change. Callers must not hold b.mu when calling this.
func (b *Breaker) notify(from, to State) {
	b.mu.Lock()
	fn := b.onTransition
	b.mu.Unlock()
	if fn != nil && from != to {
		fn(from, to)
	}
}

// State returns the current state without mutating it. Use Allow to evaluate
// timeout-driven transitions.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a request should be attempted, transitioning
// Open -> HalfOpen once TimeoutDuration has elapsed since opening.
func (b *Breaker) Allow() bool {
	b.mu.Lock()

	switch b.state {
	case Closed, HalfOpen:
		b.mu.Unlock()
		return true
	case Open:
		if time.Since(b.openedAt) >= b.cfg.TimeoutDuration {
			from := b.state
			b.state = HalfOpen
			b.successCount = 0
			b.mu.Unlock()
			b.notify(from, HalfOpen)
			return true
		}
		b.mu.Unlock()
		return false
	default:
		b.mu.Unlock()
		return false
	}
}

// RecordSuccess registers a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()

	b.totalRequests++

	var from State
	closed := false
	switch b.state {
	case HalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			from = b.state
			b.state = Closed
			b.failures = nil
			b.successCount = 0
			closed = true
		}
	case Closed:
		b.failures = nil
	}
	b.mu.Unlock()

	if closed {
		b.notify(from, Closed)
	}
}

// RecordFailure registers a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()

	now := time.Now()
	b.totalRequests++
	b.totalFailures++

	var from State
	opened := false
	switch b.state {
	case Closed:
		b.failures = b.pruneLocked(now)
		b.failures = append(b.failures, failureRecord{at: now})
		if len(b.failures) >= b.cfg.FailureThreshold {
			from = b.state
			b.state = Open
			b.openedAt = now
			b.failures = nil
			opened = true
		}
	case HalfOpen:
		from = b.state
		b.state = Open
		b.openedAt = now
		b.successCount = 0
		opened = true
	}
	b.mu.Unlock()

	if opened {
		b.notify(from, Open)
	}
}

func (b *Breaker) pruneLocked(now time.Time) []failureRecord {
	cutoff := now.Add(-b.cfg.FailureWindow)
	kept := b.failures[:0]
	for _, f := range b.failures {
		if f.at.After(cutoff) {
			kept = append(kept, f)
		}
	}
	return kept
}

// UpdateConfig swaps in new thresholds without resetting the breaker's
// current state or counters, so a config reload can tighten or relax
// breaker behavior without interrupting an in-flight Open/HalfOpen cycle.
func (b *Breaker) UpdateConfig(cfg Config) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = cfg
}

// Counters reports the rolling request/failure totals, for status surfaces.
type Counters struct {
	FailureCount  int
	SuccessCount  int
	TotalRequests uint64
	TotalFailures uint64
}

func (b *Breaker) Counters() Counters {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counters{
		FailureCount:  len(b.failures),
		SuccessCount:  b.successCount,
		TotalRequests: b.totalRequests,
		TotalFailures: b.totalFailures,
	}
}
