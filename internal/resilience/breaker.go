// Package resilience guards outbound dials with per-endpoint circuit breakers
// and fails over across an ordered list of endpoints.
//
// [Breaker] is a three-state breaker (closed, open, half-open). [Dialer]
// composes several [live.Dialer] endpoints, each behind its own breaker, so a
// failing primary is skipped in favour of the next healthy one.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker is open and
// the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// Breaker defaults.
const (
	DefaultMaxFailures  = 3
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 1
)

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of trial calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields select the package defaults.
type BreakerConfig struct {
	// Name labels log lines.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before admitting
	// trial calls.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful trials required to close.
	HalfOpenMax int

	Logger *slog.Logger
}

// Breaker implements the circuit breaker pattern. Calls cancelled by their
// context are neither failures nor successes.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	log          *slog.Logger
	now          func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	trials    int // in flight or finished during the current half-open
	trialWins int
}

// NewBreaker creates a closed [Breaker].
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultHalfOpenMax
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		log:          cfg.Logger,
		now:          time.Now,
	}
}

// Do runs fn if the breaker allows it and records the outcome.
func (b *Breaker) Do(fn func() error) error {
	trial, err := b.admit()
	if err != nil {
		return err
	}

	err = fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case errors.Is(err, context.Canceled):
		if trial {
			b.trials--
		}
	case err != nil:
		b.fail(trial)
	default:
		b.succeed(trial)
	}
	return err
}

func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return false, ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.trials, b.trialWins = 0, 0
		b.log.Info("circuit breaker half-open", "endpoint", b.name)
	case StateHalfOpen:
		if b.trials >= b.halfOpenMax {
			return false, ErrCircuitOpen
		}
	}
	if b.state == StateHalfOpen {
		b.trials++
		return true, nil
	}
	return false, nil
}

// fail must be called with b.mu held.
func (b *Breaker) fail(trial bool) {
	if trial {
		b.trip()
		b.log.Warn("circuit breaker re-opened", "endpoint", b.name)
		return
	}
	b.failures++
	if b.state == StateClosed && b.failures >= b.maxFailures {
		b.trip()
		b.log.Warn("circuit breaker opened", "endpoint", b.name, "consecutive_failures", b.failures)
	}
}

// succeed must be called with b.mu held.
func (b *Breaker) succeed(trial bool) {
	if !trial {
		b.failures = 0
		return
	}
	b.trialWins++
	if b.trialWins >= b.halfOpenMax {
		b.state = StateClosed
		b.failures = 0
		b.log.Info("circuit breaker closed", "endpoint", b.name)
	}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures, b.trials, b.trialWins = 0, 0, 0
}
