package utils

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BreakerState represents the state of a circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// ErrBreakerOpen is returned when the circuit is open and calls are rejected.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int
	// SuccessThreshold is the number of successes in half-open state to close.
	SuccessThreshold int
	// Cooldown is how long to wait before transitioning from open to half-open.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns sensible defaults for remote API calls.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Cooldown:         30 * time.Second,
	}
}

// Breaker is a circuit breaker guarding calls to a remote dependency. After
// FailureThreshold consecutive failures it rejects calls for Cooldown, then
// lets a probe call through; the probe's outcome decides whether the circuit
// closes again.
type Breaker struct {
	config BreakerConfig

	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time
}

// NewBreaker creates a circuit breaker with the given configuration.
func NewBreaker(config BreakerConfig) *Breaker {
	return &Breaker{config: config, state: BreakerClosed}
}

// State returns the current state, applying any due open-to-half-open
// transition first.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

// Execute runs fn under circuit breaker protection. When the circuit is open
// it returns ErrBreakerOpen without calling fn. Context cancellation counts
// as a failure.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	if b.state == BreakerOpen {
		return ErrBreakerOpen
	}
	return nil
}

// refreshLocked moves an open circuit to half-open once the cooldown has
// elapsed. Caller holds b.mu.
func (b *Breaker) refreshLocked() {
	if b.state == BreakerOpen && time.Since(b.lastFailure) >= b.config.Cooldown {
		b.state = BreakerHalfOpen
		b.successes = 0
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailure = time.Now()
	switch b.state {
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.failures = 0
	default:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.state = BreakerOpen
			b.failures = 0
		}
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.state = BreakerClosed
			b.failures = 0
		}
	default:
		b.failures = 0
	}
}
