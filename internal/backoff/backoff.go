// Package backoff owns the reconnection schedule for the broker session:
// a bounded exponential delay ladder driven by a small state machine with
// at most one timer outstanding at any time.
package backoff

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the scheduling state of the policy.
type State int

const (
	// StateIdle means no reconnect timer is outstanding.
	StateIdle State = iota
	// StateScheduled means a one-shot timer is armed.
	StateScheduled
	// StateExhausted is terminal: the retry budget is spent and no
	// further timers are armed until Reset.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateExhausted:
		return "exhausted"
	default:
		return "invalid"
	}
}

var (
	// ErrTimerPending is returned when Schedule is called while a timer
	// is already armed. Callers must Cancel before rearming.
	ErrTimerPending = errors.New("backoff: reconnect timer already scheduled")

	// ErrExhausted is returned once the retry budget is spent.
	ErrExhausted = errors.New("backoff: retry budget exhausted")
)

// maxShift bounds the doubling exponent so the shift cannot overflow.
const maxShift = 32

// Policy computes and schedules reconnection delays. The delay for
// attempt n is min(baseDelay << n, maxDelay); the counter resets only on
// Reset, which the session calls on a successful connection.
type Policy struct {
	baseDelay  time.Duration
	maxDelay   time.Duration
	maxRetries int

	timer  Timer
	logger zerolog.Logger

	mu         sync.Mutex
	state      State
	retryCount int
	inFlight   sync.WaitGroup
}

// NewPolicy creates a Policy with the given delay ladder and timer.
func NewPolicy(baseDelay, maxDelay time.Duration, maxRetries int, timer Timer, logger zerolog.Logger) *Policy {
	return &Policy{
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		maxRetries: maxRetries,
		timer:      timer,
		logger:     logger,
	}
}

// Delay returns the backoff delay for the given retry count. It is a pure
// function of its argument and monotonic non-decreasing up to the cap.
func (p *Policy) Delay(retry int) time.Duration {
	if retry >= maxShift {
		return p.maxDelay
	}
	d := p.baseDelay << uint(retry)
	if d > p.maxDelay || d <= 0 {
		return p.maxDelay
	}
	return d
}

// Schedule arms the one-shot timer for the next reconnection attempt and
// increments the retry counter. The delay is computed from the counter
// value before the increment, producing base, base*2, base*4, ... capped
// at maxDelay. It returns ErrTimerPending if a timer is already armed and
// ErrExhausted once maxRetries attempts have been scheduled.
func (p *Policy) Schedule(fire func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateScheduled:
		return ErrTimerPending
	case StateExhausted:
		return ErrExhausted
	}

	if p.retryCount >= p.maxRetries {
		p.state = StateExhausted
		p.logger.Error().
			Int("max_retries", p.maxRetries).
			Msg("Maximum reconnection attempts reached, giving up")
		return ErrExhausted
	}

	delay := p.Delay(p.retryCount)
	p.state = StateScheduled
	p.retryCount++
	attempt := p.retryCount

	p.timer.Start(delay, func() {
		p.mu.Lock()
		if p.state != StateScheduled {
			// Cancelled between the timer firing and this callback
			// taking the lock.
			p.mu.Unlock()
			return
		}
		p.state = StateIdle
		p.inFlight.Add(1)
		p.mu.Unlock()

		defer p.inFlight.Done()
		fire()
	})

	p.logger.Info().
		Dur("delay", delay).
		Int("attempt", attempt).
		Int("max_retries", p.maxRetries).
		Msg("Reconnection attempt scheduled")
	return nil
}

// Cancel disarms a scheduled timer, returning the policy to idle, and
// waits for a fire callback already in flight to return. The retry
// counter is left untouched. Must not be called from within a callback.
func (p *Policy) Cancel() {
	p.mu.Lock()
	p.timer.Stop()
	if p.state == StateScheduled {
		p.state = StateIdle
	}
	p.mu.Unlock()

	p.inFlight.Wait()
}

// Reset disarms any timer and clears the retry counter. The session calls
// this on every successful connection and on an explicit restart, which
// is also the only way out of the exhausted state.
func (p *Policy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.timer.Stop()
	p.state = StateIdle
	p.retryCount = 0
}

// State returns the current scheduling state.
func (p *Policy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// RetryCount returns the number of attempts scheduled since the last Reset.
func (p *Policy) RetryCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retryCount
}
