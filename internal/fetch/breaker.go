package fetch

import (
	"sync"
	"time"
)

// BreakerState is the state of a per-source circuit breaker.
type BreakerState int

const (
	// BreakerClosed allows all fetches.
	BreakerClosed BreakerState = iota
	// BreakerOpen blocks all fetches until the cooldown elapses.
	BreakerOpen
	// BreakerHalfOpen allows a single trial fetch.
	BreakerHalfOpen
)

// String returns the string representation of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before half-opening.
	Cooldown time.Duration
	// OnStateChange is called outside the breaker lock on transitions.
	OnStateChange func(from, to BreakerState)
}

// Breaker is a per-source circuit breaker with explicit Allow/Record
// calls, so the admission decision and the fetch outcome can be
// separated by an asynchronous attempt.
type Breaker struct {
	mu            sync.Mutex
	cfg           BreakerConfig
	state         BreakerState
	failures      int
	openedAt      time.Time
	trialInFlight bool
	now           func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}

	return &Breaker{cfg: cfg, state: BreakerClosed, now: time.Now}
}

// Allow reports whether a fetch may proceed. When the breaker is open
// it returns the remaining cooldown; after cooldown it half-opens and
// admits exactly one trial fetch.
func (b *Breaker) Allow() (ok bool, retryAfter time.Duration) {
	b.mu.Lock()

	var notify func()
	defer func() {
		b.mu.Unlock()
		if notify != nil {
			notify()
		}
	}()

	switch b.state {
	case BreakerClosed:
		return true, 0
	case BreakerOpen:
		remaining := b.cfg.Cooldown - b.now().Sub(b.openedAt)
		if remaining > 0 {
			return false, remaining
		}
		notify = b.transition(BreakerHalfOpen)
		b.trialInFlight = true
		return true, 0
	case BreakerHalfOpen:
		if b.trialInFlight {
			return false, b.cfg.Cooldown
		}
		b.trialInFlight = true
		return true, 0
	default:
		return false, b.cfg.Cooldown
	}
}

// Record reports the outcome of an admitted fetch.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()

	var notify func()
	defer func() {
		b.mu.Unlock()
		if notify != nil {
			notify()
		}
	}()

	if b.state == BreakerHalfOpen {
		b.trialInFlight = false
		if success {
			notify = b.transition(BreakerClosed)
		} else {
			b.openedAt = b.now()
			notify = b.transition(BreakerOpen)
		}
		return
	}

	if success {
		b.failures = 0
		return
	}

	b.failures++
	if b.state == BreakerClosed && b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.now()
		notify = b.transition(BreakerOpen)
	}
}

// transition changes state and returns the deferred callback to run
// outside the lock. Caller holds b.mu.
func (b *Breaker) transition(to BreakerState) func() {
	if b.state == to {
		return nil
	}

	from := b.state
	b.state = to
	b.failures = 0

	if b.cfg.OnStateChange == nil {
		return nil
	}
	cb := b.cfg.OnStateChange
	return func() { cb(from, to) }
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
