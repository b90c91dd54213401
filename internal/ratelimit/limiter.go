// Package ratelimit provides per-source token-bucket admission control
// honoring crawl-delay policy.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonesrussell/newsflow/internal/config/types"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
)

// penaltyDivisor halves the effective rate while a 429 penalty is live.
const penaltyDivisor = 2.0

// sourceLimiter is the admission state for one source. Contention is
// isolated per source; there is no lock shared across sources.
type sourceLimiter struct {
	mu         sync.Mutex
	limiter    *rate.Limiter
	policy     types.RatePolicy
	lastGrant  time.Time
	penalized  bool
	penaltyEnd time.Time
	suspended  bool
}

// Limiter is the per-source admission controller.
type Limiter struct {
	mu           sync.RWMutex
	sources      map[string]*sourceLimiter
	penaltyDecay time.Duration
	log          logger.Logger
	now          func() time.Time
}

// New creates a limiter. penaltyDecay is how long a 429 penalty
// shrinks a source's effective rate before it restores.
func New(penaltyDecay time.Duration, log logger.Logger) *Limiter {
	return &Limiter{
		sources:      make(map[string]*sourceLimiter),
		penaltyDecay: penaltyDecay,
		log:          log,
		now:          time.Now,
	}
}

// Register installs or replaces the rate policy for a source. A
// non-positive rate registers the source as suspended and returns a
// ConfigurationError; it is never silently floored.
func (l *Limiter) Register(sourceID string, policy types.RatePolicy) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if policy.RequestsPerSecond <= 0 {
		l.sources[sourceID] = &sourceLimiter{policy: policy, suspended: true}
		return &domain.ConfigurationError{
			SourceID: sourceID,
			Reason:   "requests_per_second must be positive",
		}
	}

	burst := policy.Burst
	if burst <= 0 {
		burst = 1
	}

	l.sources[sourceID] = &sourceLimiter{
		limiter: rate.NewLimiter(rate.Limit(policy.RequestsPerSecond), burst),
		policy:  policy,
	}

	return nil
}

// Known reports whether the source already has a registered limiter.
func (l *Limiter) Known(sourceID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.sources[sourceID]
	return ok
}

// TryAcquire attempts a non-blocking grant for the source. On refusal
// it returns the duration the caller must wait before retrying. A
// suspended or unknown source yields a ConfigurationError.
func (l *Limiter) TryAcquire(sourceID string) (granted bool, wait time.Duration, err error) {
	l.mu.RLock()
	sl, ok := l.sources[sourceID]
	l.mu.RUnlock()

	if !ok {
		return false, 0, &domain.ConfigurationError{SourceID: sourceID, Reason: "source not registered"}
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.suspended {
		return false, 0, &domain.ConfigurationError{SourceID: sourceID, Reason: "invalid rate policy"}
	}

	now := l.now()
	sl.maybeRestore(now)

	// Crawl-delay floor: the gap between grants never drops below the
	// configured delay, regardless of bucket state.
	if sl.policy.CrawlDelay > 0 && !sl.lastGrant.IsZero() {
		if gap := now.Sub(sl.lastGrant); gap < sl.policy.CrawlDelay {
			return false, sl.policy.CrawlDelay - gap, nil
		}
	}

	res := sl.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, sl.policy.CrawlDelay, nil
	}

	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay, nil
	}

	sl.lastGrant = now
	return true, 0, nil
}

// Penalize shrinks the source's effective rate in response to a 429.
// The penalty decays back to the configured rate after the limiter's
// decay period. Penalties do not stack.
func (l *Limiter) Penalize(sourceID string) {
	l.mu.RLock()
	sl, ok := l.sources[sourceID]
	l.mu.RUnlock()

	if !ok {
		return
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.suspended {
		return
	}

	now := l.now()
	sl.penaltyEnd = now.Add(l.penaltyDecay)

	if !sl.penalized {
		sl.penalized = true
		sl.limiter.SetLimitAt(now, rate.Limit(sl.policy.RequestsPerSecond/penaltyDivisor))
		l.log.Warn("source rate penalized",
			logger.String("source_id", sourceID),
			logger.Duration("decay", l.penaltyDecay),
		)
	}
}

// maybeRestore lifts an expired 429 penalty. Caller holds sl.mu.
func (sl *sourceLimiter) maybeRestore(now time.Time) {
	if sl.penalized && now.After(sl.penaltyEnd) {
		sl.penalized = false
		sl.limiter.SetLimitAt(now, rate.Limit(sl.policy.RequestsPerSecond))
	}
}

// Suspended reports whether the source is suspended for a bad policy.
func (l *Limiter) Suspended(sourceID string) bool {
	l.mu.RLock()
	sl, ok := l.sources[sourceID]
	l.mu.RUnlock()

	if !ok {
		return false
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.suspended
}
