package fetch

import "time"

// Observer receives fetch lifecycle events for instrumentation. All
// methods must be safe for concurrent calls.
type Observer interface {
	// FetchAttempt reports one finished attempt with its classified
	// outcome: success, rate_limited, transient, permanent, or
	// robots_disallowed.
	FetchAttempt(sourceID, outcome string, elapsed time.Duration)

	// FetchRetry reports a task requeued with backoff.
	FetchRetry(sourceID string)

	// RateDeferred reports an admission attempt deferred by the
	// per-source rate limiter.
	RateDeferred(sourceID string)

	// BreakerTransition reports the breaker entering a new state.
	BreakerTransition(sourceID string, state BreakerState)
}

// nopObserver keeps the hot path free of nil checks.
type nopObserver struct{}

func (nopObserver) FetchAttempt(string, string, time.Duration) {}
func (nopObserver) FetchRetry(string)                          {}
func (nopObserver) RateDeferred(string)                        {}
func (nopObserver) BreakerTransition(string, BreakerState)     {}

// SetObserver installs the instrumentation hook. Must be called before
// Run.
func (f *Fetcher) SetObserver(obs Observer) {
	if obs != nil {
		f.obs = obs
	}
}
