// Package fetch executes bounded-concurrency network fetches with
// retry, backoff, and per-source circuit breaking.
package fetch

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffPolicy computes retry delays: base * 2^attempt with
// symmetric jitter, capped at Cap. The same policy shape is reused by
// the analysis orchestrator for its retry queue.
type BackoffPolicy struct {
	Base        time.Duration
	Cap         time.Duration
	Jitter      float64 // fraction of the delay, e.g. 0.25 for ±25%
	MaxAttempts int
}

// Delay returns the backoff delay before retrying after the given
// zero-based attempt number.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := time.Duration(float64(p.Base) * math.Pow(2, float64(attempt)))
	if d > p.Cap || d <= 0 {
		d = p.Cap
	}

	if p.Jitter > 0 {
		// Uniform in [-jitter, +jitter] of the computed delay.
		f := 1 + p.Jitter*(2*rand.Float64()-1)
		d = time.Duration(float64(d) * f)
	}

	if d > p.Cap {
		d = p.Cap
	}
	return d
}

// Exhausted reports whether the given attempt count has used up the
// policy's budget.
func (p BackoffPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
