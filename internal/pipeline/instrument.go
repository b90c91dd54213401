package pipeline

import (
	"context"
	"time"

	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/fetch"
	"github.com/jonesrussell/newsflow/internal/metrics"
)

// fetchObserver adapts the metrics set to the fetcher's lifecycle hook.
type fetchObserver struct {
	met *metrics.Metrics
}

func (o fetchObserver) FetchAttempt(sourceID, outcome string, elapsed time.Duration) {
	o.met.FetchTotal.WithLabelValues(sourceID, outcome).Inc()
	if outcome != "robots_disallowed" {
		o.met.FetchLatency.WithLabelValues(sourceID).Observe(elapsed.Seconds())
	}
}

func (o fetchObserver) FetchRetry(sourceID string) {
	o.met.FetchRetries.WithLabelValues(sourceID).Inc()
}

func (o fetchObserver) RateDeferred(sourceID string) {
	o.met.RateLimitWaits.WithLabelValues(sourceID).Inc()
}

func (o fetchObserver) BreakerTransition(sourceID string, state fetch.BreakerState) {
	o.met.BreakerState.WithLabelValues(sourceID).Set(float64(state))
}

// countingDeadLetters counts abandoned work before delegating to the
// configured sink.
type countingDeadLetters struct {
	next fetch.DeadLetterSink
	met  *metrics.Metrics
}

func (c countingDeadLetters) Record(ctx context.Context, dl *domain.DeadLetter) error {
	c.met.DeadLettersTotal.WithLabelValues(string(dl.Kind)).Inc()
	return c.next.Record(ctx, dl)
}
