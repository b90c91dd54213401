package domain

import "time"

// WindowKind distinguishes the overlapping window granularities a
// single result is aggregated into.
type WindowKind string

const (
	// WindowDaily buckets results by calendar day (UTC).
	WindowDaily WindowKind = "daily"
	// WindowRolling7d buckets results by the 7-day span ending at the
	// result's day.
	WindowRolling7d WindowKind = "rolling_7d"
)

// TrendWindow holds the rolling aggregates for one time bucket. It is
// owned exclusively by the trend aggregator and mutated incrementally;
// consumers see snapshots.
type TrendWindow struct {
	Kind  WindowKind `json:"kind"`
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`

	// Count, SentimentMean and SentimentM2 implement Welford's
	// single-pass mean/variance update.
	Count         int64   `json:"count"`
	SentimentMean float64 `json:"sentiment_mean"`
	SentimentM2   float64 `json:"sentiment_m2"`

	BiasCounts   map[BiasDirection]int64 `json:"bias_counts"`
	EntityWeight map[string]float64      `json:"entity_weight"`
	EntityCount  map[string]int64        `json:"entity_count"`
	TopicScore   map[string]float64      `json:"topic_score"`
}

// SentimentVariance returns the population variance of sentiment
// scores ingested into the window.
func (w *TrendWindow) SentimentVariance() float64 {
	if w.Count < 2 {
		return 0
	}
	return w.SentimentM2 / float64(w.Count)
}

// WindowArchive is the summary a retired window is rolled into before
// eviction from the live working set.
type WindowArchive struct {
	Kind     WindowKind `json:"kind"`
	Start    time.Time  `json:"start"`
	Count    int64      `json:"count"`
	Mean     float64    `json:"mean"`
	Variance float64    `json:"variance"`
}
