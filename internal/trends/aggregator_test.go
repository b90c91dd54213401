package trends_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/trends"
)

func resultAt(id string, ts time.Time, sentiment float64) *domain.AnalysisResult {
	return &domain.AnalysisResult{
		ID:        id,
		ArticleID: "article-" + id,
		Version:   "v1",
		Sentiment: &domain.SentimentResult{
			Score:            sentiment,
			RawScore:         sentiment,
			AdjustmentFactor: 1.0,
			Confidence:       0.8,
		},
		AnalyzedAt: ts,
	}
}

func TestIngestWelfordMatchesBatch(t *testing.T) {
	t.Parallel()

	agg := trends.New(30, 24*time.Hour, logger.NewNop())
	ts := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	scores := []float64{0.5, -0.25, 0.8, 0.1, -0.6, 0.0, 0.3}
	for i, s := range scores {
		agg.Ingest(resultAt(fmt.Sprintf("r%d", i), ts, s))
	}

	w, ok := agg.Window(domain.WindowDaily, ts)
	require.True(t, ok)
	require.Equal(t, int64(len(scores)), w.Count)

	// Batch mean/variance over the same scores.
	mean := 0.0
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	variance := 0.0
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(scores))

	assert.InDelta(t, mean, w.SentimentMean, 1e-12)
	assert.InDelta(t, variance, w.SentimentVariance(), 1e-12)
}

func TestIngestIdempotentByResultID(t *testing.T) {
	t.Parallel()

	agg := trends.New(30, 24*time.Hour, logger.NewNop())
	ts := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	r := resultAt("r1", ts, 0.5)
	agg.Ingest(r)
	agg.Ingest(r)
	agg.Ingest(r)

	w, ok := agg.Window(domain.WindowDaily, ts)
	require.True(t, ok)
	assert.Equal(t, int64(1), w.Count)
	assert.InDelta(t, 0.5, w.SentimentMean, 1e-12)
}

func TestIngestCoversBothWindowKinds(t *testing.T) {
	t.Parallel()

	agg := trends.New(30, 24*time.Hour, logger.NewNop())
	ts := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	agg.Ingest(resultAt("r1", ts, 0.5))

	daily, ok := agg.Window(domain.WindowDaily, ts)
	require.True(t, ok)
	assert.Equal(t, int64(1), daily.Count)

	rolling, ok := agg.Window(domain.WindowRolling7d, ts)
	require.True(t, ok)
	assert.Equal(t, int64(1), rolling.Count)
}

func TestRollingWindowCoversTrailingDays(t *testing.T) {
	t.Parallel()

	agg := trends.New(30, 24*time.Hour, logger.NewNop())
	ts := time.Date(2025, 6, 9, 15, 0, 0, 0, time.UTC)

	agg.Ingest(resultAt("r1", ts, 0.5))

	// A result from June 9 is still part of the rolling aggregate
	// queried on each of the six following days.
	for days := 1; days <= 6; days++ {
		w, ok := agg.Window(domain.WindowRolling7d, ts.AddDate(0, 0, days))
		require.True(t, ok, "rolling window %d days later", days)
		assert.Equal(t, int64(1), w.Count)
		assert.InDelta(t, 0.5, w.SentimentMean, 1e-12)
	}

	// Seven days later the result has rolled out of range.
	_, ok := agg.Window(domain.WindowRolling7d, ts.AddDate(0, 0, 7))
	assert.False(t, ok)
}

func TestIngestBiasCounts(t *testing.T) {
	t.Parallel()

	agg := trends.New(30, 24*time.Hour, logger.NewNop())
	ts := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	for i, dir := range []domain.BiasDirection{domain.BiasLeft, domain.BiasLeft, domain.BiasCenter} {
		r := resultAt(fmt.Sprintf("r%d", i), ts, 0)
		r.Bias = &domain.BiasResult{Direction: dir, Confidence: 0.5}
		agg.Ingest(r)
	}

	w, ok := agg.Window(domain.WindowDaily, ts)
	require.True(t, ok)
	assert.Equal(t, int64(2), w.BiasCounts[domain.BiasLeft])
	assert.Equal(t, int64(1), w.BiasCounts[domain.BiasCenter])
	assert.Zero(t, w.BiasCounts[domain.BiasRight])
}

func TestEntityDecayFavorsRecentMentions(t *testing.T) {
	t.Parallel()

	agg := trends.New(30, 12*time.Hour, logger.NewNop())
	day := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	// Same mention count, 18 hours apart within the day: the later one
	// must carry more decayed weight.
	early := resultAt("r-early", day.Add(2*time.Hour), 0)
	early.Entities = []domain.EntityMention{{Name: "nato", Type: "organization", Mentions: 3}}
	agg.Ingest(early)

	late := resultAt("r-late", day.Add(20*time.Hour), 0)
	late.Entities = []domain.EntityMention{{Name: "ukraine", Type: "location", Mentions: 3}}
	agg.Ingest(late)

	w, ok := agg.Window(domain.WindowDaily, day)
	require.True(t, ok)

	assert.Greater(t, w.EntityWeight["ukraine/location"], w.EntityWeight["nato/organization"])
	assert.Equal(t, int64(3), w.EntityCount["nato/organization"])

	top := agg.TopEntities(domain.WindowDaily, day, 1)
	require.Len(t, top, 1)
	assert.Equal(t, "ukraine/location", top[0])
}

func TestTopicGrowthRate(t *testing.T) {
	t.Parallel()

	agg := trends.New(30, 24*time.Hour, logger.NewNop())
	yesterday := time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)
	today := yesterday.AddDate(0, 0, 1)

	r1 := resultAt("r1", yesterday, 0)
	r1.Topics = &domain.TopicResult{Primary: "politics", Confidence: map[string]float64{"politics": 0.5}}
	agg.Ingest(r1)

	r2 := resultAt("r2", today, 0)
	r2.Topics = &domain.TopicResult{Primary: "politics", Confidence: map[string]float64{"politics": 1.0}}
	agg.Ingest(r2)

	// (1.0 - 0.5) / 0.5 = 1.0
	assert.InDelta(t, 1.0, agg.TopicGrowth("politics", today), 1e-9)

	// A topic with no previous-day score grows against the epsilon
	// floor instead of dividing by zero.
	r3 := resultAt("r3", today, 0)
	r3.Topics = &domain.TopicResult{Primary: "climate", Confidence: map[string]float64{"climate": 0.4}}
	agg.Ingest(r3)

	growth := agg.TopicGrowth("climate", today)
	assert.Greater(t, growth, 1000.0)
}

func TestEvictionArchivesOldestDailyWindows(t *testing.T) {
	t.Parallel()

	agg := trends.New(3, 24*time.Hour, logger.NewNop())
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := range 5 {
		ts := start.AddDate(0, 0, i)
		agg.Ingest(resultAt(fmt.Sprintf("r%d", i), ts, 0.2))
	}

	// The two oldest daily windows are gone from the live set.
	_, ok := agg.Window(domain.WindowDaily, start)
	assert.False(t, ok)
	_, ok = agg.Window(domain.WindowDaily, start.AddDate(0, 0, 1))
	assert.False(t, ok)
	_, ok = agg.Window(domain.WindowDaily, start.AddDate(0, 0, 4))
	assert.True(t, ok)

	var daily []domain.WindowArchive
	for _, s := range agg.Archive() {
		if s.Kind == domain.WindowDaily {
			daily = append(daily, s)
		}
	}
	require.Len(t, daily, 2)
	// Archived oldest first, with the summary statistics retained.
	assert.Equal(t, start.Truncate(24*time.Hour), daily[0].Start)
	assert.Equal(t, int64(1), daily[0].Count)
	assert.InDelta(t, 0.2, daily[0].Mean, 1e-12)
}

func TestEvictionBoundsRollingWindows(t *testing.T) {
	t.Parallel()

	agg := trends.New(3, 24*time.Hour, logger.NewNop())
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := range 10 {
		agg.Ingest(resultAt(fmt.Sprintf("r%d", i), start.AddDate(0, 0, i), 0.2))
	}

	// Ten ingest days touch sixteen distinct rolling windows; the nine
	// newest stay live (retention three plus the six partially filled
	// forward windows), the rest are archived.
	_, ok := agg.Window(domain.WindowRolling7d, start)
	assert.False(t, ok)

	w, ok := agg.Window(domain.WindowRolling7d, start.AddDate(0, 0, 9))
	require.True(t, ok)
	assert.Equal(t, int64(7), w.Count)

	rollingArchived := 0
	for _, s := range agg.Archive() {
		if s.Kind == domain.WindowRolling7d {
			rollingArchived++
		}
	}
	assert.Equal(t, 7, rollingArchived)
}
