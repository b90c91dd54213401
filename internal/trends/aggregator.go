// Package trends maintains rolling time-windowed statistics over
// analysis results.
package trends

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
)

// growthEpsilon floors the previous-window score when computing topic
// growth so a newly appearing topic does not divide by zero.
const growthEpsilon = 1e-6

// shardCount stripes the window map so concurrent ingestion from many
// sources never serializes on one lock.
const shardCount = 16

// windowShard is one lock stripe of the live window map.
type windowShard struct {
	mu      sync.Mutex
	windows map[string]*domain.TrendWindow
}

// Aggregator consumes AnalysisResults into rolling windows. Ingestion
// is idempotent by AnalysisResult identity, so a crash-restart replay
// leaves aggregates unchanged.
type Aggregator struct {
	retentionDays int
	halfLife      time.Duration
	log           logger.Logger
	now           func() time.Time

	shards [shardCount]*windowShard
	seen   sync.Map // result ID -> struct{}

	archiveMu sync.Mutex
	archive   []domain.WindowArchive
}

// New creates an aggregator retaining retentionDays live daily
// windows and decaying entity mention weights with the given
// half-life.
func New(retentionDays int, halfLife time.Duration, log logger.Logger) *Aggregator {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if halfLife <= 0 {
		halfLife = 24 * time.Hour
	}

	a := &Aggregator{
		retentionDays: retentionDays,
		halfLife:      halfLife,
		log:           log,
		now:           time.Now,
	}
	for i := range a.shards {
		a.shards[i] = &windowShard{windows: make(map[string]*domain.TrendWindow)}
	}
	return a
}

// Ingest folds one result into every window kind covering its
// timestamp. A result already ingested (same AnalysisResult ID) is a
// no-op.
func (a *Aggregator) Ingest(result *domain.AnalysisResult) {
	if _, loaded := a.seen.LoadOrStore(result.ID, struct{}{}); loaded {
		return
	}

	day := dayStart(result.AnalyzedAt)
	a.update(domain.WindowDaily, day, day.AddDate(0, 0, 1), result)

	// A timestamp falls into seven rolling windows: the one ending on
	// its own day and the ones ending on each of the six days after.
	for offset := -6; offset <= 0; offset++ {
		start := day.AddDate(0, 0, offset)
		a.update(domain.WindowRolling7d, start, start.AddDate(0, 0, 7), result)
	}

	a.evict()
}

// update applies the result to one window under its bucket lock.
func (a *Aggregator) update(kind domain.WindowKind, start, end time.Time, result *domain.AnalysisResult) {
	key := windowKey(kind, start)
	shard := a.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	w, ok := shard.windows[key]
	if !ok {
		w = &domain.TrendWindow{
			Kind:         kind,
			Start:        start,
			End:          end,
			BiasCounts:   make(map[domain.BiasDirection]int64),
			EntityWeight: make(map[string]float64),
			EntityCount:  make(map[string]int64),
			TopicScore:   make(map[string]float64),
		}
		shard.windows[key] = w
	}

	if result.Sentiment != nil {
		// Welford single-pass mean/variance update.
		w.Count++
		delta := result.Sentiment.Score - w.SentimentMean
		w.SentimentMean += delta / float64(w.Count)
		w.SentimentM2 += delta * (result.Sentiment.Score - w.SentimentMean)
	}

	if result.Bias != nil {
		w.BiasCounts[result.Bias.Direction]++
	}

	for _, e := range result.Entities {
		k := e.Name + "/" + e.Type
		w.EntityCount[k] += int64(e.Mentions)
		w.EntityWeight[k] += float64(e.Mentions) * a.decayFactor(w.End, result.AnalyzedAt)
	}

	if result.Topics != nil {
		for label, score := range result.Topics.Confidence {
			w.TopicScore[label] += score
		}
	}
}

// decayFactor weights a mention by its age relative to the window
// end: 0.5^(age/halfLife), so recent mentions dominate trending
// queries without any rescan.
func (a *Aggregator) decayFactor(windowEnd, ts time.Time) float64 {
	age := windowEnd.Sub(ts)
	if age < 0 {
		age = 0
	}
	return math.Pow(0.5, age.Hours()/a.halfLife.Hours())
}

// Window returns a snapshot of the window covering t, if live.
func (a *Aggregator) Window(kind domain.WindowKind, t time.Time) (domain.TrendWindow, bool) {
	start := dayStart(t)
	if kind == domain.WindowRolling7d {
		start = start.AddDate(0, 0, -6)
	}

	key := windowKey(kind, start)
	shard := a.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	w, ok := shard.windows[key]
	if !ok {
		return domain.TrendWindow{}, false
	}
	return snapshot(w), true
}

// TopEntities returns the n highest decayed-weight entities in the
// window covering t.
func (a *Aggregator) TopEntities(kind domain.WindowKind, t time.Time, n int) []string {
	w, ok := a.Window(kind, t)
	if !ok {
		return nil
	}

	keys := make([]string, 0, len(w.EntityWeight))
	for k := range w.EntityWeight {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if w.EntityWeight[keys[i]] != w.EntityWeight[keys[j]] {
			return w.EntityWeight[keys[i]] > w.EntityWeight[keys[j]]
		}
		return keys[i] < keys[j]
	})

	if n > 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// TopicGrowth computes (current − previous) / previous for a topic's
// daily score, with the previous score floored to a small epsilon.
func (a *Aggregator) TopicGrowth(label string, day time.Time) float64 {
	current, _ := a.Window(domain.WindowDaily, day)
	previous, _ := a.Window(domain.WindowDaily, day.AddDate(0, 0, -1))

	prev := previous.TopicScore[label]
	if prev < growthEpsilon {
		prev = growthEpsilon
	}
	return (current.TopicScore[label] - prev) / prev
}

// Archive returns the summaries of retired windows.
func (a *Aggregator) Archive() []domain.WindowArchive {
	a.archiveMu.Lock()
	defer a.archiveMu.Unlock()

	out := make([]domain.WindowArchive, len(a.archive))
	copy(out, a.archive)
	return out
}

// evict rolls windows beyond the retention horizon into archive
// summaries, oldest first. Rolling windows get six extra slots: the
// windows ending on the next six days are already live and partially
// filled, and the window covering "now" starts six days back.
func (a *Aggregator) evict() {
	a.evictKind(domain.WindowDaily, a.retentionDays)
	a.evictKind(domain.WindowRolling7d, a.retentionDays+6)
}

func (a *Aggregator) evictKind(kind domain.WindowKind, retention int) {
	type liveWindow struct {
		key   string
		shard *windowShard
		start time.Time
	}

	var live []liveWindow
	for _, shard := range a.shards {
		shard.mu.Lock()
		for key, w := range shard.windows {
			if w.Kind == kind {
				live = append(live, liveWindow{key: key, shard: shard, start: w.Start})
			}
		}
		shard.mu.Unlock()
	}

	excess := len(live) - retention
	if excess <= 0 {
		return
	}

	sort.Slice(live, func(i, j int) bool { return live[i].start.Before(live[j].start) })

	for _, lw := range live[:excess] {
		lw.shard.mu.Lock()
		w, ok := lw.shard.windows[lw.key]
		if ok {
			delete(lw.shard.windows, lw.key)
		}
		lw.shard.mu.Unlock()

		if !ok {
			continue
		}

		a.archiveMu.Lock()
		a.archive = append(a.archive, domain.WindowArchive{
			Kind:     w.Kind,
			Start:    w.Start,
			Count:    w.Count,
			Mean:     w.SentimentMean,
			Variance: w.SentimentVariance(),
		})
		a.archiveMu.Unlock()

		a.log.Info("trend window archived",
			logger.String("kind", string(w.Kind)),
			logger.Time("start", w.Start),
			logger.Int64("count", w.Count),
		)
	}
}

func (a *Aggregator) shardFor(key string) *windowShard {
	h := uint32(2166136261)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return a.shards[h%shardCount]
}

func windowKey(kind domain.WindowKind, start time.Time) string {
	return fmt.Sprintf("%s/%d", kind, start.Unix())
}

func dayStart(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// snapshot deep-copies a window so readers never alias live maps.
func snapshot(w *domain.TrendWindow) domain.TrendWindow {
	out := *w
	out.BiasCounts = make(map[domain.BiasDirection]int64, len(w.BiasCounts))
	for k, v := range w.BiasCounts {
		out.BiasCounts[k] = v
	}
	out.EntityWeight = make(map[string]float64, len(w.EntityWeight))
	for k, v := range w.EntityWeight {
		out.EntityWeight[k] = v
	}
	out.EntityCount = make(map[string]int64, len(w.EntityCount))
	for k, v := range w.EntityCount {
		out.EntityCount[k] = v
	}
	out.TopicScore = make(map[string]float64, len(w.TopicScore))
	for k, v := range w.TopicScore {
		out.TopicScore[k] = v
	}
	return out
}
