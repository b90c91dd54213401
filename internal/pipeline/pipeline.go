// Package pipeline assembles the ingestion components and runs them
// as one supervised unit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/newsflow/internal/analysis"
	"github.com/jonesrussell/newsflow/internal/api"
	"github.com/jonesrussell/newsflow/internal/config"
	"github.com/jonesrussell/newsflow/internal/dedup"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/fetch"
	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/metrics"
	"github.com/jonesrussell/newsflow/internal/normalize"
	"github.com/jonesrussell/newsflow/internal/ratelimit"
	"github.com/jonesrussell/newsflow/internal/schedule"
	"github.com/jonesrussell/newsflow/internal/sources"
	"github.com/jonesrussell/newsflow/internal/storage"
	"github.com/jonesrussell/newsflow/internal/trends"
)

// deadLetterRingSize bounds the in-memory dead-letter fallback.
const deadLetterRingSize = 1024

// windowFlushInterval is how often live trend windows are persisted.
const windowFlushInterval = time.Minute

// Pipeline owns every component of the ingestion service and wires
// documents through fetch, normalize, dedup, analysis and trends.
type Pipeline struct {
	cfg *config.Config
	log logger.Logger
	met *metrics.Metrics

	registry   *sources.Registry
	limiter    *ratelimit.Limiter
	fetcher    *fetch.Fetcher
	scheduler  *schedule.Scheduler
	normalizer *normalize.Normalizer
	index      *dedup.Index
	pool       *analysis.Pool
	aggregator *trends.Aggregator
	store      storage.ArticleStore
	server     *api.Server

	closers []func() error
}

// New builds the pipeline from configuration. Storage, checkpoint and
// dead-letter collaborators are selected by config; everything else is
// fixed wiring.
func New(cfg *config.Config, log logger.Logger) (*Pipeline, error) {
	// Each pipeline carries its own metrics registry so restarts and
	// tests never collide on collector registration.
	promReg := prometheus.NewRegistry()

	p := &Pipeline{
		cfg: cfg,
		log: log,
		met: metrics.New(promReg),
	}

	p.registry = sources.NewRegistry(log)
	if err := p.registry.LoadFromFile(cfg.SourcesFile); err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	if err := p.buildStore(); err != nil {
		return nil, err
	}

	dead, err := p.buildDeadLetters()
	if err != nil {
		return nil, err
	}
	dead = countingDeadLetters{next: dead, met: p.met}

	checkpoint, err := p.buildCheckpoint()
	if err != nil {
		return nil, err
	}

	p.limiter = ratelimit.New(cfg.Fetch.PenaltyDecay, log)
	for _, src := range p.registry.Active() {
		if err := p.limiter.Register(src.ID, src.Rate); err != nil {
			p.registry.Suspend(src.ID, err.Error())
		}
	}

	// Sources added by hot reload need a limiter before they can be
	// scheduled; existing limiters keep their token and penalty state.
	p.registry.OnReload(func() {
		for _, src := range p.registry.Active() {
			if p.limiter.Known(src.ID) {
				continue
			}
			if err := p.limiter.Register(src.ID, src.Rate); err != nil {
				p.registry.Suspend(src.ID, err.Error())
			}
		}
	})

	p.normalizer = normalize.New(cfg.Analysis.MinBodyWords)
	p.index = dedup.NewIndex(cfg.Dedup.HammingThreshold, cfg.Dedup.Shards)

	orch := analysis.NewOrchestrator(
		[]analysis.Stage{
			analysis.NewSentimentStage(),
			analysis.NewBiasStage(),
			analysis.NewEntityStage(analysis.DefaultGazetteer()),
			analysis.NewTopicStage(analysis.DefaultTopicRules()),
		},
		cfg.Analysis.StageTimeout,
		cfg.Analysis.Version,
		p.registry,
		log,
	)
	orch.SetStageFailureHook(func(stage domain.StageName, kind domain.AnalysisErrorKind) {
		p.met.AnalysisStageFails.WithLabelValues(string(stage), string(kind)).Inc()
	})

	p.pool = analysis.NewPool(
		orch,
		cfg.Analysis.Workers,
		fetch.BackoffPolicy{
			Base:        cfg.Analysis.BackoffBase,
			Cap:         cfg.Analysis.BackoffCap,
			MaxAttempts: cfg.Analysis.MaxAttempts,
		},
		dead,
		p.handleResult,
		log,
	)

	p.fetcher = fetch.New(cfg.Fetch, p.limiter, dead, p.registry, p.handleDocument, log)
	p.fetcher.SetObserver(fetchObserver{met: p.met})
	p.scheduler = schedule.New(p.registry, p.fetcher, checkpoint, schedule.Options{}, log)

	if cfg.API.Enabled {
		p.server = api.NewServer(cfg.API.Addr, p.aggregator, p.store, p.registry, promReg, log)
	}

	return p, nil
}

// Run seeds the dedup index from storage and supervises every
// component until ctx is cancelled or one of them fails.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.seedIndex(ctx); err != nil {
		return fmt.Errorf("seed dedup index: %w", err)
	}

	if _, err := p.registry.Watch(p.cfg.SourcesFile); err != nil {
		p.log.Warn("sources hot reload unavailable", logger.Error(err))
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p.fetcher.Run(ctx)
		return nil
	})
	g.Go(func() error {
		p.pool.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return p.scheduler.Run(ctx)
	})
	g.Go(func() error {
		p.flushWindows(ctx)
		return nil
	})
	if p.server != nil {
		g.Go(func() error {
			return p.server.Run(ctx)
		})
	}

	err := g.Wait()
	p.close()
	return err
}

// Store exposes the persistence layer for read-side consumers.
func (p *Pipeline) Store() storage.ArticleStore { return p.store }

// Trends exposes the live trend aggregator.
func (p *Pipeline) Trends() *trends.Aggregator { return p.aggregator }

// handleDocument is the fetcher's success path: discover links, then
// normalize, dedup and hand off to analysis.
func (p *Pipeline) handleDocument(ctx context.Context, doc *domain.RawDocument) {
	p.scheduler.Discover(doc)
	p.met.FrontierPending.WithLabelValues(doc.SourceID).Set(float64(p.scheduler.PendingCount(doc.SourceID)))

	src, ok := p.registry.Get(doc.SourceID)
	if !ok {
		return
	}

	article, err := p.normalizer.Normalize(doc, src)
	if err != nil {
		var pe *domain.ParseError
		if errors.As(err, &pe) {
			// Section pages and stubs fail extraction; they only feed
			// discovery.
			p.log.Debug("document not extractable",
				logger.String("url", doc.URL),
				logger.String("reason", pe.Reason),
			)
			return
		}
		p.log.Error("normalize failed", logger.String("url", doc.URL), logger.Error(err))
		return
	}

	decision := p.index.Check(article.Fingerprint, article.ID)
	if decision.Duplicate {
		outcome := "near_duplicate"
		if decision.Exact {
			outcome = "exact_duplicate"
		}
		p.met.DedupDecisions.WithLabelValues(outcome).Inc()
		lastSeen, _ := p.index.LastSeen(decision.CanonicalID)
		p.log.Debug("duplicate article discarded",
			logger.String("article_id", article.ID),
			logger.String("canonical_id", decision.CanonicalID),
			logger.Bool("exact", decision.Exact),
			logger.Time("canonical_last_seen", lastSeen),
		)
		return
	}
	p.met.DedupDecisions.WithLabelValues("accepted").Inc()

	if err := p.store.PutArticle(ctx, article); err != nil {
		p.log.Error("store article failed",
			logger.String("article_id", article.ID),
			logger.Error(err),
		)
		return
	}

	p.pool.Submit(article)
}

// handleResult is the analysis success path: persist, aggregate, and
// flush the touched windows.
func (p *Pipeline) handleResult(ctx context.Context, article *domain.Article, result *domain.AnalysisResult) {
	if err := p.store.PutAnalysis(ctx, result); err != nil {
		p.log.Error("store analysis failed",
			logger.String("article_id", article.ID),
			logger.Error(err),
		)
	}

	p.aggregator.Ingest(result)
	p.met.TrendIngestTotal.Inc()
	p.met.AnalysisLatency.WithLabelValues(result.Version).Observe(result.Latency.Seconds())
}

// seedIndex rebuilds the dedup index from persisted fingerprints so a
// restart keeps recognizing previously accepted articles.
func (p *Pipeline) seedIndex(ctx context.Context) error {
	seeded := 0
	err := p.store.Fingerprints(ctx, func(articleID string, fp domain.Fingerprint) error {
		p.index.Seed(fp, articleID)
		seeded++
		return nil
	})
	if err != nil {
		return err
	}

	if seeded > 0 {
		p.log.Info("dedup index seeded", logger.Int("articles", seeded))
	}
	return nil
}

// flushWindows periodically persists the live trend windows.
func (p *Pipeline) flushWindows(ctx context.Context) {
	ticker := time.NewTicker(windowFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.persistWindows(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			p.persistWindows(ctx)
		}
	}
}

func (p *Pipeline) persistWindows(ctx context.Context) {
	now := time.Now()
	for _, kind := range []domain.WindowKind{domain.WindowDaily, domain.WindowRolling7d} {
		w, ok := p.aggregator.Window(kind, now)
		if !ok {
			continue
		}
		if err := p.store.UpsertTrendWindow(ctx, &w); err != nil {
			p.log.Error("persist trend window failed",
				logger.String("kind", string(kind)),
				logger.Error(err),
			)
		}
	}
}

func (p *Pipeline) buildStore() error {
	switch p.cfg.Storage.Backend {
	case "", "memory":
		p.store = storage.NewMemoryStore()
	case "elasticsearch":
		es, err := storage.NewESStore(p.cfg.Storage.ESAddresses, p.cfg.Storage.ESIndex, p.log)
		if err != nil {
			return fmt.Errorf("elasticsearch store: %w", err)
		}
		p.store = es
	default:
		return fmt.Errorf("unknown storage backend %q", p.cfg.Storage.Backend)
	}

	p.aggregator = trends.New(p.cfg.Trends.RetentionDays, p.cfg.Trends.EntityHalfLife, p.log)
	return nil
}

func (p *Pipeline) buildDeadLetters() (fetch.DeadLetterSink, error) {
	if p.cfg.Storage.PostgresDSN == "" {
		return fetch.NewMemoryDeadLetters(deadLetterRingSize), nil
	}

	repo, err := storage.NewDeadLetterRepository(p.cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("dead letter repository: %w", err)
	}
	p.closers = append(p.closers, repo.Close)
	return repo, nil
}

func (p *Pipeline) buildCheckpoint() (schedule.Checkpoint, error) {
	if p.cfg.Storage.RedisAddr == "" {
		return schedule.NewMemoryCheckpoint(), nil
	}

	cp, err := schedule.NewRedisCheckpoint(context.Background(), p.cfg.Storage.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("redis checkpoint: %w", err)
	}
	p.closers = append(p.closers, cp.Close)
	return cp, nil
}

func (p *Pipeline) close() {
	for _, c := range p.closers {
		if err := c(); err != nil {
			p.log.Warn("close failed", logger.Error(err))
		}
	}
}
