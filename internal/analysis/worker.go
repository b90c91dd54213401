package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/fetch"
	"github.com/jonesrussell/newsflow/internal/logger"
)

// analysisQueueSize bounds the pending-analysis queue.
const analysisQueueSize = 4096

// ResultHandler receives each completed analysis for persistence and
// trend aggregation.
type ResultHandler func(ctx context.Context, article *domain.Article, result *domain.AnalysisResult)

// job is one queued analysis with its retry state.
type job struct {
	article   *domain.Article
	attempt   int
	notBefore time.Time
}

// Pool is the bounded analysis worker pool, independent of the fetch
// pool so a slow analyzer stage cannot starve fetching.
type Pool struct {
	orch    *Orchestrator
	workers int
	backoff fetch.BackoffPolicy
	dead    fetch.DeadLetterSink
	handler ResultHandler
	log     logger.Logger

	queue   chan *job
	wg      sync.WaitGroup
	stopped bool
	mu      sync.Mutex
}

// NewPool creates an analysis pool. The backoff policy governs retries
// when all stages fail; exhausted articles are dead-lettered and
// remain stored unanalyzed.
func NewPool(
	orch *Orchestrator,
	workers int,
	backoff fetch.BackoffPolicy,
	dead fetch.DeadLetterSink,
	handler ResultHandler,
	log logger.Logger,
) *Pool {
	if workers <= 0 {
		workers = 4
	}

	return &Pool{
		orch:    orch,
		workers: workers,
		backoff: backoff,
		dead:    dead,
		handler: handler,
		log:     log,
		queue:   make(chan *job, analysisQueueSize),
	}
}

// Submit queues an article for analysis. Articles submitted after
// shutdown or onto a full queue are dropped; they are replayable since
// the article itself is already stored.
func (p *Pool) Submit(article *domain.Article) {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return
	}

	select {
	case p.queue <- &job{article: article}:
	default:
		p.log.Warn("analysis queue full, article dropped",
			logger.String("article_id", article.ID),
		)
	}
}

// Run starts the workers and blocks until ctx is cancelled and
// in-flight analyses finish.
func (p *Pool) Run(ctx context.Context) {
	for range p.workers {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	<-ctx.Done()
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.wg.Wait()
	p.log.Info("analysis pool drained")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.queue:
			if wait := time.Until(j.notBefore); wait > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
			}
			p.process(ctx, j)
		}
	}
}

func (p *Pool) process(ctx context.Context, j *job) {
	result, err := p.orch.Analyze(ctx, j.article)
	if err == nil {
		p.handler(ctx, j.article, result)
		return
	}

	var ae *domain.AnalysisError
	if !errors.As(err, &ae) || ae.Kind != domain.AnalysisAllStagesFailed {
		p.log.Error("analysis failed", logger.String("article_id", j.article.ID), logger.Error(err))
		return
	}

	j.attempt++
	if p.backoff.Exhausted(j.attempt) {
		dl := domain.NewDeadLetter(
			domain.DeadLetterAnalysis,
			j.article.SourceID,
			j.article.ID,
			fmt.Sprintf("analysis retries exhausted: %v", ae),
			j.attempt,
		)
		if recordErr := p.dead.Record(ctx, dl); recordErr != nil {
			p.log.Error("dead letter record failed", logger.Error(recordErr))
		}
		p.log.Warn("article marked analysis-failed",
			logger.String("article_id", j.article.ID),
			logger.Int("attempts", j.attempt),
		)
		return
	}

	j.notBefore = time.Now().Add(p.backoff.Delay(j.attempt - 1))

	select {
	case p.queue <- j:
	default:
		p.log.Warn("analysis retry dropped, queue full",
			logger.String("article_id", j.article.ID),
		)
	}
}
