package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonesrussell/newsflow/internal/config"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/ratelimit"
)

// sourceQueueSize bounds each per-source task queue. Overflowing
// tasks are dropped; the frontier checkpoint replays them.
const sourceQueueSize = 1024

// DocumentHandler receives successfully fetched documents.
type DocumentHandler func(ctx context.Context, doc *domain.RawDocument)

// HealthReporter flips source health when a circuit breaker opens or
// closes. Satisfied by the sources registry.
type HealthReporter interface {
	Suspend(sourceID, reason string)
	Resume(sourceID string)
}

// Fetcher executes fetch tasks under a global concurrency ceiling, a
// per-source in-flight cap, per-source rate admission, and per-source
// circuit breaking. Tasks within one source are dispatched in FIFO
// order; completion order across workers is not guaranteed.
type Fetcher struct {
	cfg     config.FetchConfig
	limiter *ratelimit.Limiter
	robots  *RobotsChecker
	client  *http.Client
	dead    DeadLetterSink
	health  HealthReporter
	handler DocumentHandler
	log     logger.Logger
	backoff BackoffPolicy
	obs     Observer

	sem chan struct{} // global ceiling

	mu       sync.Mutex
	breakers map[string]*Breaker
	queues   map[string]chan *domain.FetchTask
	srcSems  map[string]chan struct{}

	lifeCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped atomic.Bool
}

// New creates a fetcher. The handler is invoked for every successful
// fetch; it must be safe for concurrent calls.
func New(
	cfg config.FetchConfig,
	limiter *ratelimit.Limiter,
	dead DeadLetterSink,
	health HealthReporter,
	handler DocumentHandler,
	log logger.Logger,
) *Fetcher {
	client := &http.Client{Timeout: cfg.RequestTimeout}
	lifeCtx, cancel := context.WithCancel(context.Background())

	return &Fetcher{
		lifeCtx: lifeCtx,
		cancel:  cancel,
		cfg:     cfg,
		limiter: limiter,
		robots:  NewRobotsChecker(client, cfg.UserAgent),
		client:  client,
		dead:    dead,
		health:  health,
		handler: handler,
		log:     log,
		obs:     nopObserver{},
		backoff: BackoffPolicy{
			Base:        cfg.BackoffBase,
			Cap:         cfg.BackoffCap,
			Jitter:      cfg.BackoffJitter,
			MaxAttempts: cfg.MaxAttempts,
		},
		sem:      make(chan struct{}, cfg.Workers),
		breakers: make(map[string]*Breaker),
		queues:   make(map[string]chan *domain.FetchTask),
		srcSems:  make(map[string]chan struct{}),
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight
// attempts to finish. Queued-but-unstarted tasks are dropped and
// replayed from the frontier checkpoint on restart.
func (f *Fetcher) Run(ctx context.Context) {
	<-ctx.Done()
	f.stopped.Store(true)
	f.cancel()
	f.wg.Wait()
	f.log.Info("fetcher drained")
}

// Enqueue submits a task for execution. Submission after shutdown or
// onto a full source queue drops the task.
func (f *Fetcher) Enqueue(task *domain.FetchTask) {
	if f.stopped.Load() {
		return
	}

	q := f.sourceQueue(task.SourceID)
	select {
	case q <- task:
	default:
		f.log.Warn("source queue full, task dropped",
			logger.String("source_id", task.SourceID),
			logger.String("url", task.URL),
		)
	}
}

// sourceQueue returns the FIFO queue for a source, starting its pump
// goroutine on first use.
func (f *Fetcher) sourceQueue(sourceID string) chan *domain.FetchTask {
	f.mu.Lock()
	defer f.mu.Unlock()

	q, ok := f.queues[sourceID]
	if ok {
		return q
	}

	q = make(chan *domain.FetchTask, sourceQueueSize)
	f.queues[sourceID] = q

	perSource := f.cfg.PerSourceLimit
	if perSource <= 0 {
		perSource = 1
	}
	f.srcSems[sourceID] = make(chan struct{}, perSource)

	f.wg.Add(1)
	go f.pump(sourceID, q)

	return q
}

// pump drains one source's queue in FIFO order. All per-source gating
// (backoff deadline, breaker state, rate admission) happens here so
// crawl-delay spacing stays predictable; the attempt itself runs on a
// separate goroutine bounded by the global and per-source semaphores.
func (f *Fetcher) pump(sourceID string, q chan *domain.FetchTask) {
	defer f.wg.Done()

	ctx := f.lifeCtx
	srcSem := f.srcSems[sourceID]

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q:
			switch f.gate(ctx, task) {
			case gateCancelled:
				return
			case gateRefused:
				continue
			case gateProceed:
			}

			select {
			case <-ctx.Done():
				return
			case srcSem <- struct{}{}:
			}
			select {
			case <-ctx.Done():
				<-srcSem
				return
			case f.sem <- struct{}{}:
			}

			f.wg.Add(1)
			go func(t *domain.FetchTask) {
				defer func() {
					<-f.sem
					<-srcSem
					f.wg.Done()
				}()
				f.attempt(ctx, t)
			}(task)
		}
	}
}

// gateVerdict is the outcome of per-source admission gating.
type gateVerdict int

const (
	// gateProceed admits the task for an attempt.
	gateProceed gateVerdict = iota
	// gateRefused drops the task without an attempt.
	gateRefused
	// gateCancelled means the fetcher is shutting down.
	gateCancelled
)

// gate blocks until the task may be dispatched, or refuses it.
func (f *Fetcher) gate(ctx context.Context, task *domain.FetchTask) gateVerdict {
	// Backoff deadline.
	if wait := time.Until(task.NotBefore); wait > 0 {
		if !sleepCtx(ctx, wait) {
			return gateCancelled
		}
	}

	// Circuit breaker: while open, all fetches for the source wait out
	// the cooldown; half-open admits exactly one trial.
	br := f.breaker(task.SourceID)
	for {
		ok, retryAfter := br.Allow()
		if ok {
			break
		}
		if !sleepCtx(ctx, retryAfter) {
			return gateCancelled
		}
	}

	// Rate admission: non-blocking acquire, honoring the wait hint.
	for {
		granted, wait, err := f.limiter.TryAcquire(task.SourceID)
		if err != nil {
			// A suspended or unregistered source admits nothing; the
			// task dead-letters rather than fetching unthrottled.
			f.deadLetter(ctx, task, fmt.Sprintf("rate admission refused: %v", err))
			return gateRefused
		}
		if granted {
			return gateProceed
		}
		f.obs.RateDeferred(task.SourceID)
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		if !sleepCtx(ctx, wait) {
			return gateCancelled
		}
	}
}

// attempt performs one fetch attempt and routes the outcome.
func (f *Fetcher) attempt(ctx context.Context, task *domain.FetchTask) {
	br := f.breaker(task.SourceID)

	allowed, robotsErr := f.robots.IsAllowed(ctx, task.URL)
	if robotsErr == nil && !allowed {
		// Policy refusal, not an origin failure: no breaker signal.
		f.obs.FetchAttempt(task.SourceID, "robots_disallowed", 0)
		f.deadLetter(ctx, task, "robots disallowed")
		return
	}

	start := time.Now()
	doc, err := f.fetchOnce(ctx, task)
	elapsed := time.Since(start)
	if err == nil {
		br.Record(true)
		f.obs.FetchAttempt(task.SourceID, "success", elapsed)
		f.handler(ctx, doc)
		return
	}

	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		fe = &domain.FetchError{URL: task.URL, Transient: true, Err: err}
	}

	switch {
	case fe.StatusCode == http.StatusTooManyRequests:
		// A 429 is a rate signal: shrink the effective rate instead of
		// counting toward the breaker threshold.
		f.limiter.Penalize(task.SourceID)
		br.Record(true)
		f.obs.FetchAttempt(task.SourceID, "rate_limited", elapsed)
		f.retryOrDeadLetter(ctx, task, fe)
	case domain.IsTransientFetch(fe):
		br.Record(false)
		f.obs.FetchAttempt(task.SourceID, "transient", elapsed)
		f.retryOrDeadLetter(ctx, task, fe)
	default:
		// The origin answered; permanent failures are about the
		// resource, not source reachability.
		br.Record(true)
		f.obs.FetchAttempt(task.SourceID, "permanent", elapsed)
		f.deadLetter(ctx, task, fe.Error())
	}
}

// retryOrDeadLetter re-enqueues a transiently failed task with backoff
// or dead-letters it once attempts are exhausted.
func (f *Fetcher) retryOrDeadLetter(ctx context.Context, task *domain.FetchTask, fe *domain.FetchError) {
	task.Attempt++
	if f.backoff.Exhausted(task.Attempt) {
		f.deadLetter(ctx, task, fmt.Sprintf("retries exhausted: %v", fe))
		return
	}

	delay := f.backoff.Delay(task.Attempt - 1)
	task.NotBefore = time.Now().Add(delay)
	f.obs.FetchRetry(task.SourceID)

	f.log.Debug("task requeued",
		logger.String("url", task.URL),
		logger.Int("attempt", task.Attempt),
		logger.Duration("delay", delay),
	)
	f.Enqueue(task)
}

func (f *Fetcher) deadLetter(ctx context.Context, task *domain.FetchTask, reason string) {
	dl := domain.NewDeadLetter(domain.DeadLetterFetch, task.SourceID, task.URL, reason, task.Attempt)
	if err := f.dead.Record(ctx, dl); err != nil {
		f.log.Error("dead letter record failed", logger.Error(err))
	}

	f.log.Warn("task dead-lettered",
		logger.String("source_id", task.SourceID),
		logger.String("url", task.URL),
		logger.String("reason", reason),
	)
}

// fetchOnce executes a single HTTP attempt and classifies the outcome.
func (f *Fetcher) fetchOnce(ctx context.Context, task *domain.FetchTask) (*domain.RawDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, http.NoBody)
	if err != nil {
		return nil, &domain.FetchError{URL: task.URL, Transient: false, Err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		// Timeouts, connection resets, DNS blips: all transient.
		return nil, &domain.FetchError{URL: task.URL, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &domain.FetchError{URL: task.URL, StatusCode: resp.StatusCode, Transient: true}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &domain.FetchError{URL: task.URL, StatusCode: resp.StatusCode, Transient: true}
	default:
		return nil, &domain.FetchError{URL: task.URL, StatusCode: resp.StatusCode, Transient: false}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, &domain.FetchError{URL: task.URL, Transient: true, Err: err}
	}

	return &domain.RawDocument{
		TaskID:     task.ID,
		SourceID:   task.SourceID,
		URL:        task.URL,
		Body:       body,
		Header:     resp.Header,
		StatusCode: resp.StatusCode,
		FetchedAt:  time.Now(),
	}, nil
}

// breaker returns the circuit breaker for a source, creating it on
// first use and wiring state changes to source health.
func (f *Fetcher) breaker(sourceID string) *Breaker {
	f.mu.Lock()
	defer f.mu.Unlock()

	br, ok := f.breakers[sourceID]
	if ok {
		return br
	}

	br = NewBreaker(BreakerConfig{
		FailureThreshold: f.cfg.BreakerThreshold,
		Cooldown:         f.cfg.BreakerCooldown,
		OnStateChange: func(from, to BreakerState) {
			f.obs.BreakerTransition(sourceID, to)
			f.log.Info("circuit breaker state changed",
				logger.String("source_id", sourceID),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
			switch to {
			case BreakerOpen:
				f.health.Suspend(sourceID, "circuit breaker open")
			case BreakerClosed:
				f.health.Resume(sourceID)
			case BreakerHalfOpen:
				// Health flips on the trial outcome.
			}
		},
	})
	f.breakers[sourceID] = br
	return br
}

// sleepCtx sleeps for d or returns false if ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
