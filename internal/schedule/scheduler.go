package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/newsflow/internal/config/types"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/sources"
)

const (
	// dispatchBatch caps tasks handed to the sink per source per tick,
	// keeping the sink's bounded queues from overflowing.
	dispatchBatch = 16
	dispatchTick  = time.Second
)

// TaskSink receives the tasks the scheduler dispatches. The fetcher
// satisfies it.
type TaskSink interface {
	Enqueue(task *domain.FetchTask)
}

// Options tunes the scheduler.
type Options struct {
	// RefreshSpec is the cron expression for re-seeding sources, so new
	// articles on section pages keep being discovered.
	RefreshSpec string
	// CheckpointEvery is the interval between frontier checkpoints.
	CheckpointEvery time.Duration
}

// frontier is one source's FIFO of undispatched URLs plus everything
// it has ever accepted.
type frontier struct {
	pending []string
	seen    map[string]struct{}
}

// Scheduler owns the crawl frontier: it seeds from source
// configuration, accepts discovered links, dispatches FIFO per source,
// and checkpoints so a restart resumes instead of recrawling.
type Scheduler struct {
	registry   *sources.Registry
	sink       TaskSink
	checkpoint Checkpoint
	opts       Options
	log        logger.Logger
	cron       *cron.Cron

	mu        sync.Mutex
	frontiers map[string]*frontier
}

// New creates a scheduler over the given registry and sink.
func New(registry *sources.Registry, sink TaskSink, checkpoint Checkpoint, opts Options, log logger.Logger) *Scheduler {
	if opts.RefreshSpec == "" {
		opts.RefreshSpec = "@every 15m"
	}
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = 30 * time.Second
	}

	return &Scheduler{
		registry:   registry,
		sink:       sink,
		checkpoint: checkpoint,
		opts:       opts,
		log:        log,
		cron:       cron.New(),
		frontiers:  make(map[string]*frontier),
	}
}

// Run restores the checkpoint, seeds active sources, and dispatches
// until ctx is cancelled. A final checkpoint is written on shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.restore(ctx); err != nil {
		return err
	}

	s.seedAll()
	if _, err := s.cron.AddFunc(s.opts.RefreshSpec, s.seedAll); err != nil {
		return err
	}
	s.cron.Start()
	defer s.cron.Stop()

	dispatch := time.NewTicker(dispatchTick)
	defer dispatch.Stop()
	save := time.NewTicker(s.opts.CheckpointEvery)
	defer save.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.save(context.WithoutCancel(ctx)); err != nil {
				s.log.Error("final checkpoint failed", logger.Error(err))
			}
			return nil
		case <-dispatch.C:
			s.dispatch()
		case <-save.C:
			if err := s.save(ctx); err != nil {
				s.log.Error("checkpoint failed", logger.Error(err))
			}
		}
	}
}

// Add accepts a URL into a source's frontier. Already-seen URLs are
// no-ops, which makes seeding and discovery replay idempotent.
func (s *Scheduler) Add(sourceID, url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.frontierLocked(sourceID)
	if _, ok := f.seen[url]; ok {
		return false
	}
	f.seen[url] = struct{}{}
	f.pending = append(f.pending, url)
	return true
}

// PendingCount reports a source's undispatched frontier size.
func (s *Scheduler) PendingCount(sourceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frontierLocked(sourceID).pending)
}

// seedAll re-enters every active source's seed URLs into its
// frontier. Seeds are section pages that must be refetched on every
// refresh to discover new articles, so they bypass the seen set.
func (s *Scheduler) seedAll() {
	for _, src := range s.registry.Active() {
		added := 0
		for _, u := range src.SeedURLs {
			if s.reseed(src.ID, u) {
				added++
			}
		}
		if added > 0 {
			s.log.Debug("source seeded",
				logger.String("source_id", src.ID),
				logger.Int("added", added),
			)
		}
	}
}

// reseed queues a seed URL unless it is already pending.
func (s *Scheduler) reseed(sourceID, url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.frontierLocked(sourceID)
	for _, p := range f.pending {
		if p == url {
			return false
		}
	}
	f.seen[url] = struct{}{}
	f.pending = append(f.pending, url)
	return true
}

// dispatch hands a bounded batch of pending URLs per active source to
// the sink in FIFO order. Suspended sources keep their frontier but
// get nothing dispatched.
func (s *Scheduler) dispatch() {
	active := make(map[string]types.Source)
	for _, src := range s.registry.Active() {
		active[src.ID] = src
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, f := range s.frontiers {
		if _, ok := active[id]; !ok {
			continue
		}

		n := len(f.pending)
		if n > dispatchBatch {
			n = dispatchBatch
		}
		for _, u := range f.pending[:n] {
			s.sink.Enqueue(domain.NewFetchTask(id, u))
		}
		f.pending = f.pending[n:]
	}
}

// restore loads the checkpoint into the frontiers.
func (s *Scheduler) restore(ctx context.Context) error {
	state, err := s.checkpoint.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, urls := range state.Seen {
		f := s.frontierLocked(id)
		for _, u := range urls {
			f.seen[u] = struct{}{}
		}
	}
	for id, urls := range state.Pending {
		f := s.frontierLocked(id)
		f.pending = append(f.pending, urls...)
	}

	if !state.SavedAt.IsZero() {
		s.log.Info("frontier restored",
			logger.Time("saved_at", state.SavedAt),
			logger.Int("sources", len(s.frontiers)),
		)
	}
	return nil
}

// save snapshots the frontiers into the checkpoint.
func (s *Scheduler) save(ctx context.Context) error {
	state := NewState()

	s.mu.Lock()
	for id, f := range s.frontiers {
		state.Pending[id] = append([]string(nil), f.pending...)
		seen := make([]string, 0, len(f.seen))
		for u := range f.seen {
			seen = append(seen, u)
		}
		state.Seen[id] = seen
	}
	s.mu.Unlock()

	state.SavedAt = time.Now()
	return s.checkpoint.Save(ctx, state)
}

func (s *Scheduler) frontierLocked(sourceID string) *frontier {
	f, ok := s.frontiers[sourceID]
	if !ok {
		f = &frontier{seen: make(map[string]struct{})}
		s.frontiers[sourceID] = f
	}
	return f
}
