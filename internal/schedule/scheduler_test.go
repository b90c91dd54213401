package schedule_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/config/types"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/schedule"
	"github.com/jonesrussell/newsflow/internal/sources"
)

// recordingSink captures dispatched tasks in order.
type recordingSink struct {
	mu    sync.Mutex
	tasks []*domain.FetchTask
}

func (s *recordingSink) Enqueue(task *domain.FetchTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
}

func (s *recordingSink) urls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.tasks))
	for i, task := range s.tasks {
		out[i] = task.URL
	}
	return out
}

func newTestRegistry(t *testing.T, seeds ...string) *sources.Registry {
	t.Helper()

	reg := sources.NewRegistry(logger.NewNop())
	src := types.Source{
		ID:           "example",
		Name:         "Example",
		URL:          "https://news.example.com",
		SeedURLs:     seeds,
		AllowedPaths: []string{"/story/"},
		Rate:         types.RatePolicy{RequestsPerSecond: 1, Burst: 1},
		Selectors: types.Selectors{
			Article: types.ArticleSelectors{Container: "article", Title: "h1", Body: ".body"},
			List:    types.ListSelectors{ArticleLinks: "a.headline"},
		},
	}
	require.Empty(t, reg.Load([]types.Source{src}))
	return reg
}

func TestAddIsIdempotent(t *testing.T) {
	t.Parallel()

	s := schedule.New(
		newTestRegistry(t, "https://news.example.com/latest"),
		&recordingSink{},
		schedule.NewMemoryCheckpoint(),
		schedule.Options{},
		logger.NewNop(),
	)

	assert.True(t, s.Add("example", "https://news.example.com/story/1"))
	assert.False(t, s.Add("example", "https://news.example.com/story/1"))
	assert.Equal(t, 1, s.PendingCount("example"))
}

func TestRunDispatchesSeedsAndFrontierFIFO(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	s := schedule.New(
		newTestRegistry(t, "https://news.example.com/latest"),
		sink,
		schedule.NewMemoryCheckpoint(),
		schedule.Options{},
		logger.NewNop(),
	)

	s.Add("example", "https://news.example.com/story/1")
	s.Add("example", "https://news.example.com/story/2")
	s.Add("example", "https://news.example.com/story/3")

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	// Seed first (added by Run), then discoveries in insertion order.
	require.Equal(t, []string{
		"https://news.example.com/story/1",
		"https://news.example.com/story/2",
		"https://news.example.com/story/3",
		"https://news.example.com/latest",
	}, sink.urls())
}

func TestRunRestoresCheckpoint(t *testing.T) {
	t.Parallel()

	checkpoint := schedule.NewMemoryCheckpoint()
	log := logger.NewNop()

	first := schedule.New(newTestRegistry(t), &recordingSink{}, checkpoint, schedule.Options{}, log)
	first.Add("example", "https://news.example.com/story/1")
	first.Add("example", "https://news.example.com/story/2")

	// A context that is already done: Run writes its final checkpoint
	// without dispatching anything.
	done, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, first.Run(done))

	second := schedule.New(newTestRegistry(t), &recordingSink{}, checkpoint, schedule.Options{}, log)
	require.NoError(t, second.Run(done))

	// The restart resumed the pending frontier, and replayed
	// discoveries are recognized as already seen.
	assert.Equal(t, 2, second.PendingCount("example"))
	assert.False(t, second.Add("example", "https://news.example.com/story/1"))
}

func TestMemoryCheckpointRoundTrip(t *testing.T) {
	t.Parallel()

	cp := schedule.NewMemoryCheckpoint()

	state := schedule.NewState()
	state.Pending["src"] = []string{"u1", "u2"}
	state.Seen["src"] = []string{"u1", "u2", "u3"}
	require.NoError(t, cp.Save(context.Background(), state))

	// Mutating the saved state must not leak into the checkpoint.
	state.Pending["src"][0] = "mutated"

	loaded, err := cp.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, loaded.Pending["src"])
	assert.ElementsMatch(t, []string{"u1", "u2", "u3"}, loaded.Seen["src"])
}

func TestMemoryCheckpointEmptyLoad(t *testing.T) {
	t.Parallel()

	loaded, err := schedule.NewMemoryCheckpoint().Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded.Pending)
	assert.Empty(t, loaded.Seen)
}
