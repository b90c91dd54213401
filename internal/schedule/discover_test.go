package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/schedule"
)

const sectionPage = `<html><body>
<a class="headline" href="/story/100">Relative link</a>
<a class="headline" href="https://news.example.com/story/200">Absolute link</a>
<a class="headline" href="https://news.example.com/story/200#comments">Fragment duplicate</a>
<a class="headline" href="https://other.example.org/story/300">Cross host</a>
<a class="headline" href="/opinion/400">Disallowed path</a>
<a class="headline" href="mailto:tips@example.com">Non-http</a>
<a href="/story/999">Not a headline</a>
</body></html>`

func sectionDoc() *domain.RawDocument {
	return &domain.RawDocument{
		TaskID:     "task-1",
		SourceID:   "example",
		URL:        "https://news.example.com/latest",
		Body:       []byte(sectionPage),
		StatusCode: 200,
		FetchedAt:  time.Now(),
	}
}

func TestDiscoverScopesLinks(t *testing.T) {
	t.Parallel()

	s := schedule.New(
		newTestRegistry(t, "https://news.example.com/latest"),
		&recordingSink{},
		schedule.NewMemoryCheckpoint(),
		schedule.Options{},
		logger.NewNop(),
	)

	added := s.Discover(sectionDoc())

	// Only same-host story links survive: the relative one and the
	// absolute one (its fragment variant collapses into it).
	assert.Equal(t, 2, added)
	assert.Equal(t, 2, s.PendingCount("example"))

	assert.False(t, s.Add("example", "https://news.example.com/story/100"))
	assert.False(t, s.Add("example", "https://news.example.com/story/200"))
}

func TestDiscoverUnknownSource(t *testing.T) {
	t.Parallel()

	s := schedule.New(
		newTestRegistry(t, "https://news.example.com/latest"),
		&recordingSink{},
		schedule.NewMemoryCheckpoint(),
		schedule.Options{},
		logger.NewNop(),
	)

	doc := sectionDoc()
	doc.SourceID = "ghost"
	assert.Zero(t, s.Discover(doc))
}

func TestDiscoverIdempotentAcrossRefetch(t *testing.T) {
	t.Parallel()

	s := schedule.New(
		newTestRegistry(t, "https://news.example.com/latest"),
		&recordingSink{},
		schedule.NewMemoryCheckpoint(),
		schedule.Options{},
		logger.NewNop(),
	)

	assert.Equal(t, 2, s.Discover(sectionDoc()))
	// Refetching the section page rediscovers the same links.
	assert.Zero(t, s.Discover(sectionDoc()))
}
