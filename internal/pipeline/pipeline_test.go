package pipeline_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/config"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/pipeline"
)

const storyBody = `The city council voted to approve the new transit plan after a long
campaign. The government said construction begins in spring. Officials from the
parliament praised the vote and the policy it represents, while residents worried
about years of construction downtown and the election promises behind it all.`

func storyPage(n int, body string) string {
	return fmt.Sprintf(`<html lang="en"><body><article>
		<h1>Story %d</h1>
		<div class="body">%s</div>
	</article></body></html>`, n, body)
}

func sectionPage(links ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, l := range links {
		fmt.Fprintf(&b, `<a class="headline" href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// newsSite serves a section page linking to stories 1-3, where story 3
// is a byte-identical duplicate of story 1.
func newsSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/latest", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(sectionPage("/story/1", "/story/2", "/story/3")))
	})
	mux.HandleFunc("/story/1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(storyPage(1, storyBody)))
	})
	mux.HandleFunc("/story/2", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(storyPage(2, "Completely different content about quarterly earnings. "+
			strings.Repeat("The company reported record revenue and strong growth in cloud subscriptions. ", 5))))
	})
	mux.HandleFunc("/story/3", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(storyPage(3, storyBody)))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeSourcesFile(t *testing.T, baseURL string) string {
	t.Helper()

	yaml := fmt.Sprintf(`
sources:
  - id: example
    name: Example News
    url: %[1]s
    seed_urls:
      - %[1]s/latest
    allowed_paths:
      - /story/
    rate:
      requests_per_second: 50
      burst: 10
    language: en
    selectors:
      article:
        container: article
        title: h1
        body: .body
      list:
        article_links: a.headline
`, baseURL)

	path := filepath.Join(t.TempDir(), "sources.yml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func testConfig(sourcesFile string) *config.Config {
	return &config.Config{
		SourcesFile: sourcesFile,
		Fetch: config.FetchConfig{
			Workers:          8,
			PerSourceLimit:   4,
			RequestTimeout:   2 * time.Second,
			UserAgent:        "newsflow-test/1.0",
			MaxBodyBytes:     1 << 20,
			MaxAttempts:      3,
			BackoffBase:      10 * time.Millisecond,
			BackoffCap:       100 * time.Millisecond,
			BreakerThreshold: 10,
			BreakerCooldown:  time.Second,
			PenaltyDecay:     time.Minute,
		},
		Analysis: config.AnalysisConfig{
			Workers:      4,
			StageTimeout: time.Second,
			Version:      "v1",
			MaxAttempts:  2,
			BackoffBase:  10 * time.Millisecond,
			BackoffCap:   100 * time.Millisecond,
			MinBodyWords: 20,
		},
		Trends: config.TrendsConfig{
			RetentionDays:  30,
			EntityHalfLife: 24 * time.Hour,
		},
		Dedup: config.DedupConfig{
			HammingThreshold: 3,
			Shards:           16,
		},
		Storage: config.StorageConfig{Backend: "memory"},
		API:     config.APIConfig{Enabled: false},
	}
}

func TestPipelineIngestsAndDeduplicates(t *testing.T) {
	srv := newsSite(t)
	cfg := testConfig(writeSourcesFile(t, srv.URL))

	p, err := pipeline.New(cfg, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	// Three stories fetched, but story 3 is a byte-identical duplicate
	// of story 1: exactly two distinct articles survive.
	id1 := domain.ArticleID(srv.URL + "/story/1")
	id2 := domain.ArticleID(srv.URL + "/story/2")
	id3 := domain.ArticleID(srv.URL + "/story/3")

	bg := context.Background()
	a1, err := p.Store().GetArticle(bg, id1)
	require.NoError(t, err)
	assert.Equal(t, "Story 1", a1.Title)

	_, err = p.Store().GetArticle(bg, id2)
	require.NoError(t, err)

	_, err = p.Store().GetArticle(bg, id3)
	assert.Error(t, err)

	// Both accepted articles were analyzed and aggregated.
	r1, err := p.Store().GetAnalysis(bg, id1)
	require.NoError(t, err)
	assert.Equal(t, "v1", r1.Version)
	assert.NotNil(t, r1.Topics)

	w, ok := p.Trends().Window(domain.WindowDaily, time.Now())
	require.True(t, ok)
	assert.Equal(t, int64(2), w.Count)
}

func TestPipelineRestartDoesNotDuplicate(t *testing.T) {
	srv := newsSite(t)
	cfg := testConfig(writeSourcesFile(t, srv.URL))

	first, err := pipeline.New(cfg, logger.NewNop())
	require.NoError(t, err)

	ctx1, cancel1 := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel1()
	require.NoError(t, first.Run(ctx1))

	// Rebuild against a fresh in-memory world: the second run ingests
	// the same site and must make the same dedup decisions.
	second, err := pipeline.New(cfg, logger.NewNop())
	require.NoError(t, err)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel2()
	require.NoError(t, second.Run(ctx2))

	w, ok := second.Trends().Window(domain.WindowDaily, time.Now())
	require.True(t, ok)
	assert.Equal(t, int64(2), w.Count)
}
