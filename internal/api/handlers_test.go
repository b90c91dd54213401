package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/api"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/sources"
	"github.com/jonesrussell/newsflow/internal/storage"
	"github.com/jonesrussell/newsflow/internal/trends"
)

func newTestServer(t *testing.T) (*httptest.Server, *trends.Aggregator, *storage.MemoryStore) {
	t.Helper()

	agg := trends.New(30, 24*time.Hour, logger.NewNop())
	store := storage.NewMemoryStore()
	registry := sources.NewRegistry(logger.NewNop())

	srv := api.NewServer(":0", agg, store, registry, prometheus.NewRegistry(), logger.NewNop())

	// Exercise the real router without binding a port.
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, agg, store
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts, _, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", nil))
}

func TestTrendWindowEndpoint(t *testing.T) {
	t.Parallel()

	ts, agg, _ := newTestServer(t)

	agg.Ingest(&domain.AnalysisResult{
		ID:         "r1",
		ArticleID:  "a1",
		Version:    "v1",
		Sentiment:  &domain.SentimentResult{Score: 0.5, RawScore: 0.5, AdjustmentFactor: 1},
		AnalyzedAt: time.Now(),
	})

	var body struct {
		Window domain.TrendWindow `json:"window"`
	}
	status := getJSON(t, ts.URL+"/api/v1/trends/daily", &body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1), body.Window.Count)
	assert.InDelta(t, 0.5, body.Window.SentimentMean, 1e-9)
}

func TestTrendWindowNotFoundAndBadKind(t *testing.T) {
	t.Parallel()

	ts, _, _ := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/v1/trends/daily", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/v1/trends/hourly", nil))
}

func TestArticleEndpoint(t *testing.T) {
	t.Parallel()

	ts, _, store := newTestServer(t)

	require.NoError(t, store.PutArticle(context.Background(), &domain.Article{
		ID:    "a1",
		Title: "Stored story",
	}))

	var article domain.Article
	status := getJSON(t, ts.URL+"/api/v1/articles/a1", &article)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Stored story", article.Title)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/v1/articles/ghost", nil))
}

func TestTopEntitiesEndpoint(t *testing.T) {
	t.Parallel()

	ts, agg, _ := newTestServer(t)

	agg.Ingest(&domain.AnalysisResult{
		ID:        "r1",
		ArticleID: "a1",
		Entities: []domain.EntityMention{
			{Name: "nato", Type: "organization", Mentions: 5},
			{Name: "ukraine", Type: "location", Mentions: 1},
		},
		AnalyzedAt: time.Now(),
	})

	var body struct {
		Entities []string `json:"entities"`
	}
	status := getJSON(t, fmt.Sprintf("%s/api/v1/trends/daily/entities?limit=1", ts.URL), &body)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body.Entities, 1)
	assert.Equal(t, "nato/organization", body.Entities[0])
}
