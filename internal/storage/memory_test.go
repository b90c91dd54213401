package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/storage"
)

func sampleArticle(id string) *domain.Article {
	return &domain.Article{
		ID:       id,
		SourceID: "example",
		URL:      "https://news.example.com/story/" + id,
		Title:    "Title " + id,
		Body:     "Body text",
		Fingerprint: domain.Fingerprint{
			Exact:   "hash-" + id,
			Simhash: 0xabc,
		},
		FetchedAt: time.Now(),
	}
}

func TestMemoryStoreArticleRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()

	require.NoError(t, store.PutArticle(ctx, sampleArticle("a1")))

	got, err := store.GetArticle(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Title a1", got.Title)

	// The store hands out copies, not aliases.
	got.Title = "mutated"
	again, err := store.GetArticle(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Title a1", again.Title)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()

	_, err := store.GetArticle(ctx, "ghost")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetAnalysis(ctx, "ghost")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStoreAnalysisRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()

	result := &domain.AnalysisResult{
		ID:         "r1",
		ArticleID:  "a1",
		Version:    "v1",
		Confidence: 0.75,
		AnalyzedAt: time.Now(),
	}
	require.NoError(t, store.PutAnalysis(ctx, result))

	got, err := store.GetAnalysis(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)
	assert.InDelta(t, 0.75, got.Confidence, 1e-9)
}

func TestMemoryStoreFingerprints(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()

	require.NoError(t, store.PutArticle(ctx, sampleArticle("a1")))
	require.NoError(t, store.PutArticle(ctx, sampleArticle("a2")))

	seen := map[string]string{}
	err := store.Fingerprints(ctx, func(id string, fp domain.Fingerprint) error {
		seen[id] = fp.Exact
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"a1": "hash-a1", "a2": "hash-a2"}, seen)
}

func TestMemoryStoreUpsertTrendWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()

	w := &domain.TrendWindow{
		Kind:  domain.WindowDaily,
		Start: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Count: 5,
	}
	require.NoError(t, store.UpsertTrendWindow(ctx, w))

	// Upsert replaces the snapshot for the same kind and start.
	w.Count = 9
	require.NoError(t, store.UpsertTrendWindow(ctx, w))
}
