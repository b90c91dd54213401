package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonesrussell/newsflow/internal/domain"
)

// MemoryStore is the in-process ArticleStore used by tests and
// single-node deployments without an Elasticsearch cluster.
type MemoryStore struct {
	mu       sync.RWMutex
	articles map[string]*domain.Article
	analyses map[string]*domain.AnalysisResult
	windows  map[string]*domain.TrendWindow
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		articles: make(map[string]*domain.Article),
		analyses: make(map[string]*domain.AnalysisResult),
		windows:  make(map[string]*domain.TrendWindow),
	}
}

// PutArticle implements ArticleStore.
func (m *MemoryStore) PutArticle(_ context.Context, article *domain.Article) error {
	cp := *article

	m.mu.Lock()
	defer m.mu.Unlock()
	m.articles[article.ID] = &cp
	return nil
}

// GetArticle implements ArticleStore.
func (m *MemoryStore) GetArticle(_ context.Context, id string) (*domain.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.articles[id]
	if !ok {
		return nil, fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

// PutAnalysis implements ArticleStore.
func (m *MemoryStore) PutAnalysis(_ context.Context, result *domain.AnalysisResult) error {
	cp := *result

	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses[result.ArticleID] = &cp
	return nil
}

// GetAnalysis implements ArticleStore.
func (m *MemoryStore) GetAnalysis(_ context.Context, articleID string) (*domain.AnalysisResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.analyses[articleID]
	if !ok {
		return nil, fmt.Errorf("analysis for %s: %w", articleID, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

// Fingerprints implements ArticleStore.
func (m *MemoryStore) Fingerprints(_ context.Context, fn func(string, domain.Fingerprint) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for id, a := range m.articles {
		if err := fn(id, a.Fingerprint); err != nil {
			return err
		}
	}
	return nil
}

// UpsertTrendWindow implements ArticleStore.
func (m *MemoryStore) UpsertTrendWindow(_ context.Context, window *domain.TrendWindow) error {
	key := fmt.Sprintf("%s/%d", window.Kind, window.Start.Unix())

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *window
	m.windows[key] = &cp
	return nil
}

// ArticleCount reports how many articles are stored.
func (m *MemoryStore) ArticleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.articles)
}
