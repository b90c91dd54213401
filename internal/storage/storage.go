// Package storage persists articles, analysis results and trend
// aggregates.
package storage

import (
	"context"
	"errors"

	"github.com/jonesrussell/newsflow/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// ArticleStore is the persistence contract the pipeline depends on.
// Implementations must be safe for concurrent use.
type ArticleStore interface {
	// PutArticle stores an accepted article. Writing the same article
	// ID twice overwrites with identical content, so replay after a
	// restart is harmless.
	PutArticle(ctx context.Context, article *domain.Article) error

	// GetArticle fetches an article by ID, ErrNotFound if absent.
	GetArticle(ctx context.Context, id string) (*domain.Article, error)

	// PutAnalysis stores the analysis result for an article.
	PutAnalysis(ctx context.Context, result *domain.AnalysisResult) error

	// GetAnalysis fetches the stored analysis for an article,
	// ErrNotFound if the article has none.
	GetAnalysis(ctx context.Context, articleID string) (*domain.AnalysisResult, error)

	// Fingerprints streams every stored article's fingerprint and ID.
	// The deduplicator rebuilds its index from this on restart.
	Fingerprints(ctx context.Context, fn func(articleID string, fp domain.Fingerprint) error) error

	// UpsertTrendWindow persists a window snapshot, replacing any
	// previous snapshot for the same kind and start.
	UpsertTrendWindow(ctx context.Context, window *domain.TrendWindow) error
}
