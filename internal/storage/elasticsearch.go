package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
)

const fingerprintScrollSize = 500

// ESStore is the Elasticsearch-backed ArticleStore. Articles, analyses
// and trend windows live in sibling indices under a common prefix.
type ESStore struct {
	client *es.Client
	prefix string
	log    logger.Logger
}

// NewESStore connects to the cluster and verifies it responds.
func NewESStore(addresses []string, indexPrefix string, log logger.Logger) (*ESStore, error) {
	if len(addresses) == 0 {
		return nil, errors.New("elasticsearch addresses are required")
	}

	client, err := es.NewClient(es.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	res, err := client.Ping()
	if err != nil {
		return nil, fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch ping: %s", res.String())
	}

	log.Debug("connected to elasticsearch", logger.Any("addresses", addresses))

	return &ESStore{client: client, prefix: indexPrefix, log: log}, nil
}

func (s *ESStore) articleIndex() string  { return s.prefix }
func (s *ESStore) analysisIndex() string { return s.prefix + "-analysis" }
func (s *ESStore) trendIndex() string    { return s.prefix + "-trends" }

// PutArticle implements ArticleStore.
func (s *ESStore) PutArticle(ctx context.Context, article *domain.Article) error {
	return s.index(ctx, s.articleIndex(), article.ID, article)
}

// GetArticle implements ArticleStore.
func (s *ESStore) GetArticle(ctx context.Context, id string) (*domain.Article, error) {
	var a domain.Article
	if err := s.get(ctx, s.articleIndex(), id, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// PutAnalysis implements ArticleStore.
func (s *ESStore) PutAnalysis(ctx context.Context, result *domain.AnalysisResult) error {
	return s.index(ctx, s.analysisIndex(), result.ArticleID, result)
}

// GetAnalysis implements ArticleStore.
func (s *ESStore) GetAnalysis(ctx context.Context, articleID string) (*domain.AnalysisResult, error) {
	var r domain.AnalysisResult
	if err := s.get(ctx, s.analysisIndex(), articleID, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpsertTrendWindow implements ArticleStore.
func (s *ESStore) UpsertTrendWindow(ctx context.Context, window *domain.TrendWindow) error {
	id := fmt.Sprintf("%s-%d", window.Kind, window.Start.Unix())
	return s.index(ctx, s.trendIndex(), id, window)
}

// Fingerprints implements ArticleStore via a scroll over the article
// index, fetching only the fields the deduplicator needs.
func (s *ESStore) Fingerprints(ctx context.Context, fn func(string, domain.Fingerprint) error) error {
	query := map[string]any{
		"size":    fingerprintScrollSize,
		"_source": []string{"fingerprint"},
		"query":   map[string]any{"match_all": map[string]any{}},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("marshal fingerprint query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.articleIndex()),
		s.client.Search.WithBody(bytes.NewReader(body)),
		s.client.Search.WithScroll(scrollKeepAlive),
	)
	if err != nil {
		return fmt.Errorf("search fingerprints: %w", err)
	}

	scrollID := ""
	defer func() {
		if scrollID != "" {
			s.clearScroll(scrollID)
		}
	}()

	for {
		page, err := decodeScrollPage(res)
		res.Body.Close()
		if err != nil {
			return err
		}
		scrollID = page.ScrollID

		if len(page.Hits.Hits) == 0 {
			return nil
		}

		for _, hit := range page.Hits.Hits {
			if err := fn(hit.ID, hit.Source.Fingerprint); err != nil {
				return err
			}
		}

		res, err = s.client.Scroll(
			s.client.Scroll.WithContext(ctx),
			s.client.Scroll.WithScrollID(scrollID),
			s.client.Scroll.WithScroll(scrollKeepAlive),
		)
		if err != nil {
			return fmt.Errorf("continue fingerprint scroll: %w", err)
		}
	}
}

const scrollKeepAlive = time.Minute

type scrollPage struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			ID     string `json:"_id"`
			Source struct {
				Fingerprint domain.Fingerprint `json:"fingerprint"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func decodeScrollPage(res *esapi.Response) (*scrollPage, error) {
	if res.IsError() {
		return nil, fmt.Errorf("fingerprint scroll: %s", res.String())
	}
	var page scrollPage
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode scroll page: %w", err)
	}
	return &page, nil
}

func (s *ESStore) clearScroll(scrollID string) {
	res, err := s.client.ClearScroll(s.client.ClearScroll.WithScrollID(scrollID))
	if err != nil {
		s.log.Warn("clear scroll failed", logger.Error(err))
		return
	}
	res.Body.Close()
}

func (s *ESStore) index(ctx context.Context, index, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", id, err)
	}

	res, err := s.client.Index(
		index,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(id),
	)
	if err != nil {
		return fmt.Errorf("index document %s: %w", id, err)
	}
	defer s.drain(res.Body)

	if res.IsError() {
		s.log.Error("elasticsearch index error",
			logger.String("index", index),
			logger.String("doc_id", id),
			logger.String("response", res.String()),
		)
		return fmt.Errorf("index document %s: %s", id, res.Status())
	}
	return nil
}

func (s *ESStore) get(ctx context.Context, index, id string, doc any) error {
	res, err := s.client.Get(index, id, s.client.Get.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("get document %s: %w", id, err)
	}
	defer s.drain(res.Body)

	if res.StatusCode == 404 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if res.IsError() {
		return fmt.Errorf("get document %s: %s", id, res.Status())
	}

	var envelope struct {
		Source json.RawMessage `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode document %s: %w", id, err)
	}
	if err := json.Unmarshal(envelope.Source, doc); err != nil {
		return fmt.Errorf("unmarshal document %s: %w", id, err)
	}
	return nil
}

func (s *ESStore) drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	body.Close()
}
