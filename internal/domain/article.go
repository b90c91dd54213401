// Package domain defines the core records that flow through the
// ingestion pipeline and the error taxonomy shared by its components.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

// Fingerprint identifies article content for duplicate detection.
// Exact is the hex SHA-256 of the normalized body text; Simhash is a
// 64-bit similarity-preserving hash of the same text, so near-duplicate
// bodies land within a small Hamming distance of each other.
type Fingerprint struct {
	Exact   string `json:"exact"`
	Simhash uint64 `json:"simhash"`
}

// Article is the canonical record produced by the normalizer.
// Identity is derived from the canonical URL and is stable across
// re-fetches; the fingerprint is a pure function of the normalized
// body text. Articles are immutable once accepted by the deduplicator.
type Article struct {
	ID          string      `json:"id"`
	SourceID    string      `json:"source_id"`
	URL         string      `json:"url"`
	Title       string      `json:"title"`
	Body        string      `json:"body"`
	Author      string      `json:"author,omitempty"`
	PublishedAt time.Time   `json:"published_at"`
	FetchedAt   time.Time   `json:"fetched_at"`
	Language    string      `json:"language"`
	Fingerprint Fingerprint `json:"fingerprint"`
	WordCount   int         `json:"word_count"`
}

// ArticleID derives the stable article identity from a canonical URL.
// Scheme and trailing slashes are stripped before hashing so that
// trivially different spellings of the same locator collapse.
func ArticleID(canonicalURL string) string {
	u := strings.TrimSuffix(canonicalURL, "/")
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")

	h := sha256.Sum256([]byte(u))
	return hex.EncodeToString(h[:])
}

// RawDocument is the transient result of a fetch. It is consumed by
// the normalizer and never persisted.
type RawDocument struct {
	TaskID     string
	SourceID   string
	URL        string
	Body       []byte
	Header     http.Header
	StatusCode int
	FetchedAt  time.Time
}
