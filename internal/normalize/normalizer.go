// Package normalize cleans raw fetched documents into canonical
// Article records.
package normalize

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/jonesrussell/newsflow/internal/config/types"
	"github.com/jonesrussell/newsflow/internal/dedup"
	"github.com/jonesrussell/newsflow/internal/domain"
)

// timeLayouts are tried in order when parsing published timestamps.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
}

// Normalizer turns RawDocuments into Articles using per-source
// extraction rules. It is stateless: Normalize is a pure function of
// its inputs.
type Normalizer struct {
	minBodyWords int
}

// New creates a normalizer. Documents whose extracted body falls below
// minBodyWords are rejected as extraction failures.
func New(minBodyWords int) *Normalizer {
	if minBodyWords <= 0 {
		minBodyWords = 50
	}
	return &Normalizer{minBodyWords: minBodyWords}
}

// Normalize extracts and cleans an article from a fetched document.
// The returned article carries the content fingerprint used by the
// deduplicator; its identity is derived from the canonical URL so it
// is stable across re-fetches.
func (n *Normalizer) Normalize(raw *domain.RawDocument, src types.Source) (*domain.Article, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw.Body))
	if err != nil {
		return nil, &domain.ParseError{URL: raw.URL, Reason: fmt.Sprintf("malformed markup: %v", err)}
	}

	sel := src.Selectors.Article

	// Strip excluded elements before any text extraction.
	for _, ex := range sel.Exclude {
		doc.Find(ex).Remove()
	}

	container := doc.Find(sel.Container).First()
	if container.Length() == 0 {
		return nil, &domain.ParseError{URL: raw.URL, Reason: "container selector matched nothing"}
	}

	title := cleanText(firstText(doc, container, sel.Title))
	body := cleanText(container.Find(sel.Body).Text())
	if body == "" {
		body = cleanText(container.Text())
	}

	words := len(strings.Fields(body))
	if words < n.minBodyWords {
		return nil, &domain.ParseError{
			URL:    raw.URL,
			Reason: fmt.Sprintf("extracted body too short: %d words < %d", words, n.minBodyWords),
		}
	}

	canonical := canonicalURL(doc, sel.Canonical, raw.URL)

	article := &domain.Article{
		ID:          domain.ArticleID(canonical),
		SourceID:    raw.SourceID,
		URL:         canonical,
		Title:       title,
		Body:        body,
		Author:      cleanText(firstText(doc, container, sel.Author)),
		PublishedAt: publishedTime(doc, sel.PublishedTime, raw.FetchedAt),
		FetchedAt:   raw.FetchedAt,
		Language:    language(doc, src),
		WordCount:   words,
		Fingerprint: domain.Fingerprint{
			Exact:   dedup.ExactHash(body),
			Simhash: dedup.Simhash(body),
		},
	}

	return article, nil
}

// firstText finds the first match for selector inside the container,
// falling back to a document-wide search for metadata that commonly
// lives in <head>.
func firstText(doc *goquery.Document, container *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}

	if s := container.Find(selector).First(); s.Length() > 0 {
		return s.Text()
	}
	return doc.Find(selector).First().Text()
}

// canonicalURL resolves the canonical link, falling back to the
// fetched URL with tracking query parameters dropped.
func canonicalURL(doc *goquery.Document, selector, fetched string) string {
	if selector != "" {
		if href, ok := doc.Find(selector).First().Attr("href"); ok && href != "" {
			return href
		}
	}

	u, err := url.Parse(fetched)
	if err != nil {
		return fetched
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// publishedTime parses the published timestamp, preferring a datetime
// attribute, then element text, then the fetch time.
func publishedTime(doc *goquery.Document, selector string, fallback time.Time) time.Time {
	if selector == "" {
		return fallback
	}

	el := doc.Find(selector).First()
	if el.Length() == 0 {
		return fallback
	}

	candidates := []string{}
	if dt, ok := el.Attr("datetime"); ok {
		candidates = append(candidates, dt)
	}
	if content, ok := el.Attr("content"); ok {
		candidates = append(candidates, content)
	}
	candidates = append(candidates, strings.TrimSpace(el.Text()))

	for _, c := range candidates {
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				return t
			}
		}
	}
	return fallback
}

// language reads the document language, preferring <html lang>, then
// the source configuration, then English.
func language(doc *goquery.Document, src types.Source) string {
	if lang, ok := doc.Find("html").Attr("lang"); ok && lang != "" {
		if i := strings.IndexByte(lang, '-'); i > 0 {
			return lang[:i]
		}
		return lang
	}
	if src.Language != "" {
		return src.Language
	}
	return "en"
}

// quoteFolder maps typographic quotation marks and dashes to their
// ASCII forms so fingerprints are stable across source styling.
var quoteFolder = runes.Map(func(r rune) rune {
	switch r {
	case '‘', '’', '‚', '′':
		return '\''
	case '“', '”', '„', '″':
		return '"'
	case '–', '—', '―':
		return '-'
	case ' ':
		return ' '
	default:
		return r
	}
})

// cleanText applies NFC normalization, quote folding, and whitespace
// collapsing.
func cleanText(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFC, quoteFolder), s)
	if err != nil {
		folded = s
	}
	return collapseWhitespace(folded)
}

// collapseWhitespace trims and squeezes runs of whitespace to single
// spaces, preserving nothing of the original layout.
func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
