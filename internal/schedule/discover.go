package schedule

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/newsflow/internal/config/types"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
)

// Discover extracts article links from a fetched page and feeds the
// new ones into the source's frontier. It returns how many URLs were
// accepted.
func (s *Scheduler) Discover(doc *domain.RawDocument) int {
	src, ok := s.registry.Get(doc.SourceID)
	if !ok {
		return 0
	}

	links, err := extractLinks(doc.Body, doc.URL, src)
	if err != nil {
		s.log.Warn("link discovery failed",
			logger.String("source_id", doc.SourceID),
			logger.String("url", doc.URL),
			logger.Error(err),
		)
		return 0
	}

	added := 0
	for _, link := range links {
		if s.Add(doc.SourceID, link) {
			added++
		}
	}

	if added > 0 {
		s.log.Debug("links discovered",
			logger.String("source_id", doc.SourceID),
			logger.String("page", doc.URL),
			logger.Int("added", added),
		)
	}
	return added
}

// extractLinks pulls candidate hrefs out of the page using the
// source's list selectors, resolves them against the page URL, and
// keeps only same-host links under the allowed path prefixes.
func extractLinks(body []byte, pageURL string, src types.Source) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	q, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}

	selector := src.Selectors.List.ArticleLinks
	if selector == "" {
		selector = "a[href]"
	}

	var links []string
	seen := make(map[string]struct{})

	collect := func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		resolved, ok := resolveLink(base, href, src)
		if !ok {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		links = append(links, resolved)
	}

	q.Find(selector).Each(collect)
	if next := src.Selectors.List.NextPage; next != "" {
		q.Find(next).Each(collect)
	}

	return links, nil
}

// resolveLink canonicalizes one href and applies the source's scope
// rules.
func resolveLink(base *url.URL, href string, src types.Source) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}

	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host != base.Host {
		return "", false
	}
	u.Fragment = ""

	if len(src.AllowedPaths) > 0 {
		allowed := false
		for _, prefix := range src.AllowedPaths {
			if strings.HasPrefix(u.Path, prefix) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", false
		}
	}

	return u.String(), true
}
