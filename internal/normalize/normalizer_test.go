package normalize_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/config/types"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/normalize"
)

func testSource() types.Source {
	return types.Source{
		ID:       "example",
		Name:     "Example News",
		URL:      "https://news.example.com",
		Language: "en",
		Selectors: types.Selectors{
			Article: types.ArticleSelectors{
				Container:     "article",
				Title:         "h1",
				Body:          ".body",
				Author:        ".byline",
				PublishedTime: "time",
				Canonical:     `link[rel="canonical"]`,
				Exclude:       []string{".ad", "nav"},
			},
		},
	}
}

func rawDoc(url, html string) *domain.RawDocument {
	return &domain.RawDocument{
		TaskID:     "task-1",
		SourceID:   "example",
		URL:        url,
		Body:       []byte(html),
		StatusCode: 200,
		FetchedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func longBody(words int) string {
	return strings.Repeat("council vote transit plan approved downtown construction spring officials residents ", (words+9)/10)
}

func TestNormalizeExtractsArticle(t *testing.T) {
	t.Parallel()

	html := `<html lang="en-CA"><head>
		<link rel="canonical" href="https://news.example.com/story/42">
	</head><body>
	<nav>Home | World | Local</nav>
	<article>
		<h1>Council  approves   transit plan</h1>
		<div class="byline">Jamie Reporter</div>
		<time datetime="2025-05-30T09:15:00Z">May 30, 2025</time>
		<div class="ad">Buy things now</div>
		<div class="body">` + longBody(80) + `</div>
	</article></body></html>`

	n := normalize.New(50)
	article, err := n.Normalize(rawDoc("https://news.example.com/story/42?utm_source=feed", html), testSource())
	require.NoError(t, err)

	assert.Equal(t, "Council approves transit plan", article.Title)
	assert.Equal(t, "Jamie Reporter", article.Author)
	assert.Equal(t, "https://news.example.com/story/42", article.URL)
	assert.Equal(t, domain.ArticleID("https://news.example.com/story/42"), article.ID)
	assert.Equal(t, "en", article.Language)
	assert.Equal(t, time.Date(2025, 5, 30, 9, 15, 0, 0, time.UTC), article.PublishedAt)
	assert.NotContains(t, article.Body, "Buy things now")
	assert.NotContains(t, article.Body, "Home | World")
	assert.GreaterOrEqual(t, article.WordCount, 50)
	assert.NotEmpty(t, article.Fingerprint.Exact)
	assert.NotZero(t, article.Fingerprint.Simhash)
}

func TestNormalizeRejectsShortBody(t *testing.T) {
	t.Parallel()

	html := `<html><body><article>
		<h1>Stub</h1>
		<div class="body">Too short to be an article.</div>
	</article></body></html>`

	n := normalize.New(50)
	_, err := n.Normalize(rawDoc("https://news.example.com/stub", html), testSource())

	var pe *domain.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "too short")
}

func TestNormalizeMissingContainer(t *testing.T) {
	t.Parallel()

	html := `<html><body><div>Section page with links only</div></body></html>`

	n := normalize.New(50)
	_, err := n.Normalize(rawDoc("https://news.example.com/section", html), testSource())

	var pe *domain.ParseError
	require.ErrorAs(t, err, &pe)
}

func TestNormalizeFoldsTypographicQuotes(t *testing.T) {
	t.Parallel()

	body := "“We are ready,” the mayor said – again. " + longBody(60)
	html := `<html><body><article><h1>Quotes</h1><div class="body">` + body + `</div></article></body></html>`

	n := normalize.New(50)
	article, err := n.Normalize(rawDoc("https://news.example.com/q", html), testSource())
	require.NoError(t, err)

	assert.Contains(t, article.Body, `"We are ready," the mayor said - again.`)
}

func TestNormalizeFingerprintStableAcrossStyling(t *testing.T) {
	t.Parallel()

	plain := "He said \"fine\" - and left. " + longBody(60)
	styled := "He said “fine” — and left.   " + longBody(60)

	n := normalize.New(50)
	src := testSource()

	a1, err := n.Normalize(rawDoc("https://news.example.com/a", wrap(plain)), src)
	require.NoError(t, err)
	a2, err := n.Normalize(rawDoc("https://news.example.com/b", wrap(styled)), src)
	require.NoError(t, err)

	// Same content under different typography must collapse to the
	// same exact fingerprint.
	assert.Equal(t, a1.Fingerprint.Exact, a2.Fingerprint.Exact)
}

func wrap(body string) string {
	return `<html><body><article><h1>T</h1><div class="body">` + body + `</div></article></body></html>`
}

func TestNormalizeLanguageFallbacks(t *testing.T) {
	t.Parallel()

	n := normalize.New(50)

	// No <html lang>: source language wins.
	src := testSource()
	src.Language = "fr"
	a, err := n.Normalize(rawDoc("https://news.example.com/x", wrap(longBody(60))), src)
	require.NoError(t, err)
	assert.Equal(t, "fr", a.Language)

	// Neither set: default.
	src.Language = ""
	a, err = n.Normalize(rawDoc("https://news.example.com/y", wrap(longBody(60))), src)
	require.NoError(t, err)
	assert.Equal(t, "en", a.Language)
}
