package sources_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/sources"
)

const validSourcesYAML = `
sources:
  - id: example
    name: Example News
    url: https://news.example.com
    seed_urls:
      - https://news.example.com/latest
    allowed_paths:
      - /story/
    rate:
      requests_per_second: 0.5
      burst: 2
      crawl_delay: 2s
    language: en
    cultural_calibration: 0.85
    selectors:
      article:
        container: article
        title: h1
        body: .article-body
  - id: broken
    name: Broken Source
    url: https://broken.example.com
    selectors:
      article:
        container: article
`

func TestParseValidAndInvalidSources(t *testing.T) {
	t.Parallel()

	srcs, invalid, err := sources.Parse([]byte(validSourcesYAML))
	require.NoError(t, err)

	// One bad source never rejects the file.
	require.Len(t, srcs, 1)
	require.Len(t, invalid, 1)
	assert.ErrorContains(t, invalid[0], "broken")

	src := srcs[0]
	assert.Equal(t, "example", src.ID)
	assert.Equal(t, 0.5, src.Rate.RequestsPerSecond)
	assert.Equal(t, 2*time.Second, src.Rate.CrawlDelay)
	assert.Equal(t, []string{"/story/"}, src.AllowedPaths)
	assert.Equal(t, "article", src.Selectors.Article.Container)
	assert.InDelta(t, 0.85, src.CulturalCalibration, 1e-9)
}

func TestParseAppliesDefaultSelectors(t *testing.T) {
	t.Parallel()

	yaml := `
sources:
  - id: minimal
    name: Minimal Source
    url: https://minimal.example.com
    seed_urls:
      - https://minimal.example.com/news
    rate:
      requests_per_second: 1
`

	srcs, invalid, err := sources.Parse([]byte(yaml))
	require.NoError(t, err)
	require.Empty(t, invalid)
	require.Len(t, srcs, 1)

	// Omitted selectors fall back to common article markup.
	sel := srcs[0].Selectors.Article
	assert.Equal(t, "article", sel.Container)
	assert.Equal(t, "h1", sel.Title)
	assert.NotEmpty(t, sel.Body)
	assert.NotEmpty(t, sel.Exclude)
}

func TestParseEmptyFile(t *testing.T) {
	t.Parallel()

	_, _, err := sources.Parse([]byte("sources: []"))
	require.ErrorIs(t, err, sources.ErrNoSources)
}

func TestParseMalformedYAML(t *testing.T) {
	t.Parallel()

	_, _, err := sources.Parse([]byte("sources: [unclosed"))
	require.Error(t, err)
}
