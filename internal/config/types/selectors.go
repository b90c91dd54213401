package types

import "errors"

// Selectors groups the CSS selectors used to extract content from a
// source's pages.
type Selectors struct {
	// Article contains selectors for article pages.
	Article ArticleSelectors `yaml:"article" mapstructure:"article"`
	// List contains selectors for article list / section pages.
	List ListSelectors `yaml:"list" mapstructure:"list"`
}

// Validate validates the selector set.
func (s *Selectors) Validate() error {
	return s.Article.Validate()
}

// ArticleSelectors defines the CSS selectors for article content.
type ArticleSelectors struct {
	// Container is the selector for the article container.
	Container string `yaml:"container" mapstructure:"container"`
	// Title is the selector for the article title.
	Title string `yaml:"title" mapstructure:"title"`
	// Body is the selector for the article body.
	Body string `yaml:"body" mapstructure:"body"`
	// Author is the selector for the article author.
	Author string `yaml:"author" mapstructure:"author"`
	// PublishedTime is the selector for the published timestamp.
	PublishedTime string `yaml:"published_time" mapstructure:"published_time"`
	// Canonical is the selector for the canonical URL.
	Canonical string `yaml:"canonical" mapstructure:"canonical"`
	// Exclude are selectors for elements stripped before extraction.
	Exclude []string `yaml:"exclude" mapstructure:"exclude"`
}

// Validate validates the article selectors.
func (s *ArticleSelectors) Validate() error {
	if s.Container == "" {
		return errors.New("container selector is required")
	}
	if s.Title == "" {
		return errors.New("title selector is required")
	}
	if s.Body == "" {
		return errors.New("body selector is required")
	}
	return nil
}

// DefaultArticleSelectors returns selectors that work for common
// article markup.
func DefaultArticleSelectors() ArticleSelectors {
	return ArticleSelectors{
		Container:     "article",
		Title:         "h1",
		Body:          "article",
		Author:        ".author, .byline",
		PublishedTime: "time[datetime]",
		Canonical:     "link[rel='canonical']",
		Exclude: []string{
			"script, style, noscript",
			"nav, header, footer",
			".ad, .advertisement",
			".sidebar, .comments",
		},
	}
}

// ListSelectors defines the CSS selectors for article discovery on
// list pages.
type ListSelectors struct {
	// ArticleLinks is the selector for links to article pages.
	ArticleLinks string `yaml:"article_links" mapstructure:"article_links"`
	// NextPage is the selector for the pagination link.
	NextPage string `yaml:"next_page" mapstructure:"next_page"`
}
