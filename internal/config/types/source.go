// Package types defines the externally loaded source configuration.
package types

import (
	"errors"
	"fmt"
	"time"
)

// RatePolicy is the per-source admission policy honored by the rate
// limiter.
type RatePolicy struct {
	// RequestsPerSecond is the sustained refill rate. A value <= 0 is a
	// configuration error that suspends the source; it is never
	// silently floored.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	// Burst is the token bucket capacity.
	Burst int `yaml:"burst" mapstructure:"burst"`
	// CrawlDelay is the minimum gap between grants regardless of rate.
	CrawlDelay time.Duration `yaml:"crawl_delay" mapstructure:"crawl_delay"`
}

// Validate checks the rate policy.
func (p *RatePolicy) Validate() error {
	if p.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive, got %v", p.RequestsPerSecond)
	}
	if p.Burst <= 0 {
		return errors.New("burst must be positive")
	}
	if p.CrawlDelay < 0 {
		return errors.New("crawl_delay must be non-negative")
	}
	return nil
}

// Source describes one configured origin of articles. Sources are
// created from configuration, mutated only by health-state
// transitions, and disabled rather than deleted at runtime.
type Source struct {
	// ID is the unique identifier for the source.
	ID string `yaml:"id" mapstructure:"id"`
	// Name is the human-readable source name.
	Name string `yaml:"name" mapstructure:"name"`
	// URL is the base endpoint for the source.
	URL string `yaml:"url" mapstructure:"url"`
	// SeedURLs are the initial locators to crawl.
	SeedURLs []string `yaml:"seed_urls" mapstructure:"seed_urls"`
	// AllowedPaths restricts discovery to matching URL path prefixes.
	// Empty means all paths under the base endpoint are allowed.
	AllowedPaths []string `yaml:"allowed_paths" mapstructure:"allowed_paths"`
	// Rate is the admission policy for this source.
	Rate RatePolicy `yaml:"rate" mapstructure:"rate"`
	// Selectors define the extraction rules for this source.
	Selectors Selectors `yaml:"selectors" mapstructure:"selectors"`
	// Language is the expected content language (BCP 47 tag).
	Language string `yaml:"language" mapstructure:"language"`
	// CulturalCalibration modulates raw sentiment scores to correct
	// known source-level tone bias. 1.0 means no adjustment.
	CulturalCalibration float64 `yaml:"cultural_calibration" mapstructure:"cultural_calibration"`
	// Disabled excludes the source from scheduling without removing it.
	Disabled bool `yaml:"disabled" mapstructure:"disabled"`
}

// Validate checks the source configuration. Rate policy violations are
// reported but typed separately by the registry so a bad rate suspends
// only the offending source.
func (s *Source) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.URL == "" {
		return errors.New("url is required")
	}
	if len(s.SeedURLs) == 0 {
		return errors.New("at least one seed_url is required")
	}
	if s.CulturalCalibration < 0 {
		return errors.New("cultural_calibration must be non-negative")
	}
	return s.Selectors.Validate()
}

// EffectiveCalibration returns the calibration factor, defaulting to
// 1.0 when unset.
func (s *Source) EffectiveCalibration() float64 {
	if s.CulturalCalibration == 0 {
		return 1.0
	}
	return s.CulturalCalibration
}
