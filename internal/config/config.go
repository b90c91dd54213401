// Package config loads the application configuration with viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Trends   TrendsConfig   `mapstructure:"trends"`
	Dedup    DedupConfig    `mapstructure:"dedup"`
	Storage  StorageConfig  `mapstructure:"storage"`
	API      APIConfig      `mapstructure:"api"`
	// SourcesFile is the path to the YAML file defining sources.
	SourcesFile string `mapstructure:"sources_file"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// FetchConfig controls the fetch worker pool and its retry policy.
type FetchConfig struct {
	// Workers is the global fetch concurrency ceiling.
	Workers int `mapstructure:"workers"`
	// PerSourceLimit caps in-flight fetches per source.
	PerSourceLimit int `mapstructure:"per_source_limit"`
	// RequestTimeout bounds a single HTTP attempt.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// UserAgent identifies the crawler to origin servers.
	UserAgent string `mapstructure:"user_agent"`
	// MaxBodyBytes caps the size of fetched responses.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`

	// Retry/backoff policy for transient failures.
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffCap     time.Duration `mapstructure:"backoff_cap"`
	BackoffJitter  float64       `mapstructure:"backoff_jitter"`
	// Circuit breaker policy.
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
	// PenaltyDecay is how long a 429 rate penalty lasts.
	PenaltyDecay time.Duration `mapstructure:"penalty_decay"`
}

// AnalysisConfig controls the analysis orchestrator.
type AnalysisConfig struct {
	// Workers is the analysis pool size, independent of the fetch pool.
	Workers int `mapstructure:"workers"`
	// StageTimeout bounds each analyzer stage.
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
	// Version tags the analyzer set producing results.
	Version string `mapstructure:"version"`
	// Retry policy when all stages fail.
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap"`
	// MinBodyWords rejects extraction output below this length.
	MinBodyWords int `mapstructure:"min_body_words"`
}

// TrendsConfig controls the trend aggregator.
type TrendsConfig struct {
	// RetentionDays is the live daily-window horizon.
	RetentionDays int `mapstructure:"retention_days"`
	// EntityHalfLife is the exponential decay half-life for entity
	// mention weights.
	EntityHalfLife time.Duration `mapstructure:"entity_half_life"`
}

// DedupConfig controls the deduplicator.
type DedupConfig struct {
	// HammingThreshold is the maximum simhash distance treated as a
	// near-duplicate.
	HammingThreshold int `mapstructure:"hamming_threshold"`
	// Shards is the number of lock stripes over the fingerprint index.
	Shards int `mapstructure:"shards"`
}

// StorageConfig selects and configures the persistence collaborators.
type StorageConfig struct {
	// Backend is "memory" or "elasticsearch".
	Backend string `mapstructure:"backend"`
	// Elasticsearch connection settings.
	ESAddresses []string `mapstructure:"es_addresses"`
	ESIndex     string   `mapstructure:"es_index"`
	// RedisAddr enables the Redis frontier checkpoint when set.
	RedisAddr string `mapstructure:"redis_addr"`
	// PostgresDSN enables the Postgres dead-letter repository when set.
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// APIConfig controls the operational HTTP server.
type APIConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

// Load reads configuration from the given file (optional) and the
// environment, applying defaults for everything unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NEWSFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("sources_file", "sources.yml")

	v.SetDefault("fetch.workers", 16)
	v.SetDefault("fetch.per_source_limit", 2)
	v.SetDefault("fetch.request_timeout", 30*time.Second)
	v.SetDefault("fetch.user_agent", "newsflow/1.0 (+https://github.com/jonesrussell/newsflow)")
	v.SetDefault("fetch.max_body_bytes", int64(10*1024*1024))
	v.SetDefault("fetch.max_attempts", 4)
	v.SetDefault("fetch.backoff_base", 500*time.Millisecond)
	v.SetDefault("fetch.backoff_cap", 2*time.Minute)
	v.SetDefault("fetch.backoff_jitter", 0.25)
	v.SetDefault("fetch.breaker_threshold", 5)
	v.SetDefault("fetch.breaker_cooldown", time.Minute)
	v.SetDefault("fetch.penalty_decay", 5*time.Minute)

	v.SetDefault("analysis.workers", 8)
	v.SetDefault("analysis.stage_timeout", 10*time.Second)
	v.SetDefault("analysis.version", "v1")
	v.SetDefault("analysis.max_attempts", 3)
	v.SetDefault("analysis.backoff_base", time.Second)
	v.SetDefault("analysis.backoff_cap", 5*time.Minute)
	v.SetDefault("analysis.min_body_words", 50)

	v.SetDefault("trends.retention_days", 30)
	v.SetDefault("trends.entity_half_life", 24*time.Hour)

	v.SetDefault("dedup.hamming_threshold", 3)
	v.SetDefault("dedup.shards", 64)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.es_index", "newsflow-articles")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.addr", ":8080")
}
