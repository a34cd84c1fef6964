package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	PostgresURL string `mapstructure:"POSTGRES_URL"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	ServerPort  string `mapstructure:"SERVER_PORT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogFile     string `mapstructure:"LOG_FILE"`

	// Sites is a comma-separated list of built-in site names; empty runs
	// every registered site.
	Sites string `mapstructure:"SITES"`

	// Crawl window, YYYY-MM-DD dates. When StartDate is set a run is kicked
	// off at boot; otherwise runs are triggered through the API.
	StartDate string `mapstructure:"START_DATE"`
	EndDate   string `mapstructure:"END_DATE"`

	FetchTimeoutSec   int `mapstructure:"FETCH_TIMEOUT"`
	SitemapMaxDepth   int `mapstructure:"SITEMAP_MAX_DEPTH"`
	DeduplicationDays int `mapstructure:"DEDUPLICATION_DAYS"`

	MaxGlobalConcurrency  int     `mapstructure:"MAX_GLOBAL_CONCURRENCY"`
	MaxPerSiteConcurrency int     `mapstructure:"MAX_PER_SITE_CONCURRENCY"`
	BaseDelayMs           int     `mapstructure:"BASE_DELAY_MS"`
	JitterFactor          float64 `mapstructure:"JITTER_FACTOR"`
	MinDelayMs            int     `mapstructure:"MIN_DELAY_MS"`
	MaxDelayMs            int     `mapstructure:"MAX_DELAY_MS"`
	TargetConcurrency     float64 `mapstructure:"TARGET_CONCURRENCY"`
}

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present.
	// This allows configuration purely through environment variables in
	// production.
	_ = viper.ReadInConfig()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("FETCH_TIMEOUT", 30) // in seconds
	viper.SetDefault("SITEMAP_MAX_DEPTH", 3)
	viper.SetDefault("DEDUPLICATION_DAYS", 2)
	viper.SetDefault("MAX_GLOBAL_CONCURRENCY", 16)
	viper.SetDefault("MAX_PER_SITE_CONCURRENCY", 8)
	viper.SetDefault("BASE_DELAY_MS", 1000)
	viper.SetDefault("JITTER_FACTOR", 0.5)
	viper.SetDefault("MIN_DELAY_MS", 500)
	viper.SetDefault("MAX_DELAY_MS", 10000)
	viper.SetDefault("TARGET_CONCURRENCY", 2.0)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

func (c *Config) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

func (c *Config) MinDelay() time.Duration {
	return time.Duration(c.MinDelayMs) * time.Millisecond
}

func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

func (c *Config) DeduplicationTTL() time.Duration {
	return time.Duration(c.DeduplicationDays) * 24 * time.Hour
}
