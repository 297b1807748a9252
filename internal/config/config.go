package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"FN_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"FN_DB_MAX_CONNS" default:"8"`

	Feeds        string        `envconfig:"FEEDS" default:""`
	FeedsFile    string        `envconfig:"FEEDS_FILE" default:""`
	FetchTimeout time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s"`
	MaxAgeHours  int           `envconfig:"MAX_AGE_HOURS" default:"168"`

	IngestInterval       time.Duration `envconfig:"INGEST_INTERVAL" default:"60s"`
	AutoStartScheduler   bool          `envconfig:"AUTO_START_SCHEDULER" default:"false"`
	SourceFloorThreshold int           `envconfig:"SOURCE_FLOOR_THRESHOLD" default:"10"`
	MinIntervalFloor     time.Duration `envconfig:"MIN_INTERVAL_FLOOR" default:"5m"`

	WriteChunkSize        int           `envconfig:"WRITE_CHUNK_SIZE" default:"50"`
	WriteMaxRetries       int           `envconfig:"WRITE_MAX_RETRIES" default:"1"`
	WriteRetryDelay       time.Duration `envconfig:"WRITE_RETRY_DELAY" default:"2s"`
	WriteAbortOnPermanent bool          `envconfig:"WRITE_ABORT_ON_PERMANENT" default:"false"`

	OracleBaseURL string        `envconfig:"ORACLE_BASE_URL" default:"http://127.0.0.1:8844"`
	OracleTimeout time.Duration `envconfig:"ORACLE_TIMEOUT" default:"45s"`

	ClusterThreshold        float64 `envconfig:"CLUSTER_THRESHOLD" default:"0.80"`
	SummaryLimit            int     `envconfig:"SUMMARY_LIMIT" default:"5"`
	SentimentAlertThreshold float64 `envconfig:"SENTIMENT_ALERT_THRESHOLD" default:"0.90"`
	RegulatoryKeywords      string  `envconfig:"REGULATORY_KEYWORDS" default:"repo,inflation,rbi,reserve bank,monetary policy"`
	EarningsKeywords        string  `envconfig:"EARNINGS_KEYWORDS" default:"profit,growth,earnings,revenue,dividend"`
	AlertHistorySize        int     `envconfig:"ALERT_HISTORY_SIZE" default:"100"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("FN_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("FN_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("FN_DB_MIN_CONNS (%d) cannot exceed FN_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if c.MaxAgeHours < 0 {
		return fmt.Errorf("MAX_AGE_HOURS must be >= 0")
	}
	if c.IngestInterval <= 0 {
		return fmt.Errorf("INGEST_INTERVAL must be positive")
	}
	if c.WriteChunkSize < 1 {
		return fmt.Errorf("WRITE_CHUNK_SIZE must be >= 1")
	}
	if c.WriteMaxRetries < 0 {
		return fmt.Errorf("WRITE_MAX_RETRIES must be >= 0")
	}
	if c.ClusterThreshold < 0 || c.ClusterThreshold > 1 {
		return fmt.Errorf("CLUSTER_THRESHOLD must be within [0,1]")
	}
	if c.SentimentAlertThreshold < 0 || c.SentimentAlertThreshold > 1 {
		return fmt.Errorf("SENTIMENT_ALERT_THRESHOLD must be within [0,1]")
	}
	if c.SummaryLimit < 0 {
		return fmt.Errorf("SUMMARY_LIMIT must be >= 0")
	}
	if c.AlertHistorySize < 1 {
		return fmt.Errorf("ALERT_HISTORY_SIZE must be >= 1")
	}
	return nil
}

// MaxAge converts MAX_AGE_HOURS into a duration; zero disables the filter.
func (c *Config) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeHours) * time.Hour
}

// FeedList splits the FEEDS env value into trimmed, de-duplicated URLs.
func (c *Config) FeedList() []string {
	return splitList(c.Feeds)
}

func (c *Config) RegulatoryKeywordList() []string {
	return splitList(c.RegulatoryKeywords)
}

func (c *Config) EarningsKeywordList() []string {
	return splitList(c.EarningsKeywords)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		values = append(values, value)
	}
	return values
}
