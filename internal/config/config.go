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
	DBMinConns  int32  `envconfig:"TW_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"TW_DB_MAX_CONNS" default:"8"`

	EmbeddingProvider    string        `envconfig:"EMBEDDING_PROVIDER" default:"http"`
	EmbeddingEndpoint    string        `envconfig:"EMBEDDING_ENDPOINT" default:"http://127.0.0.1:8844/embed"`
	EmbeddingModel       string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingRatePerSec  float64       `envconfig:"EMBEDDING_RATE_PER_SEC" default:"5"`
	EmbeddingTimeout     time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"45s"`
	EmbeddingCacheTTL    time.Duration `envconfig:"EMBEDDING_CACHE_TTL" default:"168h"`
	OpenAIAPIKey         string        `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL        string        `envconfig:"OPENAI_BASE_URL" default:""`
	RedisURL             string        `envconfig:"REDIS_URL" default:""`
	SummaryProvider      string        `envconfig:"SUMMARY_PROVIDER" default:"extractive"`
	SummaryEndpoint      string        `envconfig:"SUMMARY_ENDPOINT" default:"http://127.0.0.1:8845/v1"`
	SummaryModel         string        `envconfig:"SUMMARY_MODEL" default:"gpt-4o-mini"`
	QualityScorerCommand string        `envconfig:"QUALITY_SCORER_CMD" default:""`
	QualityScorerTimeout time.Duration `envconfig:"QUALITY_SCORER_TIMEOUT" default:"2m"`
	ScoringParallelism   int           `envconfig:"SCORING_PARALLELISM" default:"4"`
	TuningFile           string        `envconfig:"TUNING_FILE" default:""`

	Tuning Tuning `ignored:"true"`
}

// Load reads the environment, applies the optional tuning file and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	tuning, err := LoadTuning(cfg.TuningFile)
	if err != nil {
		return nil, err
	}
	cfg.Tuning = tuning

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
		return fmt.Errorf("TW_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("TW_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("TW_DB_MIN_CONNS (%d) cannot exceed TW_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	switch strings.ToLower(strings.TrimSpace(c.EmbeddingProvider)) {
	case "http":
		if strings.TrimSpace(c.EmbeddingEndpoint) == "" {
			return fmt.Errorf("EMBEDDING_ENDPOINT is required for the http provider")
		}
	case "openai":
		if strings.TrimSpace(c.OpenAIAPIKey) == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai embedding provider")
		}
	default:
		return fmt.Errorf("EMBEDDING_PROVIDER must be one of: http, openai")
	}
	if c.EmbeddingRatePerSec < 0 {
		return fmt.Errorf("EMBEDDING_RATE_PER_SEC must be >= 0")
	}

	switch strings.ToLower(strings.TrimSpace(c.SummaryProvider)) {
	case "extractive", "local":
	case "openai":
		if strings.TrimSpace(c.OpenAIAPIKey) == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai summary provider")
		}
	default:
		return fmt.Errorf("SUMMARY_PROVIDER must be one of: extractive, local, openai")
	}

	if c.QualityScorerTimeout <= 0 {
		return fmt.Errorf("QUALITY_SCORER_TIMEOUT must be > 0")
	}
	if c.ScoringParallelism < 1 {
		return fmt.Errorf("SCORING_PARALLELISM must be >= 1")
	}

	return c.Tuning.Validate()
}

// EmbeddingProviderName returns the normalized provider key.
func (c *Config) EmbeddingProviderName() string {
	if c == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(c.EmbeddingProvider))
}

// SummaryProviderName returns the normalized provider key.
func (c *Config) SummaryProviderName() string {
	if c == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(c.SummaryProvider))
}
