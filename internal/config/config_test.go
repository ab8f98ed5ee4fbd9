package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Environment:          "local",
		LogLevel:             "info",
		DatabaseURL:          "postgres://localhost/trustwire",
		DBMinConns:           1,
		DBMaxConns:           8,
		EmbeddingProvider:    "http",
		EmbeddingEndpoint:    "http://127.0.0.1:8844/embed",
		SummaryProvider:      "extractive",
		QualityScorerTimeout: time.Minute,
		ScoringParallelism:   2,
		Tuning:               DefaultTuning(),
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"DATABASE_URL":           func(c *Config) { c.DatabaseURL = " " },
		"TW_DB_MIN_CONNS (9)":    func(c *Config) { c.DBMinConns = 9 },
		"EMBEDDING_PROVIDER":     func(c *Config) { c.EmbeddingProvider = "cohere" },
		"OPENAI_API_KEY":         func(c *Config) { c.EmbeddingProvider = "openai" },
		"SUMMARY_PROVIDER":       func(c *Config) { c.SummaryProvider = "magic" },
		"SCORING_PARALLELISM":    func(c *Config) { c.ScoringParallelism = 0 },
		"dedup_threshold":        func(c *Config) { c.Tuning.DedupThreshold = 1.5 },
		"title lengths":          func(c *Config) { c.Tuning.MinTitleLength = 200 },
		"warn_badge_score":       func(c *Config) { c.Tuning.WarnBadgeScore = 90 },
		"cross_verify_threshold": func(c *Config) { c.Tuning.CrossVerifyThreshold = 0 },
		"cross_verify_boost":     func(c *Config) { c.Tuning.CrossVerifyBoostTwo = -1 },
		"QUALITY_SCORER_TIMEOUT": func(c *Config) { c.QualityScorerTimeout = 0 },
	}

	for want, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("expected error mentioning %q", want)
		}
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error mentioning %q, got %v", want, err)
		}
	}
}

func TestLoadTuningOverlaysFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := "dedup_threshold: 0.7\ncandidate_window: 24h\ncategories: [it, world]\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write tuning file: %v", err)
	}

	tuning, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	if tuning.DedupThreshold != 0.7 {
		t.Fatalf("expected dedup_threshold=0.7, got %v", tuning.DedupThreshold)
	}
	if tuning.CandidateWindow != 24*time.Hour {
		t.Fatalf("expected candidate_window=24h, got %v", tuning.CandidateWindow)
	}
	if len(tuning.Categories) != 2 || tuning.Categories[1] != "world" {
		t.Fatalf("unexpected categories: %v", tuning.Categories)
	}
	if tuning.EntailThreshold != 0.35 || tuning.CandidatePoolLimit != 800 {
		t.Fatalf("expected untouched keys to keep defaults, got %+v", tuning)
	}
}

func TestLoadTuningRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("dedup_treshold: 0.7\n"), 0o600); err != nil {
		t.Fatalf("write tuning file: %v", err)
	}
	if _, err := LoadTuning(path); err == nil {
		t.Fatalf("expected misspelled key to be rejected")
	}
}

func TestLoadTuningEmptyPathUsesDefaults(t *testing.T) {
	t.Parallel()

	tuning, err := LoadTuning("")
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	if tuning.DedupThreshold != 0.60 || tuning.MaxTitleLength != 120 || tuning.CandidateTopK != 20 {
		t.Fatalf("unexpected defaults: %+v", tuning)
	}
}
