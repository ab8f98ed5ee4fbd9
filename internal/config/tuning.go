package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning holds the clustering and scoring constants. Changing any of them changes
// clustering behavior materially, so they are only ever overridden explicitly.
type Tuning struct {
	CandidateWindow    time.Duration `yaml:"candidate_window"`
	CandidatePoolLimit int           `yaml:"candidate_pool_limit"`
	CandidateTopK      int           `yaml:"candidate_top_k"`
	DedupThreshold     float64       `yaml:"dedup_threshold"`
	MinTitleLength     int           `yaml:"min_title_length"`
	MaxTitleLength     int           `yaml:"max_title_length"`

	EntailThreshold  float64 `yaml:"entail_threshold"`
	MinEntailRatio   float64 `yaml:"min_entail_ratio"`
	MismatchRatio    float64 `yaml:"mismatch_ratio"`
	EvidenceWeight   int     `yaml:"evidence_weight"`
	MismatchPenalty  int     `yaml:"mismatch_penalty"`
	LowSourcePenalty int     `yaml:"low_source_penalty"`
	GoodBadgeScore   int     `yaml:"good_badge_score"`
	WarnBadgeScore   int     `yaml:"warn_badge_score"`
	CrossSourceBonus int     `yaml:"cross_source_bonus"`

	CrossVerifyThreshold float64 `yaml:"cross_verify_threshold"`
	CrossVerifyBoostOne  int     `yaml:"cross_verify_boost_one"`
	CrossVerifyBoostTwo  int     `yaml:"cross_verify_boost_two"`
	CrossVerifyBoostMax  int     `yaml:"cross_verify_boost_max"`

	EnrichMinChars int           `yaml:"enrich_min_chars"`
	SummarizeLimit int           `yaml:"summarize_limit"`
	CategoryWindow time.Duration `yaml:"category_window"`
	CategoryLimit  int           `yaml:"category_limit"`
	Categories     []string      `yaml:"categories"`
}

func DefaultTuning() Tuning {
	return Tuning{
		CandidateWindow:    48 * time.Hour,
		CandidatePoolLimit: 800,
		CandidateTopK:      20,
		DedupThreshold:     0.60,
		MinTitleLength:     10,
		MaxTitleLength:     120,

		EntailThreshold:  0.35,
		MinEntailRatio:   0.60,
		MismatchRatio:    0.25,
		EvidenceWeight:   60,
		MismatchPenalty:  15,
		LowSourcePenalty: 10,
		GoodBadgeScore:   80,
		WarnBadgeScore:   50,
		CrossSourceBonus: 15,

		CrossVerifyThreshold: 0.45,
		CrossVerifyBoostOne:  20,
		CrossVerifyBoostTwo:  35,
		CrossVerifyBoostMax:  50,

		EnrichMinChars: 50,
		SummarizeLimit: 50,
		CategoryWindow: 48 * time.Hour,
		CategoryLimit:  300,
		Categories:     []string{"top", "politics", "economy", "society", "it", "sports", "world", "culture"},
	}
}

// LoadTuning returns DefaultTuning overlaid with the YAML file at path. An empty path
// yields the defaults.
func LoadTuning(path string) (Tuning, error) {
	tuning := DefaultTuning()
	path = strings.TrimSpace(path)
	if path == "" {
		return tuning, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("read tuning file %s: %w", path, err)
	}
	if err := decodeTuning(raw, &tuning); err != nil {
		return Tuning{}, fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	if err := tuning.Validate(); err != nil {
		return Tuning{}, fmt.Errorf("tuning file %s: %w", path, err)
	}
	return tuning, nil
}

func decodeTuning(raw []byte, into *Tuning) error {
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(into); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (t Tuning) Validate() error {
	switch {
	case t.CandidateWindow <= 0:
		return fmt.Errorf("candidate_window must be > 0")
	case t.CandidatePoolLimit < 1:
		return fmt.Errorf("candidate_pool_limit must be >= 1")
	case t.CandidateTopK < 1:
		return fmt.Errorf("candidate_top_k must be >= 1")
	case t.DedupThreshold <= 0 || t.DedupThreshold > 1:
		return fmt.Errorf("dedup_threshold must be in (0, 1]")
	case t.MinTitleLength < 0 || t.MaxTitleLength < 1 || t.MinTitleLength > t.MaxTitleLength:
		return fmt.Errorf("title lengths must satisfy 0 <= min_title_length <= max_title_length")
	case t.EntailThreshold <= 0 || t.EntailThreshold > 1:
		return fmt.Errorf("entail_threshold must be in (0, 1]")
	case t.MinEntailRatio < 0 || t.MinEntailRatio > 1:
		return fmt.Errorf("min_entail_ratio must be in [0, 1]")
	case t.MismatchRatio < 0 || t.MismatchRatio > 1:
		return fmt.Errorf("mismatch_ratio must be in [0, 1]")
	case t.EvidenceWeight < 0 || t.MismatchPenalty < 0 || t.LowSourcePenalty < 0 || t.CrossSourceBonus < 0:
		return fmt.Errorf("score weights must be >= 0")
	case t.CrossVerifyThreshold <= 0 || t.CrossVerifyThreshold > 1:
		return fmt.Errorf("cross_verify_threshold must be in (0, 1]")
	case t.CrossVerifyBoostOne < 0 || t.CrossVerifyBoostTwo < 0 || t.CrossVerifyBoostMax < 0:
		return fmt.Errorf("cross_verify_boost_one, _two and _max must be >= 0")
	case t.WarnBadgeScore > t.GoodBadgeScore:
		return fmt.Errorf("warn_badge_score cannot exceed good_badge_score")
	case t.EnrichMinChars < 0:
		return fmt.Errorf("enrich_min_chars must be >= 0")
	case t.SummarizeLimit < 0:
		return fmt.Errorf("summarize_limit must be >= 0")
	case t.CategoryWindow <= 0 || t.CategoryLimit < 1:
		return fmt.Errorf("category_window and category_limit must be positive")
	}
	return nil
}
