// Package quality turns evidence matching into a cluster trust score, risk flags and a
// badge, and applies the cross-source corroboration bonus.
package quality

import (
	"math"
	"strings"

	"horse.fit/trustwire/internal/evidence"
)

// Config carries the scoring constants.
type Config struct {
	EntailThreshold  float64
	MinEntailRatio   float64
	MismatchRatio    float64
	EvidenceWeight   int
	MismatchPenalty  int
	LowSourcePenalty int
	GoodBadgeScore   int
	WarnBadgeScore   int
	CrossSourceBonus int

	CrossVerifyThreshold float64
	CrossVerifyBoostOne  int
	CrossVerifyBoostTwo  int
	CrossVerifyBoostMax  int
}

func DefaultConfig() Config {
	return Config{
		EntailThreshold:  evidence.DefaultEntailThreshold,
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
	}
}

// BadgeFor maps a score onto the badge thresholds.
func (c Config) BadgeFor(score int) Badge {
	switch {
	case score >= c.GoodBadgeScore:
		return BadgeGood
	case score >= c.WarnBadgeScore:
		return BadgeWarn
	default:
		return BadgeBad
	}
}

// Member is one article of the cluster being scored. Source is the publisher name.
type Member struct {
	ArticleID int64
	Source    string
	Title     string
	Body      string
	Summary   string
}

// Cluster is the scoring input. CrossSourceCount is the number of distinct sources
// reported by the caller; it is used only when no member carries a source name.
type Cluster struct {
	Members          []Member
	CrossSourceCount int
}

type Result struct {
	Score       int
	Badge       Badge
	Flags       []string
	EntailRatio float64
	Entailed    int
	Total       int
	Sources     int
	Evidence    map[int64][]evidence.Row
}

// HasFlag reports whether flag was raised.
func (r Result) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Scorer is stateless apart from its configuration and safe for concurrent use.
type Scorer struct {
	cfg     Config
	matcher evidence.Matcher
}

func NewScorer(cfg Config) *Scorer {
	return &Scorer{
		cfg:     cfg,
		matcher: evidence.Matcher{Threshold: cfg.EntailThreshold},
	}
}

func (s *Scorer) Config() Config {
	return s.cfg
}

// Score scores the members as one cluster.
func (s *Scorer) Score(members []Member) Result {
	return s.ScoreCluster(Cluster{Members: members})
}

func (s *Scorer) ScoreCluster(c Cluster) Result {
	result := Result{
		Evidence: make(map[int64][]evidence.Row, len(c.Members)),
		Sources:  distinctSources(c.Members),
	}
	if result.Sources == 0 {
		result.Sources = c.CrossSourceCount
	}

	mismatch := false
	for _, member := range c.Members {
		rows := s.matcher.Match(evidence.SplitSentences(member.Summary), member.Body)
		result.Evidence[member.ArticleID] = rows
		for _, row := range rows {
			result.Total++
			if row.Verdict == evidence.VerdictEntailed {
				result.Entailed++
			}
		}
		if s.titleBodyMismatch(member.Title, member.Body) {
			mismatch = true
		}
	}

	if result.Total > 0 {
		result.EntailRatio = float64(result.Entailed) / float64(result.Total)
	}

	lowSource := result.Sources <= 1
	if lowSource {
		result.Flags = append(result.Flags, FlagLowCrossSource)
	}
	if result.EntailRatio < s.cfg.MinEntailRatio {
		result.Flags = append(result.Flags, FlagNoEvidence)
	}
	if mismatch {
		result.Flags = append(result.Flags, FlagTitleBodyMismatch)
	}

	score := 100 - int(math.Round((1-result.EntailRatio)*float64(s.cfg.EvidenceWeight)))
	if mismatch {
		score -= s.cfg.MismatchPenalty
	}
	if lowSource {
		score -= s.cfg.LowSourcePenalty
	}
	result.Score = clampScore(score)
	result.Badge = s.cfg.BadgeFor(result.Score)
	return result
}

// titleBodyMismatch is true when too few title tokens appear in the body. Missing
// titles or bodies are not evidence of a mismatch.
func (s *Scorer) titleBodyMismatch(title, body string) bool {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(body) == "" {
		return false
	}
	titleTokens := evidence.Tokens(title)
	if len(titleTokens) == 0 {
		return false
	}
	return evidence.Overlap(titleTokens, evidence.Tokens(body)) < s.cfg.MismatchRatio
}

func distinctSources(members []Member) int {
	seen := make(map[string]struct{}, len(members))
	for _, member := range members {
		source := strings.ToLower(strings.TrimSpace(member.Source))
		if source == "" {
			continue
		}
		seen[source] = struct{}{}
	}
	return len(seen)
}

func clampScore(score int) int {
	return max(0, min(100, score))
}
