// Package cluster assigns articles to dedup clusters: title normalization, cluster
// keys, candidate retrieval and representative selection.
package cluster

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultDedupThreshold = 0.60
	DefaultMinTitleLength = 10
	DefaultMaxTitleLength = 120
)

var (
	bracketedSegment = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)
	quoteChars       = regexp.MustCompile(`["'“”‘’]`)
	outsideScript    = regexp.MustCompile(`[^0-9a-z가-힣\s]`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
)

// KeyConfig holds the key engine's tuning constants.
type KeyConfig struct {
	DedupThreshold float64
	MinTitleLength int
	MaxTitleLength int
}

func DefaultKeyConfig() KeyConfig {
	return KeyConfig{
		DedupThreshold: DefaultDedupThreshold,
		MinTitleLength: DefaultMinTitleLength,
		MaxTitleLength: DefaultMaxTitleLength,
	}
}

// NormalizeTitle normalizes with the default lengths.
func NormalizeTitle(title string) string {
	return DefaultKeyConfig().NormalizeTitle(title)
}

// NormalizeTitle lowercases title and strips bracketed segments, quotes and anything
// outside ASCII alphanumerics and Hangul. Results shorter than MinTitleLength runes
// collapse to "". Truncation to MaxTitleLength keeps a trailing space.
func (c KeyConfig) NormalizeTitle(title string) string {
	out := strings.ToLower(title)
	out = bracketedSegment.ReplaceAllString(out, " ")
	out = quoteChars.ReplaceAllString(out, " ")
	out = outsideScript.ReplaceAllString(out, " ")
	out = strings.TrimSpace(whitespaceRun.ReplaceAllString(out, " "))

	if utf8.RuneCountInString(out) < c.MinTitleLength {
		return ""
	}
	if c.MaxTitleLength > 0 && utf8.RuneCountInString(out) > c.MaxTitleLength {
		out = string([]rune(out)[:c.MaxTitleLength])
	}
	return out
}

// HashKey renders the SHA-256 of basis as 64 hex characters.
func HashKey(basis string) string {
	sum := sha256.Sum256([]byte(basis))
	return hex.EncodeToString(sum[:])
}

// Subject is an article as seen by the key engine.
type Subject struct {
	ID          int64
	Provider    string
	URL         string
	Title       string
	PublishedAt *time.Time
}

// Candidate is a pool article ranked by similarity to a query article.
type Candidate struct {
	Subject
	Similarity float64
}

// Assignment is the cluster identity chosen for one article.
type Assignment struct {
	Key   string
	Title string
	// Basis is the string that was hashed into Key.
	Basis string
	// Joined is true when the best candidate cleared the threshold and supplied the
	// key basis and title.
	Joined     bool
	Similarity float64
}

// Assign picks the cluster key and display title for subject given its best candidate
// (nil when the pool was empty). A candidate at or above DedupThreshold supplies both;
// otherwise the subject does. A title that normalizes to nothing falls back to the
// base's provider|url.
func (c KeyConfig) Assign(subject Subject, best *Candidate) Assignment {
	base := subject
	assignment := Assignment{}
	if best != nil {
		assignment.Similarity = best.Similarity
		if best.Similarity >= c.DedupThreshold {
			base = best.Subject
			assignment.Joined = true
		}
	}

	basis := c.NormalizeTitle(base.Title)
	if basis == "" {
		basis = strings.TrimSpace(base.Provider) + "|" + strings.TrimSpace(base.URL)
	}
	assignment.Basis = basis
	assignment.Key = HashKey(basis)

	assignment.Title = strings.TrimSpace(base.Title)
	if assignment.Title == "" {
		assignment.Title = strings.TrimSpace(subject.Title)
	}
	return assignment
}
