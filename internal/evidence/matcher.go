// Package evidence decides whether summary sentences are supported by source text,
// using token-overlap recall between sentences.
package evidence

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const DefaultEntailThreshold = 0.35

type Verdict string

const (
	VerdictEntailed Verdict = "ENTAILED"
	VerdictUnknown  Verdict = "UNKNOWN"
)

var (
	// Sentence-final punctuation followed by whitespace. Korean declarative and polite
	// endings (다. 요? ...) terminate on the same marks, so they need no extra branch.
	sentenceBoundary = regexp.MustCompile(`[.!?。]\s+`)
	tokenPattern     = regexp.MustCompile(`[가-힣A-Za-z0-9]{2,}`)
)

// Match is the best supporting sentence found for one summary sentence.
type Match struct {
	Evidence string
	Score    float64
	Verdict  Verdict
}

// HasEvidence reports whether a supporting sentence was recorded.
func (m Match) HasEvidence() bool {
	return m.Evidence != ""
}

// Row is one summary-sentence judgment, indexed by its position in the summary.
type Row struct {
	SentIdx     int
	SummarySent string
	Match
}

// Matcher scores summary sentences against source text. The zero value uses
// DefaultEntailThreshold.
type Matcher struct {
	Threshold float64
}

func (m Matcher) threshold() float64 {
	if m.Threshold <= 0 {
		return DefaultEntailThreshold
	}
	return m.Threshold
}

// SplitSentences segments trimmed text on sentence-final punctuation followed by
// whitespace. Terminal punctuation stays with its sentence; blank segments are dropped.
func SplitSentences(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	out := make([]string, 0, 8)
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(trimmed, -1) {
		_, size := utf8.DecodeRuneInString(trimmed[loc[0]:])
		out = appendSentence(out, trimmed[start:loc[0]+size])
		start = loc[1]
	}
	return appendSentence(out, trimmed[start:])
}

func appendSentence(out []string, piece string) []string {
	piece = strings.TrimSpace(piece)
	if piece == "" {
		return out
	}
	return append(out, piece)
}

// Tokens extracts lowercased alphanumeric runs of at least two characters, Hangul
// included, deduplicated in first-seen order.
func Tokens(text string) []string {
	matches := tokenPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		token := strings.ToLower(match)
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}

// BestEvidence scores summarySentence against content with the default threshold.
func BestEvidence(summarySentence, content string) Match {
	return Matcher{}.BestEvidence(summarySentence, content)
}

// BestEvidence returns the content sentence with the highest overlap recall of the
// summary sentence's tokens. Ties keep the earliest sentence.
func (m Matcher) BestEvidence(summarySentence, content string) Match {
	return m.bestAmong(Tokens(summarySentence), SplitSentences(content))
}

// Match scores every summary sentence against one content text, splitting the content once.
func (m Matcher) Match(summarySentences []string, content string) []Row {
	if len(summarySentences) == 0 {
		return nil
	}

	contentSentences := SplitSentences(content)
	rows := make([]Row, 0, len(summarySentences))
	for i, sentence := range summarySentences {
		rows = append(rows, Row{
			SentIdx:     i,
			SummarySent: sentence,
			Match:       m.bestAmong(Tokens(sentence), contentSentences),
		})
	}
	return rows
}

func (m Matcher) bestAmong(query []string, contentSentences []string) Match {
	if len(query) == 0 || len(contentSentences) == 0 {
		return Match{Verdict: VerdictUnknown}
	}

	best := Match{Verdict: VerdictUnknown}
	for _, sentence := range contentSentences {
		score := overlap(query, tokenSet(Tokens(sentence)))
		if score > best.Score {
			best.Score = score
			best.Evidence = sentence
		}
	}
	if best.Score >= m.threshold() {
		best.Verdict = VerdictEntailed
	}
	return best
}

// TitleSimilarity is the overlap recall of a's title tokens within b's.
func TitleSimilarity(a, b string) float64 {
	return overlap(Tokens(a), tokenSet(Tokens(b)))
}

// Overlap is |query ∩ candidate| / |query| over token sets; zero when query is empty.
func Overlap(query, candidate []string) float64 {
	return overlap(query, tokenSet(candidate))
}

func overlap(query []string, candidate map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hit := 0
	for _, token := range query {
		if _, ok := candidate[token]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(query))
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}
