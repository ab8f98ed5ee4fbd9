// Package summarize fills cluster display titles and summaries from member articles.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"horse.fit/trustwire/internal/evidence"
)

const (
	maxPromptArticles = 5
	maxPromptRunes    = 1200
	maxSummaryRunes   = 400
	extractiveCount   = 3
)

// Source is one member article handed to a generator.
type Source struct {
	Title string
	Text  string
}

type Request struct {
	Title   string
	Sources []Source
}

type Summary struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Generator produces a display title and summary for one cluster.
type Generator interface {
	Name() string
	Summarize(ctx context.Context, req Request) (Summary, error)
}

// ExtractiveGenerator takes the leading sentences of the best member. It never calls
// out and is the fallback for every other generator.
type ExtractiveGenerator struct{}

func (ExtractiveGenerator) Name() string {
	return "extractive"
}

func (ExtractiveGenerator) Summarize(_ context.Context, req Request) (Summary, error) {
	title := strings.TrimSpace(req.Title)
	for _, src := range req.Sources {
		sentences := evidence.SplitSentences(src.Text)
		if len(sentences) == 0 {
			continue
		}
		if len(sentences) > extractiveCount {
			sentences = sentences[:extractiveCount]
		}
		if title == "" {
			title = strings.TrimSpace(src.Title)
		}
		return Summary{
			Title:   title,
			Summary: truncateRunes(strings.Join(sentences, " "), maxSummaryRunes),
		}, nil
	}
	return Summary{}, fmt.Errorf("no source text to summarize")
}

func buildPrompt(req Request) string {
	var b strings.Builder
	if len(req.Sources) == 1 {
		b.WriteString("다음 뉴스 기사를 본문에 있는 사실만 사용해 3문장 이내로 요약하세요.\n")
	} else {
		b.WriteString("다음은 같은 사건을 다룬 뉴스 기사들입니다. 사실만 사용해 하나의 제목과 3문장 이내 요약을 작성하세요.\n")
	}
	b.WriteString("JSON 객체 {\"title\": \"...\", \"summary\": \"...\"} 형식으로만 답하세요.\n")
	sources := req.Sources
	if len(sources) > maxPromptArticles {
		sources = sources[:maxPromptArticles]
	}
	for i, src := range sources {
		fmt.Fprintf(&b, "\n[%d] %s\n%s\n", i+1, strings.TrimSpace(src.Title), truncateRunes(strings.TrimSpace(src.Text), maxPromptRunes))
	}
	return b.String()
}

// parseSummary accepts a JSON object, optionally inside a code fence. Plain text is
// taken as the summary under the fallback title.
func parseSummary(content, fallbackTitle string) (Summary, error) {
	text := strings.TrimSpace(content)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return Summary{}, fmt.Errorf("summary response was empty")
	}

	var parsed Summary
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal([]byte(text), &parsed); err != nil {
			return Summary{}, fmt.Errorf("decode summary json: %w", err)
		}
	} else {
		parsed.Summary = text
	}

	parsed.Title = strings.TrimSpace(parsed.Title)
	parsed.Summary = truncateRunes(strings.TrimSpace(parsed.Summary), maxSummaryRunes)
	if parsed.Title == "" {
		parsed.Title = strings.TrimSpace(fallbackTitle)
	}
	if parsed.Summary == "" {
		return Summary{}, fmt.Errorf("summary response missing summary")
	}
	return parsed, nil
}

func truncateRunes(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
