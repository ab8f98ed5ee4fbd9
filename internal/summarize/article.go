package summarize

import (
	"context"
	"fmt"
	"strings"
)

type ArticleResult struct {
	Attempted  int
	Summarized int
	Failed     int
}

// SummarizeArticles writes an AI summary for each listed article that has a body and
// no summary yet. Evidence scoring compares these summaries with the body, so articles
// left without one score as unsupported.
func (s *Service) SummarizeArticles(ctx context.Context, ids []int64) (ArticleResult, error) {
	if s == nil || s.store == nil {
		return ArticleResult{}, fmt.Errorf("summarize service is not initialized")
	}
	if len(ids) == 0 {
		return ArticleResult{}, nil
	}

	targets, err := s.store.ListArticleSummaryTargets(ctx, ids)
	if err != nil {
		return ArticleResult{}, err
	}

	var result ArticleResult
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Attempted++

		req := Request{
			Title:   strings.TrimSpace(target.Title),
			Sources: []Source{{Title: target.Title, Text: target.Body}},
		}
		summary, err := s.generate(ctx, req)
		if err != nil {
			result.Failed++
			s.logger.Warn().Err(err).Int64("article_id", target.ID).Msg("article summary failed")
			continue
		}
		if err := s.store.UpdateArticleAISummary(ctx, target.ID, summary.Summary); err != nil {
			result.Failed++
			s.logger.Warn().Err(err).Int64("article_id", target.ID).Msg("article summary update failed")
			continue
		}
		result.Summarized++
	}

	s.logger.Info().
		Str("generator", s.generator.Name()).
		Int("attempted", result.Attempted).
		Int("summarized", result.Summarized).
		Int("failed", result.Failed).
		Msg("article summaries completed")
	return result, nil
}
