package pipeline

import (
	"context"
	"fmt"
	"strings"

	"horse.fit/trustwire/internal/embed"
	"horse.fit/trustwire/internal/vector"
)

type EmbedResult struct {
	Attempted int
	Embedded  int
	Failed    int
}

// EmbedArticles computes vectors for the listed articles that have none. A failed
// provider call fails only that article and is stamped so pending runs move past it.
func (s *Service) EmbedArticles(ctx context.Context, ids []int64) (EmbedResult, error) {
	if err := s.ready(); err != nil {
		return EmbedResult{}, err
	}
	if s.embedder == nil {
		return EmbedResult{}, fmt.Errorf("embedding provider is not configured")
	}

	targets, err := s.store.ListEmbedTargets(ctx, ids)
	if err != nil {
		return EmbedResult{}, err
	}

	var result EmbedResult
	for _, target := range targets {
		text := embed.Input(target.Title, target.Body, target.AISummary)
		if strings.TrimSpace(text) == "" {
			continue
		}
		result.Attempted++

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				result.Failed++
				return result, fmt.Errorf("embedding rate limiter: %w", err)
			}
		}

		values, err := s.embedder.Embed(ctx, text)
		if err != nil {
			result.Failed++
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			s.logger.Warn().Err(err).Int64("article_id", target.ID).Str("provider", s.embedder.Name()).Msg("embed article failed")
			s.markEmbedFailed(ctx, target.ID)
			continue
		}

		encoded, err := vector.Encode(values)
		if err != nil {
			result.Failed++
			s.logger.Warn().Err(err).Int64("article_id", target.ID).Msg("embedding vector rejected")
			s.markEmbedFailed(ctx, target.ID)
			continue
		}
		if err := s.store.UpdateArticleEmbedding(ctx, target.ID, encoded); err != nil {
			result.Failed++
			s.logger.Warn().Err(err).Int64("article_id", target.ID).Msg("store embedding failed")
			continue
		}
		result.Embedded++
	}

	s.logger.Info().
		Int("attempted", result.Attempted).
		Int("embedded", result.Embedded).
		Int("failed", result.Failed).
		Msg("embed completed")
	return result, nil
}

func (s *Service) markEmbedFailed(ctx context.Context, id int64) {
	if err := s.store.MarkEmbedFailed(ctx, id); err != nil {
		s.logger.Warn().Err(err).Int64("article_id", id).Msg("mark embed failure")
	}
}
