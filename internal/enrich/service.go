package enrich

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"horse.fit/trustwire/internal/db"
)

const DefaultMinChars = 50

// Store is the persistence surface of the enrichment stage.
type Store interface {
	ListEnrichTargets(ctx context.Context, ids []int64) ([]db.EnrichTarget, error)
	UpdateArticleEnrichment(ctx context.Context, e db.ArticleEnrichment) error
}

// Fetcher extracts readable page content.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (Page, error)
}

type Result struct {
	Tried  int
	Filled int
	Failed int
}

type Service struct {
	store    Store
	fetcher  Fetcher
	minChars int
	logger   zerolog.Logger
}

func NewService(store Store, fetcher Fetcher, minChars int, logger zerolog.Logger) *Service {
	if minChars <= 0 {
		minChars = DefaultMinChars
	}
	return &Service{store: store, fetcher: fetcher, minChars: minChars, logger: logger}
}

// EnrichArticles fetches bodies for the listed articles whose stored body is shorter
// than the minimum. Fetch failures and short extractions are counted, not returned.
func (s *Service) EnrichArticles(ctx context.Context, ids []int64) (Result, error) {
	if s == nil || s.store == nil || s.fetcher == nil {
		return Result{}, fmt.Errorf("enrich service is not initialized")
	}

	targets, err := s.store.ListEnrichTargets(ctx, ids)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, target := range targets {
		if utf8.RuneCountInString(strings.TrimSpace(target.Body)) >= s.minChars {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Tried++

		page, err := s.fetcher.Fetch(ctx, target.URL)
		if err != nil {
			result.Failed++
			s.logger.Warn().Err(err).Int64("article_id", target.ID).Msg("enrich fetch failed")
			continue
		}
		if utf8.RuneCountInString(page.Text) < s.minChars {
			result.Failed++
			s.logger.Warn().Int64("article_id", target.ID).Int("chars", utf8.RuneCountInString(page.Text)).Msg("enrich extraction too short")
			continue
		}

		update := db.ArticleEnrichment{ID: target.ID, Body: page.Text}
		if page.ImageURL != "" {
			image := page.ImageURL
			update.ImageURL = &image
		}
		if lang := DetectLanguage(page.Text); lang != "" {
			update.Language = &lang
		}
		if err := s.store.UpdateArticleEnrichment(ctx, update); err != nil {
			result.Failed++
			s.logger.Warn().Err(err).Int64("article_id", target.ID).Msg("enrich update failed")
			continue
		}
		result.Filled++
	}

	s.logger.Info().
		Int("tried", result.Tried).
		Int("filled", result.Filled).
		Int("failed", result.Failed).
		Msg("enrich completed")
	return result, nil
}
