package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/trustwire/internal/db"
)

// Store is the persistence surface of the summarize stage.
type Store interface {
	ListSummaryMembers(ctx context.Context, clusterIDs []int64) (map[int64][]db.SummaryMember, error)
	UpdateClusterSummary(ctx context.Context, u db.ClusterSummaryUpdate) error

	ListArticleSummaryTargets(ctx context.Context, ids []int64) ([]db.SummaryTarget, error)
	UpdateArticleAISummary(ctx context.Context, id int64, summary string) error
}

type Result struct {
	Attempted  int
	Summarized int
	Failed     int
}

type Service struct {
	store     Store
	generator Generator
	fallback  Generator
	logger    zerolog.Logger
}

// NewService builds a summarizer. A nil generator means extractive only.
func NewService(store Store, generator Generator, logger zerolog.Logger) *Service {
	if generator == nil {
		generator = ExtractiveGenerator{}
	}
	return &Service{
		store:     store,
		generator: generator,
		fallback:  ExtractiveGenerator{},
		logger:    logger,
	}
}

// SummarizeClusters writes a display title, summary and image for each listed cluster.
func (s *Service) SummarizeClusters(ctx context.Context, clusterIDs []int64) (Result, error) {
	if s == nil || s.store == nil {
		return Result{}, fmt.Errorf("summarize service is not initialized")
	}
	if len(clusterIDs) == 0 {
		return Result{}, nil
	}

	members, err := s.store.ListSummaryMembers(ctx, clusterIDs)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, clusterID := range clusterIDs {
		group := members[clusterID]
		if len(group) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Attempted++

		summary, err := s.generate(ctx, buildRequest(group))
		if err != nil {
			result.Failed++
			s.logger.Warn().Err(err).Int64("cluster_id", clusterID).Msg("cluster summary failed")
			continue
		}

		update := db.ClusterSummaryUpdate{
			ClusterID: clusterID,
			Title:     summary.Title,
			Summary:   summary.Summary,
			ImageURL:  firstImage(group),
		}
		if err := s.store.UpdateClusterSummary(ctx, update); err != nil {
			result.Failed++
			s.logger.Warn().Err(err).Int64("cluster_id", clusterID).Msg("cluster summary update failed")
			continue
		}
		result.Summarized++
	}

	s.logger.Info().
		Str("generator", s.generator.Name()).
		Int("attempted", result.Attempted).
		Int("summarized", result.Summarized).
		Int("failed", result.Failed).
		Msg("summarize completed")
	return result, nil
}

// generate runs the configured generator and falls back to the extractive one.
func (s *Service) generate(ctx context.Context, req Request) (Summary, error) {
	summary, err := s.generator.Summarize(ctx, req)
	if err == nil {
		return summary, nil
	}
	if s.generator.Name() == s.fallback.Name() {
		return Summary{}, err
	}
	s.logger.Warn().Err(err).Str("generator", s.generator.Name()).Msg("summary generator failed, using extractive")
	return s.fallback.Summarize(ctx, req)
}

// buildRequest orders sources as the store returned them, best scored first.
func buildRequest(group []db.SummaryMember) Request {
	req := Request{Title: strings.TrimSpace(group[0].Title)}
	for _, m := range group {
		text := firstNonBlank(m.AISummary, m.Body, m.ShortSummary)
		if text == "" {
			continue
		}
		req.Sources = append(req.Sources, Source{Title: m.Title, Text: text})
	}
	return req
}

func firstImage(group []db.SummaryMember) *string {
	for _, m := range group {
		if m.ImageURL != nil && strings.TrimSpace(*m.ImageURL) != "" {
			image := strings.TrimSpace(*m.ImageURL)
			return &image
		}
	}
	return nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
