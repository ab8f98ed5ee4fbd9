package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"horse.fit/trustwire/internal/db"
	"horse.fit/trustwire/internal/globaltime"
)

const (
	ModeNew      = "new"
	ModePending  = "pending"
	modeCategory = "category"
)

// RunNew runs every stage over one ingestion batch. Stage failures are recorded in the
// report and later stages still run; only a broken cluster store invariant aborts.
func (s *Service) RunNew(ctx context.Context, ids []int64) (RunReport, error) {
	return s.run(ctx, ModeNew, ids)
}

// RunPending runs the pipeline over up to limit pending articles, newest first:
// unclustered ones and clustered ones still missing a score. Articles whose embedding
// just failed wait out the retry window so they cannot starve the rest.
func (s *Service) RunPending(ctx context.Context, limit int) (RunReport, error) {
	if err := s.ready(); err != nil {
		return RunReport{}, err
	}
	ids, err := s.store.ListPendingArticleIDs(ctx, limit)
	if err != nil {
		return RunReport{}, err
	}
	return s.run(ctx, ModePending, ids)
}

// RunCategory rescans one category over the trailing window, clustered or not.
// Non-positive window and limit use the configured defaults.
func (s *Service) RunCategory(ctx context.Context, category string, window time.Duration, limit int) (RunReport, error) {
	if err := s.ready(); err != nil {
		return RunReport{}, err
	}
	if window <= 0 {
		window = s.opts.CategoryWindow
	}
	if limit <= 0 {
		limit = s.opts.CategoryLimit
	}

	now := globaltime.UTC()
	ids, err := s.store.ListCategoryArticleIDs(ctx, category, now.Add(-window), now, limit)
	if err != nil {
		return RunReport{}, err
	}
	return s.run(ctx, modeCategory+":"+category, ids)
}

// RunCategories runs RunCategory for each category in turn. A failed category does not
// stop the others; their errors are joined.
func (s *Service) RunCategories(ctx context.Context, categories []string, window time.Duration, limit int) ([]RunReport, error) {
	if len(categories) == 0 {
		categories = s.Categories()
	}

	reports := make([]RunReport, 0, len(categories))
	var errs []error
	for _, category := range categories {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report, err := s.RunCategory(ctx, category, window, limit)
		if err != nil {
			errs = append(errs, fmt.Errorf("category %s: %w", category, err))
			s.logger.Error().Err(err).Str("category", category).Msg("category run failed")
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}

func (s *Service) run(ctx context.Context, mode string, ids []int64) (RunReport, error) {
	if err := s.ready(); err != nil {
		return RunReport{}, err
	}

	report := RunReport{
		RunID:     uuid.NewString(),
		Mode:      mode,
		Input:     len(ids),
		StartedAt: globaltime.UTC(),
	}
	if len(ids) == 0 {
		report.FinishedAt = report.StartedAt
		return report, nil
	}

	runRowID, err := s.store.InsertPipelineRun(ctx, report.RunID, mode, len(ids), report.StartedAt)
	if err != nil {
		s.logger.Warn().Err(err).Str("run_id", report.RunID).Msg("record pipeline run failed")
	}

	logger := s.logger.With().Str("run_id", report.RunID).Str("mode", mode).Logger()

	report.Stages = append(report.Stages, s.enrichStage(ctx, ids))

	report.Stages = append(report.Stages, s.aiSummaryStage(ctx, ids))

	report.Stages = append(report.Stages, s.embedStage(ctx, ids))

	clusterStage, clusterIDs, fatal := s.clusterStage(ctx, ids)
	report.Stages = append(report.Stages, clusterStage)
	report.ClusterIDs = clusterIDs
	if fatal != nil {
		report.FinishedAt = globaltime.UTC()
		s.finishRun(ctx, runRowID, "failed", report)
		logger.Error().Err(fatal).Msg("pipeline run aborted")
		return report, fatal
	}

	report.Stages = append(report.Stages, s.bonusStage(ctx, ids))

	report.Stages = append(report.Stages, s.summarizeStage(ctx, clusterIDs))

	report.FinishedAt = globaltime.UTC()
	s.finishRun(ctx, runRowID, report.status(), report)

	for _, stage := range report.Stages {
		if stage.Err != nil {
			logger.Error().Err(stage.Err).Str("stage", stage.Stage).Msg("pipeline stage failed")
		}
	}
	logger.Info().
		Int("input", report.Input).
		Int("enriched", report.Stage(StageEnrich).Succeeded).
		Int("ai_summarized", report.Stage(StageAISummary).Succeeded).
		Int("embedded", report.Stage(StageEmbed).Succeeded).
		Int("scored", report.Stage(StageCluster).Succeeded).
		Int("clusters", len(report.ClusterIDs)).
		Int("summarized", report.Stage(StageSummarize).Succeeded).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("pipeline run completed")
	return report, nil
}

func (s *Service) enrichStage(ctx context.Context, ids []int64) StageResult {
	if s.enricher == nil {
		return StageResult{Stage: StageEnrich, Skipped: true}
	}
	res, err := s.enricher.EnrichArticles(ctx, ids)
	return StageResult{
		Stage:     StageEnrich,
		Attempted: res.Tried,
		Succeeded: res.Filled,
		Failed:    res.Failed,
		Err:       err,
	}
}

func (s *Service) aiSummaryStage(ctx context.Context, ids []int64) StageResult {
	if s.digester == nil {
		return StageResult{Stage: StageAISummary, Skipped: true}
	}
	res, err := s.digester.SummarizeArticles(ctx, ids)
	return StageResult{
		Stage:     StageAISummary,
		Attempted: res.Attempted,
		Succeeded: res.Summarized,
		Failed:    res.Failed,
		Err:       err,
	}
}

func (s *Service) embedStage(ctx context.Context, ids []int64) StageResult {
	if s.embedder == nil {
		return StageResult{Stage: StageEmbed, Skipped: true}
	}
	res, err := s.EmbedArticles(ctx, ids)
	return StageResult{
		Stage:     StageEmbed,
		Attempted: res.Attempted,
		Succeeded: res.Embedded,
		Failed:    res.Failed,
		Err:       err,
	}
}

// clusterStage returns a non-nil fatal error only when the cluster store broke its
// one-row-per-key contract.
func (s *Service) clusterStage(ctx context.Context, ids []int64) (StageResult, []int64, error) {
	res, err := s.ClusterAndScore(ctx, ids)
	stage := StageResult{
		Stage:     StageCluster,
		Attempted: res.Attempted,
		Succeeded: res.Scored,
		Failed:    res.Failed,
		Err:       err,
	}
	if errors.Is(err, db.ErrClusterNotResolved) {
		return stage, res.ClusterIDs, err
	}
	return stage, res.ClusterIDs, nil
}

func (s *Service) bonusStage(ctx context.Context, ids []int64) StageResult {
	res, err := s.ApplyCrossSourceBonus(ctx, ids)
	return StageResult{
		Stage:     StageBonus,
		Attempted: res.Corroborated,
		Succeeded: res.Adjusted,
		Err:       err,
	}
}

func (s *Service) summarizeStage(ctx context.Context, clusterIDs []int64) StageResult {
	if s.summarizer == nil || len(clusterIDs) == 0 {
		return StageResult{Stage: StageSummarize, Skipped: true}
	}
	if len(clusterIDs) > s.opts.SummarizeLimit {
		clusterIDs = clusterIDs[:s.opts.SummarizeLimit]
	}
	res, err := s.summarizer.SummarizeClusters(ctx, clusterIDs)
	return StageResult{
		Stage:     StageSummarize,
		Attempted: res.Attempted,
		Succeeded: res.Summarized,
		Failed:    res.Failed,
		Err:       err,
	}
}

func (s *Service) finishRun(ctx context.Context, runRowID int64, status string, report RunReport) {
	if runRowID == 0 {
		return
	}
	encoded, err := json.Marshal(report)
	if err != nil {
		s.logger.Warn().Err(err).Str("run_id", report.RunID).Msg("encode run report failed")
		encoded = []byte("{}")
	}
	if err := s.store.FinishPipelineRun(context.WithoutCancel(ctx), runRowID, status, string(encoded), report.FinishedAt); err != nil {
		s.logger.Warn().Err(err).Str("run_id", report.RunID).Msg("finish pipeline run failed")
	}
}
