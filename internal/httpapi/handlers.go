package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"horse.fit/trustwire/internal/db"
	"horse.fit/trustwire/internal/globaltime"
	"horse.fit/trustwire/internal/pipeline"
	"horse.fit/trustwire/internal/quality"
)

const (
	defaultPageSize = 25
	maxPageSize     = 200
	maxRunIDs       = 1000
)

type clusterView struct {
	db.ClusterRecord
	RiskFlags []string `json:"risk_flags"`
}

type memberView struct {
	db.ClusterMember
	RiskFlags []string `json:"risk_flags"`
}

type clusterDetail struct {
	Cluster clusterView  `json:"cluster"`
	Members []memberView `json:"members"`
}

type runRequest struct {
	IDs []int64 `json:"ids"`
}

func newClusterView(record db.ClusterRecord) clusterView {
	return clusterView{ClusterRecord: record, RiskFlags: flagList(record.RiskFlags)}
}

func flagList(raw string) []string {
	flags := quality.DecodeFlags(raw)
	if flags == nil {
		return []string{}
	}
	return flags
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("database ping failed")
		return internalError(c, "Database unavailable")
	}
	return success(c, map[string]any{
		"service": "trustwire",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleClusters(c echo.Context) error {
	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"page": err.Error()})
	}
	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"page_size": err.Error()})
	}
	category := strings.TrimSpace(strings.ToLower(c.QueryParam("category")))

	records, total, err := s.store.ListClusters(c.Request().Context(), db.ClusterListOptions{
		Category: category,
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("query clusters failed")
		return internalError(c, "Failed to load clusters")
	}

	items := make([]clusterView, 0, len(records))
	for _, record := range records {
		items = append(items, newClusterView(record))
	}

	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	return success(c, map[string]any{
		"items": items,
		"pagination": map[string]any{
			"page":        page,
			"page_size":   pageSize,
			"total_items": total,
			"total_pages": totalPages,
		},
		"filters": map[string]any{
			"category": category,
		},
	})
}

func (s *Server) handleClusterDetail(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return failValidation(c, map[string]string{"id": err.Error()})
	}

	ctx := c.Request().Context()
	record, err := s.store.GetCluster(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return failNotFound(c, "Cluster not found")
		}
		s.logger.Error().Err(err).Int64("cluster_id", id).Msg("query cluster failed")
		return internalError(c, "Failed to load cluster")
	}

	members, err := s.store.ListClusterMembers(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Int64("cluster_id", id).Msg("query cluster members failed")
		return internalError(c, "Failed to load cluster members")
	}

	detail := clusterDetail{
		Cluster: newClusterView(record),
		Members: make([]memberView, 0, len(members)),
	}
	for _, member := range members {
		detail.Members = append(detail.Members, memberView{ClusterMember: member, RiskFlags: flagList(member.RiskFlags)})
	}
	return success(c, detail)
}

func (s *Server) handleArticleEvidence(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return failValidation(c, map[string]string{"id": err.Error()})
	}

	ctx := c.Request().Context()
	exists, err := s.store.ArticleExists(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Int64("article_id", id).Msg("lookup article failed")
		return internalError(c, "Failed to load article")
	}
	if !exists {
		return failNotFound(c, "Article not found")
	}

	rows, err := s.store.ListArticleEvidence(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Int64("article_id", id).Msg("query article evidence failed")
		return internalError(c, "Failed to load evidence")
	}
	return success(c, map[string]any{
		"article_id": id,
		"items":      rows,
	})
}

func (s *Server) handleRunNew(c echo.Context) error {
	var req runRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "must be a JSON object with an ids array"})
	}
	ids := uniquePositive(req.IDs)
	if len(ids) == 0 {
		return failValidation(c, map[string]string{"ids": "at least one positive id is required"})
	}
	if len(ids) > maxRunIDs {
		return failValidation(c, map[string]string{"ids": fmt.Sprintf("at most %d ids per run", maxRunIDs)})
	}

	ctx, cancel := s.runContext(c)
	defer cancel()
	report, err := s.runner.RunNew(ctx, ids)
	return s.respondRun(c, report, err)
}

func (s *Server) handleRunPending(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), 200, 1, maxRunIDs)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	ctx, cancel := s.runContext(c)
	defer cancel()
	report, err := s.runner.RunPending(ctx, limit)
	return s.respondRun(c, report, err)
}

func (s *Server) handleRunCategory(c echo.Context) error {
	category := strings.TrimSpace(strings.ToLower(c.Param("category")))
	if category == "" {
		return failValidation(c, map[string]string{"category": "is required"})
	}
	hours, err := parsePositiveInt(c.QueryParam("hours"), 48, 1, 24*30)
	if err != nil {
		return failValidation(c, map[string]string{"hours": err.Error()})
	}
	limit, err := parsePositiveInt(c.QueryParam("limit"), 300, 1, maxRunIDs)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	ctx, cancel := s.runContext(c)
	defer cancel()
	report, err := s.runner.RunCategory(ctx, category, time.Duration(hours)*time.Hour, limit)
	return s.respondRun(c, report, err)
}

func (s *Server) handleClusterKeywords(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), 200, 1, maxRunIDs)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	ctx, cancel := s.runContext(c)
	defer cancel()
	result, err := s.runner.ClusterByKeywords(ctx, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("keyword clustering failed")
		return internalError(c, "Keyword clustering failed")
	}
	return success(c, map[string]any{
		"scanned":  result.Scanned,
		"assigned": result.Assigned,
		"skipped":  result.Skipped,
	})
}

func (s *Server) runContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), s.opts.RunTimeout)
}

func (s *Server) respondRun(c echo.Context, report pipeline.RunReport, err error) error {
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", report.RunID).Msg("pipeline run failed")
		return internalError(c, "Pipeline run failed")
	}
	return success(c, report)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return id, nil
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

func uniquePositive(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
