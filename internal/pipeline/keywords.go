package pipeline

import (
	"context"
	"fmt"

	"horse.fit/trustwire/internal/cluster"
	"horse.fit/trustwire/internal/db"
)

type KeywordResult struct {
	Scanned  int
	Assigned int
	Skipped  int
}

// ClusterByKeywords groups unclustered articles that have no embedding by the two
// dominant title keywords of their category, newest first.
func (s *Service) ClusterByKeywords(ctx context.Context, limit int) (KeywordResult, error) {
	if err := s.ready(); err != nil {
		return KeywordResult{}, err
	}
	if limit <= 0 {
		return KeywordResult{}, nil
	}

	targets, err := s.store.ListKeywordTargets(ctx, limit)
	if err != nil {
		return KeywordResult{}, err
	}

	var result KeywordResult
	for _, target := range targets {
		result.Scanned++

		key := cluster.KeywordKey(target.Category, target.Title)
		if key == "" {
			result.Skipped++
			continue
		}

		articleID := target.ID
		url := target.URL
		title := target.Title
		flags := emptyFlags
		clusterID, err := s.store.UpsertCluster(ctx, db.ClusterUpsert{
			Key:                     key,
			Category:                optionalString(target.Category),
			RepresentativeArticleID: &articleID,
			RepresentativeURL:       &url,
			Title:                   &title,
			FlagsJSON:               &flags,
		})
		if err != nil {
			return result, fmt.Errorf("upsert keyword cluster for article %d: %w", target.ID, err)
		}
		if err := s.store.AssignCluster(ctx, target.ID, clusterID); err != nil {
			return result, err
		}
		result.Assigned++
	}

	s.logger.Info().
		Int("scanned", result.Scanned).
		Int("assigned", result.Assigned).
		Int("skipped", result.Skipped).
		Msg("keyword clustering completed")
	return result, nil
}
