package pipeline

import (
	"context"

	"horse.fit/trustwire/internal/db"
	"horse.fit/trustwire/internal/quality"
)

type BonusResult struct {
	Clusters     int
	Corroborated int
	Adjusted     int
}

// ApplyCrossSourceBonus boosts the listed articles whose cluster has more than one
// member. Other members of those clusters are left alone.
func (s *Service) ApplyCrossSourceBonus(ctx context.Context, ids []int64) (BonusResult, error) {
	if err := s.ready(); err != nil {
		return BonusResult{}, err
	}

	targets, err := s.store.ListBonusTargets(ctx, ids)
	if err != nil {
		return BonusResult{}, err
	}
	if len(targets) == 0 {
		return BonusResult{}, nil
	}

	clusterIDs := make([]int64, 0, len(targets))
	seen := make(map[int64]struct{}, len(targets))
	for _, target := range targets {
		if _, ok := seen[target.ClusterID]; ok {
			continue
		}
		seen[target.ClusterID] = struct{}{}
		clusterIDs = append(clusterIDs, target.ClusterID)
	}

	counts, err := s.store.CountClusterMembers(ctx, clusterIDs)
	if err != nil {
		return BonusResult{}, err
	}

	result := BonusResult{Clusters: len(clusterIDs)}
	for _, id := range clusterIDs {
		if counts[id] > 1 {
			result.Corroborated++
		}
	}

	updates := make([]db.BonusUpdate, 0, len(targets))
	for _, target := range targets {
		if counts[target.ClusterID] <= 1 {
			continue
		}
		current := quality.Standing{Score: target.Score, Flags: target.FlagsJSON}
		if target.Badge != nil {
			current.Badge = quality.ParseBadge(*target.Badge)
		}

		next, changed := s.scorer.CrossSourceBonus(current)
		if !changed {
			continue
		}
		update := db.BonusUpdate{ID: target.ID, Score: next.Score, FlagsJSON: next.Flags}
		if next.Badge.Valid() {
			badge := string(next.Badge)
			update.Badge = &badge
		}
		updates = append(updates, update)
	}

	adjusted, err := s.store.ApplyBonusUpdates(ctx, updates)
	if err != nil {
		return result, err
	}
	result.Adjusted = int(adjusted)

	s.logger.Info().
		Int("clusters", result.Clusters).
		Int("corroborated", result.Corroborated).
		Int("adjusted", result.Adjusted).
		Msg("cross-source bonus completed")
	return result, nil
}
