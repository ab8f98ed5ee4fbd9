package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"horse.fit/trustwire/internal/cluster"
	"horse.fit/trustwire/internal/db"
	"horse.fit/trustwire/internal/enrich"
	"horse.fit/trustwire/internal/globaltime"
	"horse.fit/trustwire/internal/quality"
	"horse.fit/trustwire/internal/vector"
)

const (
	emptyFlags = "[]"

	// ProviderGoogleRSS articles corroborate ProviderNaver headlines in the same cluster.
	ProviderGoogleRSS = "google_rss"
	ProviderNaver     = "naver"
)

type ClusterResult struct {
	Attempted int
	Assigned  int
	Scored    int
	Failed    int
	// CrossVerified counts articles whose score got a cross verification boost.
	CrossVerified int
	// ClusterIDs are the touched clusters in first-assignment order.
	ClusterIDs []int64
}

// bucket is one cluster's share of the batch.
type bucket struct {
	id       int64
	key      string
	category string
	articles []db.ScoringTarget
}

// ClusterAndScore assigns every listed article with an embedding to a cluster, scores
// each touched cluster as a whole and writes evidence and article outcomes in one
// transaction before the cluster aggregates. Assignment runs in id order;
// representatives are chosen only after the whole batch is assigned.
func (s *Service) ClusterAndScore(ctx context.Context, ids []int64) (ClusterResult, error) {
	if err := s.ready(); err != nil {
		return ClusterResult{}, err
	}

	targets, err := s.store.ListScoringTargets(ctx, ids)
	if err != nil {
		return ClusterResult{}, err
	}

	result := ClusterResult{}
	buckets, err := s.assign(ctx, targets, &result)
	if err != nil {
		return result, err
	}
	if len(buckets) == 0 {
		return result, nil
	}

	scores, scoreErr := s.batch.ScoreBatch(ctx, scoringItems(buckets))
	if scoreErr != nil {
		// Keep the assignments so the same articles are not re-selected as pending.
		if _, err := s.store.ApplyArticleUpdates(ctx, assignmentOnly(buckets), globaltime.UTC()); err != nil {
			return result, fmt.Errorf("store cluster assignments: %w", err)
		}
		return result, fmt.Errorf("score batch: %w", scoreErr)
	}

	byID := make(map[int64]quality.ItemResult, len(scores))
	for _, scored := range scores {
		byID[scored.NewsID] = scored
	}

	now := globaltime.UTC()
	updates := make([]db.ArticleUpdate, 0, result.Assigned)
	evidenceSets := make([]db.EvidenceSet, 0, result.Assigned)
	aggregates := make([]db.ClusterUpsert, 0, len(buckets))
	for _, b := range buckets {
		outcome := s.settleBucket(b, byID, s.witnesses(ctx, b), now)
		updates = append(updates, outcome.updates...)
		evidenceSets = append(evidenceSets, outcome.evidence...)
		aggregates = append(aggregates, outcome.cluster)
		result.Scored += len(outcome.evidence)
		result.CrossVerified += outcome.crossVerified
	}

	if _, err := s.store.SettleArticles(ctx, evidenceSets, updates, now); err != nil {
		return result, err
	}
	for _, aggregate := range aggregates {
		if _, err := s.store.UpsertCluster(ctx, aggregate); err != nil {
			return result, fmt.Errorf("update cluster %s: %w", aggregate.Key, err)
		}
	}

	s.logger.Info().
		Int("attempted", result.Attempted).
		Int("assigned", result.Assigned).
		Int("scored", result.Scored).
		Int("failed", result.Failed).
		Int("cross_verified", result.CrossVerified).
		Int("clusters", len(result.ClusterIDs)).
		Msg("cluster and quality completed")
	return result, nil
}

// assign runs retrieval and key assignment per article and creates or refreshes each
// cluster row. An article without a publication time has no retrieval window and
// keys on its own title. A cluster store failure aborts the batch.
func (s *Service) assign(ctx context.Context, targets []db.ScoringTarget, result *ClusterResult) ([]*bucket, error) {
	retriever := cluster.NewRetriever(s.store, s.opts.Retriever, s.cache)
	index := make(map[int64]*bucket)
	buckets := make([]*bucket, 0)

	for _, target := range targets {
		result.Attempted++

		query := vector.Decode(target.Embedding)
		if len(query) == 0 {
			result.Failed++
			continue
		}

		var candidates []cluster.Candidate
		if target.PublishedAt != nil {
			var err error
			candidates, err = retriever.TopK(ctx, cluster.Query{
				ID:          target.ID,
				Category:    target.Category,
				PublishedAt: *target.PublishedAt,
				Vector:      query,
			})
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return buckets, ctxErr
				}
				result.Failed++
				s.logger.Warn().Err(err).Int64("article_id", target.ID).Msg("candidate retrieval failed")
				continue
			}
		}

		assignment := s.opts.Keys.Assign(cluster.Subject{
			ID:          target.ID,
			Provider:    target.Provider,
			URL:         target.URL,
			Title:       target.Title,
			PublishedAt: target.PublishedAt,
		}, cluster.Best(candidates))

		articleID := target.ID
		url := target.URL
		title := assignment.Title
		flags := emptyFlags
		clusterID, err := s.store.UpsertCluster(ctx, db.ClusterUpsert{
			Key:                     assignment.Key,
			Category:                optionalString(target.Category),
			RepresentativeArticleID: &articleID,
			RepresentativeURL:       &url,
			Title:                   &title,
			FlagsJSON:               &flags,
		})
		if err != nil {
			return buckets, fmt.Errorf("upsert cluster for article %d: %w", target.ID, err)
		}

		b, ok := index[clusterID]
		if !ok {
			b = &bucket{id: clusterID, key: assignment.Key, category: target.Category}
			index[clusterID] = b
			buckets = append(buckets, b)
			result.ClusterIDs = append(result.ClusterIDs, clusterID)
		}
		b.articles = append(b.articles, target)
		result.Assigned++

		s.logger.Debug().
			Int64("article_id", target.ID).
			Int64("cluster_id", clusterID).
			Bool("joined", assignment.Joined).
			Float64("similarity", assignment.Similarity).
			Msg("article assigned")
	}
	return buckets, nil
}

// scoringItems flattens buckets into batch scorer items. cross_source_count is the
// number of distinct providers in the bucket, at least one; Source carries the
// publisher name.
func scoringItems(buckets []*bucket) []quality.Item {
	items := make([]quality.Item, 0)
	for _, b := range buckets {
		sources := distinctProviders(b.articles)
		for _, a := range b.articles {
			content := strings.TrimSpace(a.Body)
			if content == "" {
				content = strings.TrimSpace(a.ShortSummary)
			}
			items = append(items, quality.Item{
				ID:               a.ID,
				Title:            a.Title,
				Content:          content,
				CrossSourceCount: sources,
				ClusterID:        b.id,
				Source:           a.SourceName,
				AISummary:        a.AISummary,
			})
		}
	}
	return items
}

type bucketOutcome struct {
	updates       []db.ArticleUpdate
	evidence      []db.EvidenceSet
	cluster       db.ClusterUpsert
	crossVerified int
}

// witnesses collects the bucket's Google RSS members with the publisher host each
// link resolves to. An unresolved link keeps its own host, which CrossVerify ignores.
func (s *Service) witnesses(ctx context.Context, b *bucket) []quality.Witness {
	out := make([]quality.Witness, 0)
	for _, a := range b.articles {
		if !strings.EqualFold(strings.TrimSpace(a.Provider), ProviderGoogleRSS) {
			continue
		}
		link := a.URL
		if s.publishers != nil {
			if resolved, ok := s.publishers.Resolve(ctx, a.URL); ok {
				link = resolved
			}
		}
		out = append(out, quality.Witness{
			Host:    enrich.Host(link),
			Title:   a.Title,
			Snippet: a.ShortSummary,
		})
	}
	return out
}

// settleBucket turns scorer results into article updates, evidence and the cluster's
// aggregate row. Naver members corroborated by witnesses get the cross verification
// boost and a badge for the boosted score. The aggregate is the rounded mean of the
// scorer's member scores, the union of member flags and the worst member badge.
func (s *Service) settleBucket(b *bucket, byID map[int64]quality.ItemResult, witnesses []quality.Witness, now time.Time) bucketOutcome {
	out := bucketOutcome{
		updates:  make([]db.ArticleUpdate, 0, len(b.articles)),
		evidence: make([]db.EvidenceSet, 0, len(b.articles)),
	}
	cfg := s.scorer.Config()
	members := make([]cluster.Member, 0, len(b.articles))
	urls := make(map[int64]string, len(b.articles))

	var (
		scoreSum int
		scored   int
		flagSets [][]string
		badges   []quality.Badge
	)

	for _, a := range b.articles {
		urls[a.ID] = a.URL
		update := db.ArticleUpdate{ID: a.ID, ClusterID: b.id}
		member := cluster.Member{ID: a.ID, PublishedAt: a.PublishedAt}

		if result, ok := byID[a.ID]; ok {
			base := min(max(result.QualityScore, 0), 100)
			badge := quality.ParseBadge(result.Badge)
			if !badge.Valid() {
				badge = cfg.BadgeFor(base)
			}
			scoreSum += base
			scored++
			flagSets = append(flagSets, result.RiskFlags)
			badges = append(badges, badge)

			score := base
			if strings.EqualFold(strings.TrimSpace(a.Provider), ProviderNaver) {
				verification := s.scorer.CrossVerify(a.Title, witnesses)
				if verification.Boost > 0 {
					score = min(score+verification.Boost, 100)
					badge = cfg.BadgeFor(score)
					out.crossVerified++
					s.logger.Debug().
						Int64("article_id", a.ID).
						Int("domains", verification.Domains).
						Int("boost", verification.Boost).
						Msg("cross verification boost")
				}
			}

			flags := quality.EncodeFlags(result.RiskFlags)
			badgeName := string(badge)
			update.Score = &score
			update.FlagsJSON = &flags
			update.Badge = &badgeName
			member.Score = &score
			member.Badge = badge

			out.evidence = append(out.evidence, db.EvidenceSet{
				ArticleID: a.ID,
				Rows:      evidenceRecords(result.Evidence, now),
			})
		}

		out.updates = append(out.updates, update)
		members = append(members, member)
	}

	repID := cluster.PickRepresentative(members)
	repURL := urls[repID]
	out.cluster = db.ClusterUpsert{
		Key:                     b.key,
		Category:                optionalString(b.category),
		RepresentativeArticleID: &repID,
		RepresentativeURL:       &repURL,
	}
	if scored > 0 {
		score := int(math.Round(float64(scoreSum) / float64(scored)))
		flags := quality.EncodeFlags(quality.UnionFlags(flagSets...))
		badge := string(quality.Worst(badges...))
		out.cluster.Score = &score
		out.cluster.FlagsJSON = &flags
		out.cluster.Badge = &badge
	}
	return out
}

func assignmentOnly(buckets []*bucket) []db.ArticleUpdate {
	updates := make([]db.ArticleUpdate, 0)
	for _, b := range buckets {
		for _, a := range b.articles {
			updates = append(updates, db.ArticleUpdate{ID: a.ID, ClusterID: b.id})
		}
	}
	return updates
}

func evidenceRecords(items []quality.EvidenceItem, now time.Time) []db.EvidenceRecord {
	rows := make([]db.EvidenceRecord, 0, len(items))
	for _, item := range items {
		rows = append(rows, db.EvidenceRecord{
			SentIdx:      item.SentIdx,
			SummarySent:  item.SummarySent,
			EvidenceText: item.EvidenceText,
			Score:        item.Score,
			Verdict:      item.Verdict,
			CreatedAt:    now,
		})
	}
	return rows
}

func distinctProviders(articles []db.ScoringTarget) int {
	seen := make(map[string]struct{}, len(articles))
	for _, a := range articles {
		name := strings.ToLower(strings.TrimSpace(a.Provider))
		if name == "" {
			continue
		}
		seen[name] = struct{}{}
	}
	return max(len(seen), 1)
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
