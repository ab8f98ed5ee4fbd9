package quality

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"horse.fit/trustwire/internal/evidence"
)

// Item is one article of a batch scoring request. The first five fields are the wire
// protocol; Source (publisher name) and AISummary are optional extensions that richer
// scorers may use.
type Item struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	Content          string `json:"content"`
	CrossSourceCount int    `json:"cross_source_count"`
	ClusterID        int64  `json:"cluster_id"`
	Source           string `json:"source,omitempty"`
	AISummary        string `json:"ai_summary,omitempty"`
}

type EvidenceItem struct {
	SentIdx      int     `json:"sent_idx"`
	SummarySent  string  `json:"summary_sent"`
	EvidenceText *string `json:"evidence_text"`
	Score        float64 `json:"score"`
	Verdict      string  `json:"verdict"`
}

// ItemResult is one scored article. Badge carries the protocol marker.
type ItemResult struct {
	NewsID       int64          `json:"news_id"`
	QualityScore int            `json:"quality_score"`
	Badge        string         `json:"badge"`
	RiskFlags    []string       `json:"risk_flags"`
	Evidence     []EvidenceItem `json:"evidence"`
}

// BatchScorer scores a batch of articles grouped by cluster id. Implementations are
// interchangeable: the in-process scorer, an external process, or a test stub.
type BatchScorer interface {
	ScoreBatch(ctx context.Context, items []Item) ([]ItemResult, error)
}

// LocalBatchScorer runs the in-process Scorer, one cluster per goroutine up to the
// configured parallelism.
type LocalBatchScorer struct {
	scorer      *Scorer
	parallelism int
}

func NewLocalBatchScorer(scorer *Scorer, parallelism int) *LocalBatchScorer {
	if parallelism < 1 {
		parallelism = 1
	}
	return &LocalBatchScorer{scorer: scorer, parallelism: parallelism}
}

func (l *LocalBatchScorer) ScoreBatch(ctx context.Context, items []Item) ([]ItemResult, error) {
	if l == nil || l.scorer == nil {
		return nil, fmt.Errorf("local batch scorer is not initialized")
	}

	groups := groupByCluster(items)
	perGroup := make([][]ItemResult, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallelism)
	for i, group := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perGroup[i] = l.scoreGroup(group)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("score batch: %w", err)
	}

	out := make([]ItemResult, 0, len(items))
	for _, results := range perGroup {
		out = append(out, results...)
	}
	return out, nil
}

func (l *LocalBatchScorer) scoreGroup(group []Item) []ItemResult {
	cluster := Cluster{Members: make([]Member, 0, len(group))}
	for _, item := range group {
		cluster.Members = append(cluster.Members, Member{
			ArticleID: item.ID,
			Source:    item.Source,
			Title:     item.Title,
			Body:      item.Content,
			Summary:   item.AISummary,
		})
		cluster.CrossSourceCount = max(cluster.CrossSourceCount, item.CrossSourceCount)
	}

	result := l.scorer.ScoreCluster(cluster)
	out := make([]ItemResult, 0, len(group))
	for _, item := range group {
		out = append(out, ItemResult{
			NewsID:       item.ID,
			QualityScore: result.Score,
			Badge:        result.Badge.Marker(),
			RiskFlags:    append([]string{}, result.Flags...),
			Evidence:     EvidenceItems(result.Evidence[item.ID]),
		})
	}
	return out
}

// EvidenceItems converts matcher rows into their wire form.
func EvidenceItems(rows []evidence.Row) []EvidenceItem {
	out := make([]EvidenceItem, 0, len(rows))
	for _, row := range rows {
		item := EvidenceItem{
			SentIdx:     row.SentIdx,
			SummarySent: row.SummarySent,
			Score:       row.Score,
			Verdict:     string(row.Verdict),
		}
		if row.HasEvidence() {
			text := row.Evidence
			item.EvidenceText = &text
		}
		out = append(out, item)
	}
	return out
}

// groupByCluster buckets items by cluster id in first-seen order. Items without a
// cluster id are scored alone.
func groupByCluster(items []Item) [][]Item {
	index := make(map[int64]int, len(items))
	groups := make([][]Item, 0, len(items))
	for _, item := range items {
		if item.ClusterID <= 0 {
			groups = append(groups, []Item{item})
			continue
		}
		if pos, ok := index[item.ClusterID]; ok {
			groups[pos] = append(groups[pos], item)
			continue
		}
		index[item.ClusterID] = len(groups)
		groups = append(groups, []Item{item})
	}
	return groups
}
