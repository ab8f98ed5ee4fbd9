package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"horse.fit/trustwire/internal/globaltime"
)

// ErrClusterNotResolved means a cluster key matched no row after both the update and
// the insert path. The key uniqueness invariant is broken; callers must not continue
// the unit of work.
var ErrClusterNotResolved = errors.New("cluster key did not resolve to a row")

// ClusterUpsert carries one cluster write. Every field except Key is optional; nil
// keeps the stored value.
type ClusterUpsert struct {
	Key                     string
	Category                *string
	RepresentativeArticleID *int64
	RepresentativeURL       *string
	Title                   *string
	Score                   *int
	FlagsJSON               *string
	Badge                   *string
}

// UpsertCluster updates the row for Key, inserting it when absent. A concurrent insert
// of the same key wins the race; the loser discards its values and adopts the
// winner's id.
func (p *Pool) UpsertCluster(ctx context.Context, in ClusterUpsert) (int64, error) {
	key := strings.TrimSpace(in.Key)
	if key == "" {
		return 0, fmt.Errorf("cluster key is required")
	}

	now := globaltime.UTC()

	const updateQ = `
UPDATE news_clusters
SET category = COALESCE(?, category),
	representative_article_id = COALESCE(?, representative_article_id),
	representative_url = COALESCE(?, representative_url),
	cluster_title = COALESCE(?, cluster_title),
	quality_score = COALESCE(?, quality_score),
	risk_flags = COALESCE(?, risk_flags),
	badge = COALESCE(?, badge),
	updated_at = ?
WHERE cluster_key = ?
RETURNING id
`
	var id int64
	err := p.QueryRow(ctx, updateQ,
		in.Category,
		in.RepresentativeArticleID,
		in.RepresentativeURL,
		in.Title,
		in.Score,
		in.FlagsJSON,
		in.Badge,
		now,
		key,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !IsNoRows(err) {
		return 0, fmt.Errorf("update cluster %s: %w", key, err)
	}

	const insertQ = `
INSERT INTO news_clusters (
	cluster_key, category, representative_article_id, representative_url,
	cluster_title, quality_score, risk_flags, badge, created_at, updated_at
)
VALUES (?, COALESCE(?, ''), ?, ?, ?, ?, COALESCE(?, '[]'), ?, ?, ?)
ON CONFLICT (cluster_key) DO NOTHING
RETURNING id
`
	err = p.QueryRow(ctx, insertQ,
		key,
		in.Category,
		in.RepresentativeArticleID,
		in.RepresentativeURL,
		in.Title,
		in.Score,
		in.FlagsJSON,
		in.Badge,
		now,
		now,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !IsNoRows(err) {
		return 0, fmt.Errorf("insert cluster %s: %w", key, err)
	}

	err = p.QueryRow(ctx, `SELECT id FROM news_clusters WHERE cluster_key = ?`, key).Scan(&id)
	if IsNoRows(err) {
		return 0, fmt.Errorf("%w: %s", ErrClusterNotResolved, key)
	}
	if err != nil {
		return 0, fmt.Errorf("select cluster %s: %w", key, err)
	}
	return id, nil
}

// ClusterRecord is the read model of one cluster.
type ClusterRecord struct {
	ID                      int64      `json:"id"`
	Key                     string     `json:"cluster_key"`
	Category                string     `json:"category"`
	RepresentativeArticleID *int64     `json:"representative_article_id,omitempty"`
	RepresentativeURL       *string    `json:"representative_url,omitempty"`
	Title                   *string    `json:"title,omitempty"`
	Summary                 *string    `json:"summary,omitempty"`
	ImageURL                *string    `json:"image_url,omitempty"`
	QualityScore            *int       `json:"quality_score,omitempty"`
	RiskFlags               string     `json:"-"`
	Badge                   *string    `json:"badge,omitempty"`
	MemberCount             int64      `json:"member_count"`
	SummarizedAt            *time.Time `json:"summarized_at,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

const clusterSelect = `
SELECT
	c.id,
	c.cluster_key,
	c.category,
	c.representative_article_id,
	c.representative_url,
	c.cluster_title,
	c.cluster_summary,
	c.image_url,
	c.quality_score,
	c.risk_flags,
	c.badge,
	(SELECT COUNT(*) FROM articles a WHERE a.cluster_id = c.id),
	c.summarized_at,
	c.created_at,
	c.updated_at
FROM news_clusters c
`

func scanCluster(scan func(dest ...any) error) (ClusterRecord, error) {
	var row ClusterRecord
	err := scan(
		&row.ID,
		&row.Key,
		&row.Category,
		&row.RepresentativeArticleID,
		&row.RepresentativeURL,
		&row.Title,
		&row.Summary,
		&row.ImageURL,
		&row.QualityScore,
		&row.RiskFlags,
		&row.Badge,
		&row.MemberCount,
		&row.SummarizedAt,
		&row.CreatedAt,
		&row.UpdatedAt,
	)
	return row, err
}

// ClusterListOptions pages the cluster listing.
type ClusterListOptions struct {
	Category string
	Limit    int
	Offset   int
}

// ListClusters returns clusters by most recent update, plus the total matching count.
func (p *Pool) ListClusters(ctx context.Context, opts ClusterListOptions) ([]ClusterRecord, int64, error) {
	if opts.Limit <= 0 {
		return nil, 0, fmt.Errorf("limit must be > 0")
	}
	if opts.Offset < 0 {
		return nil, 0, fmt.Errorf("offset must be >= 0")
	}
	category := strings.TrimSpace(opts.Category)

	var total int64
	if err := p.QueryRow(ctx, `
SELECT COUNT(*)
FROM news_clusters c
WHERE (? = '' OR c.category = ?)
`, category, category).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count clusters: %w", err)
	}

	rows, err := p.Query(ctx, clusterSelect+`
WHERE (? = '' OR c.category = ?)
ORDER BY c.updated_at DESC, c.id DESC
LIMIT ? OFFSET ?
`, category, category, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query clusters: %w", err)
	}
	defer rows.Close()

	out := make([]ClusterRecord, 0, opts.Limit)
	for rows.Next() {
		row, err := scanCluster(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("scan cluster row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate cluster rows: %w", err)
	}
	return out, total, nil
}

// GetCluster returns one cluster or ErrNoRows.
func (p *Pool) GetCluster(ctx context.Context, id int64) (ClusterRecord, error) {
	row, err := scanCluster(p.QueryRow(ctx, clusterSelect+`WHERE c.id = ?`, id).Scan)
	if err != nil {
		if IsNoRows(err) {
			return ClusterRecord{}, ErrNoRows
		}
		return ClusterRecord{}, fmt.Errorf("get cluster %d: %w", id, err)
	}
	return row, nil
}

// ClusterMember is one article of a cluster as shown by the read API.
type ClusterMember struct {
	ArticleID    int64      `json:"article_id"`
	Provider     string     `json:"provider"`
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	QualityScore *int       `json:"quality_score,omitempty"`
	Badge        *string    `json:"badge,omitempty"`
	RiskFlags    string     `json:"-"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
}

func (p *Pool) ListClusterMembers(ctx context.Context, clusterID int64) ([]ClusterMember, error) {
	const q = `
SELECT id, provider, url, title, published_at, quality_score, badge, risk_flags, verified_at
FROM articles
WHERE cluster_id = ?
ORDER BY published_at DESC, id ASC
`
	rows, err := p.Query(ctx, q, clusterID)
	if err != nil {
		return nil, fmt.Errorf("query cluster members: %w", err)
	}
	defer rows.Close()

	out := make([]ClusterMember, 0, 8)
	for rows.Next() {
		var row ClusterMember
		if err := rows.Scan(
			&row.ArticleID,
			&row.Provider,
			&row.URL,
			&row.Title,
			&row.PublishedAt,
			&row.QualityScore,
			&row.Badge,
			&row.RiskFlags,
			&row.VerifiedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cluster member: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cluster members: %w", err)
	}
	return out, nil
}

// CountClusterMembers returns the member count per listed cluster id.
func (p *Pool) CountClusterMembers(ctx context.Context, clusterIDs []int64) (map[int64]int, error) {
	out := make(map[int64]int, len(clusterIDs))
	if len(clusterIDs) == 0 {
		return out, nil
	}

	const q = `
SELECT cluster_id, COUNT(*)
FROM articles
WHERE cluster_id IN (?)
GROUP BY cluster_id
`
	rows, err := p.Query(ctx, q, clusterIDs)
	if err != nil {
		return nil, fmt.Errorf("count cluster members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			clusterID int64
			count     int
		)
		if err := rows.Scan(&clusterID, &count); err != nil {
			return nil, fmt.Errorf("scan cluster member count: %w", err)
		}
		out[clusterID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cluster member counts: %w", err)
	}
	return out, nil
}

// BonusTarget is the stored quality standing of a clustered article.
type BonusTarget struct {
	ID        int64
	ClusterID int64
	Score     *int
	Badge     *string
	FlagsJSON string
}

// ListBonusTargets returns the clustered subset of ids in id order.
func (p *Pool) ListBonusTargets(ctx context.Context, ids []int64) ([]BonusTarget, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	const q = `
SELECT id, cluster_id, quality_score, badge, risk_flags
FROM articles
WHERE id IN (?)
  AND cluster_id IS NOT NULL
ORDER BY id ASC
`
	rows, err := p.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("query bonus targets: %w", err)
	}
	defer rows.Close()

	out := make([]BonusTarget, 0, len(ids))
	for rows.Next() {
		var row BonusTarget
		if err := rows.Scan(&row.ID, &row.ClusterID, &row.Score, &row.Badge, &row.FlagsJSON); err != nil {
			return nil, fmt.Errorf("scan bonus target: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bonus targets: %w", err)
	}
	return out, nil
}

// BonusUpdate is the adjusted standing of one article.
type BonusUpdate struct {
	ID        int64
	Score     *int
	Badge     *string
	FlagsJSON string
}

// ApplyBonusUpdates writes adjusted standings in one transaction.
func (p *Pool) ApplyBonusUpdates(ctx context.Context, updates []BonusUpdate) (int64, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin bonus tx: %w", err)
	}
	defer rollback(ctx, tx)

	now := globaltime.UTC()
	const q = `
UPDATE articles
SET quality_score = COALESCE(?, quality_score),
	badge = COALESCE(?, badge),
	risk_flags = ?,
	updated_at = ?
WHERE id = ?
`
	var affected int64
	for _, u := range updates {
		tag, err := tx.Exec(ctx, q, u.Score, u.Badge, u.FlagsJSON, now, u.ID)
		if err != nil {
			return 0, fmt.Errorf("apply bonus to article %d: %w", u.ID, err)
		}
		affected += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit bonus tx: %w", err)
	}
	return affected, nil
}

// SummaryMember is one article feeding a cluster summary.
type SummaryMember struct {
	ClusterID    int64
	ArticleID    int64
	URL          string
	Title        string
	Body         string
	ShortSummary string
	AISummary    string
	ImageURL     *string
	QualityScore *int
	PublishedAt  *time.Time
}

// ListSummaryMembers returns the members of the listed clusters grouped by cluster id,
// best scored first.
func (p *Pool) ListSummaryMembers(ctx context.Context, clusterIDs []int64) (map[int64][]SummaryMember, error) {
	out := make(map[int64][]SummaryMember, len(clusterIDs))
	if len(clusterIDs) == 0 {
		return out, nil
	}

	const q = `
SELECT
	cluster_id,
	id,
	url,
	title,
	COALESCE(body, ''),
	COALESCE(short_summary, ''),
	COALESCE(ai_summary, ''),
	image_url,
	quality_score,
	published_at
FROM articles
WHERE cluster_id IN (?)
ORDER BY cluster_id ASC, COALESCE(quality_score, -1) DESC, id ASC
`
	rows, err := p.Query(ctx, q, clusterIDs)
	if err != nil {
		return nil, fmt.Errorf("query summary members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row SummaryMember
		if err := rows.Scan(
			&row.ClusterID,
			&row.ArticleID,
			&row.URL,
			&row.Title,
			&row.Body,
			&row.ShortSummary,
			&row.AISummary,
			&row.ImageURL,
			&row.QualityScore,
			&row.PublishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan summary member: %w", err)
		}
		out[row.ClusterID] = append(out[row.ClusterID], row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary members: %w", err)
	}
	return out, nil
}

// ClusterSummaryUpdate is the display output of the summarizer for one cluster.
type ClusterSummaryUpdate struct {
	ClusterID int64
	Title     string
	Summary   string
	ImageURL  *string
}

func (p *Pool) UpdateClusterSummary(ctx context.Context, u ClusterSummaryUpdate) error {
	now := globaltime.UTC()
	const q = `
UPDATE news_clusters
SET cluster_title = ?,
	cluster_summary = ?,
	image_url = COALESCE(?, image_url),
	summarized_at = ?,
	updated_at = ?
WHERE id = ?
`
	tag, err := p.Exec(ctx, q, u.Title, u.Summary, u.ImageURL, now, now, u.ClusterID)
	if err != nil {
		return fmt.Errorf("update cluster %d summary: %w", u.ClusterID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update cluster %d summary: %w", u.ClusterID, ErrNoRows)
	}
	return nil
}
