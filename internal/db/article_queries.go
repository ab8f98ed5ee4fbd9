package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pgvector/pgvector-go"

	"horse.fit/trustwire/internal/globaltime"
)

// EmbedRetryAfter is how long an article with a failed embedding stays out of
// pending selection.
const EmbedRetryAfter = time.Hour

// NewArticle is one validated ingest item.
type NewArticle struct {
	Provider     string
	SourceID     string
	SourceName   *string
	URL          string
	Title        string
	Body         *string
	ShortSummary *string
	AISummary    *string
	Category     string
	ImageURL     *string
	PublishedAt  *time.Time
}

// InsertArticle inserts an article unless (provider, source_id) already exists. The
// boolean reports whether a row was created.
func (p *Pool) InsertArticle(ctx context.Context, a NewArticle) (int64, bool, error) {
	if strings.TrimSpace(a.Provider) == "" || strings.TrimSpace(a.SourceID) == "" {
		return 0, false, fmt.Errorf("provider and source_id are required")
	}

	now := globaltime.UTC()
	const q = `
INSERT INTO articles (
	provider, source_id, source_name, url, title, body, short_summary, ai_summary,
	category, image_url, published_at, fetched_at, risk_flags, created_at, updated_at
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '[]', ?, ?)
ON CONFLICT (provider, source_id) DO NOTHING
RETURNING id
`

	var id int64
	err := p.QueryRow(ctx, q,
		strings.TrimSpace(a.Provider),
		strings.TrimSpace(a.SourceID),
		trimmedPtr(a.SourceName),
		strings.TrimSpace(a.URL),
		strings.TrimSpace(a.Title),
		a.Body,
		a.ShortSummary,
		a.AISummary,
		strings.TrimSpace(a.Category),
		a.ImageURL,
		utcPtr(a.PublishedAt),
		now,
		now,
		now,
	).Scan(&id)
	if IsNoRows(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("insert article: %w", err)
	}
	return id, true, nil
}

// EnrichTarget is an article whose body may need fetching.
type EnrichTarget struct {
	ID   int64
	URL  string
	Body string
}

// ListEnrichTargets returns the listed articles that carry a URL, in id order.
func (p *Pool) ListEnrichTargets(ctx context.Context, ids []int64) ([]EnrichTarget, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	const q = `
SELECT id, url, COALESCE(body, '')
FROM articles
WHERE id IN (?)
  AND url <> ''
ORDER BY id ASC
`

	rows, err := p.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("query enrich targets: %w", err)
	}
	defer rows.Close()

	out := make([]EnrichTarget, 0, len(ids))
	for rows.Next() {
		var row EnrichTarget
		if err := rows.Scan(&row.ID, &row.URL, &row.Body); err != nil {
			return nil, fmt.Errorf("scan enrich target: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrich targets: %w", err)
	}
	return out, nil
}

// ArticleEnrichment is the output of one successful fetch.
type ArticleEnrichment struct {
	ID       int64
	Body     string
	ImageURL *string
	Language *string
}

// UpdateArticleEnrichment stores a fetched body. Image and language keep their current
// values when absent.
func (p *Pool) UpdateArticleEnrichment(ctx context.Context, e ArticleEnrichment) error {
	now := globaltime.UTC()
	const q = `
UPDATE articles
SET body = ?,
	image_url = COALESCE(?, image_url),
	language = COALESCE(?, language),
	enriched_at = ?,
	updated_at = ?
WHERE id = ?
`
	tag, err := p.Exec(ctx, q, e.Body, e.ImageURL, e.Language, now, now, e.ID)
	if err != nil {
		return fmt.Errorf("update article %d enrichment: %w", e.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update article %d enrichment: %w", e.ID, ErrNoRows)
	}
	return nil
}

// EmbedTarget is an article without an embedding.
type EmbedTarget struct {
	ID        int64
	Title     string
	Body      string
	AISummary string
}

// ListEmbedTargets returns the listed articles that still lack an embedding.
func (p *Pool) ListEmbedTargets(ctx context.Context, ids []int64) ([]EmbedTarget, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	const q = `
SELECT id, title, COALESCE(body, ''), COALESCE(ai_summary, '')
FROM articles
WHERE id IN (?)
  AND embedding IS NULL
ORDER BY id ASC
`

	rows, err := p.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("query embed targets: %w", err)
	}
	defer rows.Close()

	out := make([]EmbedTarget, 0, len(ids))
	for rows.Next() {
		var row EmbedTarget
		if err := rows.Scan(&row.ID, &row.Title, &row.Body, &row.AISummary); err != nil {
			return nil, fmt.Errorf("scan embed target: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embed targets: %w", err)
	}
	return out, nil
}

func (p *Pool) UpdateArticleEmbedding(ctx context.Context, id int64, embedding pgvector.Vector) error {
	if len(embedding.Slice()) == 0 {
		return fmt.Errorf("update article %d embedding: vector is empty", id)
	}
	now := globaltime.UTC()
	const q = `
UPDATE articles
SET embedding = ?,
	embedded_at = ?,
	embed_failed_at = NULL,
	updated_at = ?
WHERE id = ?
`
	tag, err := p.Exec(ctx, q, embedding, now, now, id)
	if err != nil {
		return fmt.Errorf("update article %d embedding: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update article %d embedding: %w", id, ErrNoRows)
	}
	return nil
}

// MarkEmbedFailed stamps a failed embedding attempt. Pending selection skips the
// article until EmbedRetryAfter has passed.
func (p *Pool) MarkEmbedFailed(ctx context.Context, id int64) error {
	now := globaltime.UTC()
	tag, err := p.Exec(ctx, `UPDATE articles SET embed_failed_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	if err != nil {
		return fmt.Errorf("mark article %d embed failure: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark article %d embed failure: %w", id, ErrNoRows)
	}
	return nil
}

// ScoringTarget is an article ready for clustering. PublishedAt is nil for undated
// articles, which cluster on their own key.
type ScoringTarget struct {
	ID           int64
	Provider     string
	SourceName   string
	URL          string
	Title        string
	Body         string
	ShortSummary string
	AISummary    string
	Category     string
	PublishedAt  *time.Time
	Embedding    pgvector.Vector
}

// ListScoringTargets returns the clusterable subset of ids in catalog (id) order.
func (p *Pool) ListScoringTargets(ctx context.Context, ids []int64) ([]ScoringTarget, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	const q = `
SELECT
	id,
	provider,
	COALESCE(source_name, ''),
	url,
	title,
	COALESCE(body, ''),
	COALESCE(short_summary, ''),
	COALESCE(ai_summary, ''),
	category,
	published_at,
	embedding
FROM articles
WHERE id IN (?)
  AND embedding IS NOT NULL
ORDER BY id ASC
`

	rows, err := p.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("query scoring targets: %w", err)
	}
	defer rows.Close()

	out := make([]ScoringTarget, 0, len(ids))
	for rows.Next() {
		var (
			row       ScoringTarget
			published *time.Time
			embedding *pgvector.Vector
		)
		if err := rows.Scan(
			&row.ID,
			&row.Provider,
			&row.SourceName,
			&row.URL,
			&row.Title,
			&row.Body,
			&row.ShortSummary,
			&row.AISummary,
			&row.Category,
			&published,
			&embedding,
		); err != nil {
			return nil, fmt.Errorf("scan scoring target: %w", err)
		}
		if embedding == nil {
			continue
		}
		row.PublishedAt = utcPtr(published)
		row.Embedding = *embedding
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scoring targets: %w", err)
	}
	return out, nil
}

// CandidateRow is one member of a candidate pool.
type CandidateRow struct {
	ID          int64
	Provider    string
	URL         string
	Title       string
	PublishedAt *time.Time
	Embedding   pgvector.Vector
}

// CandidatePoolQuery bounds a candidate pool scan.
type CandidatePoolQuery struct {
	Category string
	From     time.Time
	To       time.Time
	Limit    int
}

// ListCandidatePool returns same-category articles with embeddings published inside
// [From, To], newest first, capped at Limit.
func (p *Pool) ListCandidatePool(ctx context.Context, query CandidatePoolQuery) ([]CandidateRow, error) {
	if query.Limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	if query.To.Before(query.From) {
		return nil, fmt.Errorf("from must not be after to")
	}

	const q = `
SELECT id, provider, url, title, published_at, embedding
FROM articles
WHERE category = ?
  AND embedding IS NOT NULL
  AND published_at IS NOT NULL
  AND published_at >= ?
  AND published_at <= ?
ORDER BY published_at DESC, id DESC
LIMIT ?
`

	rows, err := p.Query(ctx, q, query.Category, query.From.UTC(), query.To.UTC(), query.Limit)
	if err != nil {
		return nil, fmt.Errorf("query candidate pool: %w", err)
	}
	defer rows.Close()

	out := make([]CandidateRow, 0, min(query.Limit, 256))
	for rows.Next() {
		var (
			row       CandidateRow
			embedding *pgvector.Vector
		)
		if err := rows.Scan(&row.ID, &row.Provider, &row.URL, &row.Title, &row.PublishedAt, &embedding); err != nil {
			return nil, fmt.Errorf("scan candidate row: %w", err)
		}
		if embedding != nil {
			row.Embedding = *embedding
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate rows: %w", err)
	}
	return out, nil
}

// ArticleUpdate is the per-article outcome of a cluster and quality pass. Nil quality
// fields keep the stored values.
type ArticleUpdate struct {
	ID        int64
	ClusterID int64
	Score     *int
	FlagsJSON *string
	Badge     *string
}

// execer is the statement surface shared by Pool and Tx.
type execer interface {
	Exec(ctx context.Context, query string, args ...any) (CommandTag, error)
}

// ApplyArticleUpdates writes every update in one multi-row statement. verified_at is
// stamped only on rows that carry a score.
func (p *Pool) ApplyArticleUpdates(ctx context.Context, updates []ArticleUpdate, verifiedAt time.Time) (int64, error) {
	return applyArticleUpdates(ctx, p, updates, verifiedAt)
}

// SettleArticles replaces the evidence of every set and applies the article updates
// in one transaction, so stored evidence never disagrees with the stored score.
func (p *Pool) SettleArticles(ctx context.Context, sets []EvidenceSet, updates []ArticleUpdate, verifiedAt time.Time) (int64, error) {
	if len(sets) == 0 && len(updates) == 0 {
		return 0, nil
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin settle tx: %w", err)
	}
	defer rollback(ctx, tx)

	if _, err := replaceEvidence(ctx, tx, sets); err != nil {
		return 0, err
	}
	affected, err := applyArticleUpdates(ctx, tx, updates, verifiedAt)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit settle tx: %w", err)
	}
	return affected, nil
}

func applyArticleUpdates(ctx context.Context, exec execer, updates []ArticleUpdate, verifiedAt time.Time) (int64, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(updates))
	scored := make([]int64, 0, len(updates))
	clusterCase := sq.Case("id")
	scoreCase := sq.Case("id")
	flagsCase := sq.Case("id")
	badgeCase := sq.Case("id")
	for _, u := range updates {
		if u.ID <= 0 || u.ClusterID <= 0 {
			return 0, fmt.Errorf("article update requires article and cluster ids (got %d, %d)", u.ID, u.ClusterID)
		}
		ids = append(ids, u.ID)
		if u.Score != nil {
			scored = append(scored, u.ID)
		}
		clusterCase = clusterCase.When(sq.Expr("?", u.ID), sq.Expr("CAST(? AS BIGINT)", u.ClusterID))
		scoreCase = scoreCase.When(sq.Expr("?", u.ID), sq.Expr("COALESCE(CAST(? AS INTEGER), quality_score)", u.Score))
		flagsCase = flagsCase.When(sq.Expr("?", u.ID), sq.Expr("COALESCE(CAST(? AS TEXT), risk_flags)", u.FlagsJSON))
		badgeCase = badgeCase.When(sq.Expr("?", u.ID), sq.Expr("COALESCE(CAST(? AS TEXT), badge)", u.Badge))
	}

	verifiedCase := sq.Case().
		When(sq.Eq{"id": scored}, sq.Expr("?", verifiedAt.UTC())).
		Else("verified_at")

	query, args, err := sq.Update("articles").
		Set("cluster_id", clusterCase).
		Set("quality_score", scoreCase).
		Set("risk_flags", flagsCase).
		Set("badge", badgeCase).
		Set("verified_at", verifiedCase).
		Set("updated_at", globaltime.UTC()).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build article update: %w", err)
	}

	tag, err := exec.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("apply article updates: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SummaryTarget is an article with a body but no AI summary.
type SummaryTarget struct {
	ID    int64
	Title string
	Body  string
}

// ListArticleSummaryTargets returns the listed articles that have a body and lack an
// AI summary, in id order.
func (p *Pool) ListArticleSummaryTargets(ctx context.Context, ids []int64) ([]SummaryTarget, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	const q = `
SELECT id, title, body
FROM articles
WHERE id IN (?)
  AND body IS NOT NULL
  AND TRIM(body) <> ''
  AND (ai_summary IS NULL OR TRIM(ai_summary) = '')
ORDER BY id ASC
`

	rows, err := p.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("query article summary targets: %w", err)
	}
	defer rows.Close()

	out := make([]SummaryTarget, 0, len(ids))
	for rows.Next() {
		var row SummaryTarget
		if err := rows.Scan(&row.ID, &row.Title, &row.Body); err != nil {
			return nil, fmt.Errorf("scan article summary target: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article summary targets: %w", err)
	}
	return out, nil
}

func (p *Pool) UpdateArticleAISummary(ctx context.Context, id int64, summary string) error {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fmt.Errorf("update article %d ai summary: summary is empty", id)
	}
	tag, err := p.Exec(ctx, `UPDATE articles SET ai_summary = ?, updated_at = ? WHERE id = ?`, summary, globaltime.UTC(), id)
	if err != nil {
		return fmt.Errorf("update article %d ai summary: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update article %d ai summary: %w", id, ErrNoRows)
	}
	return nil
}

// AssignCluster links one article to a cluster without touching its quality fields.
func (p *Pool) AssignCluster(ctx context.Context, articleID, clusterID int64) error {
	const q = `
UPDATE articles
SET cluster_id = ?,
	updated_at = ?
WHERE id = ?
`
	tag, err := p.Exec(ctx, q, clusterID, globaltime.UTC(), articleID)
	if err != nil {
		return fmt.Errorf("assign article %d to cluster %d: %w", articleID, clusterID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("assign article %d: %w", articleID, ErrNoRows)
	}
	return nil
}

// ListPendingArticleIDs returns ids of articles that still need a pipeline pass,
// newest first: unclustered articles, and embedded ones still missing a score.
// Articles whose embedding failed within EmbedRetryAfter are skipped.
func (p *Pool) ListPendingArticleIDs(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	const q = `
SELECT id
FROM articles
WHERE (
		cluster_id IS NULL
		OR (embedding IS NOT NULL AND (verified_at IS NULL OR quality_score IS NULL))
	)
  AND (embedding IS NOT NULL OR embed_failed_at IS NULL OR embed_failed_at < ?)
ORDER BY COALESCE(published_at, created_at) DESC, id DESC
LIMIT ?
`
	retryBefore := globaltime.UTC().Add(-EmbedRetryAfter)
	return p.queryIDs(ctx, "pending article ids", q, retryBefore, limit)
}

// ListCategoryArticleIDs returns ids of a category's articles published inside
// [from, to], newest first.
func (p *Pool) ListCategoryArticleIDs(ctx context.Context, category string, from, to time.Time, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	const q = `
SELECT id
FROM articles
WHERE category = ?
  AND published_at IS NOT NULL
  AND published_at >= ?
  AND published_at <= ?
ORDER BY published_at DESC, id DESC
LIMIT ?
`
	return p.queryIDs(ctx, "category article ids", q, strings.TrimSpace(category), from.UTC(), to.UTC(), limit)
}

// KeywordTarget is an unclustered article without an embedding.
type KeywordTarget struct {
	ID       int64
	Provider string
	URL      string
	Title    string
	Category string
}

// ListKeywordTargets returns unclustered, unembedded articles, newest first.
func (p *Pool) ListKeywordTargets(ctx context.Context, limit int) ([]KeywordTarget, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT id, provider, url, title, category
FROM articles
WHERE cluster_id IS NULL
  AND embedding IS NULL
ORDER BY CASE WHEN published_at IS NULL THEN 1 ELSE 0 END, published_at DESC, id DESC
LIMIT ?
`

	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query keyword targets: %w", err)
	}
	defer rows.Close()

	out := make([]KeywordTarget, 0, min(limit, 256))
	for rows.Next() {
		var row KeywordTarget
		if err := rows.Scan(&row.ID, &row.Provider, &row.URL, &row.Title, &row.Category); err != nil {
			return nil, fmt.Errorf("scan keyword target: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keyword targets: %w", err)
	}
	return out, nil
}

func (p *Pool) queryIDs(ctx context.Context, label, q string, args ...any) ([]int64, error) {
	rows, err := p.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", label, err)
	}
	defer rows.Close()

	out := make([]int64, 0, 64)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", label, err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", label, err)
	}
	return out, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
