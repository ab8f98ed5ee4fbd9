package db

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"horse.fit/trustwire/internal/globaltime"
)

// EvidenceRecord is one stored summary-sentence judgment.
type EvidenceRecord struct {
	SentIdx      int       `json:"sent_idx"`
	SummarySent  string    `json:"summary_sent"`
	EvidenceText *string   `json:"evidence_text"`
	Score        float64   `json:"score"`
	Verdict      string    `json:"verdict"`
	CreatedAt    time.Time `json:"created_at"`
}

// EvidenceSet is the complete evidence of one article for one scoring pass.
type EvidenceSet struct {
	ArticleID int64
	Rows      []EvidenceRecord
}

// ReplaceEvidence deletes and rewrites the evidence of every listed article in one
// transaction. An empty Rows slice clears the article's evidence.
func (p *Pool) ReplaceEvidence(ctx context.Context, sets []EvidenceSet) (int64, error) {
	if len(sets) == 0 {
		return 0, nil
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin evidence tx: %w", err)
	}
	defer rollback(ctx, tx)

	inserted, err := replaceEvidence(ctx, tx, sets)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit evidence tx: %w", err)
	}
	return inserted, nil
}

func replaceEvidence(ctx context.Context, tx execer, sets []EvidenceSet) (int64, error) {
	now := globaltime.UTC()
	var inserted int64
	for _, set := range sets {
		if _, err := tx.Exec(ctx, `DELETE FROM article_evidence WHERE article_id = ?`, set.ArticleID); err != nil {
			return 0, fmt.Errorf("delete evidence for article %d: %w", set.ArticleID, err)
		}
		if len(set.Rows) == 0 {
			continue
		}

		insert := sq.Insert("article_evidence").
			Columns("article_id", "sent_idx", "summary_sent", "evidence_text", "score", "verdict", "created_at")
		for _, row := range set.Rows {
			insert = insert.Values(set.ArticleID, row.SentIdx, row.SummarySent, row.EvidenceText, row.Score, row.Verdict, now)
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return 0, fmt.Errorf("build evidence insert: %w", err)
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("insert evidence for article %d: %w", set.ArticleID, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// ListArticleEvidence returns an article's evidence in sentence order.
func (p *Pool) ListArticleEvidence(ctx context.Context, articleID int64) ([]EvidenceRecord, error) {
	const q = `
SELECT sent_idx, summary_sent, evidence_text, score, verdict, created_at
FROM article_evidence
WHERE article_id = ?
ORDER BY sent_idx ASC
`
	rows, err := p.Query(ctx, q, articleID)
	if err != nil {
		return nil, fmt.Errorf("query article evidence: %w", err)
	}
	defer rows.Close()

	out := make([]EvidenceRecord, 0, 8)
	for rows.Next() {
		var row EvidenceRecord
		if err := rows.Scan(&row.SentIdx, &row.SummarySent, &row.EvidenceText, &row.Score, &row.Verdict, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan article evidence: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article evidence: %w", err)
	}
	return out, nil
}

// ArticleExists reports whether an article id is known.
func (p *Pool) ArticleExists(ctx context.Context, id int64) (bool, error) {
	var found int64
	err := p.QueryRow(ctx, `SELECT id FROM articles WHERE id = ?`, id).Scan(&found)
	if IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup article %d: %w", id, err)
	}
	return true, nil
}
