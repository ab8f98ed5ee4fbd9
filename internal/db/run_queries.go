package db

import (
	"context"
	"fmt"
	"time"
)

// InsertPipelineRun records the start of an orchestrator run.
func (p *Pool) InsertPipelineRun(ctx context.Context, runUUID, mode string, inputCount int, startedAt time.Time) (int64, error) {
	const q = `
INSERT INTO pipeline_runs (run_uuid, mode, input_count, status, started_at)
VALUES (?, ?, ?, 'running', ?)
RETURNING id
`
	var id int64
	if err := p.QueryRow(ctx, q, runUUID, mode, inputCount, startedAt.UTC()).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert pipeline run: %w", err)
	}
	return id, nil
}

// FinishPipelineRun stores the final status and the JSON run report.
func (p *Pool) FinishPipelineRun(ctx context.Context, id int64, status string, reportJSON string, finishedAt time.Time) error {
	const q = `
UPDATE pipeline_runs
SET status = ?,
	report = ?,
	finished_at = ?
WHERE id = ?
`
	tag, err := p.Exec(ctx, q, status, reportJSON, finishedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("finish pipeline run %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish pipeline run %d: %w", id, ErrNoRows)
	}
	return nil
}
