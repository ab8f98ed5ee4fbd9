package pipeline

import (
	"encoding/json"
	"time"
)

const (
	StageEnrich    = "enrich"
	StageAISummary = "ai_summary"
	StageEmbed     = "embed"
	StageCluster   = "cluster"
	StageBonus     = "bonus"
	StageSummarize = "summarize"
)

// StageResult is the outcome of one stage. Err is set when the stage failed as a
// whole; per-item failures only show up in Failed.
type StageResult struct {
	Stage     string `json:"stage"`
	Attempted int    `json:"attempted"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Skipped   bool   `json:"skipped,omitempty"`
	Err       error  `json:"-"`
}

func (r StageResult) MarshalJSON() ([]byte, error) {
	type alias StageResult
	out := struct {
		alias
		Error string `json:"error,omitempty"`
	}{alias: alias(r)}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// RunReport aggregates one pipeline run.
type RunReport struct {
	RunID      string        `json:"run_id"`
	Mode       string        `json:"mode"`
	Input      int           `json:"input"`
	Stages     []StageResult `json:"stages"`
	ClusterIDs []int64       `json:"cluster_ids"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Stage returns the result recorded for name, or a zero result.
func (r RunReport) Stage(name string) StageResult {
	for _, stage := range r.Stages {
		if stage.Stage == name {
			return stage
		}
	}
	return StageResult{Stage: name}
}

// HasErrors reports whether any stage failed as a whole.
func (r RunReport) HasErrors() bool {
	for _, stage := range r.Stages {
		if stage.Err != nil {
			return true
		}
	}
	return false
}

func (r RunReport) status() string {
	if r.HasErrors() {
		return "completed_with_errors"
	}
	return "completed"
}
