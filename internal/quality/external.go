package quality

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/trustwire/internal/payloadschema"
)

// ErrScorerFailed marks a failed external scorer run. The whole batch is lost.
var ErrScorerFailed = errors.New("external scorer failed")

const DefaultExternalTimeout = 2 * time.Minute

// ExternalOptions configures the scorer subprocess.
type ExternalOptions struct {
	Command []string
	Timeout time.Duration
	// Env is appended to the current process environment.
	Env []string
}

// ExternalBatchScorer writes the request as one JSON line to a subprocess's stdin and
// reads the JSON response from its stdout.
type ExternalBatchScorer struct {
	opts   ExternalOptions
	logger zerolog.Logger
}

// ParseCommand splits a command line on whitespace. Quoting is not supported.
func ParseCommand(line string) []string {
	return strings.Fields(line)
}

func NewExternalBatchScorer(opts ExternalOptions, logger zerolog.Logger) (*ExternalBatchScorer, error) {
	if len(opts.Command) == 0 || strings.TrimSpace(opts.Command[0]) == "" {
		return nil, fmt.Errorf("external scorer command is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultExternalTimeout
	}
	return &ExternalBatchScorer{opts: opts, logger: logger}, nil
}

func (e *ExternalBatchScorer) ScoreBatch(ctx context.Context, items []Item) ([]ItemResult, error) {
	if e == nil {
		return nil, fmt.Errorf("external batch scorer is not initialized")
	}
	if len(items) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal scorer request: %w", err)
	}
	payload = append(payload, '\n')

	runCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.opts.Command[0], e.opts.Command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	if len(e.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), e.opts.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrScorerFailed, err, tail(stderr.String(), 512))
	}

	results, err := DecodeResponse(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScorerFailed, err)
	}

	e.logger.Debug().
		Int("items", len(items)).
		Int("results", len(results)).
		Dur("elapsed", time.Since(started)).
		Msg("external scorer completed")
	return results, nil
}

// DecodeResponse validates and decodes a scorer response.
func DecodeResponse(raw []byte) ([]ItemResult, error) {
	normalized, err := payloadschema.ValidateScorerResponse(raw)
	if err != nil {
		return nil, err
	}
	var results []ItemResult
	if err := json.Unmarshal(normalized, &results); err != nil {
		return nil, fmt.Errorf("decode scorer response: %w", err)
	}
	return results, nil
}

func tail(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	return text[len(text)-limit:]
}
