package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"horse.fit/trustwire/internal/config"
	"horse.fit/trustwire/internal/logging"
	"horse.fit/trustwire/internal/quality"
)

// runScoreBatch speaks the external scorer protocol with the in-process scorer: one
// JSON array of items on stdin, one JSON array of results on stdout. It needs no
// database, so it can serve as QUALITY_SCORER_CMD for another deployment.
func runScoreBatch(args []string) int {
	fs := flag.NewFlagSet("score-batch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	tuningFile := fs.String("tuning-file", os.Getenv("TUNING_FILE"), "Path to a YAML tuning file")
	parallelism := fs.Int("parallelism", 4, "Clusters scored concurrently")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	logger, err := logging.Stderr(envOr("ENVIRONMENT", "local"), envOr("LOG_LEVEL", "info"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	tuning, err := config.LoadTuning(*tuningFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load tuning: %v\n", err)
		return 1
	}
	if err := tuning.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid tuning: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	scorer := quality.NewLocalBatchScorer(quality.NewScorer(scorerConfig(tuning)), *parallelism)
	count, err := scoreBatch(ctx, os.Stdin, os.Stdout, scorer)
	if err != nil {
		logger.Error().Err(err).Msg("score batch failed")
		fmt.Fprintf(os.Stderr, "Score batch failed: %v\n", err)
		return 1
	}

	logger.Debug().Int("items", count).Msg("score batch completed")
	return 0
}

// scoreBatch decodes one request from in, scores it and writes the response to out.
// It returns the number of items scored.
func scoreBatch(ctx context.Context, in io.Reader, out io.Writer, scorer quality.BatchScorer) (int, error) {
	raw, err := io.ReadAll(in)
	if err != nil {
		return 0, fmt.Errorf("read request: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return 0, fmt.Errorf("request is empty")
	}

	var items []quality.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0, fmt.Errorf("decode request: %w", err)
	}
	for idx, item := range items {
		if item.ID <= 0 {
			return 0, fmt.Errorf("item[%d]: id must be > 0", idx)
		}
	}

	results, err := scorer.ScoreBatch(ctx, items)
	if err != nil {
		return 0, err
	}
	if results == nil {
		results = []quality.ItemResult{}
	}

	payload, err := json.Marshal(results)
	if err != nil {
		return 0, fmt.Errorf("encode response: %w", err)
	}
	payload = append(payload, '\n')
	if _, err := out.Write(payload); err != nil {
		return 0, fmt.Errorf("write response: %w", err)
	}
	return len(items), nil
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
