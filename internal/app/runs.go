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

	"horse.fit/trustwire/internal/cli"
	"horse.fit/trustwire/internal/db"
	"horse.fit/trustwire/internal/pipeline"
)

// runProcess runs the full pipeline over pending (unclustered) articles.
func runProcess(args []string) int {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	limit := fs.Int("limit", 200, "Maximum pending articles to process")
	asJSON := fs.Bool("json", false, "Print the full run report as JSON")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "Invalid flags: --limit must be > 0")
		return 2
	}

	return withPipeline(envLoader, *timeout, func(ctx context.Context, svc *pipeline.Service) int {
		report, err := svc.RunPending(ctx, *limit)
		return finishReports(err, *asJSON, report)
	})
}

// runExplicit runs the full pipeline over the given article ids.
func runExplicit(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	idsRaw := fs.String("ids", "", "Comma separated article ids")
	asJSON := fs.Bool("json", false, "Print the full run report as JSON")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	ids, err := parseIDs(*idsRaw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid flags: %v\n", err)
		return 2
	}

	return withPipeline(envLoader, *timeout, func(ctx context.Context, svc *pipeline.Service) int {
		report, err := svc.RunNew(ctx, ids)
		return finishReports(err, *asJSON, report)
	})
}

// runCategory rescans one category, or every configured category when none is given.
func runCategory(args []string) int {
	fs := flag.NewFlagSet("run-category", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	category := fs.String("category", "", "Category to rescan (empty runs every configured category)")
	hours := fs.Int("hours", 0, "Trailing window in hours (0 uses the configured window)")
	limit := fs.Int("limit", 0, "Maximum articles per category (0 uses the configured limit)")
	asJSON := fs.Bool("json", false, "Print the full run reports as JSON")
	timeout := fs.Duration("timeout", 60*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *hours < 0 || *limit < 0 {
		fmt.Fprintln(os.Stderr, "Invalid flags: --hours and --limit must be >= 0")
		return 2
	}
	window := time.Duration(*hours) * time.Hour

	return withPipeline(envLoader, *timeout, func(ctx context.Context, svc *pipeline.Service) int {
		name := strings.TrimSpace(*category)
		if name != "" {
			report, err := svc.RunCategory(ctx, name, window, *limit)
			return finishReports(err, *asJSON, report)
		}
		reports, err := svc.RunCategories(ctx, nil, window, *limit)
		return finishReports(err, *asJSON, reports...)
	})
}

func runClusterKeywords(args []string) int {
	fs := flag.NewFlagSet("cluster-keywords", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	limit := fs.Int("limit", 1000, "Maximum unclustered articles to scan")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "Invalid flags: --limit must be > 0")
		return 2
	}

	return withPipeline(envLoader, *timeout, func(ctx context.Context, svc *pipeline.Service) int {
		result, err := svc.ClusterByKeywords(ctx, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Keyword clustering failed: %v\n", err)
			return 1
		}
		fmt.Printf("cluster-keywords scanned=%d assigned=%d skipped=%d\n", result.Scanned, result.Assigned, result.Skipped)
		return 0
	})
}

func withPipeline(envLoader *cli.EnvLoader, timeout time.Duration, fn func(ctx context.Context, svc *pipeline.Service) int) int {
	cfg, logger, ok := loadRuntime(envLoader)
	if !ok {
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	svc, release, err := newPipeline(ctx, pool, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("pipeline setup failed")
		fmt.Fprintf(os.Stderr, "Pipeline setup failed: %v\n", err)
		return 1
	}
	defer release()

	return fn(ctx, svc)
}

func finishReports(err error, asJSON bool, reports ...pipeline.RunReport) int {
	if asJSON {
		if encodeErr := writeReportsJSON(os.Stdout, reports); encodeErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode report: %v\n", encodeErr)
			return 1
		}
	} else {
		for _, report := range reports {
			printRunReport(report)
		}
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Pipeline failed: %v\n", err)
		return 1
	}
	for _, report := range reports {
		if report.HasErrors() {
			return 1
		}
	}
	return 0
}

func printRunReport(report pipeline.RunReport) {
	fmt.Println(formatRunReport(report))
	for _, stage := range report.Stages {
		if stage.Err != nil {
			fmt.Fprintf(os.Stderr, "stage %s failed: %v\n", stage.Stage, stage.Err)
		}
	}
}

func formatRunReport(report pipeline.RunReport) string {
	enriched := report.Stage(pipeline.StageEnrich)
	digested := report.Stage(pipeline.StageAISummary)
	embedded := report.Stage(pipeline.StageEmbed)
	scored := report.Stage(pipeline.StageCluster)
	bonus := report.Stage(pipeline.StageBonus)
	summarized := report.Stage(pipeline.StageSummarize)
	return fmt.Sprintf(
		"run run_id=%s mode=%s input=%d enriched=%d ai_summarized=%d embedded=%d embed_failed=%d scored=%d score_failed=%d bonus=%d clusters=%d summarized=%d errors=%t",
		report.RunID,
		report.Mode,
		report.Input,
		enriched.Succeeded,
		digested.Succeeded,
		embedded.Succeeded,
		embedded.Failed,
		scored.Succeeded,
		scored.Failed,
		bonus.Succeeded,
		len(report.ClusterIDs),
		summarized.Succeeded,
		report.HasErrors(),
	)
}

func writeReportsJSON(out io.Writer, reports []pipeline.RunReport) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if len(reports) == 1 {
		return encoder.Encode(reports[0])
	}
	return encoder.Encode(reports)
}
