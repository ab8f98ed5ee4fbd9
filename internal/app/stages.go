package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/trustwire/internal/cli"
	"horse.fit/trustwire/internal/config"
	"horse.fit/trustwire/internal/db"
)

// stageFunc runs one stage over ids and returns its key=value summary.
type stageFunc func(ctx context.Context, pool *db.Pool, cfg *config.Config, logger zerolog.Logger, ids []int64) (string, error)

func runEnrich(args []string) int {
	return runStageCommand("enrich", args, func(ctx context.Context, pool *db.Pool, cfg *config.Config, logger zerolog.Logger, ids []int64) (string, error) {
		result, err := newEnricher(pool, cfg, logger).EnrichArticles(ctx, ids)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("tried=%d filled=%d failed=%d", result.Tried, result.Filled, result.Failed), nil
	})
}

func runSummarizeArticles(args []string) int {
	return runStageCommand("summarize-articles", args, func(ctx context.Context, pool *db.Pool, cfg *config.Config, logger zerolog.Logger, ids []int64) (string, error) {
		result, err := newSummarizer(pool, cfg, logger).SummarizeArticles(ctx, ids)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("attempted=%d summarized=%d failed=%d", result.Attempted, result.Summarized, result.Failed), nil
	})
}

func runEmbed(args []string) int {
	return runStageCommand("embed", args, func(ctx context.Context, pool *db.Pool, cfg *config.Config, logger zerolog.Logger, ids []int64) (string, error) {
		svc, release, err := newPipeline(ctx, pool, cfg, logger)
		if err != nil {
			return "", err
		}
		defer release()

		result, err := svc.EmbedArticles(ctx, ids)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("attempted=%d embedded=%d failed=%d", result.Attempted, result.Embedded, result.Failed), nil
	})
}

func runCluster(args []string) int {
	return runStageCommand("cluster", args, func(ctx context.Context, pool *db.Pool, cfg *config.Config, logger zerolog.Logger, ids []int64) (string, error) {
		svc, release, err := newPipeline(ctx, pool, cfg, logger)
		if err != nil {
			return "", err
		}
		defer release()

		result, err := svc.ClusterAndScore(ctx, ids)
		summary := fmt.Sprintf(
			"attempted=%d assigned=%d scored=%d failed=%d cross_verified=%d clusters=%d",
			result.Attempted,
			result.Assigned,
			result.Scored,
			result.Failed,
			result.CrossVerified,
			len(result.ClusterIDs),
		)
		if err != nil {
			fmt.Printf("cluster %s\n", summary)
			return "", err
		}
		return summary, nil
	})
}

func runBonus(args []string) int {
	return runStageCommand("bonus", args, func(ctx context.Context, pool *db.Pool, cfg *config.Config, logger zerolog.Logger, ids []int64) (string, error) {
		svc, release, err := newPipeline(ctx, pool, cfg, logger)
		if err != nil {
			return "", err
		}
		defer release()

		result, err := svc.ApplyCrossSourceBonus(ctx, ids)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("clusters=%d corroborated=%d adjusted=%d", result.Clusters, result.Corroborated, result.Adjusted), nil
	})
}

// runSummarize takes cluster ids rather than article ids.
func runSummarize(args []string) int {
	return runStageCommand("summarize", args, func(ctx context.Context, pool *db.Pool, cfg *config.Config, logger zerolog.Logger, ids []int64) (string, error) {
		result, err := newSummarizer(pool, cfg, logger).SummarizeClusters(ctx, ids)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("attempted=%d summarized=%d failed=%d", result.Attempted, result.Summarized, result.Failed), nil
	})
}

func runStageCommand(name string, args []string, stage stageFunc) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	idsRaw := fs.String("ids", "", "Comma separated ids to process")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")

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

	cfg, logger, ok := loadRuntime(envLoader)
	if !ok {
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	summary, err := stage(ctx, pool, cfg, logger, ids)
	if err != nil {
		logger.Error().Err(err).Str("stage", name).Msg("stage failed")
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", name, err)
		return 1
	}

	fmt.Printf("%s %s ids=%s\n", name, summary, joinIDs(ids))
	return 0
}
