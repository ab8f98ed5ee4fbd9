package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"horse.fit/trustwire/internal/cli"
	"horse.fit/trustwire/internal/db"
	"horse.fit/trustwire/internal/payloadschema"
)

type articleInserter interface {
	InsertArticle(ctx context.Context, a db.NewArticle) (int64, bool, error)
}

type ingestResult struct {
	Items      int
	Inserted   int
	Duplicates int
	Invalid    int
	IDs        []int64
}

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	file := fs.String("file", "-", "Path to a JSON article item or array of items (- reads stdin)")
	process := fs.Bool("process", false, "Run the pipeline over newly inserted articles")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	raw, err := readInput(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid input: %v\n", err)
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

	result, err := ingestItems(ctx, pool, raw, os.Stderr)
	if err != nil {
		logger.Error().Err(err).Msg("ingest failed")
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		return 1
	}

	logger.Info().
		Int("items", result.Items).
		Int("inserted", result.Inserted).
		Int("duplicates", result.Duplicates).
		Int("invalid", result.Invalid).
		Msg("ingest completed")
	fmt.Printf(
		"ingest items=%d inserted=%d duplicates=%d invalid=%d\n",
		result.Items,
		result.Inserted,
		result.Duplicates,
		result.Invalid,
	)

	if *process && len(result.IDs) > 0 {
		svc, release, err := newPipeline(ctx, pool, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Pipeline setup failed: %v\n", err)
			return 1
		}
		defer release()

		report, err := svc.RunNew(ctx, result.IDs)
		printRunReport(report)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Pipeline failed: %v\n", err)
			return 1
		}
	}

	if result.Invalid > 0 {
		return 1
	}
	return 0
}

// ingestItems validates and inserts every item of raw. Invalid items are reported and
// skipped; a database error aborts.
func ingestItems(ctx context.Context, store articleInserter, raw []byte, report io.Writer) (ingestResult, error) {
	var result ingestResult
	items, err := payloadschema.SplitArticleItems(raw)
	if err != nil {
		return result, err
	}

	for idx, rawItem := range items {
		result.Items++
		item, err := payloadschema.ValidateArticleItem(rawItem)
		if err != nil {
			result.Invalid++
			fmt.Fprintf(report, "INVALID item[%d]: %v\n", idx, err)
			continue
		}
		publishedAt, err := item.PublishedTime()
		if err != nil {
			result.Invalid++
			fmt.Fprintf(report, "INVALID item[%d]: published_at: %v\n", idx, err)
			continue
		}

		id, inserted, err := store.InsertArticle(ctx, db.NewArticle{
			Provider:     strings.TrimSpace(item.Provider),
			SourceID:     strings.TrimSpace(item.SourceID),
			SourceName:   item.SourceName,
			URL:          derefString(item.URL),
			Title:        strings.TrimSpace(item.Title),
			Body:         item.Body,
			ShortSummary: item.ShortSummary,
			AISummary:    item.AISummary,
			Category:     strings.TrimSpace(item.Category),
			ImageURL:     item.ImageURL,
			PublishedAt:  publishedAt,
		})
		if err != nil {
			return result, fmt.Errorf("insert item[%d]: %w", idx, err)
		}
		if !inserted {
			result.Duplicates++
			continue
		}
		result.Inserted++
		result.IDs = append(result.IDs, id)
	}
	return result, nil
}

func readInput(path string) ([]byte, error) {
	path = strings.TrimSpace(path)
	var (
		raw []byte
		err error
	)
	if path == "" || path == "-" {
		raw, err = io.ReadAll(os.Stdin)
		path = "stdin"
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return raw, nil
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
