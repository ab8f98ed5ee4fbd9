package app

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/trustwire/internal/cli"
	"horse.fit/trustwire/internal/cluster"
	"horse.fit/trustwire/internal/config"
	"horse.fit/trustwire/internal/db"
	"horse.fit/trustwire/internal/embed"
	"horse.fit/trustwire/internal/enrich"
	"horse.fit/trustwire/internal/logging"
	"horse.fit/trustwire/internal/pipeline"
	"horse.fit/trustwire/internal/quality"
	"horse.fit/trustwire/internal/summarize"
	"horse.fit/trustwire/internal/vector"
)

// loadRuntime loads the env file, config and logger shared by every database command.
// It reports false after printing the failure.
func loadRuntime(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, bool) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, zerolog.Nop(), false
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, zerolog.Nop(), false
	}
	return cfg, logger, true
}

func scorerConfig(t config.Tuning) quality.Config {
	return quality.Config{
		EntailThreshold:  t.EntailThreshold,
		MinEntailRatio:   t.MinEntailRatio,
		MismatchRatio:    t.MismatchRatio,
		EvidenceWeight:   t.EvidenceWeight,
		MismatchPenalty:  t.MismatchPenalty,
		LowSourcePenalty: t.LowSourcePenalty,
		GoodBadgeScore:   t.GoodBadgeScore,
		WarnBadgeScore:   t.WarnBadgeScore,
		CrossSourceBonus: t.CrossSourceBonus,

		CrossVerifyThreshold: t.CrossVerifyThreshold,
		CrossVerifyBoostOne:  t.CrossVerifyBoostOne,
		CrossVerifyBoostTwo:  t.CrossVerifyBoostTwo,
		CrossVerifyBoostMax:  t.CrossVerifyBoostMax,
	}
}

// newBatchScorer returns the external scorer when a command is configured, otherwise
// the in-process one.
func newBatchScorer(cfg *config.Config, scorer *quality.Scorer, logger zerolog.Logger) (quality.BatchScorer, error) {
	command := quality.ParseCommand(cfg.QualityScorerCommand)
	if len(command) == 0 {
		return quality.NewLocalBatchScorer(scorer, cfg.ScoringParallelism), nil
	}
	return quality.NewExternalBatchScorer(quality.ExternalOptions{
		Command: command,
		Timeout: cfg.QualityScorerTimeout,
	}, logger)
}

// newEmbedder resolves the configured provider and wraps it in the Redis vector cache
// when REDIS_URL is set. The returned func releases the cache connection.
func newEmbedder(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (embed.Provider, func(), error) {
	registry := embed.NewRegistry(cfg.EmbeddingProviderName())
	if err := registry.Register("http", func() (embed.Provider, error) {
		return embed.NewHTTPProvider(cfg.EmbeddingEndpoint, cfg.EmbeddingModel, cfg.EmbeddingTimeout), nil
	}); err != nil {
		return nil, nil, err
	}
	if err := registry.Register("openai", func() (embed.Provider, error) {
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required")
		}
		return embed.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel), nil
	}); err != nil {
		return nil, nil, err
	}

	provider, err := registry.Provider(cfg.EmbeddingProviderName())
	if err != nil {
		return nil, nil, err
	}

	if strings.TrimSpace(cfg.RedisURL) == "" {
		return provider, func() {}, nil
	}
	store, err := embed.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	cached := embed.NewCachedProvider(provider, store, cfg.EmbeddingCacheTTL, provider.Name()+":"+cfg.EmbeddingModel, logger)
	return cached, func() { _ = store.Close() }, nil
}

func newGenerator(cfg *config.Config) summarize.Generator {
	switch cfg.SummaryProviderName() {
	case "local":
		return summarize.NewLocalGenerator(cfg.SummaryEndpoint, cfg.SummaryModel, 0)
	case "openai":
		return summarize.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.SummaryModel)
	default:
		return summarize.ExtractiveGenerator{}
	}
}

func newEnricher(pool *db.Pool, cfg *config.Config, logger zerolog.Logger) *enrich.Service {
	return enrich.NewService(pool, enrich.NewReader(enrich.FetchOptions{}), cfg.Tuning.EnrichMinChars, logger)
}

func newSummarizer(pool *db.Pool, cfg *config.Config, logger zerolog.Logger) *summarize.Service {
	return summarize.NewService(pool, newGenerator(cfg), logger)
}

func pipelineOptions(t config.Tuning, embedRate float64) pipeline.Options {
	return pipeline.Options{
		Retriever: cluster.RetrieverConfig{
			Window:    t.CandidateWindow,
			PoolLimit: t.CandidatePoolLimit,
			TopK:      t.CandidateTopK,
		},
		Keys: cluster.KeyConfig{
			DedupThreshold: t.DedupThreshold,
			MinTitleLength: t.MinTitleLength,
			MaxTitleLength: t.MaxTitleLength,
		},
		EmbedRate:      embedRate,
		SummarizeLimit: t.SummarizeLimit,
		CategoryWindow: t.CategoryWindow,
		CategoryLimit:  t.CategoryLimit,
		Categories:     t.Categories,
	}
}

// newPipeline wires every stage collaborator from config. The returned func releases
// resources held by the collaborators.
func newPipeline(ctx context.Context, pool *db.Pool, cfg *config.Config, logger zerolog.Logger) (*pipeline.Service, func(), error) {
	embedder, release, err := newEmbedder(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("embedding provider: %w", err)
	}

	scorer := quality.NewScorer(scorerConfig(cfg.Tuning))
	batch, err := newBatchScorer(cfg, scorer, logger)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("batch scorer: %w", err)
	}

	cache, err := vector.NewCache(vector.DefaultCacheSize)
	if err != nil {
		release()
		return nil, nil, err
	}

	publishers, err := enrich.NewPublisherResolver(enrich.FetchOptions{}, enrich.DefaultPublisherCacheSize)
	if err != nil {
		release()
		return nil, nil, err
	}

	summarizer := newSummarizer(pool, cfg, logger)
	svc := pipeline.NewService(pipeline.Deps{
		Store:             pool,
		Enricher:          newEnricher(pool, cfg, logger),
		ArticleSummarizer: summarizer,
		Embedder:          embedder,
		Scorer:            scorer,
		BatchScorer:       batch,
		Summarizer:        summarizer,
		Publishers:        publishers,
		VectorCache:       cache,
	}, pipelineOptions(cfg.Tuning, cfg.EmbeddingRatePerSec), logger)
	return svc, release, nil
}

// parseIDs parses a comma separated id list, dropping duplicates and keeping order.
func parseIDs(raw string) ([]int64, error) {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid article id %q", part)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("--ids is required")
	}
	return ids, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}
