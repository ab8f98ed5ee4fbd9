// Package pipeline sequences the enrich, article summary, embed, cluster and quality,
// bonus and cluster summary stages over one batch of articles.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"horse.fit/trustwire/internal/cluster"
	"horse.fit/trustwire/internal/db"
	"horse.fit/trustwire/internal/embed"
	"horse.fit/trustwire/internal/enrich"
	"horse.fit/trustwire/internal/quality"
	"horse.fit/trustwire/internal/summarize"
	"horse.fit/trustwire/internal/vector"
)

const (
	DefaultSummarizeLimit = 50
	DefaultCategoryWindow = 48 * time.Hour
	DefaultCategoryLimit  = 300
)

// Store is the persistence surface of every stage. *db.Pool implements it.
type Store interface {
	cluster.PoolSource

	ListEmbedTargets(ctx context.Context, ids []int64) ([]db.EmbedTarget, error)
	UpdateArticleEmbedding(ctx context.Context, id int64, embedding pgvector.Vector) error
	MarkEmbedFailed(ctx context.Context, id int64) error

	ListScoringTargets(ctx context.Context, ids []int64) ([]db.ScoringTarget, error)
	UpsertCluster(ctx context.Context, in db.ClusterUpsert) (int64, error)
	ApplyArticleUpdates(ctx context.Context, updates []db.ArticleUpdate, verifiedAt time.Time) (int64, error)
	SettleArticles(ctx context.Context, sets []db.EvidenceSet, updates []db.ArticleUpdate, verifiedAt time.Time) (int64, error)

	ListBonusTargets(ctx context.Context, ids []int64) ([]db.BonusTarget, error)
	CountClusterMembers(ctx context.Context, clusterIDs []int64) (map[int64]int, error)
	ApplyBonusUpdates(ctx context.Context, updates []db.BonusUpdate) (int64, error)

	ListKeywordTargets(ctx context.Context, limit int) ([]db.KeywordTarget, error)
	AssignCluster(ctx context.Context, articleID, clusterID int64) error

	ListPendingArticleIDs(ctx context.Context, limit int) ([]int64, error)
	ListCategoryArticleIDs(ctx context.Context, category string, from, to time.Time, limit int) ([]int64, error)

	InsertPipelineRun(ctx context.Context, runUUID, mode string, inputCount int, startedAt time.Time) (int64, error)
	FinishPipelineRun(ctx context.Context, id int64, status string, reportJSON string, finishedAt time.Time) error
}

// Enricher fills missing article bodies.
type Enricher interface {
	EnrichArticles(ctx context.Context, ids []int64) (enrich.Result, error)
}

// ArticleSummarizer fills missing per-article AI summaries.
type ArticleSummarizer interface {
	SummarizeArticles(ctx context.Context, ids []int64) (summarize.ArticleResult, error)
}

// Summarizer fills cluster display fields.
type Summarizer interface {
	SummarizeClusters(ctx context.Context, clusterIDs []int64) (summarize.Result, error)
}

// PublisherResolver maps an aggregator link to the publisher's article URL.
type PublisherResolver interface {
	Resolve(ctx context.Context, link string) (string, bool)
}

// Deps are the collaborators of the pipeline. Enricher, ArticleSummarizer and
// Summarizer may be nil, in which case their stages are skipped. Without Publishers,
// aggregator links are taken as they are.
type Deps struct {
	Store             Store
	Enricher          Enricher
	ArticleSummarizer ArticleSummarizer
	Embedder          embed.Provider
	Scorer            *quality.Scorer
	BatchScorer       quality.BatchScorer
	Summarizer        Summarizer
	Publishers        PublisherResolver
	VectorCache       *vector.Cache
}

type Options struct {
	Retriever      cluster.RetrieverConfig
	Keys           cluster.KeyConfig
	EmbedRate      float64
	SummarizeLimit int
	CategoryWindow time.Duration
	CategoryLimit  int
	Categories     []string
}

type Service struct {
	store      Store
	enricher   Enricher
	digester   ArticleSummarizer
	embedder   embed.Provider
	scorer     *quality.Scorer
	batch      quality.BatchScorer
	summarizer Summarizer
	publishers PublisherResolver
	cache      *vector.Cache
	limiter    *rate.Limiter
	opts       Options
	logger     zerolog.Logger
}

func NewService(deps Deps, opts Options, logger zerolog.Logger) *Service {
	if opts.Keys == (cluster.KeyConfig{}) {
		opts.Keys = cluster.DefaultKeyConfig()
	}
	if opts.SummarizeLimit <= 0 {
		opts.SummarizeLimit = DefaultSummarizeLimit
	}
	if opts.CategoryWindow <= 0 {
		opts.CategoryWindow = DefaultCategoryWindow
	}
	if opts.CategoryLimit <= 0 {
		opts.CategoryLimit = DefaultCategoryLimit
	}

	scorer := deps.Scorer
	if scorer == nil {
		scorer = quality.NewScorer(quality.DefaultConfig())
	}
	batch := deps.BatchScorer
	if batch == nil {
		batch = quality.NewLocalBatchScorer(scorer, 1)
	}

	var limiter *rate.Limiter
	if opts.EmbedRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.EmbedRate), 1)
	}

	return &Service{
		store:      deps.Store,
		enricher:   deps.Enricher,
		digester:   deps.ArticleSummarizer,
		embedder:   deps.Embedder,
		scorer:     scorer,
		batch:      batch,
		summarizer: deps.Summarizer,
		publishers: deps.Publishers,
		cache:      deps.VectorCache,
		limiter:    limiter,
		opts:       opts,
		logger:     logger,
	}
}

func (s *Service) ready() error {
	if s == nil || s.store == nil {
		return fmt.Errorf("pipeline service is not initialized")
	}
	return nil
}

// Categories returns the configured category list for periodic runs.
func (s *Service) Categories() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.opts.Categories...)
}
