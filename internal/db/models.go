package db

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// Article maps articles.
type Article struct {
	ID           int64            `gorm:"column:id;primaryKey;autoIncrement"`
	Provider     string           `gorm:"column:provider;type:text;not null;uniqueIndex:ux_articles_provider_source,priority:1"`
	SourceID     string           `gorm:"column:source_id;type:text;not null;uniqueIndex:ux_articles_provider_source,priority:2"`
	SourceName   *string          `gorm:"column:source_name;type:varchar(128)"`
	URL          string           `gorm:"column:url;type:text;not null;default:''"`
	Title        string           `gorm:"column:title;type:text;not null"`
	Body         *string          `gorm:"column:body;type:text"`
	ShortSummary *string          `gorm:"column:short_summary;type:text"`
	AISummary    *string          `gorm:"column:ai_summary;type:text"`
	Category     string           `gorm:"column:category;type:text;not null;default:''"`
	ImageURL     *string          `gorm:"column:image_url;type:text"`
	Language     *string          `gorm:"column:language;type:text"`
	Embedding    *pgvector.Vector `gorm:"column:embedding;type:vector"`
	PublishedAt  *time.Time       `gorm:"column:published_at"`
	FetchedAt    *time.Time       `gorm:"column:fetched_at"`
	EnrichedAt   *time.Time       `gorm:"column:enriched_at"`
	EmbeddedAt   *time.Time       `gorm:"column:embedded_at"`
	EmbedFailAt  *time.Time       `gorm:"column:embed_failed_at"`
	ClusterID    *int64           `gorm:"column:cluster_id;index:idx_articles_cluster_id"`
	QualityScore *int             `gorm:"column:quality_score;type:integer"`
	RiskFlags    string           `gorm:"column:risk_flags;type:text;not null;default:'[]'"`
	Badge        *string          `gorm:"column:badge;type:text"`
	VerifiedAt   *time.Time       `gorm:"column:verified_at"`
	CreatedAt    time.Time        `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;not null"`
}

func (Article) TableName() string { return "articles" }

// Cluster maps news_clusters.
type Cluster struct {
	ID                      int64      `gorm:"column:id;primaryKey;autoIncrement"`
	ClusterKey              string     `gorm:"column:cluster_key;type:varchar(64);not null;uniqueIndex:ux_news_clusters_key"`
	Category                string     `gorm:"column:category;type:text;not null;default:''"`
	RepresentativeArticleID *int64     `gorm:"column:representative_article_id"`
	RepresentativeURL       *string    `gorm:"column:representative_url;type:text"`
	ClusterTitle            *string    `gorm:"column:cluster_title;type:text"`
	ClusterSummary          *string    `gorm:"column:cluster_summary;type:text"`
	ImageURL                *string    `gorm:"column:image_url;type:text"`
	QualityScore            *int       `gorm:"column:quality_score;type:integer"`
	RiskFlags               string     `gorm:"column:risk_flags;type:text;not null;default:'[]'"`
	Badge                   *string    `gorm:"column:badge;type:text"`
	SummarizedAt            *time.Time `gorm:"column:summarized_at"`
	CreatedAt               time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt               time.Time  `gorm:"column:updated_at;not null"`
}

func (Cluster) TableName() string { return "news_clusters" }

// ArticleEvidence maps article_evidence.
type ArticleEvidence struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ArticleID    int64     `gorm:"column:article_id;not null;uniqueIndex:ux_article_evidence_sentence,priority:1"`
	SentIdx      int       `gorm:"column:sent_idx;type:integer;not null;uniqueIndex:ux_article_evidence_sentence,priority:2"`
	SummarySent  string    `gorm:"column:summary_sent;type:text;not null"`
	EvidenceText *string   `gorm:"column:evidence_text;type:text"`
	Score        float64   `gorm:"column:score;type:double precision;not null;default:0"`
	Verdict      string    `gorm:"column:verdict;type:text;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
}

func (ArticleEvidence) TableName() string { return "article_evidence" }

// PipelineRun maps pipeline_runs: one row per orchestrator invocation.
type PipelineRun struct {
	ID         int64      `gorm:"column:id;primaryKey;autoIncrement"`
	RunUUID    string     `gorm:"column:run_uuid;type:varchar(36);not null;uniqueIndex:ux_pipeline_runs_uuid"`
	Mode       string     `gorm:"column:mode;type:text;not null"`
	InputCount int        `gorm:"column:input_count;type:integer;not null;default:0"`
	Status     string     `gorm:"column:status;type:text;not null;default:'running'"`
	Report     *string    `gorm:"column:report;type:text"`
	StartedAt  time.Time  `gorm:"column:started_at;not null"`
	FinishedAt *time.Time `gorm:"column:finished_at"`
}

func (PipelineRun) TableName() string { return "pipeline_runs" }

func autoMigrateModels() []any {
	return []any{
		&Cluster{},
		&Article{},
		&ArticleEvidence{},
		&PipelineRun{},
	}
}
