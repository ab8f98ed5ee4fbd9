package cluster

import (
	"context"
	"fmt"
	"sort"
	"time"

	"horse.fit/trustwire/internal/db"
	"horse.fit/trustwire/internal/vector"
)

const (
	DefaultCandidateWindow    = 48 * time.Hour
	DefaultCandidatePoolLimit = 800
	DefaultCandidateTopK      = 20
)

// PoolSource lists candidate pools.
type PoolSource interface {
	ListCandidatePool(ctx context.Context, query db.CandidatePoolQuery) ([]db.CandidateRow, error)
}

type RetrieverConfig struct {
	Window    time.Duration
	PoolLimit int
	TopK      int
}

func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		Window:    DefaultCandidateWindow,
		PoolLimit: DefaultCandidatePoolLimit,
		TopK:      DefaultCandidateTopK,
	}
}

// Query is the article whose neighbours are requested.
type Query struct {
	ID          int64
	Category    string
	PublishedAt time.Time
	Vector      []float64
}

// Retriever ranks recent same-category articles by cosine similarity.
type Retriever struct {
	source PoolSource
	cfg    RetrieverConfig
	cache  *vector.Cache
}

// NewRetriever builds a retriever. cache may be nil.
func NewRetriever(source PoolSource, cfg RetrieverConfig, cache *vector.Cache) *Retriever {
	if cfg.Window <= 0 {
		cfg.Window = DefaultCandidateWindow
	}
	if cfg.PoolLimit <= 0 {
		cfg.PoolLimit = DefaultCandidatePoolLimit
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultCandidateTopK
	}
	return &Retriever{source: source, cfg: cfg, cache: cache}
}

// TopK returns up to TopK candidates published in [PublishedAt-Window, PublishedAt],
// best first. The query article and pool members without a usable embedding are
// excluded; equal similarities keep pool order.
func (r *Retriever) TopK(ctx context.Context, q Query) ([]Candidate, error) {
	if r == nil || r.source == nil {
		return nil, fmt.Errorf("candidate retriever is not initialized")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("article %d has no embedding", q.ID)
	}

	pool, err := r.source.ListCandidatePool(ctx, db.CandidatePoolQuery{
		Category: q.Category,
		From:     q.PublishedAt.Add(-r.cfg.Window),
		To:       q.PublishedAt,
		Limit:    r.cfg.PoolLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("load candidate pool for article %d: %w", q.ID, err)
	}

	out := make([]Candidate, 0, len(pool))
	for _, row := range pool {
		if row.ID == q.ID {
			continue
		}
		values := r.cache.Decode(row.ID, row.Embedding)
		if len(values) == 0 {
			continue
		}
		out = append(out, Candidate{
			Subject: Subject{
				ID:          row.ID,
				Provider:    row.Provider,
				URL:         row.URL,
				Title:       row.Title,
				PublishedAt: row.PublishedAt,
			},
			Similarity: vector.Cosine(q.Vector, values),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if len(out) > r.cfg.TopK {
		out = out[:r.cfg.TopK]
	}
	return out, nil
}

// Best returns the first candidate, or nil.
func Best(candidates []Candidate) *Candidate {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	return &best
}
