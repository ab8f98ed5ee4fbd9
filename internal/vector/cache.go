package vector

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pgvector/pgvector-go"
)

const DefaultCacheSize = 4096

// Cache memoizes decoded vectors by article id. Candidate pools overlap heavily across
// the articles of one batch. Entries are never invalidated, which holds because an
// article's embedding is only ever written once.
type Cache struct {
	entries *lru.Cache[int64, []float64]
}

func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[int64, []float64](size)
	if err != nil {
		return nil, fmt.Errorf("create vector cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Decode returns the decoded vector for id, decoding and remembering v on a miss.
// A nil Cache decodes without memoizing.
func (c *Cache) Decode(id int64, v pgvector.Vector) []float64 {
	if c == nil || c.entries == nil {
		return Decode(v)
	}
	if cached, ok := c.entries.Get(id); ok {
		return cached
	}
	decoded := Decode(v)
	if len(decoded) > 0 {
		c.entries.Add(id, decoded)
	}
	return decoded
}

func (c *Cache) Len() int {
	if c == nil || c.entries == nil {
		return 0
	}
	return c.entries.Len()
}
