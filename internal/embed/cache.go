package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// VectorStore is the key/value backend of CachedProvider.
type VectorStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisStore keeps cached vectors in redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to rawURL (redis://...) and pings it.
func NewRedisStore(ctx context.Context, rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// CachedProvider memoizes another provider by a hash of model and text. Cache faults
// are logged and bypassed; they never fail an embedding.
type CachedProvider struct {
	inner  Provider
	store  VectorStore
	ttl    time.Duration
	prefix string
	logger zerolog.Logger
}

func NewCachedProvider(inner Provider, store VectorStore, ttl time.Duration, namespace string, logger zerolog.Logger) *CachedProvider {
	return &CachedProvider{
		inner:  inner,
		store:  store,
		ttl:    ttl,
		prefix: "trustwire:embed:" + namespace + ":",
		logger: logger,
	}
}

func (c *CachedProvider) Name() string {
	return c.inner.Name()
}

func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	key := c.key(text)

	if raw, ok, err := c.store.Get(ctx, key); err != nil {
		c.logger.Warn().Err(err).Msg("embedding cache read failed")
	} else if ok {
		var cached []float64
		if err := json.Unmarshal(raw, &cached); err == nil && checkVector(cached) == nil {
			return cached, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding malformed cached embedding")
	}

	values, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(values); err == nil {
		if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.Warn().Err(err).Msg("embedding cache write failed")
		}
	}
	return values, nil
}

func (c *CachedProvider) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(sum[:])
}
