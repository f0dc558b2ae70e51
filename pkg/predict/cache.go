package predict

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheConfig configures the Redis prediction cache.
type CacheConfig struct {
	// KeyPrefix namespaces cache keys.
	KeyPrefix string

	// TTL bounds how long a cached prediction stays valid. Predictions are
	// allowed to be stale; the feature vector is part of the key, so a
	// user's new responses naturally miss the cache.
	TTL time.Duration
}

// CachedPredictor decorates a predictor with a Redis read-through cache.
// Cache failures are ignored: a broken cache degrades to the inner
// predictor, never to an error.
type CachedPredictor struct {
	inner  Predictor
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewCachedPredictor creates a Redis-backed prediction cache around inner.
func NewCachedPredictor(inner Predictor, client redis.Cmdable, cfg CacheConfig) (*CachedPredictor, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner predictor cannot be nil")
	}
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "predict"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedPredictor{
		inner:  inner,
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

// Predict serves from cache when possible, otherwise falls through to the
// inner predictor and caches its answer.
func (c *CachedPredictor) Predict(ctx context.Context, f Features) (float64, error) {
	key := c.key(f)

	if val, err := c.client.Get(ctx, key).Result(); err == nil {
		if p, perr := strconv.ParseFloat(val, 64); perr == nil {
			return p, nil
		}
	}

	p, err := c.inner.Predict(ctx, f)
	if err != nil {
		return 0, err
	}

	// Best effort; never propagate cache write failures.
	_ = c.client.Set(ctx, key, strconv.FormatFloat(p, 'g', -1, 64), c.ttl).Err()
	return p, nil
}

func (c *CachedPredictor) key(f Features) string {
	return fmt.Sprintf("%s:%0.6f:%0.6f:%d:%d",
		c.prefix, f.UserAccuracy, f.FactAccuracy, f.CountCorrect, f.CountWrong)
}
