package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/sentineleye/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	SetResults(ctx context.Context, results models.ResultsResponse, ttl time.Duration) error
	GetResults(ctx context.Context, jobID string) (models.ResultsResponse, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// SetResults stores the full results payload of a completed job.
func (c *RedisCache) SetResults(ctx context.Context, results models.ResultsResponse, ttl time.Duration) error {
	if results.JobID == "" {
		return fmt.Errorf("cache results: job id is required")
	}
	payload, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return c.Set(ctx, ResultsKey(results.JobID), payload, ttl)
}

// GetResults returns the cached payload for jobID, if any.
func (c *RedisCache) GetResults(ctx context.Context, jobID string) (models.ResultsResponse, bool, error) {
	key := ResultsKey(jobID)
	raw, found, err := c.Get(ctx, key)
	if err != nil || !found {
		return models.ResultsResponse{}, false, err
	}
	var results models.ResultsResponse
	if err := json.Unmarshal(raw, &results); err != nil {
		// Unreadable entries are dropped so the next read refetches.
		_ = c.Delete(ctx, key)
		return models.ResultsResponse{}, false, fmt.Errorf("decode cached results: %w", err)
	}
	return results, true, nil
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)
