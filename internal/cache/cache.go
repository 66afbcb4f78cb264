// Package cache wraps Redis for the job-detail read cache, trimmed from a
// broader general-purpose cache service down to what the Ingress API
// actually needs: JSON get/set/delete plus pattern invalidation on job
// mutation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/trackforge/engine/internal/config"
)

func NewClient(cfg config.RedisConfig) *redis.Client {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err == nil {
			return redis.NewClient(opts)
		}
	}
	return redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})
}

type JobCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

func NewJobCache(client *redis.Client, logger *zap.Logger, ttl time.Duration) *JobCache {
	return &JobCache{client: client, logger: logger, ttl: ttl}
}

func jobKey(id string) string { return "trackforge:job:" + id }

// Get returns the cached JSON blob for a job detail payload, or (nil, nil)
// on a cache miss. Callers unmarshal into their own response DTO.
func (c *JobCache) Get(ctx context.Context, jobID string) ([]byte, error) {
	val, err := c.client.Get(ctx, jobKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (c *JobCache) Set(ctx context.Context, jobID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, jobKey(jobID), data, c.ttl).Err()
}

// Invalidate drops the cached detail for a job. The orchestrator does not
// call it, so a cached detail can lag the job row by up to the cache TTL.
func (c *JobCache) Invalidate(ctx context.Context, jobID string) error {
	return c.client.Del(ctx, jobKey(jobID)).Err()
}

// AcquireLock takes the SETNX-based distributed lock used by the Reaper so
// only one server instance runs a sweep at a time.
func AcquireLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (bool, error) {
	return client.SetNX(ctx, key, "1", ttl).Result()
}

func ReleaseLock(ctx context.Context, client *redis.Client, key string) error {
	return client.Del(ctx, key).Err()
}

// Client exposes the underlying connection so callers that need Redis for a
// different purpose (the distributed rate limiter) can reuse the same pool
// instead of opening a second one.
func (c *JobCache) Client() *redis.Client {
	if c == nil {
		return nil
	}
	return c.client
}
