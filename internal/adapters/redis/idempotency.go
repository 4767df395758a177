// Package redis provides Redis-backed adapters for the export service,
// used when multiple instances must share idempotency state.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blog-ueditor/export-api/internal/store"
)

// IdempotencyIndex is a Redis-backed idempotency-key index. TTL semantics
// are delegated to Redis so entries expire with their job.
type IdempotencyIndex struct {
	client redis.UniversalClient
	prefix string
}

// NewIdempotencyIndex creates a Redis-backed idempotency index.
func NewIdempotencyIndex(client redis.UniversalClient) *IdempotencyIndex {
	return &IdempotencyIndex{
		client: client,
		prefix: "export:idem:",
	}
}

// NewIdempotencyIndexWithPrefix creates an index with a custom key prefix.
func NewIdempotencyIndexWithPrefix(client redis.UniversalClient, prefix string) *IdempotencyIndex {
	return &IdempotencyIndex{
		client: client,
		prefix: prefix,
	}
}

var _ store.IdempotencyIndex = (*IdempotencyIndex)(nil)

// Put records key → jobID with the given TTL.
func (i *IdempotencyIndex) Put(ctx context.Context, key, jobID string, ttl time.Duration) error {
	if key == "" {
		return errors.New("idempotency key cannot be empty")
	}
	if ttl <= 0 {
		// Already expired, don't record it.
		return errors.New("idempotency ttl must be positive")
	}
	return i.client.Set(ctx, i.prefix+key, jobID, ttl).Err()
}

// Lookup returns the job ID recorded for key, or ok=false once expired.
func (i *IdempotencyIndex) Lookup(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	jobID, err := i.client.Get(ctx, i.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return jobID, true, nil
}

// Forget drops the key. Absent keys are not an error.
func (i *IdempotencyIndex) Forget(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return i.client.Del(ctx, i.prefix+key).Err()
}
