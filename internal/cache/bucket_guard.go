package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/irfndi/pcr-tracker-go/internal/utils"
)

const (
	bucketRunning = "running"
	bucketDone    = "done"
)

// BucketGuard makes update cycles idempotent per minute bucket. Claim
// returns utils.ErrBucketCompleted when the bucket already produced a row
// and utils.ErrConcurrentUpdateRejected when another runner holds it.
// Release drops a running claim only; Forget drops the bucket whatever its
// state, after the rows it produced were cleared.
type BucketGuard interface {
	Claim(ctx context.Context, bucket string) error
	Complete(ctx context.Context, bucket string) error
	Release(ctx context.Context, bucket string) error
	Forget(ctx context.Context, bucket string) error
}

// RedisBucketGuard shares bucket state between processes through Redis.
type RedisBucketGuard struct {
	redis       *redis.Client
	prefix      string
	claimTTL    time.Duration
	completeTTL time.Duration
}

// NewRedisBucketGuard creates a guard. claimTTL bounds how long a crashed
// runner can hold a bucket; completeTTL how long finished buckets are
// remembered.
func NewRedisBucketGuard(redisClient *redis.Client, claimTTL, completeTTL time.Duration) *RedisBucketGuard {
	if claimTTL <= 0 {
		claimTTL = 2 * time.Minute
	}
	if completeTTL <= 0 {
		completeTTL = 24 * time.Hour
	}
	return &RedisBucketGuard{
		redis:       redisClient,
		prefix:      "pcr:cycle:",
		claimTTL:    claimTTL,
		completeTTL: completeTTL,
	}
}

func (g *RedisBucketGuard) Claim(ctx context.Context, bucket string) error {
	key := g.prefix + bucket
	ok, err := g.redis.SetNX(ctx, key, bucketRunning, g.claimTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to claim bucket %s: %w", bucket, err)
	}
	if ok {
		return nil
	}

	state, err := g.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; try once more.
		ok, err = g.redis.SetNX(ctx, key, bucketRunning, g.claimTTL).Result()
		if err == nil && ok {
			return nil
		}
		return utils.ErrConcurrentUpdateRejected
	}
	if err != nil {
		return fmt.Errorf("failed to read bucket %s: %w", bucket, err)
	}
	if state == bucketDone {
		return utils.ErrBucketCompleted
	}
	return utils.ErrConcurrentUpdateRejected
}

func (g *RedisBucketGuard) Complete(ctx context.Context, bucket string) error {
	if err := g.redis.Set(ctx, g.prefix+bucket, bucketDone, g.completeTTL).Err(); err != nil {
		return fmt.Errorf("failed to complete bucket %s: %w", bucket, err)
	}
	return nil
}

func (g *RedisBucketGuard) Release(ctx context.Context, bucket string) error {
	key := g.prefix + bucket
	state, err := g.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read bucket %s: %w", bucket, err)
	}
	if state != bucketRunning {
		return nil
	}
	return g.redis.Del(ctx, key).Err()
}

func (g *RedisBucketGuard) Forget(ctx context.Context, bucket string) error {
	if err := g.redis.Del(ctx, g.prefix+bucket).Err(); err != nil {
		return fmt.Errorf("failed to forget bucket %s: %w", bucket, err)
	}
	return nil
}

// MemoryBucketGuard is the single-process guard used when Redis is not
// configured. Only the most recent buckets are remembered.
type MemoryBucketGuard struct {
	mu      sync.Mutex
	buckets map[string]string
	order   []string
	limit   int
}

// NewMemoryBucketGuard remembers up to limit buckets.
func NewMemoryBucketGuard(limit int) *MemoryBucketGuard {
	if limit <= 0 {
		limit = 1440
	}
	return &MemoryBucketGuard{buckets: make(map[string]string), limit: limit}
}

func (g *MemoryBucketGuard) Claim(_ context.Context, bucket string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.buckets[bucket] {
	case bucketDone:
		return utils.ErrBucketCompleted
	case bucketRunning:
		return utils.ErrConcurrentUpdateRejected
	}
	g.buckets[bucket] = bucketRunning
	g.order = append(g.order, bucket)
	for len(g.order) > g.limit {
		delete(g.buckets, g.order[0])
		g.order = g.order[1:]
	}
	return nil
}

func (g *MemoryBucketGuard) Complete(_ context.Context, bucket string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.buckets[bucket]; !ok {
		g.order = append(g.order, bucket)
	}
	g.buckets[bucket] = bucketDone
	return nil
}

func (g *MemoryBucketGuard) Release(_ context.Context, bucket string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.buckets[bucket] != bucketRunning {
		return nil
	}
	g.drop(bucket)
	return nil
}

func (g *MemoryBucketGuard) Forget(_ context.Context, bucket string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.buckets[bucket]; ok {
		g.drop(bucket)
	}
	return nil
}

func (g *MemoryBucketGuard) drop(bucket string) {
	delete(g.buckets, bucket)
	for i, b := range g.order {
		if b == bucket {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}
