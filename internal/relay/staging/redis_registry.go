package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/neon-saas/neon-gateway/internal/relay/domain"
	"github.com/redis/go-redis/v9"
)

const (
	uploadKeyPrefix = "relay:upload:"        // Upload data: relay:upload:{path}
	expiryIndexKey  = "relay:uploads:expiry" // Sorted set of paths scored by expiry (unix seconds)
	entryGrace      = time.Hour              // Extra key lifetime past expiry so the sweeper still sees it
)

// RedisRegistry shares upload lifetimes between gateway instances that mount
// the same staging directory.
type RedisRegistry struct {
	client redis.UniversalClient
}

// NewRedisRegistry creates a RedisRegistry
func NewRedisRegistry(client redis.UniversalClient) *RedisRegistry {
	return &RedisRegistry{client: client}
}

// Put stores an upload and indexes it by expiry
func (r *RedisRegistry) Put(ctx context.Context, up *domain.Upload) error {
	data, err := json.Marshal(up)
	if err != nil {
		return fmt.Errorf("failed to marshal upload: %w", err)
	}

	ttl := up.ExpiresAt.Sub(up.CreatedAt) + entryGrace
	if ttl <= entryGrace {
		ttl = entryGrace
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, uploadKey(up.Path), data, ttl)
	pipe.ZAdd(ctx, expiryIndexKey, redis.Z{
		Score:  float64(up.ExpiresAt.Unix()),
		Member: up.Path,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to register upload: %w", err)
	}
	return nil
}

// Get retrieves an upload by its staged path
func (r *RedisRegistry) Get(ctx context.Context, path string) (*domain.Upload, error) {
	data, err := r.client.Get(ctx, uploadKey(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrUploadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}

	var up domain.Upload
	if err := json.Unmarshal(data, &up); err != nil {
		return nil, fmt.Errorf("failed to unmarshal upload: %w", err)
	}
	return &up, nil
}

// Delete removes an upload and its index entry
func (r *RedisRegistry) Delete(ctx context.Context, path string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, uploadKey(path))
	pipe.ZRem(ctx, expiryIndexKey, path)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	return nil
}

// Expired lists uploads whose expiry score is at or before now. Index members
// whose data key already expired are returned with only Path set.
func (r *RedisRegistry) Expired(ctx context.Context, now time.Time) ([]domain.Upload, error) {
	paths, err := r.client.ZRangeByScore(ctx, expiryIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list expired uploads: %w", err)
	}

	out := make([]domain.Upload, 0, len(paths))
	for _, p := range paths {
		up, err := r.Get(ctx, p)
		if errors.Is(err, domain.ErrUploadNotFound) {
			out = append(out, domain.Upload{Path: p})
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *up)
	}
	return out, nil
}

func uploadKey(path string) string {
	return uploadKeyPrefix + path
}
