package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cabinet-admin/internal/config"
)

// RedisCounter shares windows across server replicas.
type RedisCounter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisClient builds a single-node or cluster client from config.
func NewRedisClient(cfg config.RedisConfig) redis.UniversalClient {
	if cfg.Cluster && len(cfg.Addrs) > 1 {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
		})
	}
	addr := "localhost:6379"
	if len(cfg.Addrs) > 0 {
		addr = cfg.Addrs[0]
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisCounter(client redis.UniversalClient, prefix string) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix}
}

// Incr runs INCR and EXPIRE NX in one MULTI/EXEC. NX only sets a TTL on a
// key that has none, so a window whose TTL was lost gets one on the next hit.
func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := r.prefix + ":" + key
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", k, err)
	}
	return incr.Val(), nil
}
