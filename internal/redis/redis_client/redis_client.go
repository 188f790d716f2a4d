// Package redis_client opens the Redis connection the change feed listens
// on.
package redis_client

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const poolCap = 512

// NewRedisClient dials Redis and verifies the connection with a ping.
// poolSize zero derives the pool from the CPU count; the feed holds one
// pub/sub connection per subscribed table on top of the command pool.
func NewRedisClient(host string, port, poolSize int) (*redis.Client, error) {
	if poolSize <= 0 {
		poolSize = runtime.NumCPU() * 8
	}
	if poolSize > poolCap {
		poolSize = poolCap
	}

	rc := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rc.Ping(ctx).Result(); err != nil {
		err = fmt.Errorf("redis connection failed: %w", err)
		zap.L().Error("redis_connect", zap.Error(err))
		return nil, err
	}
	return rc, nil
}
