package config

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis opens the optional Redis connection. It returns nil clients
// when REDIS_ADDRESS is not set; callers treat that as "no locking".
func ConnectRedis(ctx context.Context, s Settings) (*redis.Client, *redislock.Client, error) {
	if s.RedisAddress == "" {
		GetLogger().Info("REDIS_ADDRESS not set; AI summary locks disabled")
		return nil, nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     s.RedisAddress,
		Password: s.RedisPassword,
		DB:       0,
		PoolSize: 20,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect redis at %s: %w", s.RedisAddress, err)
	}

	GetLogger().Infof("✅ connected to redis (addr=%s)", s.RedisAddress)
	return rdb, redislock.New(rdb), nil
}
