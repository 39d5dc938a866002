// Package ratelimit provides an echo rate limiter store backed by redis so
// the limit holds across server replicas.
package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "orchestrator-ratelimit-"

type RedisLimiterConfig struct {
	RedisClient *redis.Client
	LimiterKey  string
	PerMinute   int64
	FailOpen    bool
}

type RedisLimiterStore struct {
	db         *redis.Client
	limiterKey string
	perMinute  int64
	failOpen   bool
}

func NewRedisLimitStore(config RedisLimiterConfig) *RedisLimiterStore {
	return &RedisLimiterStore{
		db:         config.RedisClient,
		limiterKey: config.LimiterKey,
		perMinute:  config.PerMinute,
		failOpen:   config.FailOpen,
	}
}

// Allow decrements the caller's per-minute budget. Concurrent writers can
// let a handful of extra requests through; that beats holding a distributed
// lock on every poll.
func (store *RedisLimiterStore) Allow(identifier string) (bool, error) {
	ctx := context.Background()
	key := keyPrefix + store.limiterKey + "-" + identifier

	remainingRaw, err := store.db.Get(ctx, key).Result()
	switch {
	case err == nil:
		remaining, err := strconv.Atoi(remainingRaw)
		if err != nil {
			return store.failOpen, err
		}
		if remaining <= 0 {
			return false, nil
		}
	case errors.Is(err, redis.Nil):
		store.db.Set(ctx, key, store.perMinute, time.Minute)
	default:
		return store.failOpen, err
	}

	store.db.Decr(ctx, key)
	return true, nil
}
