// Package redisstore backs the worker's dedup window and attempt counters
// with Redis so several worker processes share them.
package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/go-cqrs-bounded-contexts/pkg/helpers"
)

const (
	appliedPrefix  = "cmd:applied:"
	attemptsPrefix = "cmd:attempts:"
)

// DedupStore marks a command applied for Window.
type DedupStore struct {
	RDB    *redis.Client
	Window time.Duration
}

func NewDedupStore(rdb *redis.Client, window time.Duration) *DedupStore {
	return &DedupStore{RDB: rdb, Window: window}
}

func (s *DedupStore) Seen(ctx context.Context, commandID string) (bool, error) {
	n, err := s.RDB.Exists(ctx, appliedPrefix+commandID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *DedupStore) MarkApplied(ctx context.Context, commandID string) error {
	return s.RDB.Set(ctx, appliedPrefix+commandID, 1, s.Window).Err()
}

// AttemptTracker counts failures per command. Counters expire after TTL so a
// command that was never settled does not leak a key.
type AttemptTracker struct {
	RDB *redis.Client
	TTL time.Duration
}

func NewAttemptTracker(rdb *redis.Client, ttl time.Duration) *AttemptTracker {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AttemptTracker{RDB: rdb, TTL: ttl}
}

func (t *AttemptTracker) Increment(ctx context.Context, commandID string) (int, error) {
	return helpers.IncrWithTTL(ctx, t.RDB, attemptsPrefix+commandID, t.TTL)
}

func (t *AttemptTracker) Reset(ctx context.Context, commandID string) error {
	return t.RDB.Del(ctx, attemptsPrefix+commandID).Err()
}
