package helpers

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient initializes a redis client
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// PingRedis reports whether the server answers within two seconds.
func PingRedis(ctx context.Context, rdb *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rdb.Ping(ctx).Err()
}

// atomic INCR, the TTL is only set by the first increment
var incrExpireScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// IncrWithTTL increments key and starts its TTL on the first hit. It backs
// both the HTTP rate limiter and the worker attempt counters.
func IncrWithTTL(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (int, error) {
	return incrExpireScript.Run(ctx, rdb, []string{key}, ttl.Milliseconds()).Int()
}
