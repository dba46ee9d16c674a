package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/go-cqrs-bounded-contexts/pkg/helpers"
	"github.com/oksasatya/go-cqrs-bounded-contexts/pkg/response"
)

func normalizePath(c *gin.Context) string {
	if fp := c.FullPath(); fp != "" {
		return fp
	}
	return c.Request.URL.Path
}

// KeyFunc builds a rate-limit key from the request
type KeyFunc func(c *gin.Context) string

func KeyByIP() KeyFunc {
	return func(c *gin.Context) string {
		return "rl:ip:" + ClientIP(c)
	}
}

func KeyByIPAndPath() KeyFunc {
	return func(c *gin.Context) string {
		return "rl:path:" + normalizePath(c) + ":ip:" + ClientIP(c)
	}
}

// KeyByUserID needs BearerAuth to run first; anonymous callers fall back to
// their IP.
func KeyByUserID() KeyFunc {
	return func(c *gin.Context) string {
		uid := c.GetString(CtxUserIDKey)
		if uid == "" {
			return "rl:user:anon:ip:" + ClientIP(c)
		}
		return "rl:user:" + uid
	}
}

// WindowCounter counts hits per key in a fixed window.
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int, reset time.Duration, err error)
}

// RedisCounter shares windows across API replicas.
type RedisCounter struct {
	RDB *redis.Client
}

func (r RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	n, err := helpers.IncrWithTTL(ctx, r.RDB, key, window)
	if err != nil {
		return 0, 0, err
	}
	ttl, _ := r.RDB.PTTL(ctx, key).Result()
	return n, ttl, nil
}

type AllowFunc func(*gin.Context) bool // return true for bypass limit

// RateLimit rejects with 429 once a key exceeds max hits in window. It fails
// open when the counter errors and never limits OPTIONS.
func RateLimit(counter WindowCounter, max int, window time.Duration, keyFn KeyFunc, allow AllowFunc) gin.HandlerFunc {
	if counter == nil || max <= 0 || window <= 0 || keyFn == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if allow != nil && allow(c) {
			c.Next()
			return
		}
		if strings.EqualFold(c.Request.Method, http.MethodOptions) {
			c.Next()
			return
		}

		count, reset, err := counter.Hit(c.Request.Context(), keyFn(c), window)
		if err != nil {
			c.Next()
			return
		}
		resetSec := 0
		if reset > 0 {
			resetSec = int((reset + time.Second - 1) / time.Second)
		}
		remaining := max - count
		if remaining < 0 {
			remaining = 0
		}

		// https://datatracker.ietf.org/doc/html/rfc6585#section-4
		c.Header("X-RateLimit-Limit", strconv.Itoa(max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(resetSec))

		if count > max {
			if resetSec > 0 {
				c.Header("Retry-After", strconv.Itoa(resetSec))
			}
			response.Fail(c, http.StatusTooManyRequests, "rate limit exceeded", nil)
			return
		}
		c.Next()
	}
}
