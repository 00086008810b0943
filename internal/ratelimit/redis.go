package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	internalsettings "github.com/ideaspark/ideaspark/internal/settings"
)

// windowExpirySeconds keeps a window key alive just past its second so
// abandoned counters expire on their own.
const windowExpirySeconds = 2

// windowIncr bumps the caller's counter and stamps a TTL on the first
// hit of each window.
var windowIncr = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return hits
`)

// RedisLimiter throttles per-IP request bursts with one-second windows
// stored in Redis, so the limit holds across server replicas.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter. An empty prefix falls back
// to the project default.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = internalsettings.DefaultRateLimitRedisPrefix
	}
	return &RedisLimiter{client: client, prefix: prefix}
}

// Allow admits the request when the caller's current window still has
// room. Redis errors are returned so the manager can trip its breaker.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error) {
	if l == nil || l.client == nil || key == "" || limit <= 0 {
		return Result{Allowed: true}, nil
	}
	slot := now.Unix()
	reset := time.Unix(slot+1, 0).UTC()

	hits, errRun := windowIncr.Run(ctx, l.client, []string{l.windowKey(key, slot)}, windowExpirySeconds).Int64()
	if errRun != nil {
		return Result{}, fmt.Errorf("ratelimit: redis incr: %w", errRun)
	}
	if hits > int64(limit) {
		return Result{Allowed: false, Reset: reset}, nil
	}
	return Result{Allowed: true, Remaining: limit - int(hits), Reset: reset}, nil
}

// windowKey namespaces a limiter key by prefix and window second.
func (l *RedisLimiter) windowKey(key string, slot int64) string {
	return l.prefix + ":" + key + ":" + strconv.FormatInt(slot, 10)
}
