package adapter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/aelexs/clinic-otp/internal/otp/app"
	redisclient "github.com/aelexs/clinic-otp/internal/redis"
)

var _ app.RateLimiter = (*RedisRateLimiter)(nil)

// rateLimitScript increments a counter and sets its TTL on the first write,
// giving a fixed window that does not slide on later hits.
const rateLimitScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`

// RedisRateLimiter is a fixed-window counter shared by every instance that
// points at the same Redis.
type RedisRateLimiter struct {
	cmd    redisclient.Cmdable
	prefix string
}

// NewRedisRateLimiter creates a RedisRateLimiter. Counter keys are written as
// prefix+key.
func NewRedisRateLimiter(cmd redisclient.Cmdable, prefix string) *RedisRateLimiter {
	return &RedisRateLimiter{cmd: cmd, prefix: prefix}
}

// CheckAndIncrement counts a hit for key and reports whether the count is
// still within limit for the current window of windowSeconds. On Redis
// failure it returns (false, err); the caller decides whether to fail open.
func (r *RedisRateLimiter) CheckAndIncrement(ctx context.Context, key string, limit, windowSeconds int) (bool, error) {
	ctx, span := tracer.Start(ctx, "redis.ratelimit.check")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "EVAL"),
	)

	count, err := r.cmd.Eval(ctx, rateLimitScript, []string{r.prefix + key}, windowSeconds).Int64()
	if err != nil {
		failSpan(span, err)
		return false, fmt.Errorf("rate limit check %q: %w", key, err)
	}

	return count <= int64(limit), nil
}
