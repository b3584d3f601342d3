package middleware

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gurukul-lms/gurukul-api/internal/service"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
	"github.com/gurukul-lms/gurukul-api/pkg/response"
)

// WindowCounter counts hits of key inside a fixed window.
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// RedisWindowCounter implements WindowCounter with INCR and EXPIRE.
type RedisWindowCounter struct {
	client redis.Cmdable
}

// NewRedisWindowCounter wraps a Redis client.
func NewRedisWindowCounter(client redis.Cmdable) *RedisWindowCounter {
	return &RedisWindowCounter{client: client}
}

// Hit increments key and starts the window on the first hit.
func (r *RedisWindowCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("incr rate limit key: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return count, window, fmt.Errorf("expire rate limit key: %w", err)
		}
		return count, window, nil
	}
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return count, window, nil
	}
	if ttl < 0 {
		// The key lost its expiry; restart the window so it cannot block forever.
		_ = r.client.Expire(ctx, key, window).Err()
		ttl = window
	}
	return count, ttl, nil
}

// RateLimiter throttles callers per user id, or per client IP when anonymous.
type RateLimiter struct {
	counter WindowCounter
	metrics *service.MetricsService
	logger  *zap.Logger
	limit   int
	window  time.Duration
}

// NewRateLimiter builds a limiter allowing limit requests per window.
func NewRateLimiter(counter WindowCounter, limit int, window time.Duration, metrics *service.MetricsService, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{counter: counter, metrics: metrics, logger: logger, limit: limit, window: window}
}

// Limit returns the middleware. scope separates buckets of different route groups.
// Counter failures let the request through.
func (rl *RateLimiter) Limit(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || rl.counter == nil || rl.limit <= 0 {
			c.Next()
			return
		}
		subject := "ip:" + c.ClientIP()
		if claims, ok := Claims(c); ok {
			subject = "user:" + claims.UserID
		}
		key := fmt.Sprintf("rate_limit:%s:%s", scope, subject)

		count, ttl, err := rl.counter.Hit(c.Request.Context(), key, rl.window)
		if err != nil {
			rl.logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		remaining := int64(rl.limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(rl.limit) {
			retryAfter := int(math.Ceil(ttl.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			rl.metrics.RecordRateLimited()
			response.Error(c, appErrors.WithDetails(
				appErrors.Clone(appErrors.ErrTooManyRequests, "too many requests"),
				map[string]interface{}{"retryAfterSeconds": retryAfter},
			))
			return
		}
		c.Next()
	}
}
