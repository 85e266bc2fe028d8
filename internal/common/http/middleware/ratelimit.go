package middleware

import (
	"context"
	"fmt"
	"time"

	"codejudge/internal/common/cache"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// RateLimiter enforces fixed-window limits in Redis.
type RateLimiter struct {
	cache        cache.BasicOps
	counter      cache.CounterOps
	redisTimeout time.Duration
}

// NewRateLimiter creates a limiter over a cache client.
func NewRateLimiter(cacheClient cache.Cache, redisTimeout time.Duration) *RateLimiter {
	if redisTimeout <= 0 {
		redisTimeout = 200 * time.Millisecond
	}
	return &RateLimiter{cache: cacheClient, counter: cacheClient, redisTimeout: redisTimeout}
}

// Allow counts one hit on key and fails once max is exceeded within window.
func (l *RateLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if l == nil || l.cache == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	if max <= 0 || window <= 0 {
		return nil
	}

	ctxCache, cancel := context.WithTimeout(ctx, l.redisTimeout)
	defer cancel()

	acquired, err := l.cache.SetNX(ctxCache, key, 1, window)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	count := int64(1)
	if !acquired {
		count, err = l.counter.Incr(ctxCache, key)
		if err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
		}
		if ttl, ttlErr := l.cache.TTL(ctxCache, key); ttlErr == nil && ttl <= 0 {
			_ = l.cache.Expire(ctxCache, key, window)
		}
	}
	if int(count) > max {
		return appErr.New(appErr.TooManyRequests).WithDetail("limit", max)
	}
	return nil
}

// RateLimitPolicy caps hits per client IP and per authenticated user.
type RateLimitPolicy struct {
	Window  time.Duration
	IPMax   int
	UserMax int
}

// RateLimitMiddleware applies policy to one route.
func RateLimitMiddleware(limiter *RateLimiter, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || policy.Window <= 0 {
			c.Next()
			return
		}
		if policy.IPMax > 0 {
			key := fmt.Sprintf("rate:ip:%s:%s", c.ClientIP(), routeKey)
			if err := limiter.Allow(c.Request.Context(), key, policy.IPMax, policy.Window); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}
		if policy.UserMax > 0 {
			if userID, ok := UserID(c); ok {
				key := fmt.Sprintf("rate:user:%d:%s", userID, routeKey)
				if err := limiter.Allow(c.Request.Context(), key, policy.UserMax, policy.Window); err != nil {
					response.AbortWithError(c, err)
					return
				}
			}
		}
		c.Next()
	}
}
