// Package middleware provides HTTP middleware for the Single-Login Echo
// server. ratelimit.go implements a per-IP fixed-window counter in Redis,
// shared across replicas. Designed for the login/register/step-up endpoints.
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// RateLimit returns middleware that limits requests per client IP to
// maxRequests within the given window. The counter lives in Redis so all
// replicas see the same budget. Returns 429 when exceeded.
//
// Counting is fail-open: if Redis is unreachable the request proceeds, on
// the grounds that an auth outage is worse than a brute-force window.
func RateLimit(rdb *redis.Client, scope string, maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			windowStart := time.Now().Unix() / int64(window.Seconds())
			key := fmt.Sprintf("ratelimit:%s:%s:%d", scope, ip, windowStart)

			ctx := c.Request().Context()
			count, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				slog.Warn("rate limiter unavailable, allowing request",
					slog.String("scope", scope),
					slog.Any("error", err),
				)
				return next(c)
			}

			// First hit in the window sets the expiry; subsequent hits reuse it.
			if count == 1 {
				rdb.Expire(ctx, key, window)
			}

			if count > int64(maxRequests) {
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error":   "too_many_requests",
					"message": "Rate limit exceeded. Please try again later.",
				})
			}

			return next(c)
		}
	}
}
