package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RateLimiter is a Redis-backed fixed-window limiter keyed by client IP,
// so the limit holds across replicas sharing one Redis.
type RateLimiter struct {
	rdb            redis.Cmdable
	maxRequests    int
	windowDuration time.Duration
}

func NewRateLimiter(rdb redis.Cmdable, maxRequests int, windowDuration time.Duration) *RateLimiter {
	return &RateLimiter{
		rdb:            rdb,
		maxRequests:    maxRequests,
		windowDuration: windowDuration,
	}
}

func (rl *RateLimiter) getClientID(c *fiber.Ctx) string {
	ip := c.Get("X-Forwarded-For")
	if ip == "" {
		ip = c.Get("X-Real-IP")
	}
	if ip == "" {
		ip = c.IP()
	}
	return ip
}

func (rl *RateLimiter) windowKey(clientID string, now time.Time) string {
	windowNumber := now.UnixNano() / int64(rl.windowDuration)
	return fmt.Sprintf("ratelimit:%s:%d", clientID, windowNumber)
}

// Allow counts the request in the client's current window. The window
// key expires on its own; stale windows need no cleanup pass.
func (rl *RateLimiter) Allow(ctx context.Context, clientID string) (bool, error) {
	key := rl.windowKey(clientID, time.Now())

	pipe := rl.rdb.Pipeline()
	count := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.windowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	return count.Val() <= int64(rl.maxRequests), nil
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := rl.getClientID(c)

		allowed, err := rl.Allow(c.UserContext(), clientID)
		if err != nil {
			// Fail open: losing Redis should not take the API down with it.
			log.Warn().Err(err).Str("client_ip", clientID).Msg("Rate limiter unavailable")
			return c.Next()
		}

		if !allowed {
			log.Warn().
				Str("client_ip", clientID).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("max_requests", rl.maxRequests).
				Msg("Rate limit exceeded")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Rate limit exceeded",
				"message": "Too many requests. Please try again later.",
			})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.maxRequests))
		c.Set("X-RateLimit-Window", rl.windowDuration.String())

		return c.Next()
	}
}
