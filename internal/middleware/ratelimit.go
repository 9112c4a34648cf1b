package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

const (
	// RateLimitStoreMemory keeps counters in process memory.
	RateLimitStoreMemory = "memory"
	// RateLimitStoreRedis shares counters across instances via redis.
	RateLimitStoreRedis = "redis"

	rateLimitPrefix = "ratelimit"
)

// RateLimitConfig configures the per-client-IP rate limiter.
type RateLimitConfig struct {
	RequestsPerMinute int
	StoreType         string
	CleanupInterval   time.Duration

	// Redis settings, used when StoreType is RateLimitStoreRedis.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// NewRateLimiter builds a rate limiting middleware from config.
func NewRateLimiter(cfg RateLimitConfig) (gin.HandlerFunc, error) {
	switch cfg.StoreType {
	case RateLimitStoreMemory:
		return newMemoryRateLimiter(cfg.RequestsPerMinute, cfg.CleanupInterval)
	case RateLimitStoreRedis:
		return NewRedisRateLimiter(cfg.RequestsPerMinute, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("invalid rate limit store type: %q", cfg.StoreType)
	}
}

// NewMemoryRateLimiter creates a memory-backed limiter allowing
// requestsPerMinute requests per client IP.
func NewMemoryRateLimiter(requestsPerMinute int) (gin.HandlerFunc, error) {
	return newMemoryRateLimiter(requestsPerMinute, 0)
}

func newMemoryRateLimiter(requestsPerMinute int, cleanupInterval time.Duration) (gin.HandlerFunc, error) {
	if requestsPerMinute <= 0 {
		return nil, fmt.Errorf("requests per minute must be positive, got: %d", requestsPerMinute)
	}

	opts := limiter.StoreOptions{Prefix: rateLimitPrefix}
	if cleanupInterval > 0 {
		opts.CleanUpInterval = cleanupInterval
	}
	store := memory.NewStoreWithOptions(opts)

	return rateLimitMiddleware(newInstance(store, requestsPerMinute)), nil
}

// NewRedisRateLimiter creates a redis-backed limiter so the limit holds
// across gateway replicas.
func NewRedisRateLimiter(requestsPerMinute int, addr, password string, db int) (gin.HandlerFunc, error) {
	if requestsPerMinute <= 0 {
		return nil, fmt.Errorf("requests per minute must be positive, got: %d", requestsPerMinute)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix: rateLimitPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis rate limit store: %w", err)
	}

	return rateLimitMiddleware(newInstance(store, requestsPerMinute)), nil
}

func newInstance(store limiter.Store, requestsPerMinute int) *limiter.Limiter {
	return limiter.New(store, limiter.Rate{
		Period: time.Minute,
		Limit:  int64(requestsPerMinute),
	})
}

func rateLimitMiddleware(instance *limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		lctx, err := instance.Get(c.Request.Context(), c.ClientIP())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "rate_limit_error",
			})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests, please try again later",
			})
			return
		}

		c.Next()
	}
}
