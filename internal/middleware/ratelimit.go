// ratelimit.go enforces per-client rate limits, returning 429 responses when
// the configured requests-per-minute threshold is exceeded. Two limiter
// backends exist: an in-process token bucket for single-replica deployments,
// and a Redis-backed limiter (redis_rate, GCRA) that shares limit state
// across replicas. The backend is selected by configuration.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	redis_rate "github.com/go-redis/redis_rate/v10"
	redis "github.com/redis/go-redis/v9"

	"github.com/agent-registry/agent-registry/internal/config"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, err error)
	Stop()
}

// NewLimiter builds the limiter selected by the rate limiting config.
func NewLimiter(cfg config.RateLimitingConfig) Limiter {
	if cfg.Backend == "redis" {
		return NewRedisLimiter(cfg)
	}
	return NewMemoryLimiter(cfg.RequestsPerMinute, cfg.Burst)
}

// ---------------------------------------------------------------------------
// In-memory token bucket
// ---------------------------------------------------------------------------

type bucketEntry struct {
	tokens     float64
	lastUpdate time.Time
}

// MemoryLimiter implements a per-key token bucket held in process memory.
type MemoryLimiter struct {
	requestsPerMinute int
	burst             int
	entries           map[string]*bucketEntry
	mu                sync.Mutex
	stopCh            chan struct{}
}

// NewMemoryLimiter creates an in-process limiter and starts its cleanup loop.
func NewMemoryLimiter(requestsPerMinute, burst int) *MemoryLimiter {
	l := &MemoryLimiter{
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
		entries:           make(map[string]*bucketEntry),
		stopCh:            make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			now := time.Now()
			for key, entry := range l.entries {
				// Idle clients refill to full burst anyway; drop their state
				if now.Sub(entry.lastUpdate) > 10*time.Minute {
					delete(l.entries, key)
				}
			}
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (l *MemoryLimiter) Stop() {
	close(l.stopCh)
}

// Allow consumes one token for key if available.
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	entry, exists := l.entries[key]
	if !exists {
		l.entries[key] = &bucketEntry{
			tokens:     float64(l.burst) - 1,
			lastUpdate: now,
		}
		return true, l.burst - 1, nil
	}

	refill := now.Sub(entry.lastUpdate).Seconds() * float64(l.requestsPerMinute) / 60.0
	entry.tokens = min(float64(l.burst), entry.tokens+refill)
	entry.lastUpdate = now

	if entry.tokens >= 1 {
		entry.tokens--
		return true, int(entry.tokens), nil
	}
	return false, 0, nil
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// ---------------------------------------------------------------------------
// Redis-backed limiter
// ---------------------------------------------------------------------------

// RedisLimiter shares rate limit state across replicas through Redis.
type RedisLimiter struct {
	client  *redis.Client
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

// NewRedisLimiter connects to Redis and wraps a redis_rate limiter around it.
func NewRedisLimiter(cfg config.RateLimitingConfig) *RedisLimiter {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &RedisLimiter{
		client:  client,
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   cfg.RequestsPerMinute,
			Burst:  cfg.Burst,
			Period: time.Minute,
		},
	}
}

// Allow consults Redis for key's budget. Redis outages fail open: limiting is
// protective, not load-bearing, and a down Redis must not take reads down
// with it.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	res, err := l.limiter.Allow(ctx, key, l.limit)
	if err != nil {
		return true, 0, err
	}
	return res.Allowed > 0, res.Remaining, nil
}

// Stop closes the Redis connection.
func (l *RedisLimiter) Stop() {
	_ = l.client.Close()
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// RateLimitMiddleware creates a Gin middleware that rate limits requests.
// Authenticated callers are limited per user, everyone else per client IP.
func RateLimitMiddleware(limiter Limiter, requestsPerMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rateLimitKey(c)

		allowed, remaining, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			// Fail open, already logged by the limiter's backend
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(requestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": 60,
			})
			return
		}

		c.Next()
	}
}

// rateLimitKey prefers the authenticated user over the client IP so shared
// NATs do not starve each other once logged in.
func rateLimitKey(c *gin.Context) string {
	if id := CallerID(c); id != "" {
		return "user:" + id
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
