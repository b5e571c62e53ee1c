package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// IdleTTL evicts limiters unused for this long. Zero keeps them
	// forever.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns the per-account defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 5,
		Burst:             20,
		IdleTTL:           10 * time.Minute,
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one token bucket per key
type Limiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	clients map[string]*client
	now     func() time.Time
}

// NewLimiter creates a keyed limiter
func NewLimiter(cfg RateLimitConfig) *Limiter {
	return &Limiter{
		cfg:     cfg,
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

// Allow reports whether a request for key may proceed
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	cl, ok := l.clients[key]
	if !ok {
		cl = &client{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.clients[key] = cl
	}
	cl.lastSeen = now
	l.mu.Unlock()

	return cl.limiter.AllowN(now, 1)
}

// Cleanup drops limiters idle past IdleTTL and returns how many it dropped
func (l *Limiter) Cleanup() int {
	if l.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := l.now().Add(-l.cfg.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	dropped := 0
	for key, cl := range l.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of tracked keys
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// AccountRateLimit limits requests per :account path parameter, falling
// back to the client IP on routes without one.
func AccountRateLimit(l *Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("account")
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !l.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
				"kind":  "rate_limited",
				"hint":  "retry",
			})
			return
		}
		c.Next()
	}
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
