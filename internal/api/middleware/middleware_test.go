package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestLimiterPerKey(t *testing.T) {
	l := NewLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 2})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"), "burst exhausted")
	assert.True(t, l.Allow("b"), "keys have separate buckets")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("a"), "bucket refills")
}

func TestLimiterCleanup(t *testing.T) {
	l := NewLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Minute})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(2 * time.Minute)
	l.Allow("fresh")

	assert.Equal(t, 1, l.Cleanup())
	assert.Equal(t, 1, l.Len())
}

func TestAccountRateLimit(t *testing.T) {
	l := NewLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	r := gin.New()
	r.POST("/accounts/:account/actions/:action", AccountRateLimit(l), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	post := func(acct string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/accounts/"+acct+"/actions/login", nil))
		return w.Code
	}

	assert.Equal(t, http.StatusOK, post("a@example.com"))
	assert.Equal(t, http.StatusTooManyRequests, post("a@example.com"))
	assert.Equal(t, http.StatusOK, post("b@example.com"))
}

func TestCORSFor(t *testing.T) {
	cfg := CORSFor(nil)
	assert.Equal(t, []string{"*"}, cfg.AllowOrigins)
	assert.False(t, cfg.AllowCredentials)

	cfg = CORSFor([]string{"https://ops.example.com"})
	assert.Equal(t, []string{"https://ops.example.com"}, cfg.AllowOrigins)
	assert.True(t, cfg.AllowCredentials)

	cfg = CORSFor([]string{"https://ops.example.com", "*"})
	assert.Equal(t, []string{"*"}, cfg.AllowOrigins)
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS(CORSFor([]string{"https://ops.example.com"})))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
