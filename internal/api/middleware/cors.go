package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSConfig allows any origin without credentials.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Authorization",
			"Accept",
			"Origin",
			"Cache-Control",
			"X-Trace-ID",
		},
		MaxAge: 12 * time.Hour,
	}
}

// CORSFor returns the default config restricted to origins. An empty list
// or a "*" entry allows every origin.
func CORSFor(origins []string) CORSConfig {
	cfg := DefaultCORSConfig()
	if len(origins) > 0 && !containsWildcard(origins) {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

// CORS creates a CORS middleware with the provided configuration.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     cfg.AllowHeaders,
		ExposeHeaders:    []string{"X-Trace-ID"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	}
	// cors rejects "*" combined with credentials or explicit origins
	if containsWildcard(cfg.AllowOrigins) {
		cc.AllowAllOrigins = true
		cc.AllowCredentials = false
	} else {
		cc.AllowOrigins = cfg.AllowOrigins
	}
	return cors.New(cc)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
