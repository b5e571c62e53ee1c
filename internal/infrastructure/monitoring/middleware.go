package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection. Paths are
// labelled by route template to keep account IDs out of label values.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(method, path, status, time.Since(start))
	}
}

// Timer measures adapter call duration
type Timer struct {
	start   time.Time
	metrics *Metrics
	service string
	method  string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, service, method string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		service: service,
		method:  method,
	}
}

// Stop stops the timer and records the duration
func (t *Timer) Stop(status string) {
	t.metrics.RecordServiceCall(t.service, t.method, status, time.Since(t.start))
}

// StopErr records success or error depending on err
func (t *Timer) StopErr(err error) {
	if err != nil {
		t.Stop("error")
		t.metrics.RecordServiceError(t.service, t.method, "call")
		return
	}
	t.Stop("success")
}
