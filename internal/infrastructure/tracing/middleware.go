package tracing

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPMiddleware creates Gin middleware for HTTP tracing
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Extract trace context from headers
		headers := map[string]string{
			"X-Trace-ID": c.GetHeader("X-Trace-ID"),
			"X-Span-ID":  c.GetHeader("X-Span-ID"),
		}

		traceID, parentID := ExtractTraceContext(headers)

		ctx := c.Request.Context()
		if traceID != "" {
			ctx = context.WithValue(ctx, traceIDKey, traceID)
		}
		if parentID != "" {
			ctx = context.WithValue(ctx, spanIDKey, parentID)
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, route)
		span.SetTag("http.method", c.Request.Method)
		span.SetTag("http.url", c.Request.URL.String())
		if account := c.Param("account"); account != "" {
			span.SetTag("account_id", account)
		}

		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Trace-ID", string(span.TraceID))
		c.Header("X-Span-ID", string(span.SpanID))

		start := time.Now()
		c.Next()
		span.Duration = time.Since(start)

		span.SetStatus(c.Writer.Status())
		span.SetTag("http.status", strconv.Itoa(c.Writer.Status()))

		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}

		span.Finish()
		tracer.Submit(span)
	}
}
