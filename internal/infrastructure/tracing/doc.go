/*
Package tracing provides lightweight request and action tracing.

Spans carry a trace ID propagated through context and the X-Trace-ID /
X-Span-ID headers. Completed spans are buffered and written to the log by a
single collector goroutine; a full buffer drops spans instead of blocking.

	tracer := tracing.New("readerfleet", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "controller.recognize")
	span.SetTag("account_id", accountID)
	defer tracer.End(span, err)

A nil *Tracer is valid and discards spans.
*/
package tracing
