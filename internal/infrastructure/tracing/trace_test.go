package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSpanPropagation(t *testing.T) {
	tracer := New("test", zap.NewNop())
	defer tracer.Close()

	parent, ctx := tracer.StartSpan(context.Background(), "parent")
	child, childCtx := tracer.StartSpan(ctx, "child")

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
	assert.Equal(t, child.SpanID, GetSpanID(childCtx))
	assert.Equal(t, parent.TraceID, GetTraceID(childCtx))
}

func TestEndLogsErrors(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	tracer := New("test", zap.New(core))

	span, _ := tracer.StartSpan(context.Background(), "op")
	span.SetTag("account_id", "a@example.com")
	tracer.End(span, errors.New("boom"))
	tracer.Close()

	entries := logs.FilterMessage("span completed with error").All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "a@example.com", entries[0].ContextMap()["account_id"])
}

func TestNilTracer(t *testing.T) {
	var tracer *Tracer
	span, ctx := tracer.StartSpan(context.Background(), "op")
	assert.NotNil(t, span)
	assert.NotEmpty(t, GetTraceID(ctx))
	tracer.End(span, nil)
	tracer.Close()
}

func TestSubmitAfterClose(t *testing.T) {
	tracer := New("test", zap.NewNop())
	tracer.Close()
	tracer.Close()

	span, _ := tracer.StartSpan(context.Background(), "late")
	assert.NotPanics(t, func() { tracer.End(span, nil) })
}
