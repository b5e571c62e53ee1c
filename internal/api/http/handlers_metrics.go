package http

import (
	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/readerfleet/internal/shared/fault"
)

// HandlerMetrics wraps handlers with metrics tracking
type HandlerMetrics struct {
	metrics *monitoring.Metrics
}

// NewHandlerMetrics creates a metrics wrapper
func NewHandlerMetrics(metrics *monitoring.Metrics) *HandlerMetrics {
	return &HandlerMetrics{metrics: metrics}
}

// Track times one automation call. The returned func records the
// outcome, labelling failures by fault kind.
func (hm *HandlerMetrics) Track(operation string) func(err error) {
	var m *monitoring.Metrics
	if hm != nil {
		m = hm.metrics
	}
	timer := monitoring.NewTimer(m, "automation", operation)
	return func(err error) {
		if err == nil {
			timer.Stop("success")
			return
		}
		kind := fault.KindOf(err).String()
		timer.Stop(kind)
		m.RecordServiceError("automation", operation, kind)
	}
}
