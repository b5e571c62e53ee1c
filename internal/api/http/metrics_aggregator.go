package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/readerfleet/internal/domain/automation"
	"github.com/GriffinCanCode/readerfleet/internal/domain/guard"
	"github.com/GriffinCanCode/readerfleet/internal/domain/lifecycle"
	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/monitoring"
)

// MetricsAggregator combines counters with live fleet and lane state
type MetricsAggregator struct {
	metrics *monitoring.Metrics
	svc     *automation.Service
	started time.Time
}

// NewMetricsAggregator creates a metrics aggregator
func NewMetricsAggregator(metrics *monitoring.Metrics, svc *automation.Service) *MetricsAggregator {
	return &MetricsAggregator{
		metrics: metrics,
		svc:     svc,
		started: time.Now(),
	}
}

// MetricsSnapshot represents a snapshot of all service metrics
type MetricsSnapshot struct {
	Timestamp time.Time                  `json:"timestamp"`
	Counters  monitoring.MetricsSnapshot `json:"counters"`
	Fleet     lifecycle.FleetStats       `json:"fleet"`
	Lanes     guard.Stats                `json:"lanes"`
	Summary   MetricsSummary             `json:"summary"`
}

// MetricsSummary provides high-level metrics
type MetricsSummary struct {
	TotalRequests     int64   `json:"total_requests"`
	AverageLatencyMs  float64 `json:"average_latency_ms"`
	ErrorRate         float64 `json:"error_rate"`
	ActionFailureRate float64 `json:"action_failure_rate"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// GetAggregatedMetrics returns counters, fleet and lane state as JSON
func (ma *MetricsAggregator) GetAggregatedMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, ma.Snapshot())
}

// Snapshot collects the current metrics
func (ma *MetricsAggregator) Snapshot() MetricsSnapshot {
	counters := ma.metrics.Snapshot()
	return MetricsSnapshot{
		Timestamp: time.Now(),
		Counters:  counters,
		Fleet:     ma.svc.Lifecycle().Fleet(),
		Lanes:     ma.svc.Lanes(),
		Summary:   ma.summarize(counters),
	}
}

func (ma *MetricsAggregator) summarize(s monitoring.MetricsSnapshot) MetricsSummary {
	summary := MetricsSummary{
		TotalRequests:    s.TotalRequests,
		AverageLatencyMs: float64(ma.metrics.AverageRequestDuration()) / float64(time.Millisecond),
		UptimeSeconds:    time.Since(ma.started).Seconds(),
	}
	if s.TotalRequests > 0 {
		summary.ErrorRate = float64(s.TotalErrors) / float64(s.TotalRequests)
	}
	if s.TotalActions > 0 {
		summary.ActionFailureRate = float64(s.FailedActions) / float64(s.TotalActions)
	}
	return summary
}
