package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. Every Record/Set method is safe to
// call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Adapter call metrics (appium, emulator, storage)
	ServiceCalls    *prometheus.CounterVec
	ServiceDuration *prometheus.HistogramVec
	ServiceErrors   *prometheus.CounterVec

	// Controller metrics
	Actions            *prometheus.CounterVec
	ActionDuration     *prometheus.HistogramVec
	Recognitions       *prometheus.CounterVec
	IllegalTransitions *prometheus.CounterVec
	DriverFaults       *prometheus.CounterVec

	// Lifecycle metrics
	InstanceTransitions *prometheus.CounterVec
	InstancesRunning    prometheus.Gauge
	SlotsInUse          prometheus.Gauge
	BootDuration        *prometheus.HistogramVec
	SweepResults        *prometheus.CounterVec

	// Guard metrics
	GuardWait     prometheus.Histogram
	Coalesced     prometheus.Counter
	GuardTimeouts prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current metric values for the JSON API
type MetricsSnapshot struct {
	TotalRequests    int64   `json:"total_requests"`
	TotalErrors      int64   `json:"total_errors"`
	TotalActions     int64   `json:"total_actions"`
	FailedActions    int64   `json:"failed_actions"`
	InstancesRunning int64   `json:"instances_running"`
	TotalDuration    float64 `json:"-"`
	RequestCount     int64   `json:"-"`
}

// NewMetrics creates a collector on its own registry so tests and multiple
// servers in one process do not collide
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readerfleet_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "readerfleet_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),

		ServiceCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readerfleet_adapter_calls_total",
				Help: "Total number of adapter calls",
			},
			[]string{"service", "method", "status"},
		),
		ServiceDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "readerfleet_adapter_duration_seconds",
				Help:    "Adapter call duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method"},
		),
		ServiceErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readerfleet_adapter_errors_total",
				Help: "Total number of adapter errors",
			},
			[]string{"service", "method", "error_type"},
		),

		Actions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readerfleet_actions_total",
				Help: "Actions executed by outcome",
			},
			[]string{"action", "outcome"},
		),
		ActionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "readerfleet_action_duration_seconds",
				Help:    "Action duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 40, 80},
			},
			[]string{"action"},
		),
		Recognitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readerfleet_recognitions_total",
				Help: "Screen recognitions by resulting view",
			},
			[]string{"view"},
		),
		IllegalTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readerfleet_illegal_transitions_total",
				Help: "Rejected actions by source view",
			},
			[]string{"view", "action"},
		),
		DriverFaults: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readerfleet_driver_faults_total",
				Help: "Driver faults by action",
			},
			[]string{"action"},
		),

		InstanceTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readerfleet_instance_transitions_total",
				Help: "Emulator instance status changes",
			},
			[]string{"from", "to"},
		),
		InstancesRunning: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "readerfleet_instances_running",
				Help: "Number of running emulator instances",
			},
		),
		SlotsInUse: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "readerfleet_slots_in_use",
				Help: "Number of port/display slots held",
			},
		),
		BootDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "readerfleet_boot_duration_seconds",
				Help:    "Emulator boot duration in seconds",
				Buckets: []float64{5, 10, 20, 30, 45, 60, 90, 120, 180},
			},
			[]string{"mode", "outcome"},
		),
		SweepResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readerfleet_sweep_instances_total",
				Help: "Idle sweep results by disposition",
			},
			[]string{"result"},
		),

		GuardWait: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "readerfleet_guard_wait_seconds",
				Help:    "Time requests waited for their account lane",
				Buckets: []float64{.001, .01, .1, .5, 1, 5, 10, 30, 60},
			},
		),
		Coalesced: f.NewCounter(
			prometheus.CounterOpts{
				Name: "readerfleet_guard_coalesced_total",
				Help: "Requests answered by an identical in-flight request",
			},
		),
		GuardTimeouts: f.NewCounter(
			prometheus.CounterOpts{
				Name: "readerfleet_guard_timeouts_total",
				Help: "Requests that gave up waiting for their lane",
			},
		),

		WSConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "readerfleet_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),

		Uptime: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "readerfleet_uptime_seconds",
				Help: "Uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordServiceCall records an adapter call
func (m *Metrics) RecordServiceCall(service, method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ServiceCalls.WithLabelValues(service, method, status).Inc()
	m.ServiceDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// RecordServiceError records an adapter error
func (m *Metrics) RecordServiceError(service, method, errorType string) {
	if m == nil {
		return
	}
	m.ServiceErrors.WithLabelValues(service, method, errorType).Inc()
}

// RecordAction records an executed action. outcome is "success",
// "warning" or an error kind.
func (m *Metrics) RecordAction(action, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Actions.WithLabelValues(action, outcome).Inc()
	m.ActionDuration.WithLabelValues(action).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalActions++
	if outcome != "success" && outcome != "warning" {
		m.snapshot.FailedActions++
	}
	m.mu.Unlock()
}

// RecordRecognition records a recognized view
func (m *Metrics) RecordRecognition(view string) {
	if m == nil {
		return
	}
	m.Recognitions.WithLabelValues(view).Inc()
}

// RecordIllegalTransition records a rejected action
func (m *Metrics) RecordIllegalTransition(view, action string) {
	if m == nil {
		return
	}
	m.IllegalTransitions.WithLabelValues(view, action).Inc()
}

// RecordDriverFault records a driver fault
func (m *Metrics) RecordDriverFault(action string) {
	if m == nil {
		return
	}
	m.DriverFaults.WithLabelValues(action).Inc()
}

// RecordInstanceTransition records an instance status change
func (m *Metrics) RecordInstanceTransition(from, to string) {
	if m == nil {
		return
	}
	m.InstanceTransitions.WithLabelValues(from, to).Inc()
}

// RecordBoot records an emulator boot attempt
func (m *Metrics) RecordBoot(mode, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.BootDuration.WithLabelValues(mode, outcome).Observe(duration.Seconds())
}

// RecordSweep records one idle sweep's counts
func (m *Metrics) RecordSweep(shutDown, active, failed, skipped int) {
	if m == nil {
		return
	}
	m.SweepResults.WithLabelValues("shut_down").Add(float64(shutDown))
	m.SweepResults.WithLabelValues("active").Add(float64(active))
	m.SweepResults.WithLabelValues("failed").Add(float64(failed))
	m.SweepResults.WithLabelValues("skipped").Add(float64(skipped))
}

// SetInstancesRunning sets the running instance gauge
func (m *Metrics) SetInstancesRunning(count int) {
	if m == nil {
		return
	}
	m.InstancesRunning.Set(float64(count))
	m.mu.Lock()
	m.snapshot.InstancesRunning = int64(count)
	m.mu.Unlock()
}

// SetSlotsInUse sets the slot gauge
func (m *Metrics) SetSlotsInUse(count int) {
	if m == nil {
		return
	}
	m.SlotsInUse.Set(float64(count))
}

// RecordGuardWait records how long a request waited for its lane
func (m *Metrics) RecordGuardWait(d time.Duration) {
	if m == nil {
		return
	}
	m.GuardWait.Observe(d.Seconds())
}

// IncCoalesced counts a request served by a shared flight
func (m *Metrics) IncCoalesced() {
	if m == nil {
		return
	}
	m.Coalesced.Inc()
}

// IncGuardTimeouts counts a request that timed out waiting
func (m *Metrics) IncGuardTimeouts() {
	if m == nil {
		return
	}
	m.GuardTimeouts.Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// Snapshot returns current values for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// AverageRequestDuration returns the mean HTTP request duration
func (m *Metrics) AverageRequestDuration() time.Duration {
	s := m.Snapshot()
	if s.RequestCount == 0 {
		return 0
	}
	return time.Duration(s.TotalDuration / float64(s.RequestCount) * float64(time.Second))
}
