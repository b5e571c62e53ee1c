package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sample sums the values of a gathered family, optionally filtered by one
// label pair
func sample(t *testing.T, m *Metrics, name string, label ...string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var total float64
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if len(label) == 2 && !hasLabel(metric.GetLabel(), label[0], label[1]) {
				continue
			}
			switch {
			case metric.GetCounter() != nil:
				total += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				total += metric.GetGauge().GetValue()
			}
		}
	}
	return total
}

func hasLabel(pairs []*dto.LabelPair, name, value string) bool {
	for _, p := range pairs {
		if p.GetName() == name && p.GetValue() == value {
			return true
		}
	}
	return false
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAction("login", "success", time.Second)
		m.RecordRecognition("library/populated")
		m.SetInstancesRunning(2)
		m.IncCoalesced()
		NewTimer(m, "appium", "tap").StopErr(nil)
	})
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())
}

func TestRecordAction(t *testing.T) {
	m := NewMetrics()
	m.RecordAction("next_page", "success", 100*time.Millisecond)
	m.RecordAction("next_page", "driver_fault", time.Second)

	assert.Equal(t, 1.0, sample(t, m, "readerfleet_actions_total", "outcome", "success"))
	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalActions)
	assert.Equal(t, int64(1), snap.FailedActions)
}

func TestSeparateRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	a.IncGuardTimeouts()

	assert.Equal(t, 1.0, sample(t, a, "readerfleet_guard_timeouts_total"))
	assert.Equal(t, 0.0, sample(t, b, "readerfleet_guard_timeouts_total"))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordIllegalTransition("library/empty", "open_book")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "readerfleet_illegal_transitions_total")
}
