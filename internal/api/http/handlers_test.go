package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/GriffinCanCode/readerfleet/internal/domain/automation"
	"github.com/GriffinCanCode/readerfleet/internal/domain/controller"
	"github.com/GriffinCanCode/readerfleet/internal/domain/guard"
	"github.com/GriffinCanCode/readerfleet/internal/domain/handlers"
	"github.com/GriffinCanCode/readerfleet/internal/domain/lifecycle"
	"github.com/GriffinCanCode/readerfleet/internal/domain/statemachine"
	"github.com/GriffinCanCode/readerfleet/internal/domain/view"
	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/readerfleet/internal/providers/simulator"
	"github.com/GriffinCanCode/readerfleet/internal/providers/storage"
	"github.com/GriffinCanCode/readerfleet/internal/shared/fault"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	farm   *simulator.Farm
	svc    *automation.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	farm := simulator.NewFarm(simulator.DefaultScript(), nil)
	g := guard.New(guard.Config{WaitTimeout: 5 * time.Second, ActionTimeout: 10 * time.Second}, nil, nil)
	orch := lifecycle.New(lifecycle.Config{
		Slots:            2,
		BootTimeout:      2 * time.Second,
		BootPollInterval: time.Millisecond,
		ProbeAttempts:    2,
		ProbeTimeout:     100 * time.Millisecond,
		ProbeInterval:    time.Millisecond,
		IdleTimeout:      30 * time.Minute,
	}, lifecycle.Deps{
		Repository: storage.NewMemory(),
		Emulator:   farm,
		Connector:  farm,
		Lanes:      g,
	})

	registry := handlers.DefaultRegistry()
	table, err := statemachine.New(statemachine.DefaultTransitions(), registry.Has)
	require.NoError(t, err)
	ctrl := controller.New(view.MustRecognizer(view.DefaultCatalog()), table, registry, controller.Config{
		UnknownRetries:    1,
		UnknownRetryDelay: time.Millisecond,
		ElementRetries:    1,
		ElementRetryDelay: time.Millisecond,
		Settle:            handlers.SettleConfig{Attempts: 2, Interval: time.Millisecond},
	}, controller.Deps{
		Updater: orch,
		Before:  []controller.Hook{automation.CrashGate(orch)},
		After:   []controller.Hook{automation.TouchActivity(orch)},
	})
	svc := automation.New(automation.Deps{Guard: g, Lifecycle: orch, Controller: ctrl})

	metrics := monitoring.NewMetrics()
	router := gin.New()
	NewHandlers(svc, NewHandlerMetrics(metrics), nil).Register(router)
	router.GET("/metrics/json", NewMetricsAggregator(metrics, svc).GetAggregatedMetrics)

	return &testServer{router: router, farm: farm, svc: svc}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestRootAndHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "online", gjson.Get(w.Body.String(), "status").String())

	w = s.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, "healthy", gjson.Get(body, "status").String())
	assert.Equal(t, int64(2), gjson.Get(body, "fleet.slots").Int())
	assert.Equal(t, int64(0), gjson.Get(body, "fleet.in_use").Int())
}

func TestExecuteActionLoginAndStatus(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/accounts/reader@example.com/actions/login",
		`{"email":"reader@example.com","password":"hunter2"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := w.Body.String()
	assert.Equal(t, "login", gjson.Get(body, "action").String())
	assert.Equal(t, "auth_login", gjson.Get(body, "from").String())
	assert.Equal(t, "library/populated", gjson.Get(body, "view").String())
	assert.True(t, gjson.Get(body, "success").Bool())

	w = s.do(http.MethodGet, "/accounts/reader@example.com/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = w.Body.String()
	assert.Equal(t, "authenticated", gjson.Get(body, "auth_state").String())
	assert.Equal(t, "running", gjson.Get(body, "instance_status").String())
	assert.Equal(t, "library/populated", gjson.Get(body, "last_view").String())

	w = s.do(http.MethodGet, "/accounts", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "count").Int())
}

func TestExecuteActionErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		path string
		body string
		code int
		kind string
	}{
		{"unknown action", "/accounts/a@example.com/actions/fly", "", http.StatusBadRequest, "invalid_request"},
		{"params not an object", "/accounts/a@example.com/actions/login", `[1,2]`, http.StatusBadRequest, "invalid_request"},
		{"malformed json", "/accounts/a@example.com/actions/login", `{"email":`, http.StatusBadRequest, "invalid_request"},
		{"illegal from login view", "/accounts/a@example.com/actions/next_page", "", http.StatusConflict, "illegal_transition"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			assert.Equal(t, tt.kind, gjson.Get(w.Body.String(), "kind").String())
			assert.NotEmpty(t, gjson.Get(w.Body.String(), "error").String())
		})
	}
}

func TestStatusUnknownAccount(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/accounts/ghost@example.com/status", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "profile_not_found", gjson.Get(w.Body.String(), "kind").String())
}

func TestManageProfileRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/accounts/m@example.com/profile/create", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "create", gjson.Get(w.Body.String(), "operation").String())

	w = s.do(http.MethodPost, "/accounts/m@example.com/profile/switch", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "running", gjson.Get(w.Body.String(), "status.instance_status").String())

	w = s.do(http.MethodPost, "/accounts/m@example.com/profile/explode", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/accounts/m@example.com/profile/delete", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/accounts/m@example.com/status", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScreenshotRoute(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/accounts/shot@example.com/screenshot", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/accounts/shot@example.com/profile/switch", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/accounts/shot@example.com/screenshot", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.NotZero(t, w.Body.Len())
}

func TestIdleSweepRoute(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/admin/idle-sweep", `{"timeout":"30m"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(0), gjson.Get(w.Body.String(), "examined").Int())

	w = s.do(http.MethodPost, "/admin/idle-sweep", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/admin/idle-sweep", `{"timeout":"soon"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/admin/idle-sweep", `{"timeout":"-5m"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransitionsRoute(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/transitions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(len(s.svc.Transitions())), gjson.Get(w.Body.String(), "count").Int())
}

func TestAggregatedMetrics(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/accounts/x@example.com/profile/create", "")

	w := s.do(http.MethodGet, "/metrics/json", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, gjson.Get(body, "counters").Exists())
	assert.Equal(t, int64(2), gjson.Get(body, "fleet.slots").Int())
	assert.True(t, gjson.Get(body, "summary.uptime_seconds").Exists())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind fault.Kind
		code int
	}{
		{fault.KindIllegalTransition, http.StatusConflict},
		{fault.KindViewUnrecognized, http.StatusUnprocessableEntity},
		{fault.KindDriverFault, http.StatusBadGateway},
		{fault.KindEmulatorBootTimeout, http.StatusGatewayTimeout},
		{fault.KindInstanceCrashed, http.StatusServiceUnavailable},
		{fault.KindNoCapacity, http.StatusServiceUnavailable},
		{fault.KindConcurrencyTimeout, http.StatusTooManyRequests},
		{fault.KindInvalidRequest, http.StatusBadRequest},
		{fault.KindProfileNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.code, StatusFor(fault.New(tt.kind, "test", "boom")))
		})
	}
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("plain")))
}

func TestListBooksRoute(t *testing.T) {
	s := newTestServer(t)
	const acct = "/accounts/books@example.com"
	script := simulator.DefaultScript()
	script.Initial = simulator.ScreenLibrary
	script.Books = []string{"Emma", "Ulysses", "Dubliners", "Orlando", "Rebecca", "Nostromo", "Kim", "Ivanhoe", "Lolita"}
	s.farm.Script("books@example.com", script)

	w := s.do(http.MethodGet, acct+"/books", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := w.Body.String()
	assert.Equal(t, "list_books", gjson.Get(body, "action").String())
	assert.Equal(t, "library/populated", gjson.Get(body, "view").String())
	assert.Equal(t, int64(len(script.Books)), gjson.Get(body, "payload.count").Int())
	assert.True(t, gjson.Get(body, "payload.complete").Bool())

	w = s.do(http.MethodGet, acct+"/books?max_scrolls=0", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = w.Body.String()
	assert.Less(t, gjson.Get(body, "payload.count").Int(), int64(len(script.Books)))
	assert.False(t, gjson.Get(body, "payload.complete").Bool())

	w = s.do(http.MethodGet, acct+"/books?max_scrolls=lots", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
