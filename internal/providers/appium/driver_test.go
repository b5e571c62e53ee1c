package appium

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/readerfleet/internal/domain/device"
	"github.com/GriffinCanCode/readerfleet/internal/domain/screen"
)

const source = `<hierarchy rotation="0" width="1080" height="2400">
<node class="android.widget.FrameLayout" bounds="[0,0][1080,2400]">
<node resource-id="com.amazon.kindle:id/library_root" class="android.view.ViewGroup" bounds="[0,0][1080,2400]"/>
</node>
</hierarchy>`

// fakeServer records commands and answers like an Appium server
type fakeServer struct {
	mu      sync.Mutex
	calls   []string
	bodies  map[string][]byte
	caps    map[string]interface{}
	missing bool
	crashed bool
	flaky   int
}

func (f *fakeServer) record(r *http.Request) []byte {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	key := r.Method + " " + r.URL.Path
	f.calls = append(f.calls, key)
	f.bodies[key] = body
	return body
}

func (f *fakeServer) called(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == key {
			n++
		}
	}
	return n
}

func (f *fakeServer) body(key string) map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out map[string]interface{}
	_ = json.Unmarshal(f.bodies[key], &out)
	return out
}

func writeValue(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"value": value})
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		body := f.record(r)
		var req struct {
			Capabilities struct {
				AlwaysMatch map[string]interface{} `json:"alwaysMatch"`
			} `json:"capabilities"`
		}
		_ = json.Unmarshal(body, &req)
		f.mu.Lock()
		f.caps = req.Capabilities.AlwaysMatch
		f.mu.Unlock()
		writeValue(w, 200, map[string]interface{}{"sessionId": "s1", "capabilities": req.Capabilities.AlwaysMatch})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		f.mu.Lock()
		crashed, missing := f.crashed, f.missing
		flaky := f.flaky
		if flaky > 0 {
			f.flaky--
		}
		f.mu.Unlock()

		if r.URL.Path == "/status" {
			writeValue(w, 200, map[string]interface{}{"ready": true})
			return
		}
		if crashed {
			writeValue(w, 500, map[string]interface{}{
				"error":   "unknown error",
				"message": "An unknown server-side error occurred while processing the command. Original error: 'GET /source' cannot be proxied to UiAutomator2 server because the instrumentation process is not running (probably crashed)",
			})
			return
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/session/s1/source":
			if flaky > 0 {
				writeValue(w, 502, map[string]interface{}{"error": "unknown error", "message": "bad gateway"})
				return
			}
			writeValue(w, 200, source)
		case r.Method == http.MethodPost && r.URL.Path == "/session/s1/element":
			if missing {
				writeValue(w, 404, map[string]interface{}{"error": "no such element", "message": "An element could not be located"})
				return
			}
			writeValue(w, 200, map[string]interface{}{w3cElementKey: "el-7"})
		case r.Method == http.MethodGet && r.URL.Path == "/session/s1/screenshot":
			writeValue(w, 200, base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\n")))
		case r.Method == http.MethodGet && r.URL.Path == "/session/s1/appium/device/current_package":
			writeValue(w, 200, "com.amazon.kindle")
		default:
			writeValue(w, 200, nil)
		}
	})
	return mux
}

func startServer(t *testing.T) (*fakeServer, device.InstanceRef, Config) {
	t.Helper()
	fs := &fakeServer{bodies: make(map[string][]byte)}
	srv := httptest.NewServer(fs.handler())
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Host = u.Hostname()
	cfg.Timeout = 5 * time.Second
	cfg.Retries = 1

	ref := device.InstanceRef{
		InstanceID: "inst_1",
		AccountID:  "reader@example.com",
		AVDName:    "reader_reader_example_com",
		Slot: device.Slot{
			Index:            1,
			EmulatorPort:     5554,
			AppiumPort:       port,
			SystemPort:       8201,
			ChromedriverPort: 9516,
		},
	}
	return fs, ref, cfg
}

func connect(t *testing.T) (*fakeServer, *Driver) {
	t.Helper()
	fs, ref, cfg := startServer(t)
	drv, err := NewConnector(cfg, nil).Connect(context.Background(), ref)
	require.NoError(t, err)
	return fs, drv.(*Driver)
}

func TestConnectSendsCapabilities(t *testing.T) {
	fs, drv := connect(t)
	assert.Equal(t, "s1", drv.SessionID())

	fs.mu.Lock()
	caps := fs.caps
	fs.mu.Unlock()
	assert.Equal(t, "UiAutomator2", caps["appium:automationName"])
	assert.Equal(t, "emulator-5554", caps["appium:udid"])
	assert.Equal(t, "com.amazon.kindle", caps["appium:appPackage"])
	assert.Equal(t, "com.amazon.kindle.*", caps["appium:appWaitActivity"])
	assert.Equal(t, true, caps["appium:noReset"])
	assert.EqualValues(t, 8201, caps["appium:systemPort"])
	assert.EqualValues(t, 9516, caps["appium:chromedriverPort"])
}

func TestSnapshotParsesSource(t *testing.T) {
	_, drv := connect(t)
	tree, err := drv.Snapshot(context.Background())
	require.NoError(t, err)
	els, err := tree.QueryString(`//*[@resource-id="com.amazon.kindle:id/library_root"]`)
	require.NoError(t, err)
	assert.Len(t, els, 1)
}

func TestSnapshotRetriesTransientFailure(t *testing.T) {
	fs, drv := connect(t)
	fs.mu.Lock()
	fs.flaky = 1
	fs.mu.Unlock()

	_, err := drv.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fs.called("GET /session/s1/source"))
}

func TestTapFindsAndClicks(t *testing.T) {
	fs, drv := connect(t)
	err := drv.Tap(context.Background(), device.Target{
		Using: "id",
		Value: "com.amazon.kindle:id/sign_in_button",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fs.called("POST /session/s1/element/el-7/click"))
	assert.Equal(t, "id", fs.body("POST /session/s1/element")["using"])
}

func TestTapFallsBackToCoordinates(t *testing.T) {
	fs, drv := connect(t)
	fs.mu.Lock()
	fs.missing = true
	fs.mu.Unlock()

	err := drv.Tap(context.Background(), device.Target{
		Using: "id",
		Value: "com.amazon.kindle:id/gone",
		Point: screen.Point{X: 540, Y: 1200},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fs.called("POST /session/s1/actions"))
}

func TestTapMissWithoutPoint(t *testing.T) {
	fs, drv := connect(t)
	fs.mu.Lock()
	fs.missing = true
	fs.mu.Unlock()

	err := drv.Tap(context.Background(), device.Target{Using: "id", Value: "x"})
	assert.ErrorIs(t, err, device.ErrElementNotFound)
	assert.Equal(t, 1, fs.called("POST /session/s1/element"))
}

func TestTypeTextClearsThenSends(t *testing.T) {
	fs, drv := connect(t)
	err := drv.TypeText(context.Background(), device.Target{Using: "id", Value: "email"}, "reader@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, fs.called("POST /session/s1/element/el-7/clear"))
	assert.Equal(t, "reader@example.com", fs.body("POST /session/s1/element/el-7/value")["text"])
}

func TestSwipeBackScreenshot(t *testing.T) {
	fs, drv := connect(t)
	ctx := context.Background()
	require.NoError(t, drv.Swipe(ctx, screen.Point{X: 900, Y: 1200}, screen.Point{X: 100, Y: 1200}))
	require.NoError(t, drv.Back(ctx))
	png, err := drv.Screenshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), png)
	assert.Equal(t, 1, fs.called("POST /session/s1/actions"))
	assert.Equal(t, 1, fs.called("POST /session/s1/back"))
}

func TestCrashedInstrumentationIsDisconnect(t *testing.T) {
	fs, drv := connect(t)
	require.NoError(t, drv.Health(context.Background()))

	fs.mu.Lock()
	fs.crashed = true
	fs.mu.Unlock()

	_, err := drv.Snapshot(context.Background())
	assert.ErrorIs(t, err, device.ErrDisconnected)
	assert.ErrorIs(t, drv.Health(context.Background()), device.ErrDisconnected)
}

func TestCloseIsIdempotent(t *testing.T) {
	fs, drv := connect(t)
	ctx := context.Background()
	require.NoError(t, drv.Close(ctx))
	require.NoError(t, drv.Close(ctx))
	assert.Equal(t, 1, fs.called("DELETE /session/s1"))
}

func TestClassifyResponse(t *testing.T) {
	err := classifyResponse(404, []byte(`{"value":{"error":"invalid session id","message":"gone"}}`))
	assert.ErrorIs(t, err, device.ErrDisconnected)

	err = classifyResponse(404, []byte(`{"value":{"error":"no such element","message":"nope"}}`))
	assert.ErrorIs(t, err, device.ErrElementNotFound)

	err = classifyResponse(500, []byte(`{"value":{"error":"unknown error","message":"socket hang up"}}`))
	assert.ErrorIs(t, err, device.ErrDisconnected)

	err = classifyResponse(400, []byte(`{"value":{"error":"invalid argument","message":"bad"}}`))
	assert.NotErrorIs(t, err, device.ErrDisconnected)
	assert.Contains(t, err.Error(), "invalid argument")
}
