package appium

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/readerfleet/internal/domain/device"
	"github.com/GriffinCanCode/readerfleet/internal/domain/screen"
)

// w3cElementKey is the W3C element reference key
const w3cElementKey = "element-6066-11e4-a4ae-4ce05a4c38c5"

// Connector opens UiAutomator2 sessions on the Appium server bound to an
// instance's slot
type Connector struct {
	cfg    Config
	logger *zap.Logger
}

// NewConnector creates a connector
func NewConnector(cfg Config, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{cfg: cfg, logger: logger}
}

// Capabilities returns the session capabilities for an instance
func (c *Connector) Capabilities(ref device.InstanceRef) map[string]interface{} {
	return map[string]interface{}{
		"platformName":                "Android",
		"appium:automationName":       "UiAutomator2",
		"appium:deviceName":           ref.Slot.Serial(),
		"appium:udid":                 ref.Slot.Serial(),
		"appium:avd":                  ref.AVDName,
		"appium:appPackage":           c.cfg.AppPackage,
		"appium:appActivity":          c.cfg.AppActivity,
		"appium:appWaitActivity":      c.cfg.AppPackage + ".*",
		"appium:noReset":              true,
		"appium:newCommandTimeout":    300,
		"appium:autoGrantPermissions": true,
		"appium:waitForIdleTimeout":   5000,
		"appium:systemPort":           ref.Slot.SystemPort,
		"appium:chromedriverPort":     ref.Slot.ChromedriverPort,
		"appium:enforceXPath1":        true,
		"appium:isEmulator":           true,
	}
}

// Connect creates a session and returns a driver bound to it
func (c *Connector) Connect(ctx context.Context, ref device.InstanceRef) (device.Driver, error) {
	cl := newClient(baseURL(c.cfg, ref.Slot.AppiumPort), c.cfg)
	body := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": c.Capabilities(ref),
			"firstMatch":  []interface{}{map[string]interface{}{}},
		},
	}
	raw, err := cl.post(ctx, "/session", body)
	if err != nil {
		return nil, fmt.Errorf("create session on %s: %w", ref.Slot.Serial(), normalize(err))
	}
	sessionID := gjson.GetBytes(raw, "value.sessionId").String()
	if sessionID == "" {
		sessionID = gjson.GetBytes(raw, "sessionId").String()
	}
	if sessionID == "" {
		return nil, fmt.Errorf("create session on %s: response carried no session id", ref.Slot.Serial())
	}

	c.logger.Info("Appium session created",
		zap.String("account", ref.AccountID),
		zap.String("serial", ref.Slot.Serial()),
		zap.String("session", sessionID))

	return &Driver{client: cl, session: sessionID, ref: ref, logger: c.logger}, nil
}

// Driver implements device.Driver over the W3C WebDriver protocol
type Driver struct {
	client  *client
	session string
	ref     device.InstanceRef
	logger  *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// SessionID returns the Appium session identifier
func (d *Driver) SessionID() string {
	return d.session
}

func (d *Driver) path(suffix string) string {
	return "/session/" + d.session + suffix
}

func (d *Driver) Snapshot(ctx context.Context) (*screen.Tree, error) {
	raw, err := d.client.get(ctx, d.path("/source"))
	if err != nil {
		return nil, normalize(err)
	}
	source := gjson.GetBytes(raw, "value").String()
	if source == "" {
		return nil, fmt.Errorf("%w: empty page source", device.ErrDisconnected)
	}
	return screen.Parse([]byte(source))
}

func (d *Driver) Tap(ctx context.Context, target device.Target) error {
	if target.HasLocator() {
		elementID, err := d.find(ctx, target)
		if err == nil {
			_, err = d.client.post(ctx, d.path("/element/"+elementID+"/click"), nil)
		}
		if err == nil || !isUIMiss(err) || !hasPoint(target) {
			return normalize(err)
		}
		d.logger.Debug("Locator missed, tapping coordinates",
			zap.String("label", target.Label),
			zap.Int("x", target.Point.X),
			zap.Int("y", target.Point.Y))
	}
	if !hasPoint(target) {
		return fmt.Errorf("tap %q: %w", target.Label, device.ErrElementNotFound)
	}
	return normalize(d.pointer(ctx, target.Point, target.Point, 50))
}

func (d *Driver) TypeText(ctx context.Context, target device.Target, text string) error {
	var elementID string
	var err error
	if target.HasLocator() {
		elementID, err = d.find(ctx, target)
	} else {
		elementID, err = d.active(ctx)
	}
	if err != nil {
		return normalize(err)
	}
	if _, err := d.client.post(ctx, d.path("/element/"+elementID+"/clear"), nil); err != nil && !isUIMiss(err) {
		return normalize(err)
	}
	_, err = d.client.post(ctx, d.path("/element/"+elementID+"/value"), map[string]interface{}{
		"text": text,
	})
	return normalize(err)
}

func (d *Driver) Swipe(ctx context.Context, from, to screen.Point) error {
	return normalize(d.pointer(ctx, from, to, 400))
}

func (d *Driver) Back(ctx context.Context) error {
	_, err := d.client.post(ctx, d.path("/back"), nil)
	return normalize(err)
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	raw, err := d.client.get(ctx, d.path("/screenshot"))
	if err != nil {
		return nil, normalize(err)
	}
	png, err := base64.StdEncoding.DecodeString(gjson.GetBytes(raw, "value").String())
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return png, nil
}

// Health checks the server and that our session is still alive
func (d *Driver) Health(ctx context.Context) error {
	raw, err := d.client.get(ctx, "/status")
	if err != nil {
		return normalize(err)
	}
	if ready := gjson.GetBytes(raw, "value.ready"); ready.Exists() && !ready.Bool() {
		return fmt.Errorf("%w: server not ready", device.ErrDisconnected)
	}
	if _, err := d.client.get(ctx, d.path("/appium/device/current_package")); err != nil {
		return normalize(err)
	}
	return nil
}

// Close deletes the session. Repeated calls return the first result.
func (d *Driver) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		err := d.client.delete(ctx, d.path(""))
		if err != nil && errors.Is(err, device.ErrDisconnected) {
			err = nil
		}
		d.closeErr = normalize(err)
	})
	return d.closeErr
}

func (d *Driver) find(ctx context.Context, target device.Target) (string, error) {
	raw, err := d.client.post(ctx, d.path("/element"), map[string]interface{}{
		"using": target.Using,
		"value": target.Value,
	})
	if err != nil {
		return "", err
	}
	return elementRef(raw)
}

func (d *Driver) active(ctx context.Context) (string, error) {
	raw, err := d.client.get(ctx, d.path("/element/active"))
	if err != nil {
		return "", err
	}
	return elementRef(raw)
}

// pointer performs a single-finger press, move and release
func (d *Driver) pointer(ctx context.Context, from, to screen.Point, durationMs int) error {
	actions := map[string]interface{}{
		"actions": []interface{}{
			map[string]interface{}{
				"type":       "pointer",
				"id":         "finger1",
				"parameters": map[string]interface{}{"pointerType": "touch"},
				"actions": []interface{}{
					map[string]interface{}{"type": "pointerMove", "duration": 0, "x": from.X, "y": from.Y},
					map[string]interface{}{"type": "pointerDown", "button": 0},
					map[string]interface{}{"type": "pause", "duration": 50},
					map[string]interface{}{"type": "pointerMove", "duration": durationMs, "x": to.X, "y": to.Y},
					map[string]interface{}{"type": "pointerUp", "button": 0},
				},
			},
		},
	}
	_, err := d.client.post(ctx, d.path("/actions"), actions)
	return err
}

func elementRef(raw []byte) (string, error) {
	value := gjson.GetBytes(raw, "value")
	if id := value.Get(w3cElementKey).String(); id != "" {
		return id, nil
	}
	if id := value.Get("ELEMENT").String(); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("element response: %w", device.ErrElementNotFound)
}

func hasPoint(t device.Target) bool {
	return t.Point.X > 0 || t.Point.Y > 0
}
