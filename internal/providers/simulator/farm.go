package simulator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/readerfleet/internal/domain/account"
	"github.com/GriffinCanCode/readerfleet/internal/domain/device"
	"github.com/GriffinCanCode/readerfleet/internal/domain/screen"
)

// errNoSnapshot is returned by a snapshot boot with nothing saved
var errNoSnapshot = errors.New("no quickboot snapshot saved")

// screenshotPNG is a 1x1 PNG
var screenshotPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x77, 0x53, 0xde,
}

// Stats counts what one simulated device has done
type Stats struct {
	Boots         int `json:"boots"`
	SnapshotBoots int `json:"snapshot_boots"`
	Stops         int `json:"stops"`
	Snapshots     int `json:"snapshots"`
	Sessions      int `json:"sessions"`
	Taps          int `json:"taps"`
	Swipes        int `json:"swipes"`
	Wipes         int `json:"wipes"`
}

// unit is one simulated emulator with the app installed
type unit struct {
	mu sync.Mutex

	script     Script
	instanceID string
	running    bool
	polls      int
	session    int
	healthy    bool
	failBoot   error

	app   *appState
	saved *appState
	stats Stats
}

// Farm simulates a fleet of emulators. It implements device.Emulator and
// device.Connector.
type Farm struct {
	mu      sync.Mutex
	def     Script
	scripts map[string]Script
	units   map[string]*unit
	logger  *zap.Logger
}

// NewFarm creates a farm whose accounts follow def unless scripted
func NewFarm(def Script, logger *zap.Logger) *Farm {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Farm{
		def:     def,
		scripts: make(map[string]Script),
		units:   make(map[string]*unit),
		logger:  logger,
	}
}

// Script sets the behaviour of an account's app. It applies from the
// next fresh install.
func (f *Farm) Script(accountID string, s Script) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[account.NormalizeID(accountID)] = s
	if u, ok := f.units[account.NormalizeID(accountID)]; ok {
		u.mu.Lock()
		u.script = s
		u.mu.Unlock()
	}
}

func (f *Farm) unit(accountID string) *unit {
	key := account.NormalizeID(accountID)
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[key]
	if !ok {
		s, scripted := f.scripts[key]
		if !scripted {
			s = f.def
		}
		u = &unit{script: s, healthy: true}
		f.units[key] = u
	}
	return u
}

// SetHealthy makes the account's automation session answer or fail
func (f *Farm) SetHealthy(accountID string, healthy bool) {
	u := f.unit(accountID)
	u.mu.Lock()
	u.healthy = healthy
	u.mu.Unlock()
}

// FailBoot makes the next boots of an account return err. Nil clears it.
func (f *Farm) FailBoot(accountID string, err error) {
	u := f.unit(accountID)
	u.mu.Lock()
	u.failBoot = err
	u.mu.Unlock()
}

// Show moves the account's app to s
func (f *Farm) Show(accountID string, s Screen) {
	u := f.unit(accountID)
	u.mu.Lock()
	if u.app != nil {
		u.app.overlay = OverlayNone
		u.app.show(s)
	}
	u.mu.Unlock()
}

// Raise draws a system dialog over the account's current screen
func (f *Farm) Raise(accountID string, o Overlay) {
	u := f.unit(accountID)
	u.mu.Lock()
	if u.app != nil {
		u.app.overlay = o
	}
	u.mu.Unlock()
}

// Current returns the account's screen, page and overlay
func (f *Farm) Current(accountID string) (Screen, int, Overlay) {
	u := f.unit(accountID)
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.app == nil {
		return "", 0, OverlayNone
	}
	return u.app.screen, u.app.page, u.app.overlay
}

// Running reports whether the account's emulator is up
func (f *Farm) Running(accountID string) bool {
	u := f.unit(accountID)
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.running
}

// Stats returns the account's device counters
func (f *Farm) Stats(accountID string) Stats {
	u := f.unit(accountID)
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stats
}

func (f *Farm) Boot(ctx context.Context, ref device.InstanceRef, fromSnapshot bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u := f.unit(ref.AccountID)
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.failBoot != nil {
		return u.failBoot
	}
	if u.running {
		return fmt.Errorf("%s is already running", ref.AVDName)
	}
	// a new instance id is a freshly created AVD
	if u.instanceID != ref.InstanceID {
		if u.instanceID != "" {
			u.stats.Wipes++
		}
		u.instanceID = ref.InstanceID
		u.app = nil
		u.saved = nil
	}

	switch {
	case fromSnapshot && u.saved == nil:
		return errNoSnapshot
	case fromSnapshot:
		u.app = u.saved.clone()
		u.stats.SnapshotBoots++
	case u.app == nil:
		u.app = newAppState(u.script)
	default:
		// cold boot keeps app data and relaunches
		u.app.overlay = OverlayNone
		u.app.relaunch()
	}

	u.running = true
	u.polls = u.script.BootPolls
	u.stats.Boots++
	f.logger.Debug("simulated boot",
		zap.String("account", ref.AccountID),
		zap.String("serial", ref.Slot.Serial()),
		zap.Bool("from_snapshot", fromSnapshot))
	return nil
}

func (f *Farm) Status(ctx context.Context, ref device.InstanceRef) (device.BootStatus, error) {
	u := f.unit(ref.AccountID)
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.running {
		return device.BootStatusOff, device.ErrNotRunning
	}
	if u.polls > 0 {
		u.polls--
		return device.BootStatusBooting, nil
	}
	return device.BootStatusReady, nil
}

func (f *Farm) SaveSnapshot(ctx context.Context, ref device.InstanceRef) error {
	u := f.unit(ref.AccountID)
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.running {
		return fmt.Errorf("save snapshot: %w", device.ErrNotRunning)
	}
	u.saved = u.app.clone()
	u.stats.Snapshots++
	return nil
}

func (f *Farm) DeleteSnapshot(ctx context.Context, ref device.InstanceRef) error {
	u := f.unit(ref.AccountID)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.saved = nil
	return nil
}

func (f *Farm) Stop(ctx context.Context, ref device.InstanceRef) error {
	u := f.unit(ref.AccountID)
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.running {
		u.stats.Stops++
	}
	u.running = false
	u.session++
	return nil
}

// Connect opens a session on a booted device
func (f *Farm) Connect(ctx context.Context, ref device.InstanceRef) (device.Driver, error) {
	u := f.unit(ref.AccountID)
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.running || u.polls > 0 {
		return nil, fmt.Errorf("connect %s: %w", ref.Slot.Serial(), device.ErrNotRunning)
	}
	u.session++
	u.stats.Sessions++
	return &Driver{unit: u, session: u.session, ref: ref}, nil
}

// Driver is a session on a simulated device
type Driver struct {
	unit    *unit
	session int
	ref     device.InstanceRef
}

// lock acquires the unit and checks the session is alive
func (d *Driver) lock() error {
	d.unit.mu.Lock()
	if !d.unit.running || d.unit.session != d.session || !d.unit.healthy {
		d.unit.mu.Unlock()
		return fmt.Errorf("%s: %w", d.ref.Slot.Serial(), device.ErrDisconnected)
	}
	return nil
}

func (d *Driver) Snapshot(ctx context.Context) (*screen.Tree, error) {
	if err := d.lock(); err != nil {
		return nil, err
	}
	raw := render(d.unit.app)
	d.unit.mu.Unlock()
	return screen.Parse(raw)
}

func (d *Driver) Tap(ctx context.Context, target device.Target) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.unit.mu.Unlock()

	tree, err := screen.Parse(render(d.unit.app))
	if err != nil {
		return err
	}
	id, p, ok := resolve(tree, target)
	if !ok {
		return fmt.Errorf("tap %q: %w", target.Label, device.ErrElementNotFound)
	}
	d.unit.stats.Taps++
	d.unit.app.tap(d.unit.script, id, p)
	return nil
}

func (d *Driver) TypeText(ctx context.Context, target device.Target, text string) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.unit.mu.Unlock()

	tree, err := screen.Parse(render(d.unit.app))
	if err != nil {
		return err
	}
	id, _, ok := resolve(tree, target)
	if !ok || !d.unit.app.typeText(id, text) {
		return fmt.Errorf("type into %q: %w", target.Label, device.ErrElementNotFound)
	}
	return nil
}

func (d *Driver) Swipe(ctx context.Context, from, to screen.Point) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.unit.mu.Unlock()
	d.unit.stats.Swipes++
	d.unit.app.swipe(from, to)
	return nil
}

func (d *Driver) Back(ctx context.Context) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.unit.mu.Unlock()
	d.unit.app.back()
	return nil
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := d.lock(); err != nil {
		return nil, err
	}
	defer d.unit.mu.Unlock()
	return append([]byte(nil), screenshotPNG...), nil
}

func (d *Driver) Health(ctx context.Context) error {
	if err := d.lock(); err != nil {
		return err
	}
	d.unit.mu.Unlock()
	return ctx.Err()
}

func (d *Driver) Close(ctx context.Context) error {
	return nil
}

// resolve finds the element a target aims at: the locator first, then
// whatever is drawn at the point
func resolve(tree *screen.Tree, t device.Target) (string, screen.Point, bool) {
	if t.HasLocator() {
		var expr string
		switch t.Using {
		case "id":
			expr = "//*[@resource-id='" + t.Value + "']"
		case "accessibility id":
			expr = "//*[@content-desc='" + t.Value + "']"
		case "xpath":
			expr = t.Value
		}
		if expr != "" {
			if els, err := tree.QueryString(expr); err == nil && len(els) > 0 {
				p, _ := els[0].Center()
				return els[0].ResourceID(), p, true
			}
		}
	}
	if t.Point.X > 0 || t.Point.Y > 0 {
		if hit := tree.ElementAt(t.Point); hit != nil {
			return hit.ResourceID(), t.Point, true
		}
	}
	return "", screen.Point{}, false
}
