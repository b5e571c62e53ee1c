package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/GriffinCanCode/readerfleet/internal/domain/device"
	"github.com/GriffinCanCode/readerfleet/internal/domain/guard"
	"github.com/GriffinCanCode/readerfleet/internal/domain/screen"
)

type fakeEmulator struct {
	mu             sync.Mutex
	boots          []bool // fromSnapshot per Boot call
	stops          int
	saved          int
	deleted        int
	neverReady     bool
	gone           bool
	failSnapshot   bool
	failSaveSnap   bool
	pollsUntilNext int
	polls          map[string]int
}

func newFakeEmulator() *fakeEmulator {
	return &fakeEmulator{polls: make(map[string]int)}
}

func (f *fakeEmulator) Boot(ctx context.Context, ref device.InstanceRef, fromSnapshot bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boots = append(f.boots, fromSnapshot)
	f.polls[ref.InstanceID] = 0
	if fromSnapshot && f.failSnapshot {
		return errors.New("snapshot default_boot is incompatible")
	}
	return nil
}

func (f *fakeEmulator) Status(ctx context.Context, ref device.InstanceRef) (device.BootStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone {
		return device.BootStatusOff, device.ErrNotRunning
	}
	if f.neverReady {
		return device.BootStatusBooting, nil
	}
	f.polls[ref.InstanceID]++
	if f.polls[ref.InstanceID] <= f.pollsUntilNext {
		return device.BootStatusBooting, nil
	}
	return device.BootStatusReady, nil
}

func (f *fakeEmulator) SaveSnapshot(ctx context.Context, ref device.InstanceRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSaveSnap {
		return errors.New("snapshot save failed")
	}
	f.saved++
	return nil
}

func (f *fakeEmulator) DeleteSnapshot(ctx context.Context, ref device.InstanceRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted++
	return nil
}

func (f *fakeEmulator) Stop(ctx context.Context, ref device.InstanceRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeEmulator) bootCalls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.boots...)
}

type fakeDriver struct {
	mu      sync.Mutex
	ref     device.InstanceRef
	healthy bool
	closed  bool
	probes  int
}

func (d *fakeDriver) Snapshot(ctx context.Context) (*screen.Tree, error) {
	return screen.Parse([]byte(`<hierarchy width="1080" height="2400"/>`))
}
func (d *fakeDriver) Tap(ctx context.Context, t device.Target) error                { return nil }
func (d *fakeDriver) TypeText(ctx context.Context, t device.Target, s string) error { return nil }
func (d *fakeDriver) Swipe(ctx context.Context, from, to screen.Point) error        { return nil }
func (d *fakeDriver) Back(ctx context.Context) error                                { return nil }
func (d *fakeDriver) Screenshot(ctx context.Context) ([]byte, error)                { return nil, nil }

func (d *fakeDriver) Health(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.probes++
	if !d.healthy {
		return device.ErrDisconnected
	}
	return nil
}

func (d *fakeDriver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDriver) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type fakeConnector struct {
	mu      sync.Mutex
	drivers map[string]*fakeDriver
	fail    error
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{drivers: make(map[string]*fakeDriver)}
}

func (c *fakeConnector) Connect(ctx context.Context, ref device.InstanceRef) (device.Driver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return nil, c.fail
	}
	d := &fakeDriver{ref: ref, healthy: true}
	c.drivers[ref.AccountID] = d
	return d, nil
}

func (c *fakeConnector) driver(accountID string) *fakeDriver {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drivers[accountID]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// busyLanes reports every listed account as busy
type busyLanes map[string]bool

func (b busyLanes) TryRun(ctx context.Context, accountID string, fn func(ctx context.Context) error) error {
	if b[accountID] {
		return guard.ErrBusy
	}
	return fn(ctx)
}
