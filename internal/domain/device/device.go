package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/readerfleet/internal/domain/screen"
)

var (
	// ErrDisconnected means the automation session is gone (crashed
	// instrumentation, dead server, unknown session)
	ErrDisconnected = errors.New("driver disconnected")
	// ErrElementNotFound means a locator matched nothing on the device
	ErrElementNotFound = errors.New("element not found")
	// ErrNotRunning means the emulator process is not up
	ErrNotRunning = errors.New("emulator not running")
)

// Slot is a unit of the fixed display/port pool
type Slot struct {
	Index            int `json:"index"`
	EmulatorPort     int `json:"emulator_port"`
	ADBPort          int `json:"adb_port"`
	AppiumPort       int `json:"appium_port"`
	SystemPort       int `json:"system_port"`
	ChromedriverPort int `json:"chromedriver_port"`
	VNCPort          int `json:"vnc_port"`
	Display          int `json:"display"`
}

// Serial returns the adb serial of an emulator bound to this slot
func (s Slot) Serial() string {
	return fmt.Sprintf("emulator-%d", s.EmulatorPort)
}

// InstanceRef identifies a device to the emulator and driver adapters
type InstanceRef struct {
	InstanceID string
	AccountID  string
	AVDName    string
	Slot       Slot
}

// Target is what a tap or type is aimed at. Adapters prefer the locator
// and fall back to the point.
type Target struct {
	Using string       `json:"using,omitempty"`
	Value string       `json:"value,omitempty"`
	Point screen.Point `json:"point"`
	Label string       `json:"label,omitempty"`
}

// HasLocator reports whether the target carries an element locator
func (t Target) HasLocator() bool {
	return t.Using != "" && t.Value != ""
}

// Driver is a live automation session against one device
type Driver interface {
	Snapshot(ctx context.Context) (*screen.Tree, error)
	Tap(ctx context.Context, target Target) error
	TypeText(ctx context.Context, target Target, text string) error
	Swipe(ctx context.Context, from, to screen.Point) error
	Back(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	Health(ctx context.Context) error
	Close(ctx context.Context) error
}

// Connector opens driver sessions for booted instances
type Connector interface {
	Connect(ctx context.Context, ref InstanceRef) (Driver, error)
}

// BootStatus is the emulator's view of a device
type BootStatus string

const (
	BootStatusOff     BootStatus = "off"
	BootStatusBooting BootStatus = "booting"
	BootStatusReady   BootStatus = "ready"
)

// Emulator controls emulator processes and their snapshots
type Emulator interface {
	Boot(ctx context.Context, ref InstanceRef, fromSnapshot bool) error
	Status(ctx context.Context, ref InstanceRef) (BootStatus, error)
	SaveSnapshot(ctx context.Context, ref InstanceRef) error
	DeleteSnapshot(ctx context.Context, ref InstanceRef) error
	Stop(ctx context.Context, ref InstanceRef) error
}
