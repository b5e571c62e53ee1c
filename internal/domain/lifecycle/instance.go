package lifecycle

import (
	"time"

	"github.com/GriffinCanCode/readerfleet/internal/domain/device"
)

// Status is an emulator instance's lifecycle position
type Status string

const (
	StatusAbsent       Status = "absent"
	StatusBooting      Status = "booting"
	StatusRunning      Status = "running"
	StatusSnapshotting Status = "snapshotting"
	StatusStopped      Status = "stopped"
	StatusCrashed      Status = "crashed"
)

// BootMode records how the running instance came up
type BootMode string

const (
	BootCold     BootMode = "cold"
	BootSnapshot BootMode = "snapshot"
)

// edges lists every legal status change. Booting may fall back to the
// status it left when a boot is aborted.
var edges = map[Status][]Status{
	StatusAbsent:       {StatusBooting},
	StatusBooting:      {StatusRunning, StatusAbsent, StatusStopped},
	StatusRunning:      {StatusSnapshotting, StatusCrashed},
	StatusSnapshotting: {StatusStopped},
	StatusStopped:      {StatusBooting},
	StatusCrashed:      {StatusAbsent},
}

// CanTransition reports whether from→to is a legal edge
func CanTransition(from, to Status) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// holdsSlot reports whether an instance in s occupies a pool slot
func holdsSlot(s Status) bool {
	switch s {
	case StatusBooting, StatusRunning, StatusSnapshotting, StatusCrashed:
		return true
	}
	return false
}

// Instance is one emulator bound to a profile
type Instance struct {
	InstanceID string       `json:"instance_id"`
	AccountID  string       `json:"account_id"`
	AVDName    string       `json:"avd_name"`
	Status     Status       `json:"status"`
	Slot       *device.Slot `json:"slot,omitempty"`
	BootMode   BootMode     `json:"boot_mode,omitempty"`
	BootedAt   time.Time    `json:"booted_at,omitempty"`
	UpdatedAt  time.Time    `json:"updated_at"`
	LastError  string       `json:"last_error,omitempty"`
}

func (i *Instance) clone() *Instance {
	c := *i
	if i.Slot != nil {
		s := *i.Slot
		c.Slot = &s
	}
	return &c
}

// Ref addresses the instance for the emulator and driver adapters. An
// instance without a slot yields a zero Slot, which only offline
// operations like snapshot deletion accept.
func (i *Instance) Ref() device.InstanceRef {
	ref := device.InstanceRef{
		InstanceID: i.InstanceID,
		AccountID:  i.AccountID,
		AVDName:    i.AVDName,
	}
	if i.Slot != nil {
		ref.Slot = *i.Slot
	}
	return ref
}
