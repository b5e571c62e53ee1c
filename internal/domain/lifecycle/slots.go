package lifecycle

import "github.com/GriffinCanCode/readerfleet/internal/domain/device"

const (
	baseEmulatorPort     = 5554
	baseAppiumPort       = 4723
	baseSystemPort       = 8200
	baseChromedriverPort = 9515
	baseVNCPort          = 5900
)

// PlanSlot returns the fixed port plan for a 1-based slot index
func PlanSlot(index int) device.Slot {
	emu := baseEmulatorPort + (index-1)*2
	return device.Slot{
		Index:            index,
		EmulatorPort:     emu,
		ADBPort:          emu + 1,
		AppiumPort:       baseAppiumPort + index,
		SystemPort:       baseSystemPort + index,
		ChromedriverPort: baseChromedriverPort + index,
		VNCPort:          baseVNCPort + index,
		Display:          index,
	}
}

// slotPool hands out the lowest free slot. Not safe for concurrent use;
// the orchestrator guards it with the fleet lock.
type slotPool struct {
	used []bool
}

func newSlotPool(size int) *slotPool {
	if size < 1 {
		size = 1
	}
	return &slotPool{used: make([]bool, size)}
}

func (p *slotPool) acquire() (device.Slot, bool) {
	for i, u := range p.used {
		if !u {
			p.used[i] = true
			return PlanSlot(i + 1), true
		}
	}
	return device.Slot{}, false
}

func (p *slotPool) release(index int) {
	if index >= 1 && index <= len(p.used) {
		p.used[index-1] = false
	}
}

func (p *slotPool) inUse() int {
	n := 0
	for _, u := range p.used {
		if u {
			n++
		}
	}
	return n
}

func (p *slotPool) size() int {
	return len(p.used)
}
