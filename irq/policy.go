package irq

import (
	"sync/atomic"

	"github.com/jfabienke/etherlink-go/nic"
)

// Policy is the mitigation and dispatch policy: the per-NIC batch ceiling
// and the deferred-work bits the ISR raises for non-ISR-safe paths. There
// is no timer-driven bottom half; deferred bits are consumed on the next
// non-ISR entry into the driver.
//
// Controllers are registered at init, before any interrupt can fire; the
// maps are frozen afterwards, so the ISR-side paths touch only atomics.
type Policy struct {
	defaultCeiling int
	ceilings       map[*nic.Device]*int32
	deferred       map[*nic.Device]*uint32
}

// NewPolicy seeds the ceiling from the dispatch profile's patched value.
func NewPolicy(ceiling int) *Policy {
	return &Policy{
		defaultCeiling: ceiling,
		ceilings:       make(map[*nic.Device]*int32),
		deferred:       make(map[*nic.Device]*uint32),
	}
}

// Register adds a controller to the policy. Init-time only.
func (p *Policy) Register(d *nic.Device) {
	c := int32(p.defaultCeiling)
	p.ceilings[d] = &c
	p.deferred[d] = new(uint32)
}

// Ceiling returns the controller's batch ceiling.
func (p *Policy) Ceiling(d *nic.Device) int {
	if c, ok := p.ceilings[d]; ok {
		return int(atomic.LoadInt32(c))
	}
	return p.defaultCeiling
}

// SetCeiling lowers (or restores) a controller's ceiling administratively.
// It never raises above the patched value.
func (p *Policy) SetCeiling(d *nic.Device, ceiling int) {
	c, ok := p.ceilings[d]
	if !ok {
		return
	}
	if ceiling <= 0 || ceiling > p.defaultCeiling {
		ceiling = p.defaultCeiling
	}
	atomic.StoreInt32(c, int32(ceiling))
}

// MarkDeferred raises the controller's work-pending bit from the ISR.
func (p *Policy) MarkDeferred(d *nic.Device) {
	if f, ok := p.deferred[d]; ok {
		atomic.StoreUint32(f, 1)
	}
}

// TakeDeferred consumes the bit; called at non-ISR entry into the driver.
func (p *Policy) TakeDeferred(d *nic.Device) bool {
	if f, ok := p.deferred[d]; ok {
		return atomic.SwapUint32(f, 0) != 0
	}
	return false
}
