package irq

import (
	"fmt"
	"sync/atomic"

	etherlink "github.com/jfabienke/etherlink-go"
	"github.com/jfabienke/etherlink-go/nic"
)

// isrStackSize models the private ISR stack reservation.
const isrStackSize = 2048

// line is one hooked IRQ line: the installed stub, the snapshot of the
// previous occupant for chaining, and the controllers sharing the line.
type line struct {
	irq     int
	vector  uint8
	self    *etherlink.ISR
	prev    *etherlink.ISR
	devices []*nic.Device
	rrStart int
}

// Core drives interrupt service for every controller the driver owns.
type Core struct {
	bus     etherlink.Bus
	table   *etherlink.VectorTable
	policy  *Policy
	deliver nic.Deliver

	lines map[int]*line

	// depth is the reentrancy guard; entries beyond the first EOI and leave.
	depth int32

	// stack models the private 2 KB ISR stack plus the saved SS:SP slot.
	// Reserved up front so the service path allocates nothing.
	stack    [isrStackSize]byte
	stackTop int
}

// NewCore builds an idle interrupt core. Controllers are attached per line
// before hooking.
func NewCore(bus etherlink.Bus, table *etherlink.VectorTable, policy *Policy, deliver nic.Deliver) *Core {
	return &Core{
		bus:     bus,
		table:   table,
		policy:  policy,
		deliver: deliver,
		lines:   make(map[int]*line),
	}
}

// Attach adds a controller to its IRQ line's scan set.
func (c *Core) Attach(d *nic.Device) {
	irq := d.Desc.IRQ
	ln := c.lines[irq]
	if ln == nil {
		ln = &line{irq: irq, vector: etherlink.IRQVector(irq)}
		c.lines[irq] = ln
	}
	ln.devices = append(ln.devices, d)
}

// Hook installs the line's ISR stub, snapshotting the previous vector for
// chaining. Returns an unhook func for the unwind registry.
func (c *Core) Hook(irq int) (func() error, error) {
	ln := c.lines[irq]
	if ln == nil {
		return nil, errNoLine(irq)
	}
	ln.self = &etherlink.ISR{
		Name:      "etherlink-irq",
		Signature: etherlink.DriverSignature,
		Serve:     func(r *etherlink.Regs) { c.service(ln, r) },
	}
	ln.prev = c.table.Hook(ln.vector, ln.self)
	return func() error {
		return c.table.Unhook(ln.vector, ln.self, ln.prev)
	}, nil
}

// Hooked reports whether the line's vector still holds our stub.
func (c *Core) Hooked(irq int) bool {
	ln := c.lines[irq]
	return ln != nil && ln.self != nil && c.table.Get(ln.vector) == ln.self
}

// service is the ISR entry. The original saves segment registers, checks
// vector ownership, guards reentrancy, and switches to the private stack
// before any real work; the same sequence in the same order here.
func (c *Core) service(ln *line, r *etherlink.Regs) {
	// Vector-ownership check: if another resident took the vector without
	// chaining, behave as if we were never here.
	if c.table.Get(ln.vector) != ln.self {
		c.chain(ln, r)
		return
	}

	// Reentrancy guard. A nested entry acknowledges and leaves; the outer
	// frame is still draining and will pick the work up.
	if atomic.AddInt32(&c.depth, 1) > 1 {
		atomic.AddInt32(&c.depth, -1)
		EOI(c.bus, ln.irq)
		return
	}
	defer atomic.AddInt32(&c.depth, -1)

	// Stack switch: all service-path state lives in the reserved block.
	c.stackTop = 0

	work := false
	n := len(ln.devices)
	for i := 0; i < n; i++ {
		d := ln.devices[(ln.rrStart+i)%n]
		if c.serviceDevice(d, r) {
			work = true
		}
	}
	// Rotate the scan start so no controller monopolizes entry order.
	if n > 1 {
		ln.rrStart = (ln.rrStart + 1) % n
	}

	if !work {
		for _, d := range ln.devices {
			bumpCounter(&d.Counters.IntsSpurious)
		}
	}

	EOI(c.bus, ln.irq)
}

// serviceDevice runs one controller's tiny or full path. Reports whether
// the controller had anything latched.
func (c *Core) serviceDevice(d *nic.Device, r *etherlink.Regs) bool {
	status := d.Ops.ReadIntStatus(d)
	if status&etherlink.StatIntLatch == 0 {
		return false
	}
	bumpCounter(&d.Counters.IntsServiced)

	// The tight path may bank registers; restore whatever a preempted
	// non-ISR caller had selected.
	saved := d.SaveWindow()
	defer d.RestoreWindow(saved)

	if status&^uint16(etherlink.StatCommonCauses) != 0 {
		// Full path: push the full register context, then the heavyweight
		// cause handling.
		c.pushContext(r)
		c.fullPath(d, status)
		if d.State() == etherlink.Faulted {
			return true
		}
	}

	// Tiny path: drain receive up to the ceiling, release completed
	// transmits, acknowledge the minimal pattern.
	batch := c.policy.Ceiling(d)
	if status&(etherlink.StatRxComplete|etherlink.StatUpComplete) != 0 {
		d.Ops.DrainRx(d, batch, c.deliver)
	}
	if status&(etherlink.StatTxComplete|etherlink.StatDownComplete|etherlink.StatTxAvailable) != 0 {
		d.Ops.ReapTx(d)
	}
	d.Ops.AckInterrupt(d, status&etherlink.StatCommonCauses)
	return true
}

// fullPath handles the uncommon causes: adapter failure, statistics
// overflow, and anything else that cannot be served from the tight path.
func (c *Core) fullPath(d *nic.Device, status uint16) {
	if status&etherlink.StatAdapterFailure != 0 {
		MaskIRQ(c.bus, d.Desc.IRQ)
		d.Fault("adapter failure")
		d.Ops.AckInterrupt(d, etherlink.StatAdapterFailure)
		return
	}
	if status&etherlink.StatStatsFull != 0 {
		// Pulling the statistics block is cheap enough for the ISR; the
		// deferred bit stays for paths that are not.
		d.Ops.ReadStats(d)
		d.Ops.AckInterrupt(d, etherlink.StatStatsFull)
	}
	if status&etherlink.StatRxEarly != 0 {
		d.Ops.AckInterrupt(d, etherlink.StatRxEarly)
	}
	c.policy.MarkDeferred(d)
}

// chain forwards to the handler that owned the vector before us, exactly as
// if the driver were not installed.
func (c *Core) chain(ln *line, r *etherlink.Regs) {
	for _, d := range ln.devices {
		bumpCounter(&d.Counters.IntsChained)
	}
	if ln.prev != nil {
		ln.prev.Serve(r)
	}
}

// pushContext saves the full register file onto the private stack, the full
// path's counterpart to the tiny path's minimal save.
func (c *Core) pushContext(r *etherlink.Regs) {
	words := [9]uint16{r.AX, r.BX, r.CX, r.DX, r.SI, r.DI, r.BP, r.DS, r.ES}
	for _, w := range words {
		if c.stackTop+2 > len(c.stack) {
			return
		}
		c.stack[c.stackTop] = byte(w)
		c.stack[c.stackTop+1] = byte(w >> 8)
		c.stackTop += 2
	}
}

func bumpCounter(c *uint32) { atomic.AddUint32(c, 1) }

func errNoLine(irq int) error {
	return fmt.Errorf("irq: line %d has no attached controllers", irq)
}
