// Package nic implements the controller abstraction: a vtable of operations
// shared by every EtherLink family, with variant implementations for the
// windowed-PIO classic parts and the ISA/PCI bus-master parts.
package nic

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	etherlink "github.com/jfabienke/etherlink-go"
	"github.com/jfabienke/etherlink-go/cpu"
	"github.com/jfabienke/etherlink-go/dma"
)

// Hardware wait bounds. Exceeding the maximum faults the controller.
const (
	cmdWaitTypical = 10 * time.Millisecond
	cmdWaitMax     = 20 * time.Millisecond
)

// Deliver hands a received frame to the classifier. The buffer belongs to
// the caller again as soon as Deliver returns; the classifier must copy out
// within the call.
type Deliver func(d *Device, frame []byte)

// Ops is the per-family operation set, a struct of function pointers over
// the opaque device state. Families with near-identical behavior share the
// same functions and differ only in the descriptor's capability bitset.
type Ops struct {
	Reset          func(d *Device) error
	Start          func(d *Device) error
	Stop           func(d *Device) error
	ReadMAC        func(d *Device) ([6]byte, error)
	SetStationAddr func(d *Device, mac [6]byte) error
	SetReceiveMode func(d *Device, m etherlink.RxMode) error
	SubmitTx       func(d *Device, frame []byte) error
	DrainRx        func(d *Device, limit int, deliver Deliver) int
	ReapTx         func(d *Device) int
	ReadIntStatus  func(d *Device) uint16
	AckInterrupt   func(d *Device, causes uint16)
	ReadStats      func(d *Device)
}

// Device is the runtime state of one controller. Once Running it is owned
// by the interrupt core; non-ISR mutation requires masking its IRQ first.
type Device struct {
	Desc    *etherlink.Descriptor
	Bus     etherlink.Bus
	Mem     etherlink.PhysMem
	Profile *cpu.Profile
	Mapper  *dma.Mapper
	Ops     *Ops

	Counters Counters

	state  etherlink.State
	rxMode etherlink.RxMode
	window uint8

	pool   *BufPool
	txRing *Ring
	rxRing *Ring

	// pendingTxLen holds lengths of transmits whose status has not been
	// popped yet; the PIO TX status stack is at most four deep.
	pendingTxLen [etherlink.TxStatusStackedMax + 1]int
	pendingHead  int
	pendingTail  int

	log *logrus.Logger
}

// Deps carries the shared machine surfaces into device construction.
type Deps struct {
	Bus     etherlink.Bus
	Mem     etherlink.PhysMem
	Profile *cpu.Profile

	// Region is the DMA-reachable pool the device's rings, buffers and
	// bounces are carved from.
	Region *dma.Region

	// Buffers sizes the packet pool; RingDepth the TX/RX rings of the
	// bus-master families. Zero selects the defaults.
	Buffers   int
	RingDepth int

	// WriteThrough is the consent-gated Tier-3 option, forwarded to dma.
	WriteThrough bool

	Log *logrus.Logger
}

const (
	defaultBuffers   = 32
	defaultRingDepth = 16
	defaultBounces   = 8
)

// New binds a probed descriptor to its variant implementation and allocates
// its buffer resources. The device comes back in state Ready.
func New(desc *etherlink.Descriptor, deps Deps) (*Device, error) {
	if deps.Buffers == 0 {
		deps.Buffers = defaultBuffers
	}
	if deps.RingDepth == 0 {
		deps.RingDepth = defaultRingDepth
	}
	if deps.Log == nil {
		deps.Log = logrus.New()
		deps.Log.SetOutput(io.Discard)
	}

	d := &Device{
		Desc:    desc,
		Bus:     deps.Bus,
		Mem:     deps.Mem,
		Profile: deps.Profile,
		state:   etherlink.Uninitialized,
		rxMode:  etherlink.ModeBroadcast,
		log:     deps.Log,
	}

	pool, err := NewBufPool(deps.Mem, deps.Region, deps.Buffers)
	if err != nil {
		return nil, fmt.Errorf("nic %s: %w", desc.ID, err)
	}
	d.pool = pool

	switch desc.Family {
	case etherlink.FamilyPIOClassic:
		d.Ops = pioOps
	case etherlink.FamilyISABusMaster, etherlink.FamilyVortex,
		etherlink.FamilyBoomerang, etherlink.FamilyCyclone, etherlink.FamilyTornado:
		mapper, err := dma.NewMapper(deps.Mem, deps.Region, deps.Profile, dma.Config{
			Ceiling:      desc.Family.DMACeiling(),
			BounceCount:  defaultBounces,
			Tier:         deps.Profile.Coherency,
			WriteThrough: deps.WriteThrough,
		})
		if err != nil {
			return nil, fmt.Errorf("nic %s: %w", desc.ID, err)
		}
		d.Mapper = mapper
		if d.txRing, err = NewRing(deps.Mem, deps.Region, mapper, deps.RingDepth); err != nil {
			return nil, fmt.Errorf("nic %s: tx ring: %w", desc.ID, err)
		}
		if d.rxRing, err = NewRing(deps.Mem, deps.Region, mapper, deps.RingDepth); err != nil {
			return nil, fmt.Errorf("nic %s: rx ring: %w", desc.ID, err)
		}
		d.Ops = busMasterOps(desc.Family)
	default:
		return nil, fmt.Errorf("nic %s: unknown family %v", desc.ID, desc.Family)
	}

	d.state = etherlink.Ready
	return d, nil
}

// State returns the lifecycle state.
func (d *Device) State() etherlink.State { return d.state }

// RxMode returns the current receive mode.
func (d *Device) RxMode() etherlink.RxMode { return d.rxMode }

// Fault marks the controller dead. Operations that need a live controller
// fail with ErrFaulted until Ops.Reset returns it to Ready.
func (d *Device) Fault(reason string) {
	d.state = etherlink.Faulted
	d.log.WithFields(logrus.Fields{"nic": d.Desc.ID, "reason": reason}).Error("controller faulted")
}

func (d *Device) ensure(states ...etherlink.State) error {
	for _, s := range states {
		if d.state == s {
			return nil
		}
	}
	if d.state == etherlink.Faulted {
		return etherlink.ErrFaulted
	}
	return fmt.Errorf("nic %s in state %v", d.Desc.ID, d.state)
}

// SelectWindow banks the register window, skipping the command write when
// the shadow already matches.
func (d *Device) SelectWindow(w uint8) {
	if d.window == w {
		return
	}
	d.Bus.Out16(d.Desc.IOBase+etherlink.RegCommand, etherlink.CmdSelectWindow|uint16(w))
	d.window = w
}

// SaveWindow and RestoreWindow bracket the ISR tight path so an interrupted
// non-ISR caller finds the bank it was in.
func (d *Device) SaveWindow() uint8 { return d.window }

func (d *Device) RestoreWindow(w uint8) {
	d.window = 0xFF // force the write; the ISR may have switched banks
	d.SelectWindow(w)
}

// IssueCommand writes the command register.
func (d *Device) IssueCommand(cmd uint16) {
	d.Bus.Out16(d.Desc.IOBase+etherlink.RegCommand, cmd)
}

// WaitCommand spins until the in-progress bit clears, bounded. A timeout
// faults the controller.
func (d *Device) WaitCommand() error {
	deadline := time.Now().Add(cmdWaitMax)
	for d.Bus.In16(d.Desc.IOBase+etherlink.RegStatus)&etherlink.StatCmdInProgress != 0 {
		if time.Now().After(deadline) {
			d.Fault("command wait exceeded bound")
			return etherlink.ErrTimeout
		}
	}
	return nil
}

// pushTxLen queues a submitted frame length for the completion path.
func (d *Device) pushTxLen(n int) {
	d.pendingTxLen[d.pendingHead] = n
	d.pendingHead = (d.pendingHead + 1) % len(d.pendingTxLen)
}

func (d *Device) popTxLen() int {
	if d.pendingTail == d.pendingHead {
		return 0
	}
	n := d.pendingTxLen[d.pendingTail]
	d.pendingTail = (d.pendingTail + 1) % len(d.pendingTxLen)
	return n
}
