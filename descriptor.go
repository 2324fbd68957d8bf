package etherlink

import (
	"fmt"

	"github.com/rs/xid"
)

// Family tags the controller variant a descriptor was probed as.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyPIOClassic      // 10-Mbps EtherLink III, windowed PIO
	FamilyISABusMaster    // 3C515, ISA bus-master, 16 MB DMA ceiling
	FamilyVortex          // first PCI generation
	FamilyBoomerang
	FamilyCyclone
	FamilyTornado
)

func (f Family) String() string {
	switch f {
	case FamilyPIOClassic:
		return "pio-classic"
	case FamilyISABusMaster:
		return "isa-busmaster"
	case FamilyVortex:
		return "vortex"
	case FamilyBoomerang:
		return "boomerang"
	case FamilyCyclone:
		return "cyclone"
	case FamilyTornado:
		return "tornado"
	}
	return "unknown"
}

// BusMaster reports whether the family uses descriptor rings.
func (f Family) BusMaster() bool {
	return f >= FamilyISABusMaster
}

// DMACeiling returns the highest physical address the family's DMA engine
// can reach, or 0 for families without one. ISA bus mastering stops at the
// 16 MB line; the PCI parts see the whole 32-bit space.
func (f Family) DMACeiling() uint32 {
	switch {
	case f == FamilyISABusMaster:
		return 0x00FFFFFF
	case f.BusMaster():
		return 0xFFFFFFFF
	}
	return 0
}

// Caps is the capability bitset of a controller.
type Caps uint16

const (
	CapBusMaster Caps = 1 << iota
	CapPromiscuous
	CapMulticast
	CapAllMulticast
	CapSetStationAddr
	CapLinkBeat
	CapWakeOnLAN
	CapHwChecksum
	CapVLANTag
)

func (c Caps) Has(want Caps) bool { return c&want == want }

// State is the lifecycle of a controller.
//
//	Uninitialized → Ready → Running ↔ Stopped → Faulted
//
// A controller reset (Ops.Reset) takes Faulted back to Ready; at unload
// every controller returns to Uninitialized.
type State int

const (
	Uninitialized State = iota
	Ready
	Running
	Stopped
	Faulted
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Faulted:
		return "faulted"
	}
	return "uninitialized"
}

// Descriptor is the probed identity of one controller, handed to the
// resident core by the cold probe/EEPROM layer. The core changes only MAC,
// when set_address programs a new station address; the other probed fields
// are never mutated.
type Descriptor struct {
	ID     string // stable identifier, assigned at probe time
	IOBase uint16
	IRQ    int
	Family Family
	MAC    [6]byte
	Caps   Caps

	// PCICommand mirrors the PCI command register for the Vortex and later
	// families; the I/O-space and bus-master enables must both be set or
	// start refuses. Zero on ISA parts.
	PCICommand uint16
}

// NewDescriptor fills in a descriptor with a fresh stable identifier.
func NewDescriptor(ioBase uint16, irq int, family Family, mac [6]byte, caps Caps) *Descriptor {
	return &Descriptor{
		ID:     xid.New().String(),
		IOBase: ioBase,
		IRQ:    irq,
		Family: family,
		MAC:    mac,
		Caps:   caps,
	}
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s %s io=%#x irq=%d mac=%02x:%02x:%02x:%02x:%02x:%02x",
		d.ID, d.Family, d.IOBase, d.IRQ,
		d.MAC[0], d.MAC[1], d.MAC[2], d.MAC[3], d.MAC[4], d.MAC[5])
}

// ValidIRQ reports whether the line may host a NIC. Timer, keyboard,
// cascade, floppy, RTC, FPU and IDE lines are refused at install time.
func ValidIRQ(irq int) bool {
	switch irq {
	case 3, 5, 7, 9, 10, 11, 12, 15:
		return true
	}
	return false
}
