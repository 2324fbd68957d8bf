// Package hwsim emulates just enough of an ISA/PCI machine to run the
// packet driver against: a port-I/O bus, an 8259A PIC pair delivering
// through the vector table, a flat physical memory, and EtherLink devices
// for the PIO and bus-master families.
package hwsim

import (
	"sync"

	etherlink "github.com/jfabienke/etherlink-go"
)

// PortDevice handles I/O for a registered port range.
type PortDevice interface {
	PortIn(port uint16, size int) uint32
	PortOut(port uint16, size int, v uint32)
}

// Machine is the emulated host. It implements etherlink.Bus; interrupts
// raised by devices are delivered synchronously through the vector table on
// the raising goroutine.
type Machine struct {
	Mem   *etherlink.Mem
	Table *etherlink.VectorTable
	PIC   *PIC

	mu    sync.Mutex
	ports map[uint16]PortDevice
}

// NewMachine builds a machine with the given physical memory size.
func NewMachine(memSize uint32) *Machine {
	m := &Machine{
		Mem:   etherlink.NewMem(memSize),
		Table: etherlink.NewVectorTable(),
		ports: make(map[uint16]PortDevice),
	}
	m.PIC = newPIC(m)
	m.Register(etherlink.PICMasterCmd, etherlink.PICMasterData, m.PIC)
	m.Register(etherlink.PICSlaveCmd, etherlink.PICSlaveData, m.PIC)
	return m
}

// Register maps [start, end] to a device.
func (m *Machine) Register(start, end uint16, dev PortDevice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for port := start; ; port++ {
		m.ports[port] = dev
		if port == end {
			break
		}
	}
}

func (m *Machine) device(port uint16) PortDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ports[port]
}

// Unhandled ports float high, like an empty ISA slot.

func (m *Machine) In8(port uint16) uint8 {
	if d := m.device(port); d != nil {
		return uint8(d.PortIn(port, 1))
	}
	return 0xFF
}

func (m *Machine) In16(port uint16) uint16 {
	if d := m.device(port); d != nil {
		return uint16(d.PortIn(port, 2))
	}
	return 0xFFFF
}

func (m *Machine) In32(port uint16) uint32 {
	if d := m.device(port); d != nil {
		return d.PortIn(port, 4)
	}
	return 0xFFFFFFFF
}

func (m *Machine) Out8(port uint16, v uint8) {
	if d := m.device(port); d != nil {
		d.PortOut(port, 1, uint32(v))
	}
}

func (m *Machine) Out16(port uint16, v uint16) {
	if d := m.device(port); d != nil {
		d.PortOut(port, 2, uint32(v))
	}
}

func (m *Machine) Out32(port uint16, v uint32) {
	if d := m.device(port); d != nil {
		d.PortOut(port, 4, v)
	}
}

// RaiseIRQ asserts a PIC line.
func (m *Machine) RaiseIRQ(irq int) {
	m.PIC.raise(irq)
}
