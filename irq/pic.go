// Package irq is the interrupt core: the two-tier ISR with its reentrancy
// guard, vector-ownership check and PIC end-of-interrupt sequencing, plus
// the mitigation policy that bounds per-entry work.
package irq

import (
	etherlink "github.com/jfabienke/etherlink-go"
)

// PIC mask operations. The IMR update is a read-modify-write; the bus
// binding guarantees the two accesses are not interleaved with another
// CPU-side RMW, standing in for the CLI/STI bracket of the original.

// MaskIRQ sets the line's bit in the owning PIC's interrupt mask register.
func MaskIRQ(bus etherlink.Bus, irq int) {
	port, bit := imrFor(irq)
	bus.Out8(port, bus.In8(port)|bit)
}

// UnmaskIRQ clears the line's bit.
func UnmaskIRQ(bus etherlink.Bus, irq int) {
	port, bit := imrFor(irq)
	bus.Out8(port, bus.In8(port)&^bit)
}

// Masked reports the line's current mask state.
func Masked(bus etherlink.Bus, irq int) bool {
	port, bit := imrFor(irq)
	return bus.In8(port)&bit != 0
}

func imrFor(irq int) (port uint16, bit uint8) {
	if irq < 8 {
		return etherlink.PICMasterData, 1 << uint(irq)
	}
	return etherlink.PICSlaveData, 1 << uint(irq-8)
}

// EOI issues end-of-interrupt for the line. A slave-owned line (IRQ >= 8)
// gets the slave EOI before the master's; a master line gets the master
// only.
func EOI(bus etherlink.Bus, irq int) {
	if irq >= 8 {
		bus.Out8(etherlink.PICSlaveCmd, etherlink.PICEOI)
	}
	bus.Out8(etherlink.PICMasterCmd, etherlink.PICEOI)
}
