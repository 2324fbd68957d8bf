package hwsim

import (
	"sync"

	etherlink "github.com/jfabienke/etherlink-go"
)

// PIC emulates a cascaded 8259A pair far enough for a driver that only
// reads/writes the mask registers and issues non-specific EOIs. Lines 8-15
// cascade through master line 2.
//
// Delivery is synchronous: a raised, unmasked, not-in-service line invokes
// its vector's handler on the raising goroutine before raise returns. An
// EOI arriving mid-handler re-pumps pending lines, which is exactly how
// nested interrupts reach the driver's reentrancy guard.
type PIC struct {
	m *Machine

	mu      sync.Mutex
	imr     [2]uint8 // 0 = master, 1 = slave
	irr     [2]uint8
	isr     [2]uint8
	pumping bool
}

func newPIC(m *Machine) *PIC {
	p := &PIC{m: m}
	// BIOS-shaped defaults: everything masked except the cascade.
	p.imr[0] = 0xFF &^ (1 << 2)
	p.imr[1] = 0xFF
	return p
}

func (p *PIC) PortIn(port uint16, size int) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch port {
	case etherlink.PICMasterData:
		return uint32(p.imr[0])
	case etherlink.PICSlaveData:
		return uint32(p.imr[1])
	case etherlink.PICMasterCmd:
		return uint32(p.irr[0])
	case etherlink.PICSlaveCmd:
		return uint32(p.irr[1])
	}
	return 0
}

func (p *PIC) PortOut(port uint16, size int, v uint32) {
	p.mu.Lock()
	switch port {
	case etherlink.PICMasterData:
		p.imr[0] = uint8(v)
	case etherlink.PICSlaveData:
		p.imr[1] = uint8(v)
	case etherlink.PICMasterCmd:
		if uint8(v) == etherlink.PICEOI {
			p.eoi(0)
		}
	case etherlink.PICSlaveCmd:
		if uint8(v) == etherlink.PICEOI {
			p.eoi(1)
		}
	}
	p.mu.Unlock()
	p.pump()
}

// eoi clears the highest-priority in-service bit, the non-specific form.
func (p *PIC) eoi(chip int) {
	for bit := uint8(1); bit != 0; bit <<= 1 {
		if p.isr[chip]&bit != 0 {
			p.isr[chip] &^= bit
			return
		}
	}
}

func (p *PIC) raise(irq int) {
	chip, bit := chipBit(irq)
	p.mu.Lock()
	p.irr[chip] |= bit
	p.mu.Unlock()
	p.pump()
}

// pump delivers every deliverable pending line, one at a time. The lock is
// dropped around the handler call: handlers talk to the PIC ports.
func (p *PIC) pump() {
	p.mu.Lock()
	if p.pumping {
		p.mu.Unlock()
		return
	}
	p.pumping = true
	for {
		irq, ok := p.next()
		if !ok {
			break
		}
		chip, bit := chipBit(irq)
		p.irr[chip] &^= bit
		p.isr[chip] |= bit
		p.mu.Unlock()

		var r etherlink.Regs
		p.m.Table.Invoke(etherlink.IRQVector(irq), &r)

		p.mu.Lock()
	}
	p.pumping = false
	p.mu.Unlock()
}

// next picks the lowest pending, unmasked, not-in-service line. Slave
// lines additionally require the cascade (master line 2) unmasked.
func (p *PIC) next() (int, bool) {
	for irq := 0; irq < 16; irq++ {
		chip, bit := chipBit(irq)
		if p.irr[chip]&bit == 0 || p.imr[chip]&bit != 0 || p.isr[chip]&bit != 0 {
			continue
		}
		if chip == 1 && p.imr[0]&(1<<2) != 0 {
			continue
		}
		return irq, true
	}
	return 0, false
}

func chipBit(irq int) (chip int, bit uint8) {
	if irq < 8 {
		return 0, 1 << uint(irq)
	}
	return 1, 1 << uint(irq-8)
}
