package etherlink

import (
	"fmt"
	"sync"
)

// Regs models the register file a software interrupt or hardware IRQ hands
// to its handler. The Packet Driver calling convention selects the function
// in AH, passes parameters in the remaining registers, and reports errors by
// setting the carry flag with an error code in DH.
type Regs struct {
	AX, BX, CX, DX uint16
	SI, DI, BP     uint16
	DS, ES         uint16
	Carry          bool
}

func (r *Regs) AH() uint8     { return uint8(r.AX >> 8) }
func (r *Regs) AL() uint8     { return uint8(r.AX) }
func (r *Regs) DH() uint8     { return uint8(r.DX >> 8) }
func (r *Regs) SetAH(v uint8) { r.AX = r.AX&0x00FF | uint16(v)<<8 }
func (r *Regs) SetAL(v uint8) { r.AX = r.AX&0xFF00 | uint16(v) }
func (r *Regs) SetDH(v uint8) { r.DX = r.DX&0x00FF | uint16(v)<<8 }

// ISR is an installed interrupt handler. Identity matters: the vector table
// stores *ISR values and vector-ownership checks compare pointers, the same
// way the real driver compares the vector against its own entry address.
//
// Signature is the string a utility finds at a fixed offset from the entry
// point; packet drivers carry "PKT DRVR" there.
type ISR struct {
	Name      string
	Signature string
	Serve     func(*Regs)
}

// VectorTable models the real-mode interrupt vector table: 256 slots, each
// holding at most one installed handler. Hooking is a read-modify-write of
// the slot; the previous occupant is returned for chaining.
type VectorTable struct {
	mu      sync.Mutex
	vectors [256]*ISR
}

func NewVectorTable() *VectorTable {
	return &VectorTable{}
}

// Get returns the current occupant of the vector, which may be nil.
func (t *VectorTable) Get(vec uint8) *ISR {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.vectors[vec]
}

// Hook installs isr on the vector and returns the previous occupant.
func (t *VectorTable) Hook(vec uint8, isr *ISR) *ISR {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.vectors[vec]
	t.vectors[vec] = isr
	return prev
}

// Unhook restores prev on the vector, but only if the slot still holds isr.
// If another resident has taken the vector since, the slot is left alone and
// an error is returned; the caller must then refuse to release its memory.
func (t *VectorTable) Unhook(vec uint8, isr, prev *ISR) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.vectors[vec] != isr {
		return fmt.Errorf("vector %#02x no longer owned (held by %q)", vec, isrName(t.vectors[vec]))
	}
	t.vectors[vec] = prev
	return nil
}

// Invoke calls the handler currently installed on the vector. Invoking an
// empty vector is a no-op, matching a stray INT through a null IVT slot on
// machines where the BIOS parks an IRET there.
func (t *VectorTable) Invoke(vec uint8, r *Regs) {
	t.mu.Lock()
	isr := t.vectors[vec]
	t.mu.Unlock()
	if isr != nil {
		isr.Serve(r)
	}
}

func isrName(isr *ISR) string {
	if isr == nil {
		return "<empty>"
	}
	return isr.Name
}

// IRQVector maps an 8259A IRQ line to its real-mode vector: the master PIC
// is based at 0x08, the slave at 0x70.
func IRQVector(irq int) uint8 {
	if irq < 8 {
		return uint8(0x08 + irq)
	}
	return uint8(0x70 + irq - 8)
}
