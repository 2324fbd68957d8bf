// Package dma is the safety substrate between packet buffers and bus-master
// hardware: physical reachability and 64 KB segment-boundary enforcement,
// bounce buffering when a client buffer violates either, and the cache
// coherency strategy matching the CPU tier.
package dma

import (
	"fmt"

	etherlink "github.com/jfabienke/etherlink-go"
	"github.com/jfabienke/etherlink-go/cpu"
)

// Direction of a device transfer, named from the host's point of view:
// DeviceRead moves data device→memory (receive), DeviceWrite moves data
// memory→device (transmit).
type Direction int

const (
	DeviceRead Direction = iota
	DeviceWrite
	DeviceBoth
)

// CrossesBoundary reports whether [phys, phys+length) straddles a 64 KB
// physical segment boundary. Zero-length ranges never cross.
func CrossesBoundary(phys uint32, length int) bool {
	if length <= 0 {
		return false
	}
	return phys&^0xFFFF != (phys+uint32(length)-1)&^0xFFFF
}

// Ticket records one prepared mapping so completion can reverse it.
type Ticket struct {
	DevAddr uint32
	length  int
	dir     Direction
	orig    uint32
	bounce  int // pool slot, or -1 when the original buffer was used as-is
}

// Bounced reports whether the mapping went through a bounce buffer.
func (t Ticket) Bounced() bool { return t.bounce >= 0 }

// Config sizes a Mapper.
type Config struct {
	// Ceiling is the highest physical address the device can reach.
	Ceiling uint32

	// BounceCount and BounceSize shape the pre-reserved bounce pool.
	// BounceSize defaults to the buffer size used for packet pools.
	BounceCount int
	BounceSize  int

	// Tier selects the coherency strategy.
	Tier cpu.CoherencyTier

	// WriteThrough opts the Tier-3 barrier strategy into treating memory as
	// write-through, eliding flushes. Affects the whole system, so it is
	// consent-gated: false unless the user asked for it.
	WriteThrough bool
}

// Mapper implements prepare-for-device / complete-from-device for one
// device's reachability constraints.
type Mapper struct {
	mem     etherlink.PhysMem
	ceiling uint32
	coh     Strategy
	copy    func(dst, src []byte)

	bounceAddr []uint32
	bounceSize int
	bounceFree []int
}

// NewMapper reserves the bounce pool from the region allocator and binds the
// coherency strategy. Every bounce slot is itself validated against the
// ceiling and boundary rules at reservation time.
func NewMapper(mem etherlink.PhysMem, region *Region, profile *cpu.Profile, cfg Config) (*Mapper, error) {
	if cfg.BounceSize == 0 {
		cfg.BounceSize = BufferSize
	}
	m := &Mapper{
		mem:        mem,
		ceiling:    cfg.Ceiling,
		coh:        StrategyFor(cfg.Tier, cfg.WriteThrough),
		copy:       profile.Copy,
		bounceSize: cfg.BounceSize,
	}
	for i := 0; i < cfg.BounceCount; i++ {
		phys, err := region.AllocContained(cfg.BounceSize, 16)
		if err != nil {
			return nil, fmt.Errorf("bounce pool slot %d: %w", i, err)
		}
		if phys+uint32(cfg.BounceSize)-1 > cfg.Ceiling {
			return nil, fmt.Errorf("bounce pool slot %d at %#x above DMA ceiling %#x", i, phys, cfg.Ceiling)
		}
		m.bounceAddr = append(m.bounceAddr, phys)
		m.bounceFree = append(m.bounceFree, i)
	}
	return m, nil
}

// Reachable reports whether the range satisfies both DMA constraints.
func (m *Mapper) Reachable(phys uint32, length int) bool {
	if CrossesBoundary(phys, length) {
		return false
	}
	return phys+uint32(length)-1 <= m.ceiling
}

// Prepare returns the device-visible address for the buffer, bouncing when
// the original violates a constraint. The returned ticket must be passed to
// Complete exactly once after the hardware releases ownership.
func (m *Mapper) Prepare(phys uint32, length int, dir Direction) (Ticket, error) {
	if length <= 0 {
		return Ticket{}, fmt.Errorf("prepare %d bytes: %w", length, etherlink.ErrBufferUnreachable)
	}
	t := Ticket{DevAddr: phys, length: length, dir: dir, orig: phys, bounce: -1}
	if !m.Reachable(phys, length) {
		n := len(m.bounceFree)
		if n == 0 || length > m.bounceSize {
			return Ticket{}, etherlink.ErrBufferUnreachable
		}
		slot := m.bounceFree[n-1]
		m.bounceFree = m.bounceFree[:n-1]
		t.bounce = slot
		t.DevAddr = m.bounceAddr[slot]
		// A receive bounce starts untouched; transmit and bidirectional
		// mappings carry the original data over.
		if dir != DeviceRead {
			m.copy(m.mem.View(t.DevAddr, length), m.mem.View(phys, length))
		}
	}
	m.coh.FlushForDevice(m.mem.View(t.DevAddr, length))
	return t, nil
}

// Complete reverses a prepared mapping: on device writes the data is made
// visible to the CPU and copied back out of any bounce; bounces are released.
func (m *Mapper) Complete(t Ticket) {
	if t.dir != DeviceWrite {
		m.coh.InvalidateForCPU(m.mem.View(t.DevAddr, t.length))
	}
	if t.bounce >= 0 {
		if t.dir != DeviceWrite {
			m.copy(m.mem.View(t.orig, t.length), m.mem.View(t.DevAddr, t.length))
		}
		m.bounceFree = append(m.bounceFree, t.bounce)
	}
}

// PrepareStatic validates and flushes a long-lived region such as a
// descriptor ring. Rings are prepared once at creation and never bounce;
// a violating ring is an allocation bug, not a runtime condition.
func (m *Mapper) PrepareStatic(phys uint32, length int) error {
	if !m.Reachable(phys, length) {
		return fmt.Errorf("static region %#x+%#x: %w", phys, length, etherlink.ErrBufferUnreachable)
	}
	m.coh.FlushForDevice(m.mem.View(phys, length))
	return nil
}

// BounceAvailable returns the number of free bounce slots.
func (m *Mapper) BounceAvailable() int { return len(m.bounceFree) }
