package nic

import (
	"sync/atomic"

	etherlink "github.com/jfabienke/etherlink-go"
)

// Counters is the per-NIC statistics block. The ISR is the single writer;
// every update is a 32-bit atomic add so a non-ISR reader never sees a torn
// value. On pre-386 targets the original masks the NIC's IRQ around paired
// reads; Snapshot keeps that shape by being the one sanctioned read path.
type Counters struct {
	RxFrames      uint32
	RxBytes       uint32
	RxErrorsTotal uint32
	RxErrs        [etherlink.RxErrCodes]uint32
	RxDropped     uint32 // pool exhausted, frame discarded

	TxFrames         uint32
	TxBytes          uint32
	TxErrorsTotal    uint32
	TxDeferred       uint32
	TxSingleColl     uint32
	TxMultiColl      uint32
	TxUnderrun       uint32
	TxJabber         uint32
	TxMaxColl        uint32
	TxDuplexMismatch uint32
	TxBusyDrops      uint32

	IntsServiced uint32
	IntsChained  uint32
	IntsSpurious uint32
}

func bump(c *uint32)          { atomic.AddUint32(c, 1) }
func bumpBy(c *uint32, n int) { atomic.AddUint32(c, uint32(n)) }
func load(c *uint32) uint32   { return atomic.LoadUint32(c) }

// Snapshot copies the block. Callers touching paired counters mask the
// NIC's IRQ around the call; the driver layer does this for get_statistics.
func (c *Counters) Snapshot() Counters {
	var s Counters
	s.RxFrames = load(&c.RxFrames)
	s.RxBytes = load(&c.RxBytes)
	s.RxErrorsTotal = load(&c.RxErrorsTotal)
	for i := range c.RxErrs {
		s.RxErrs[i] = load(&c.RxErrs[i])
	}
	s.RxDropped = load(&c.RxDropped)
	s.TxFrames = load(&c.TxFrames)
	s.TxBytes = load(&c.TxBytes)
	s.TxErrorsTotal = load(&c.TxErrorsTotal)
	s.TxDeferred = load(&c.TxDeferred)
	s.TxSingleColl = load(&c.TxSingleColl)
	s.TxMultiColl = load(&c.TxMultiColl)
	s.TxUnderrun = load(&c.TxUnderrun)
	s.TxJabber = load(&c.TxJabber)
	s.TxMaxColl = load(&c.TxMaxColl)
	s.TxDuplexMismatch = load(&c.TxDuplexMismatch)
	s.TxBusyDrops = load(&c.TxBusyDrops)
	s.IntsServiced = load(&c.IntsServiced)
	s.IntsChained = load(&c.IntsChained)
	s.IntsSpurious = load(&c.IntsSpurious)
	return s
}

// Clear zeroes the block, used by reset_interface.
func (c *Counters) Clear() {
	*c = Counters{}
}
