package dma

import (
	"sync/atomic"

	"github.com/jfabienke/etherlink-go/cpu"
)

// Strategy is the cache-management contract selected once at init. The four
// tiers mirror the CPU ladder: per-line flush, whole-cache writeback, a
// software write-buffer drain, or nothing at all on cacheless parts.
type Strategy interface {
	FlushForDevice(mem []byte)
	InvalidateForCPU(mem []byte)
	Barrier()
}

// StrategyFor binds the tier chosen by the dispatch profile. writeThrough
// elides Tier-Barrier flushes; it must only be true with explicit user
// consent because it reconfigures caching for the whole system.
func StrategyFor(tier cpu.CoherencyTier, writeThrough bool) Strategy {
	switch tier {
	case cpu.TierCLFLUSH:
		return clflushStrategy{}
	case cpu.TierWBINVD:
		return wbinvdStrategy{}
	case cpu.TierBarrier:
		return barrierStrategy{writeThrough: writeThrough}
	}
	return noneStrategy{}
}

// cache line granularity assumed by the per-line strategy
const lineSize = 64

// barrierWord is the scratch location the software barrier drains the write
// buffer through.
var barrierWord uint32

// drain forces completion of outstanding stores. On the original hardware
// this is a read/write sequence through an uncached location; here the
// sequentially-consistent atomic pair provides the same ordering.
func drain() {
	atomic.StoreUint32(&barrierWord, atomic.LoadUint32(&barrierWord)+1)
	_ = atomic.LoadUint32(&barrierWord)
}

type clflushStrategy struct{}

func (clflushStrategy) FlushForDevice(mem []byte) {
	// Line-granular walk: touch each line boundary, then order the stores.
	for i := 0; i < len(mem); i += lineSize {
		_ = mem[i]
	}
	drain()
}

func (clflushStrategy) InvalidateForCPU(mem []byte) {
	for i := 0; i < len(mem); i += lineSize {
		_ = mem[i]
	}
	drain()
}

func (clflushStrategy) Barrier() { drain() }

type wbinvdStrategy struct{}

func (wbinvdStrategy) FlushForDevice(mem []byte) { drain() }
func (wbinvdStrategy) InvalidateForCPU([]byte)   { drain() }
func (wbinvdStrategy) Barrier()                  { drain() }

type barrierStrategy struct {
	writeThrough bool
}

func (s barrierStrategy) FlushForDevice(mem []byte) {
	if s.writeThrough {
		return
	}
	drain()
}

func (s barrierStrategy) InvalidateForCPU([]byte) { drain() }
func (s barrierStrategy) Barrier()                { drain() }

type noneStrategy struct{}

func (noneStrategy) FlushForDevice([]byte)   {}
func (noneStrategy) InvalidateForCPU([]byte) {}
func (noneStrategy) Barrier()                {}
