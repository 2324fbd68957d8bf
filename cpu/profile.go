package cpu

import (
	"fmt"

	etherlink "github.com/jfabienke/etherlink-go"
)

// CoherencyTier selects the dma layer's cache-management strategy.
type CoherencyTier int

const (
	TierNone    CoherencyTier = iota // 286 or earlier, no cache
	TierBarrier                      // software write-buffer drain
	TierWBINVD                       // whole-cache writeback+invalidate
	TierCLFLUSH                      // per-line flush
)

func (t CoherencyTier) String() string {
	switch t {
	case TierBarrier:
		return "barrier"
	case TierWBINVD:
		return "wbinvd"
	case TierCLFLUSH:
		return "clflush"
	}
	return "none"
}

// Profile is the frozen hot-path dispatch set. It stands in for the original
// code patching: each field is a site from the patch table, bound once by
// NewProfile and immutable afterwards.
type Profile struct {
	// Copy moves packet data between buffers.
	Copy func(dst, src []byte)

	// OutBurst writes src to a FIFO data port; InBurst fills dst from one.
	OutBurst func(bus etherlink.Bus, port uint16, src []byte)
	InBurst  func(bus etherlink.Bus, port uint16, dst []byte)

	// Coherency is consumed by the dma layer's strategy selection.
	Coherency CoherencyTier

	// BatchCeiling bounds frames drained per ISR entry per NIC.
	BatchCeiling int
}

// patchSite is one entry of the static patch table: a name for diagnostics
// and a selector that either binds the site or reports a shape mismatch by
// returning false. A mismatch anywhere fails the whole init closed.
type patchSite struct {
	name  string
	apply func(p *Profile, f Features) bool
}

var patchTable = []patchSite{
	{"copy", applyCopy},
	{"io-burst", applyBurst},
	{"coherency", applyCoherency},
	{"batch-ceiling", applyBatch},
}

// NewProfile walks the patch table against the feature record. Every site
// must bind or the profile is rejected and init unwinds.
func NewProfile(f Features) (*Profile, error) {
	p := &Profile{}
	for _, site := range patchTable {
		if !site.apply(p, f) {
			return nil, fmt.Errorf("dispatch site %q has no sequence for %s", site.name, f.Generation)
		}
	}
	return p, nil
}

func applyCopy(p *Profile, f Features) bool {
	// All tiers collapse to the runtime copy; the width distinction only
	// mattered for the rep-string encodings.
	p.Copy = func(dst, src []byte) { copy(dst, src) }
	return true
}

func applyBurst(p *Profile, f Features) bool {
	switch f.IOWidth {
	case 8:
		p.OutBurst = outBurst8
		p.InBurst = inBurst8
	case 16:
		p.OutBurst = outBurst16
		p.InBurst = inBurst16
	case 32:
		p.OutBurst = outBurst32
		p.InBurst = inBurst32
	default:
		return false
	}
	return true
}

func applyCoherency(p *Profile, f Features) bool {
	switch {
	case f.HasCLFLUSH:
		p.Coherency = TierCLFLUSH
	case f.HasWBINVD:
		p.Coherency = TierWBINVD
	case f.Generation >= Gen80386:
		p.Coherency = TierBarrier
	default:
		p.Coherency = TierNone
	}
	return true
}

func applyBatch(p *Profile, f Features) bool {
	switch {
	case f.Generation >= GenPentium:
		p.BatchCeiling = 32
	case f.Generation >= Gen80386:
		p.BatchCeiling = 16
	case f.Generation >= Gen80286:
		p.BatchCeiling = 8
	default:
		p.BatchCeiling = 4
	}
	return true
}

// Unrolled byte loop, the 8086 shape.
func outBurst8(bus etherlink.Bus, port uint16, src []byte) {
	for _, b := range src {
		bus.Out8(port, b)
	}
}

func inBurst8(bus etherlink.Bus, port uint16, dst []byte) {
	for i := range dst {
		dst[i] = bus.In8(port)
	}
}

// 16-bit string I/O: word transfers with a byte tail.
func outBurst16(bus etherlink.Bus, port uint16, src []byte) {
	n := len(src) &^ 1
	for i := 0; i < n; i += 2 {
		bus.Out16(port, uint16(src[i])|uint16(src[i+1])<<8)
	}
	if n < len(src) {
		bus.Out8(port, src[n])
	}
}

func inBurst16(bus etherlink.Bus, port uint16, dst []byte) {
	n := len(dst) &^ 1
	for i := 0; i < n; i += 2 {
		w := bus.In16(port)
		dst[i] = byte(w)
		dst[i+1] = byte(w >> 8)
	}
	if n < len(dst) {
		dst[n] = bus.In8(port)
	}
}

// 32-bit string I/O: dword transfers, word then byte tail.
func outBurst32(bus etherlink.Bus, port uint16, src []byte) {
	n := len(src) &^ 3
	for i := 0; i < n; i += 4 {
		bus.Out32(port, uint32(src[i])|uint32(src[i+1])<<8|uint32(src[i+2])<<16|uint32(src[i+3])<<24)
	}
	outBurst16(bus, port, src[n:])
}

func inBurst32(bus etherlink.Bus, port uint16, dst []byte) {
	n := len(dst) &^ 3
	for i := 0; i < n; i += 4 {
		d := bus.In32(port)
		dst[i] = byte(d)
		dst[i+1] = byte(d >> 8)
		dst[i+2] = byte(d >> 16)
		dst[i+3] = byte(d >> 24)
	}
	inBurst16(bus, port, dst[n:])
}
