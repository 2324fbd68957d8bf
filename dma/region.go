package dma

import (
	"fmt"

	etherlink "github.com/jfabienke/etherlink-go"
)

// BufferSize is the packet buffer granule: MTU plus link-layer overhead,
// rounded up to a multiple of 512 bytes.
const BufferSize = 1536

// Region is a bump allocator over a span of physical memory. Everything the
// resident core owns — rings, packet pools, bounce pools — is carved from a
// region at init; nothing is ever returned, matching the no-allocation rule
// on the hot path.
type Region struct {
	base uint32
	end  uint32
	next uint32
}

// NewRegion covers [base, base+size) of the physical space.
func NewRegion(mem etherlink.PhysMem, base, size uint32) (*Region, error) {
	if uint64(base)+uint64(size) > uint64(mem.Size()) {
		return nil, fmt.Errorf("region [%#x,%#x) exceeds physical space %#x", base, base+size, mem.Size())
	}
	return &Region{base: base, end: base + size, next: base}, nil
}

// Alloc carves n bytes at the given alignment.
func (r *Region) Alloc(n int, align uint32) (uint32, error) {
	if align == 0 {
		align = 1
	}
	phys := (r.next + align - 1) &^ (align - 1)
	if uint64(phys)+uint64(n) > uint64(r.end) {
		return 0, fmt.Errorf("alloc %d bytes: region exhausted (%#x of %#x used)", n, r.next-r.base, r.end-r.base)
	}
	r.next = phys + uint32(n)
	return phys, nil
}

// AllocContained carves n bytes that do not cross a 64 KB physical segment
// boundary, skipping to the next segment when the straight carve would.
// Allocations larger than 64 KB cannot be contained.
func (r *Region) AllocContained(n int, align uint32) (uint32, error) {
	if n > 0x10000 {
		return 0, fmt.Errorf("alloc %d bytes: cannot fit inside a 64 KB segment", n)
	}
	phys, err := r.Alloc(n, align)
	if err != nil {
		return 0, err
	}
	if !CrossesBoundary(phys, n) {
		return phys, nil
	}
	// Rewind and retry from the next segment boundary.
	r.next = (phys &^ 0xFFFF) + 0x10000
	return r.Alloc(n, align)
}

// Remaining returns the unallocated byte count.
func (r *Region) Remaining() uint32 { return r.end - r.next }
