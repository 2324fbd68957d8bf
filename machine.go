package etherlink

import "fmt"

// Bus is the port-I/O surface the driver runs against. Production bindings
// forward to real IN/OUT instructions; tests bind it to the hwsim machine.
//
// Width selection is the caller's contract: a 16-bit access to a register
// documented as 8-bit is a driver bug, not something the bus mediates.
type Bus interface {
	In8(port uint16) uint8
	Out8(port uint16, v uint8)
	In16(port uint16) uint16
	Out16(port uint16, v uint16)
	In32(port uint16) uint32
	Out32(port uint16, v uint32)
}

// PhysMem is the flat physical address space the DMA-capable controllers
// share with the driver. View returns a live window into that space;
// mutations through the returned slice are visible to both sides, which is
// exactly the aliasing a bus-master NIC has.
type PhysMem interface {
	// View returns the n bytes starting at physical address phys.
	// It panics if the range falls outside the address space; callers are
	// expected to have validated reachability through the dma layer.
	View(phys uint32, n int) []byte

	// Size returns the extent of the address space in bytes.
	Size() uint32
}

// Mem is the default PhysMem: a flat byte arena.
type Mem struct {
	data []byte
}

// NewMem returns a zeroed physical address space of the given size.
func NewMem(size uint32) *Mem {
	return &Mem{data: make([]byte, size)}
}

func (m *Mem) View(phys uint32, n int) []byte {
	if n < 0 || uint64(phys)+uint64(n) > uint64(len(m.data)) {
		panic(fmt.Sprintf("etherlink: physical access [%#x,%#x) outside %#x-byte space",
			phys, uint64(phys)+uint64(n), len(m.data)))
	}
	return m.data[phys : uint32(n)+phys]
}

func (m *Mem) Size() uint32 {
	return uint32(len(m.data))
}

// SegOff is a real-mode segmented address.
type SegOff struct {
	Seg uint16
	Off uint16
}

// Linear returns the linear address seg<<4 + off. The sum is not wrapped at
// 1 MB, so FFFF:FFFF yields 0x10FFEF.
func (s SegOff) Linear() uint32 {
	return uint32(s.Seg)<<4 + uint32(s.Off)
}

func (s SegOff) String() string {
	return fmt.Sprintf("%04X:%04X", s.Seg, s.Off)
}
