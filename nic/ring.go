package nic

import (
	"encoding/binary"
	"fmt"

	etherlink "github.com/jfabienke/etherlink-go"
	"github.com/jfabienke/etherlink-go/dma"
)

// Ring is a descriptor ring for the bus-master families: a physically
// contiguous array of 16-byte hardware descriptors linked circularly, plus
// the host-side bookkeeping the hardware never sees.
//
// head is the next slot to post (producer side), tail the oldest un-reaped
// slot (consumer side). head == tail means empty; one slot is always kept
// open so full is (head+1) mod depth == tail.
type Ring struct {
	Base  uint32
	Depth int

	head int
	tail int

	mem     []byte
	bufs    []*Buffer
	tickets []dma.Ticket
}

// NewRing allocates and links a ring of power-of-two depth. The ring memory
// is validated against the segment-boundary rule at carve time and prepared
// for the device exactly once, here.
func NewRing(mem etherlink.PhysMem, region *dma.Region, mapper *dma.Mapper, depth int) (*Ring, error) {
	if depth < 2 || depth&(depth-1) != 0 {
		return nil, fmt.Errorf("ring depth %d not a power of two", depth)
	}
	size := depth * etherlink.DescSize
	base, err := region.AllocContained(size, 16)
	if err != nil {
		return nil, err
	}
	r := &Ring{
		Base:    base,
		Depth:   depth,
		mem:     mem.View(base, size),
		bufs:    make([]*Buffer, depth),
		tickets: make([]dma.Ticket, depth),
	}
	if err := mapper.PrepareStatic(base, size); err != nil {
		return nil, err
	}
	for i := 0; i < depth; i++ {
		next := base + uint32((i+1)%depth)*etherlink.DescSize
		r.putDword(i, etherlink.DescNext, next)
	}
	return r, nil
}

func (r *Ring) Empty() bool { return r.head == r.tail }
func (r *Ring) Full() bool  { return (r.head+1)&(r.Depth-1) == r.tail }
func (r *Ring) Head() int   { return r.head }
func (r *Ring) Tail() int   { return r.tail }

func (r *Ring) advanceHead() { r.head = (r.head + 1) & (r.Depth - 1) }
func (r *Ring) advanceTail() { r.tail = (r.tail + 1) & (r.Depth - 1) }

// SlotPhys returns the physical address of a slot's descriptor.
func (r *Ring) SlotPhys(i int) uint32 {
	return r.Base + uint32(i)*etherlink.DescSize
}

// Status reads a slot's status dword.
func (r *Ring) Status(i int) uint32 {
	return r.getDword(i, etherlink.DescStatus)
}

// SetStatus writes a slot's status dword. An index update is a single
// aligned store, which is the cross-side visibility contract.
func (r *Ring) SetStatus(i int, v uint32) {
	r.putDword(i, etherlink.DescStatus, v)
}

// SetFragment points a slot at its packet fragment.
func (r *Ring) SetFragment(i int, addr, lenFlags uint32) {
	r.putDword(i, etherlink.DescFragAddr, addr)
	r.putDword(i, etherlink.DescFragLen, lenFlags)
}

// FragmentAddr reads back a slot's fragment address.
func (r *Ring) FragmentAddr(i int) uint32 {
	return r.getDword(i, etherlink.DescFragAddr)
}

func (r *Ring) putDword(slot, off int, v uint32) {
	binary.LittleEndian.PutUint32(r.mem[slot*etherlink.DescSize+off:], v)
}

func (r *Ring) getDword(slot, off int) uint32 {
	return binary.LittleEndian.Uint32(r.mem[slot*etherlink.DescSize+off:])
}
