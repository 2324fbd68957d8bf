package nic

import (
	"fmt"

	etherlink "github.com/jfabienke/etherlink-go"
	"github.com/jfabienke/etherlink-go/dma"
)

// Owner tracks which side holds a packet buffer. Exactly one owner holds a
// buffer at any moment.
type Owner uint8

const (
	Free Owner = iota
	PostedToNIC
	InFlightToClient
)

// Buffer is one fixed-size packet buffer with its three identities: the Go
// view for copying, the physical address for the NIC, and the owner.
type Buffer struct {
	Phys  uint32
	Data  []byte
	Owner Owner
}

// BufPool is a fixed free list carved at init. Buffers are never freed
// during operation; exhaustion is a counted drop, not an error that stops
// the NIC.
type BufPool struct {
	all  []*Buffer
	free []*Buffer
}

// NewBufPool carves count buffers from the region. Each stays inside a
// 64 KB segment so a pool buffer never needs to bounce.
func NewBufPool(mem etherlink.PhysMem, region *dma.Region, count int) (*BufPool, error) {
	p := &BufPool{}
	for i := 0; i < count; i++ {
		phys, err := region.AllocContained(dma.BufferSize, 16)
		if err != nil {
			return nil, fmt.Errorf("buffer pool: %w", err)
		}
		b := &Buffer{Phys: phys, Data: mem.View(phys, dma.BufferSize)}
		p.all = append(p.all, b)
		p.free = append(p.free, b)
	}
	return p, nil
}

// Get takes a free buffer, or returns nil when the pool is dry.
func (p *BufPool) Get(owner Owner) *Buffer {
	n := len(p.free)
	if n == 0 {
		return nil
	}
	b := p.free[n-1]
	p.free = p.free[:n-1]
	b.Owner = owner
	return b
}

// Put returns a buffer to the free list. Each buffer is returned exactly
// once per checkout: by the TX completion path, or by the classifier after
// copy-out on RX.
func (p *BufPool) Put(b *Buffer) {
	if b.Owner == Free {
		panic("nic: double free of packet buffer")
	}
	b.Owner = Free
	p.free = append(p.free, b)
}

// FreeCount returns the current free-list depth.
func (p *BufPool) FreeCount() int { return len(p.free) }

// Size returns the pool's total buffer count.
func (p *BufPool) Size() int { return len(p.all) }
