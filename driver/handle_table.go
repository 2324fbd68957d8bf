package driver

import (
	"bytes"
	"sync/atomic"

	etherlink "github.com/jfabienke/etherlink-go"
	"github.com/jfabienke/etherlink-go/nic"
)

// MaxHandles bounds the handle table.
const MaxHandles = 16

// MaxFilterLen bounds a type filter. Two bytes cover an Ethertype; longer
// filters reach into 802.2 headers.
const MaxFilterLen = 8

// CallStage distinguishes the two calls of the receive convention.
type CallStage int

const (
	// StageAlloc asks the client for a destination buffer of the given
	// size; returning nil declines the frame.
	StageAlloc CallStage = iota
	// StageComplete signals the copy into the client's buffer is done.
	StageComplete
)

// Receiver is a client's receive entry point, called once per frame per
// stage. It runs in ISR context at bounded batch size; the driver assumes
// nothing about it beyond this contract.
type Receiver func(stage CallStage, handle uint16, size int, frame []byte) []byte

// HandleCounters is the per-handle statistics block.
type HandleCounters struct {
	RxDelivered       uint32
	RxDroppedNoBuffer uint32
	TxSubmitted       uint32
}

// Handle is one client registration.
type Handle struct {
	inUse     bool
	class     uint8
	ifIndex   int
	filter    [MaxFilterLen]byte
	filterLen int
	receiver  Receiver
	mode      etherlink.RxMode

	Counters HandleCounters
}

// HandleTable is the fixed-capacity registration table. Structural
// mutation happens with all owned IRQs masked; the classifier reads
// without locking.
type HandleTable struct {
	handles [MaxHandles]Handle

	// copyFn is the patched copy primitive, used for client copy-out.
	copyFn func(dst, src []byte)

	// mcast holds the programmed multicast list per interface. An empty
	// list accepts every multicast in ModeMulticast.
	mcast map[int][][6]byte

	// rxDiscarded counts frames no handle claimed, including late frames
	// for released handles.
	rxDiscarded uint32
}

func NewHandleTable(copyFn func(dst, src []byte)) *HandleTable {
	return &HandleTable{copyFn: copyFn, mcast: make(map[int][][6]byte)}
}

// SetMulticastList programs the interface's multicast addresses. Callers
// mask the interface's IRQ around the call, like any structural mutation.
func (t *HandleTable) SetMulticastList(ifIndex int, addrs [][6]byte) {
	t.mcast[ifIndex] = addrs
}

// multicastMember reports whether dest is in the interface's programmed
// list; an unprogrammed list accepts everything.
func (t *HandleTable) multicastMember(ifIndex int, dest []byte) bool {
	list := t.mcast[ifIndex]
	if len(list) == 0 {
		return true
	}
	for _, a := range list {
		if bytes.Equal(dest, a[:]) {
			return true
		}
	}
	return false
}

// Allocate claims the lowest free slot. Duplicate class+filter
// registrations on the same interface are rejected with TypeInUse; the
// classifier's first-match rule would otherwise shadow one of them forever.
func (t *HandleTable) Allocate(class uint8, ifIndex int, filter []byte, rcv Receiver) (uint16, error) {
	if len(filter) > MaxFilterLen || rcv == nil {
		return 0, etherlink.ErrBadType
	}
	if class != etherlink.ClassEthernet && class != etherlink.ClassIEEE8023 {
		return 0, etherlink.ErrBadType
	}
	for i := range t.handles {
		h := &t.handles[i]
		if h.inUse && h.class == class && h.ifIndex == ifIndex &&
			h.filterLen == len(filter) && bytes.Equal(h.filter[:h.filterLen], filter) {
			return 0, etherlink.ErrTypeInUse
		}
	}
	for i := range t.handles {
		h := &t.handles[i]
		if h.inUse {
			continue
		}
		*h = Handle{
			inUse:     true,
			class:     class,
			ifIndex:   ifIndex,
			filterLen: len(filter),
			receiver:  rcv,
			mode:      etherlink.ModeBroadcast,
		}
		copy(h.filter[:], filter)
		return uint16(i), nil
	}
	return 0, etherlink.ErrNoSpace
}

// Release frees a handle. In-flight frames for it are simply counted and
// discarded by the classifier from here on.
func (t *HandleTable) Release(handle uint16) error {
	h, err := t.Get(handle)
	if err != nil {
		return err
	}
	*h = Handle{}
	return nil
}

// Get validates and returns a handle slot.
func (t *HandleTable) Get(handle uint16) (*Handle, error) {
	if int(handle) >= MaxHandles || !t.handles[handle].inUse {
		return nil, etherlink.ErrBadHandle
	}
	return &t.handles[handle], nil
}

// InUseCount returns the number of allocated handles.
func (t *HandleTable) InUseCount() int {
	n := 0
	for i := range t.handles {
		if t.handles[i].inUse {
			n++
		}
	}
	return n
}

// Mode returns a handle's receive mode.
func (h *Handle) Mode() etherlink.RxMode { return h.mode }

// Classify delivers one inbound frame: handles are evaluated in slot order,
// the first match wins, and delivery follows the two-call convention. A
// declined or unmatched frame is counted and dropped.
func (t *HandleTable) Classify(ifIndex int, dev *nic.Device, frame []byte) {
	if len(frame) < etherlink.EthHeaderLen {
		atomic.AddUint32(&t.rxDiscarded, 1)
		return
	}
	mcastOK := t.multicastMember(ifIndex, frame[:etherlink.EthAddrLen])
	for i := range t.handles {
		h := &t.handles[i]
		if !h.inUse || h.ifIndex != ifIndex {
			continue
		}
		if !h.matchType(frame) || !h.matchDest(dev, frame, mcastOK) {
			continue
		}
		t.deliver(uint16(i), h, frame)
		return
	}
	atomic.AddUint32(&t.rxDiscarded, 1)
}

func (h *Handle) matchType(frame []byte) bool {
	if h.filterLen == 0 {
		return true
	}
	// The type field sits at the Ethertype for DIX frames and right after
	// the length word for 802.3/802.2.
	off := etherlink.EthTypeOffset
	if h.class == etherlink.ClassIEEE8023 {
		off = etherlink.EthTypeOffset + 2
	}
	if len(frame) < off+h.filterLen {
		return false
	}
	return bytes.Equal(frame[off:off+h.filterLen], h.filter[:h.filterLen])
}

func (h *Handle) matchDest(dev *nic.Device, frame []byte, mcastOK bool) bool {
	dest := frame[:etherlink.EthAddrLen]
	if bytes.Equal(dest, dev.Desc.MAC[:]) {
		return true // unicast to the station always passes
	}
	if h.mode == etherlink.ModeOff || h.mode == etherlink.ModeDirect {
		return false
	}
	if isBroadcast(dest) {
		return true // every mode from broadcast up
	}
	if dest[0]&1 != 0 { // multicast
		if h.mode == etherlink.ModeMulticast {
			return mcastOK
		}
		return h.mode >= etherlink.ModeAllMulti
	}
	// Foreign unicast only in promiscuous mode.
	return h.mode == etherlink.ModePromiscous
}

func isBroadcast(dest []byte) bool {
	for _, b := range dest {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// deliver runs the two-call convention: first call for a destination
// buffer, copy, second call to signal completion.
func (t *HandleTable) deliver(idx uint16, h *Handle, frame []byte) {
	dst := h.receiver(StageAlloc, idx, len(frame), nil)
	if dst == nil || len(dst) < len(frame) {
		atomic.AddUint32(&h.Counters.RxDroppedNoBuffer, 1)
		return
	}
	t.copyFn(dst[:len(frame)], frame)
	h.receiver(StageComplete, idx, len(frame), dst[:len(frame)])
	atomic.AddUint32(&h.Counters.RxDelivered, 1)
}

// Discarded returns the unclaimed-frame count.
func (t *HandleTable) Discarded() uint32 {
	return atomic.LoadUint32(&t.rxDiscarded)
}
