package nic

import (
	"fmt"

	etherlink "github.com/jfabienke/etherlink-go"
	"github.com/jfabienke/etherlink-go/dma"
)

// busMasterOps returns the operation set for the ring-based families. The
// ISA 3C515 and the four PCI generations run the same code; the differences
// live in the descriptor's capability bitset and DMA ceiling, plus the PCI
// command-register gate on start.
func busMasterOps(family etherlink.Family) *Ops {
	ops := &Ops{
		Reset:          bmReset,
		Start:          bmStart,
		Stop:           bmStop,
		ReadMAC:        pioReadMAC,
		SetStationAddr: pioSetStationAddr,
		SetReceiveMode: setReceiveMode,
		SubmitTx:       bmSubmitTx,
		DrainRx:        bmDrainRx,
		ReapTx:         bmReapTx,
		ReadIntStatus:  readIntStatus,
		AckInterrupt:   ackInterrupt,
		ReadStats:      pioReadStats,
	}
	if family != etherlink.FamilyISABusMaster {
		inner := ops.Start
		ops.Start = func(d *Device) error {
			if err := pciGate(d); err != nil {
				return err
			}
			return inner(d)
		}
	}
	return ops
}

// pciGate honors the PCI command register: without both the I/O-space and
// bus-master enables the part must not be started.
func pciGate(d *Device) error {
	const need = etherlink.PCICmdIOSpace | etherlink.PCICmdBusMaster
	if d.Desc.PCICommand&need != need {
		return fmt.Errorf("nic %s: PCI command %#04x lacks io-space/bus-master enable: %w",
			d.Desc.ID, d.Desc.PCICommand, etherlink.ErrUnsupported)
	}
	return nil
}

func bmReset(d *Device) error {
	if d.state == etherlink.Faulted {
		d.state = etherlink.Ready
	}
	d.IssueCommand(etherlink.CmdGlobalReset)
	if err := d.WaitCommand(); err != nil {
		return err
	}
	d.window = 0
	d.IssueCommand(etherlink.CmdAckInterrupt | 0xFF)
	d.pendingHead, d.pendingTail = 0, 0
	return nil
}

// bmStart arms the list engines exactly once: the upload ring is fully
// posted with pool buffers and both list base pointers are programmed.
// No later operation reprograms the bases.
func bmStart(d *Device) error {
	if err := d.ensure(etherlink.Ready, etherlink.Stopped); err != nil {
		return err
	}
	if err := pioSetStationAddr(d, d.Desc.MAC); err != nil {
		return err
	}
	if err := setReceiveMode(d, d.rxMode); err != nil {
		return err
	}
	if err := postAllRx(d); err != nil {
		return err
	}
	base := d.Desc.IOBase
	d.Bus.Out32(base+etherlink.RegUpListPtr, d.rxRing.Base)
	d.Bus.Out32(base+etherlink.RegDownListPtr, d.txRing.Base)
	d.IssueCommand(etherlink.CmdSetIntrEnable | etherlink.StatCommonCauses | etherlink.StatAdapterFailure | etherlink.StatStatsFull)
	d.IssueCommand(etherlink.CmdStatsEnable)
	d.IssueCommand(etherlink.CmdRxEnable)
	d.IssueCommand(etherlink.CmdTxEnable)
	d.state = etherlink.Running
	return nil
}

// postAllRx fills every upload slot but the mandatory open one.
func postAllRx(d *Device) error {
	r := d.rxRing
	for !r.Full() {
		buf := d.pool.Get(PostedToNIC)
		if buf == nil {
			return etherlink.ErrOutOfBuffers
		}
		t, err := d.Mapper.Prepare(buf.Phys, dma.BufferSize, dma.DeviceRead)
		if err != nil {
			d.pool.Put(buf)
			return err
		}
		slot := r.Head()
		r.bufs[slot] = buf
		r.tickets[slot] = t
		r.SetFragment(slot, t.DevAddr, dma.BufferSize)
		r.SetStatus(slot, 0)
		r.advanceHead()
	}
	return nil
}

// bmStop halts both engines and drops posted TX on the floor: every posted
// download slot is completed to the free list without transmitting.
func bmStop(d *Device) error {
	if err := d.ensure(etherlink.Running, etherlink.Stopped); err != nil {
		return err
	}
	d.IssueCommand(etherlink.CmdRxDisable)
	d.IssueCommand(etherlink.CmdTxDisable)
	d.IssueCommand(etherlink.CmdSetIntrEnable | 0)

	tx := d.txRing
	for !tx.Empty() {
		slot := tx.Tail()
		d.Mapper.Complete(tx.tickets[slot])
		if tx.bufs[slot] != nil {
			d.pool.Put(tx.bufs[slot])
			tx.bufs[slot] = nil
		}
		tx.SetStatus(slot, 0)
		tx.advanceTail()
	}
	rx := d.rxRing
	for !rx.Empty() {
		slot := rx.Tail()
		d.Mapper.Complete(rx.tickets[slot])
		if rx.bufs[slot] != nil {
			d.pool.Put(rx.bufs[slot])
			rx.bufs[slot] = nil
		}
		rx.SetStatus(slot, 0)
		rx.advanceTail()
	}
	// Both rings restart at slot 0, where Start points the list engines.
	tx.head, tx.tail = 0, 0
	rx.head, rx.tail = 0, 0
	// Dropped frames never complete; their queued lengths go with them.
	d.pendingHead, d.pendingTail = 0, 0
	d.state = etherlink.Stopped
	return nil
}

// SubmitTxPhys posts a client buffer by physical address, bouncing through
// the dma layer when the buffer violates the part's reachability rules.
// This is the path the register-convention API uses; tests drive it to
// exercise the bounce policy.
func (d *Device) SubmitTxPhys(phys uint32, length int) error {
	if err := d.ensure(etherlink.Running); err != nil {
		return err
	}
	if d.txRing == nil {
		return etherlink.ErrUnsupported
	}
	return bmPost(d, phys, length, nil)
}

// bmSubmitTx copies the frame into a pool buffer and posts it. Pool buffers
// are carved reachable, so this path never bounces.
func bmSubmitTx(d *Device, frame []byte) error {
	if err := d.ensure(etherlink.Running); err != nil {
		return err
	}
	buf := d.pool.Get(PostedToNIC)
	if buf == nil {
		bump(&d.Counters.TxBusyDrops)
		return etherlink.ErrTxBusy
	}
	d.Profile.Copy(buf.Data[:len(frame)], frame)
	if err := bmPost(d, buf.Phys, len(frame), buf); err != nil {
		d.pool.Put(buf)
		return err
	}
	return nil
}

func bmPost(d *Device, phys uint32, length int, buf *Buffer) error {
	r := d.txRing
	if r.Full() {
		bump(&d.Counters.TxBusyDrops)
		return etherlink.ErrTxBusy
	}
	t, err := d.Mapper.Prepare(phys, length, dma.DeviceWrite)
	if err != nil {
		return err
	}
	slot := r.Head()
	r.bufs[slot] = buf
	r.tickets[slot] = t
	r.SetFragment(slot, t.DevAddr, uint32(length)|etherlink.FragLast|etherlink.FragIntr)
	r.SetStatus(slot, uint32(length)|etherlink.DnPosted)
	r.advanceHead()
	d.pushTxLen(length)
	d.Bus.Out8(d.Desc.IOBase+etherlink.RegDownPoll, 1)
	return nil
}

// bmReapTx releases download slots the engine has finished, tail to head.
func bmReapTx(d *Device) int {
	r := d.txRing
	reaped := 0
	for !r.Empty() {
		slot := r.Tail()
		st := r.Status(slot)
		if st&etherlink.DnDone == 0 {
			break
		}
		d.Mapper.Complete(r.tickets[slot])
		if r.bufs[slot] != nil {
			d.pool.Put(r.bufs[slot])
			r.bufs[slot] = nil
		}
		bump(&d.Counters.TxFrames)
		bumpBy(&d.Counters.TxBytes, d.popTxLen())
		r.SetStatus(slot, 0)
		r.advanceTail()
		reaped++
	}
	return reaped
}

// bmDrainRx walks upload slots from the tail while the engine reports them
// complete. Each frame is completed through the dma layer, classified, and
// its slot immediately re-posted with the same buffer; the classifier has
// copied out by the time Deliver returns.
func bmDrainRx(d *Device, limit int, deliver Deliver) int {
	r := d.rxRing
	drained := 0
	for drained < limit && !r.Empty() {
		slot := r.Tail()
		st := r.Status(slot)
		if st&etherlink.UpComplete == 0 {
			break
		}
		buf := r.bufs[slot]
		d.Mapper.Complete(r.tickets[slot])
		if st&etherlink.UpError != 0 {
			bump(&d.Counters.RxErrorsTotal)
		} else {
			length := int(st & etherlink.UpLenMask)
			buf.Owner = InFlightToClient
			bump(&d.Counters.RxFrames)
			bumpBy(&d.Counters.RxBytes, length)
			deliver(d, buf.Data[:length])
		}
		// Re-post the slot with the same buffer.
		t, err := d.Mapper.Prepare(buf.Phys, dma.BufferSize, dma.DeviceRead)
		if err != nil {
			// No bounce left for a conformant pool buffer cannot happen;
			// treat it as fatal rather than leak the slot.
			d.pool.Put(buf)
			r.bufs[slot] = nil
			d.Fault("rx repost failed")
			return drained
		}
		buf.Owner = PostedToNIC
		r.tickets[slot] = t
		r.SetFragment(slot, t.DevAddr, dma.BufferSize)
		r.SetStatus(slot, 0)
		r.advanceTail()
		r.advanceHead()
		drained++
	}
	d.Bus.Out8(d.Desc.IOBase+etherlink.RegUpPoll, 1)
	return drained
}
