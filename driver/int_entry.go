package driver

import (
	etherlink "github.com/jfabienke/etherlink-go"
)

// BindReceiver associates a far-call address with a receiver so clients of
// the register convention can name their callback by ES:DI. The binding
// table is consulted only at access_type time.
func (p *PacketDriver) BindReceiver(entry etherlink.SegOff, rcv Receiver) {
	p.callbacks[entry] = rcv
}

// ServeINT is the software-interrupt entry point: function number in AH,
// parameters per the Packet Driver calling convention, carry + DH for
// errors. It is installed on the configured vector at install time.
func (p *PacketDriver) ServeINT(r *etherlink.Regs) {
	r.Carry = false
	r.SetDH(0)

	if !p.ready.Load() {
		fail(r, etherlink.ErrNotReady)
		return
	}

	switch r.AH() {
	case etherlink.FuncDriverInfo:
		p.intDriverInfo(r)
	case etherlink.FuncAccessType:
		p.intAccessType(r)
	case etherlink.FuncReleaseType:
		if err := p.ReleaseType(r.BX); err != nil {
			fail(r, err)
		}
	case etherlink.FuncSendPkt:
		phys := etherlink.SegOff{Seg: r.DS, Off: r.SI}.Linear()
		if err := p.SendPacketPhys(r.BX, phys, int(r.CX)); err != nil {
			fail(r, err)
		}
	case etherlink.FuncTerminate:
		if err := p.Terminate(r.BX); err != nil {
			fail(r, err)
		}
	case etherlink.FuncGetAddress:
		p.intGetAddress(r)
	case etherlink.FuncResetInterface:
		if err := p.ResetInterface(r.BX); err != nil {
			fail(r, err)
		}
	case etherlink.FuncGetParameters:
		p.intGetParameters(r)
	case etherlink.FuncSetRcvMode:
		if err := p.SetReceiveMode(r.BX, etherlink.RxMode(r.CX)); err != nil {
			fail(r, err)
		}
	case etherlink.FuncGetRcvMode:
		mode, err := p.GetReceiveMode(r.BX)
		if err != nil {
			fail(r, err)
			return
		}
		r.AX = uint16(mode)
	case etherlink.FuncSetMulticast:
		p.intSetMulticast(r)
	case etherlink.FuncGetStatistics:
		p.intGetStatistics(r)
	case etherlink.FuncSetAddress:
		p.intSetAddress(r)
	default:
		// as_send_pkt and everything else unimplemented.
		fail(r, etherlink.ErrBadCommand)
	}
}

func fail(r *etherlink.Regs, err error) {
	r.Carry = true
	r.SetDH(etherlink.ErrorCode(err))
}

func (p *PacketDriver) intDriverInfo(r *etherlink.Regs) {
	// The classical probe sets AL=0xFF on the way in; tolerate both.
	info, err := p.DriverInfo()
	if err != nil {
		fail(r, err)
		return
	}
	r.BX = info.Version
	r.DX = info.Type
	r.CX = uint16(info.Class)<<8 | uint16(info.Number)
	r.SetAL(info.Functions)
}

// intAccessType reads the type filter from DS:SI (CX bytes) out of physical
// memory and resolves the receiver bound to ES:DI.
func (p *PacketDriver) intAccessType(r *etherlink.Regs) {
	filterLen := int(r.CX)
	if filterLen > MaxFilterLen {
		fail(r, etherlink.ErrBadType)
		return
	}
	var filter []byte
	if filterLen > 0 {
		src := etherlink.SegOff{Seg: r.DS, Off: r.SI}.Linear()
		filter = append(filter, p.cfg.Mem.View(src, filterLen)...)
	}
	rcv, ok := p.callbacks[etherlink.SegOff{Seg: r.ES, Off: r.DI}]
	if !ok {
		fail(r, etherlink.ErrBadType)
		return
	}
	handle, err := p.AccessType(int(r.DX&0xFF), r.AL(), filter, rcv)
	if err != nil {
		fail(r, err)
		return
	}
	r.AX = handle
}

// intGetAddress writes the station address to ES:DI, length in CX.
func (p *PacketDriver) intGetAddress(r *etherlink.Regs) {
	mac, err := p.GetAddress(r.BX)
	if err != nil {
		fail(r, err)
		return
	}
	if int(r.CX) < len(mac) {
		fail(r, etherlink.ErrNoSpace)
		return
	}
	dst := etherlink.SegOff{Seg: r.ES, Off: r.DI}.Linear()
	copy(p.cfg.Mem.View(dst, len(mac)), mac[:])
	r.CX = uint16(len(mac))
}

// intSetAddress reads the new station address from ES:DI, length in CX.
func (p *PacketDriver) intSetAddress(r *etherlink.Regs) {
	if int(r.CX) != etherlink.EthAddrLen {
		fail(r, etherlink.ErrCantSet)
		return
	}
	var mac [6]byte
	src := etherlink.SegOff{Seg: r.ES, Off: r.DI}.Linear()
	copy(mac[:], p.cfg.Mem.View(src, len(mac)))
	if err := p.SetAddress(r.BX, mac); err != nil {
		fail(r, err)
	}
}

// intSetMulticast reads the address block at ES:DI, CX bytes of packed
// six-byte addresses.
func (p *PacketDriver) intSetMulticast(r *etherlink.Regs) {
	if int(r.CX)%etherlink.EthAddrLen != 0 {
		fail(r, etherlink.ErrNoMulticast)
		return
	}
	n := int(r.CX) / etherlink.EthAddrLen
	src := etherlink.SegOff{Seg: r.ES, Off: r.DI}.Linear()
	addrs := make([][6]byte, n)
	for i := 0; i < n; i++ {
		copy(addrs[i][:], p.cfg.Mem.View(src+uint32(i*etherlink.EthAddrLen), etherlink.EthAddrLen))
	}
	if err := p.SetMulticastList(r.BX, addrs); err != nil {
		fail(r, err)
	}
}

// intGetParameters stores the parameter block at ES:DI.
func (p *PacketDriver) intGetParameters(r *etherlink.Regs) {
	params, err := p.GetParameters(r.BX)
	if err != nil {
		fail(r, err)
		return
	}
	dst := etherlink.SegOff{Seg: r.ES, Off: r.DI}.Linear()
	out := p.cfg.Mem.View(dst, 10)
	out[0] = params.MajorRev
	out[1] = params.MinorRev
	out[2] = params.Length
	out[3] = uint8(params.MTU)
	out[4] = uint8(params.MTU >> 8)
	out[5] = uint8(params.MulticastAperture)
	out[6] = uint8(params.MulticastAperture >> 8)
	out[7] = params.RcvBufs
	out[8] = params.XmitBufs
	out[9] = params.IntNum
}

// intGetStatistics stores the classic 7-dword statistics block at ES:DI.
func (p *PacketDriver) intGetStatistics(r *etherlink.Regs) {
	snap, hc, err := p.GetStatistics(r.BX)
	if err != nil {
		fail(r, err)
		return
	}
	dst := etherlink.SegOff{Seg: r.ES, Off: r.DI}.Linear()
	out := p.cfg.Mem.View(dst, 28)
	putDword := func(off int, v uint32) {
		out[off] = uint8(v)
		out[off+1] = uint8(v >> 8)
		out[off+2] = uint8(v >> 16)
		out[off+3] = uint8(v >> 24)
	}
	putDword(0, snap.RxFrames)
	putDword(4, snap.TxFrames)
	putDword(8, snap.RxBytes)
	putDword(12, snap.TxBytes)
	putDword(16, snap.RxErrorsTotal)
	putDword(20, snap.TxErrorsTotal)
	putDword(24, hc.RxDroppedNoBuffer+snap.RxDropped)
}
