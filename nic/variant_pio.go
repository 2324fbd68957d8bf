package nic

import (
	etherlink "github.com/jfabienke/etherlink-go"
)

// pioOps is the 10-Mbps EtherLink III variant: windowed registers, FIFO
// data path, no descriptor rings.
var pioOps = &Ops{
	Reset:          pioReset,
	Start:          pioStart,
	Stop:           pioStop,
	ReadMAC:        pioReadMAC,
	SetStationAddr: pioSetStationAddr,
	SetReceiveMode: setReceiveMode,
	SubmitTx:       pioSubmitTx,
	DrainRx:        pioDrainRx,
	ReapTx:         pioReapTx,
	ReadIntStatus:  readIntStatus,
	AckInterrupt:   ackInterrupt,
	ReadStats:      pioReadStats,
}

func pioReset(d *Device) error {
	if d.state == etherlink.Faulted {
		// A full reset is the one way back from Faulted short of re-init.
		d.state = etherlink.Ready
	}
	d.IssueCommand(etherlink.CmdGlobalReset)
	if err := d.WaitCommand(); err != nil {
		return err
	}
	d.window = 0
	d.IssueCommand(etherlink.CmdTxReset)
	if err := d.WaitCommand(); err != nil {
		return err
	}
	d.IssueCommand(etherlink.CmdRxReset)
	if err := d.WaitCommand(); err != nil {
		return err
	}
	d.IssueCommand(etherlink.CmdAckInterrupt | 0xFF)
	d.pendingHead, d.pendingTail = 0, 0
	return nil
}

func pioStart(d *Device) error {
	if err := d.ensure(etherlink.Ready, etherlink.Stopped); err != nil {
		return err
	}
	if err := pioSetStationAddr(d, d.Desc.MAC); err != nil {
		return err
	}
	if err := setReceiveMode(d, d.rxMode); err != nil {
		return err
	}
	d.IssueCommand(etherlink.CmdSetIntrEnable | etherlink.StatCommonCauses | etherlink.StatAdapterFailure | etherlink.StatStatsFull)
	d.IssueCommand(etherlink.CmdStatsEnable)
	d.IssueCommand(etherlink.CmdRxEnable)
	d.IssueCommand(etherlink.CmdTxEnable)
	d.SelectWindow(1)
	d.state = etherlink.Running
	return nil
}

func pioStop(d *Device) error {
	if err := d.ensure(etherlink.Running, etherlink.Stopped); err != nil {
		return err
	}
	d.IssueCommand(etherlink.CmdRxDisable)
	d.IssueCommand(etherlink.CmdTxDisable)
	d.IssueCommand(etherlink.CmdSetIntrEnable | 0)
	d.pendingHead, d.pendingTail = 0, 0
	d.state = etherlink.Stopped
	return nil
}

func pioReadMAC(d *Device) ([6]byte, error) {
	var mac [6]byte
	d.SelectWindow(2)
	for i := 0; i < etherlink.EthAddrLen; i++ {
		mac[i] = d.Bus.In8(d.Desc.IOBase + etherlink.RegStationAddr + uint16(i))
	}
	d.SelectWindow(1)
	return mac, nil
}

func pioSetStationAddr(d *Device, mac [6]byte) error {
	d.SelectWindow(2)
	for i := 0; i < etherlink.EthAddrLen; i++ {
		d.Bus.Out8(d.Desc.IOBase+etherlink.RegStationAddr+uint16(i), mac[i])
	}
	d.SelectWindow(1)
	d.Desc.MAC = mac
	return nil
}

// pioSubmitTx writes the frame into the TX FIFO: a length word, a zero pad
// word, then the data. A FIFO without room fails with TxBusy and the frame
// is the caller's problem.
func pioSubmitTx(d *Device, frame []byte) error {
	if err := d.ensure(etherlink.Running); err != nil {
		return err
	}
	base := d.Desc.IOBase
	d.SelectWindow(1)
	need := len(frame) + 4
	if int(d.Bus.In16(base+etherlink.RegTxFree)) < need {
		bump(&d.Counters.TxBusyDrops)
		return etherlink.ErrTxBusy
	}
	// Queued before the FIFO write: completion can interrupt the moment
	// the last byte lands.
	d.pushTxLen(len(frame))
	d.Bus.Out16(base+etherlink.RegTxFIFO, uint16(len(frame)))
	d.Bus.Out16(base+etherlink.RegTxFIFO, 0)
	d.Profile.OutBurst(d.Bus, base+etherlink.RegTxFIFO, frame)
	return nil
}

// pioReapTx walks the self-clearing TX status stack. The register pops on
// read, so every stacked status must be consumed in one visit; the stack is
// bounded, so so is the loop.
func pioReapTx(d *Device) int {
	base := d.Desc.IOBase
	d.SelectWindow(1)
	reaped := 0
	for i := 0; i < etherlink.TxStatusStackedMax; i++ {
		st := d.Bus.In8(base + etherlink.RegTxStatus)
		if st == 0 {
			break
		}
		if st == etherlink.TxStatusDuplexWarn {
			bump(&d.Counters.TxDuplexMismatch)
			continue
		}
		if st&etherlink.TxStatusComplete != 0 {
			bump(&d.Counters.TxFrames)
			bumpBy(&d.Counters.TxBytes, d.popTxLen())
			reaped++
		}
		if st&etherlink.TxStatusDeferred != 0 {
			bump(&d.Counters.TxDeferred)
		}
		if st&etherlink.TxStatusSingleColl != 0 {
			bump(&d.Counters.TxSingleColl)
		}
		if st&etherlink.TxStatusMultiColl != 0 {
			bump(&d.Counters.TxMultiColl)
		}
		if st&etherlink.TxStatusErrorBits != 0 {
			bump(&d.Counters.TxErrorsTotal)
			switch {
			case st&etherlink.TxStatusUnderrun != 0:
				bump(&d.Counters.TxUnderrun)
			case st&etherlink.TxStatusJabber != 0:
				bump(&d.Counters.TxJabber)
			case st&etherlink.TxStatusMaxColl != 0:
				bump(&d.Counters.TxMaxColl)
			}
			// TX-disabling statuses: reset and re-enable the transmitter.
			d.IssueCommand(etherlink.CmdTxReset)
			if d.WaitCommand() != nil {
				return reaped
			}
			d.IssueCommand(etherlink.CmdTxEnable)
		}
	}
	return reaped
}

// pioDrainRx pulls completed frames out of the RX FIFO up to the batch
// limit. An incomplete status means the frame is still arriving: return and
// let the next interrupt pick it up rather than spinning in the ISR.
func pioDrainRx(d *Device, limit int, deliver Deliver) int {
	base := d.Desc.IOBase
	d.SelectWindow(1)
	drained := 0
	for drained < limit {
		st := d.Bus.In16(base + etherlink.RegRxStatus)
		if st&etherlink.RxStatusIncomplete != 0 {
			break
		}
		if st&etherlink.RxStatusError != 0 {
			code := (st & etherlink.RxStatusErrMask) >> etherlink.RxStatusErrShift
			bump(&d.Counters.RxErrs[code])
			bump(&d.Counters.RxErrorsTotal)
			if discardRx(d) != nil {
				return drained
			}
			drained++
			continue
		}
		length := int(st & etherlink.RxStatusLenMask)
		buf := d.pool.Get(InFlightToClient)
		if buf == nil {
			bump(&d.Counters.RxDropped)
			if discardRx(d) != nil {
				return drained
			}
			drained++
			continue
		}
		d.Profile.InBurst(d.Bus, base+etherlink.RegRxFIFO, buf.Data[:length])
		if discardRx(d) != nil {
			d.pool.Put(buf)
			return drained
		}
		bump(&d.Counters.RxFrames)
		bumpBy(&d.Counters.RxBytes, length)
		deliver(d, buf.Data[:length])
		d.pool.Put(buf)
		drained++
	}
	return drained
}

func discardRx(d *Device) error {
	d.IssueCommand(etherlink.CmdRxDiscard)
	return d.WaitCommand()
}

// pioReadStats folds the window-6 hardware statistics block into the
// counters. The registers clear on read.
func pioReadStats(d *Device) {
	base := d.Desc.IOBase
	d.SelectWindow(6)
	// Reading the block re-arms the StatsFull interrupt; the individual
	// registers are rollover counts already folded into the software
	// counters on the completion paths, so the values are discarded.
	_ = d.Bus.In8(base + etherlink.RegStatsTxFrames)
	_ = d.Bus.In8(base + etherlink.RegStatsRxFrames)
	d.SelectWindow(1)
}

// LinkBeat reports 10BASE-T link integrity from the NET_DIAG register.
// Only meaningful on parts with CapLinkBeat.
func (d *Device) LinkBeat() bool {
	if !d.Desc.Caps.Has(etherlink.CapLinkBeat) {
		return false
	}
	w := d.SaveWindow()
	d.SelectWindow(4)
	diag := d.Bus.In16(d.Desc.IOBase + etherlink.RegNetDiag)
	d.RestoreWindow(w)
	return diag&etherlink.NetDiagLinkBeat != 0
}

// Shared helpers used by every variant.

func readIntStatus(d *Device) uint16 {
	return d.Bus.In16(d.Desc.IOBase + etherlink.RegStatus)
}

func ackInterrupt(d *Device, causes uint16) {
	d.IssueCommand(etherlink.CmdAckInterrupt | (causes & 0x07FF))
}

func setReceiveMode(d *Device, m etherlink.RxMode) error {
	if !m.Valid() {
		return etherlink.ErrBadMode
	}
	caps := d.Desc.Caps
	switch m {
	case etherlink.ModePromiscous:
		if !caps.Has(etherlink.CapPromiscuous) {
			return etherlink.ErrBadMode
		}
	case etherlink.ModeMulticast:
		if !caps.Has(etherlink.CapMulticast) {
			return etherlink.ErrBadMode
		}
	case etherlink.ModeAllMulti:
		if !caps.Has(etherlink.CapAllMulticast) {
			return etherlink.ErrBadMode
		}
	}
	var filter uint16
	switch m {
	case etherlink.ModeOff:
		filter = 0
	case etherlink.ModeDirect:
		filter = etherlink.FilterStation
	case etherlink.ModeBroadcast:
		filter = etherlink.FilterStation | etherlink.FilterBroadcast
	case etherlink.ModeMulticast, etherlink.ModeAllMulti:
		filter = etherlink.FilterStation | etherlink.FilterBroadcast | etherlink.FilterMulticast
	case etherlink.ModePromiscous:
		filter = etherlink.FilterStation | etherlink.FilterBroadcast | etherlink.FilterMulticast | etherlink.FilterPromisc
	}
	d.IssueCommand(etherlink.CmdSetRxFilter | filter)
	d.rxMode = m
	return nil
}
