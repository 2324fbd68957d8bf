package hwsim

import (
	etherlink "github.com/jfabienke/etherlink-go"
)

// EL3 emulates a 10-Mbps EtherLink III: windowed registers, FIFO data path,
// latched interrupt status, self-clearing TX status stack.
//
// The emulation is not locked: interrupt delivery is synchronous on the
// raising goroutine, so the driver's ISR re-enters the device mid-call and
// a lock would deadlock. Callers serialize externally, matching the
// single-threaded host the driver targets.
type EL3 struct {
	m    *Machine
	base uint16
	irq  int

	window    uint8
	station   [6]byte
	latched   uint16
	intEnable uint16
	rxFilter  uint16
	rxOn      bool
	txOn      bool

	rxq   []rxEntry
	rxPos int

	txStatus []byte
	txBuf    []byte
	txLen    int
	txPhase  int // 0 = length word, 1 = pad word, 2 = frame data

	// Transmitted collects completed outbound frames for inspection.
	Transmitted [][]byte

	// NetDiag is the window-4 diagnostics register; tests set link-beat
	// and SQE bits directly.
	NetDiag uint16
}

type rxEntry struct {
	data    []byte
	errCode int
	isErr   bool
}

// NewEL3 registers an EtherLink III at the base/IRQ and returns it.
func NewEL3(m *Machine, base uint16, irq int, mac [6]byte) *EL3 {
	d := &EL3{m: m, base: base, irq: irq, station: mac, txLen: -1,
		NetDiag: etherlink.NetDiagLinkBeat}
	m.Register(base, base+0x0F, d)
	return d
}

// Inject queues an inbound frame and asserts the interrupt line.
func (d *EL3) Inject(frame []byte) {
	if !d.rxOn {
		return
	}
	data := append([]byte(nil), frame...)
	d.rxq = append(d.rxq, rxEntry{data: data})
	d.latch(etherlink.StatRxComplete)
}

// InjectError queues a damaged frame carrying the given RX error code.
func (d *EL3) InjectError(code int) {
	if !d.rxOn {
		return
	}
	d.rxq = append(d.rxq, rxEntry{isErr: true, errCode: code})
	d.latch(etherlink.StatRxComplete)
}

// PushTxStatus stacks a raw TX status byte, for exercising the stacked
// status and duplex-warning paths.
func (d *EL3) PushTxStatus(st byte) {
	d.txStatus = append(d.txStatus, st)
	d.latch(etherlink.StatTxComplete)
}

// RaiseFailure latches an adapter-failure condition.
func (d *EL3) RaiseFailure() {
	d.latch(etherlink.StatAdapterFailure)
}

func (d *EL3) latch(cause uint16) {
	d.latched |= cause | etherlink.StatIntLatch
	if d.latched&d.intEnable != 0 {
		d.m.RaiseIRQ(d.irq)
	}
}

func (d *EL3) PortIn(port uint16, size int) uint32 {
	off := port - d.base
	if off == etherlink.RegStatus && size == 2 {
		return uint32(d.latched)
	}
	switch d.window {
	case 1:
		switch off {
		case etherlink.RegRxFIFO:
			return d.readFIFO(size)
		case etherlink.RegRxStatus:
			return uint32(d.rxStatus())
		case etherlink.RegTxStatus:
			return uint32(d.popTxStatus())
		case etherlink.RegTxFree:
			return 2048
		}
	case 2:
		if off < 6 {
			return uint32(d.station[off])
		}
	case 4:
		if off == etherlink.RegNetDiag {
			return uint32(d.NetDiag)
		}
	case 6:
		return 0 // statistics block, cleared on read
	}
	return 0
}

func (d *EL3) PortOut(port uint16, size int, v uint32) {
	off := port - d.base
	if off == etherlink.RegCommand && size == 2 {
		d.command(uint16(v))
		return
	}
	switch d.window {
	case 1:
		if off == etherlink.RegTxFIFO {
			d.writeFIFO(size, v)
		}
	case 2:
		if off < 6 {
			d.station[off] = uint8(v)
		}
	}
}

func (d *EL3) command(cmd uint16) {
	op := cmd & 0xF800
	operand := cmd & 0x07FF
	switch op {
	case etherlink.CmdGlobalReset:
		*d = EL3{m: d.m, base: d.base, irq: d.irq, station: d.station,
			txLen: -1, NetDiag: d.NetDiag}
	case etherlink.CmdSelectWindow:
		d.window = uint8(operand & 7)
	case etherlink.CmdRxEnable:
		d.rxOn = true
	case etherlink.CmdRxDisable:
		d.rxOn = false
	case etherlink.CmdRxReset:
		d.rxq = nil
		d.rxPos = 0
	case etherlink.CmdRxDiscard:
		d.discard()
	case etherlink.CmdTxEnable:
		d.txOn = true
	case etherlink.CmdTxDisable:
		d.txOn = false
	case etherlink.CmdTxReset:
		d.txBuf = nil
		d.txLen = -1
		d.txPhase = 0
	case etherlink.CmdAckInterrupt:
		d.latched &^= operand
	case etherlink.CmdSetIntrEnable:
		d.intEnable = operand
	case etherlink.CmdSetRxFilter:
		d.rxFilter = operand
	}
}

func (d *EL3) rxStatus() uint16 {
	if len(d.rxq) == 0 {
		return etherlink.RxStatusIncomplete
	}
	e := d.rxq[0]
	if e.isErr {
		return etherlink.RxStatusError | uint16(e.errCode)<<etherlink.RxStatusErrShift
	}
	return uint16(len(e.data)) & etherlink.RxStatusLenMask
}

func (d *EL3) readFIFO(size int) uint32 {
	if len(d.rxq) == 0 {
		return 0
	}
	e := &d.rxq[0]
	var v uint32
	for i := 0; i < size; i++ {
		var b byte
		if d.rxPos < len(e.data) {
			b = e.data[d.rxPos]
			d.rxPos++
		}
		v |= uint32(b) << (8 * i)
	}
	return v
}

func (d *EL3) discard() {
	if len(d.rxq) > 0 {
		d.rxq = d.rxq[1:]
		d.rxPos = 0
	}
	if len(d.rxq) == 0 {
		d.latched &^= etherlink.StatRxComplete
	}
}

func (d *EL3) popTxStatus() uint8 {
	if len(d.txStatus) == 0 {
		return 0
	}
	st := d.txStatus[0]
	d.txStatus = d.txStatus[1:]
	return st
}

// writeFIFO assembles an outbound frame: length word, pad word, data.
func (d *EL3) writeFIFO(size int, v uint32) {
	for i := 0; i < size; i++ {
		b := byte(v >> (8 * i))
		switch d.txPhase {
		case 0:
			d.txBuf = append(d.txBuf, b)
			if len(d.txBuf) == 2 {
				d.txLen = int(d.txBuf[0]) | int(d.txBuf[1])<<8
				d.txBuf = d.txBuf[:0]
				d.txPhase = 1
			}
		case 1:
			d.txBuf = append(d.txBuf, b)
			if len(d.txBuf) == 2 {
				d.txBuf = d.txBuf[:0]
				d.txPhase = 2
			}
		case 2:
			d.txBuf = append(d.txBuf, b)
			if len(d.txBuf) == d.txLen {
				frame := append([]byte(nil), d.txBuf...)
				d.Transmitted = append(d.Transmitted, frame)
				d.txBuf = nil
				d.txPhase = 0
				d.txStatus = append(d.txStatus, etherlink.TxStatusComplete)
				d.latch(etherlink.StatTxComplete)
			}
		}
	}
}
