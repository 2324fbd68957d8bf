package hwsim

import (
	"encoding/binary"

	etherlink "github.com/jfabienke/etherlink-go"
)

// EL515 emulates the bus-master list engines shared by the 3C515 and the
// PCI Vortex-through-Tornado parts: download (TX) and upload (RX) rings of
// 16-byte descriptors in physical memory, poll registers, and the same
// command/status surface as the PIO part.
//
// Like EL3, the emulation is unlocked; delivery is synchronous.
type EL515 struct {
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

	dnPtr uint32 // current download descriptor
	upPtr uint32 // current upload descriptor

	txStatus []byte

	// Transmitted collects frames the download engine consumed.
	Transmitted [][]byte
}

// NewEL515 registers a bus-master part at the base/IRQ.
func NewEL515(m *Machine, base uint16, irq int, mac [6]byte) *EL515 {
	d := &EL515{m: m, base: base, irq: irq, station: mac}
	m.Register(base, base+0x3F, d)
	return d
}

func (d *EL515) latch(cause uint16) {
	d.latched |= cause | etherlink.StatIntLatch
	if d.latched&d.intEnable != 0 {
		d.m.RaiseIRQ(d.irq)
	}
}

func (d *EL515) PortIn(port uint16, size int) uint32 {
	off := port - d.base
	switch {
	case off == etherlink.RegStatus && size == 2:
		return uint32(d.latched)
	case off == etherlink.RegDownListPtr:
		return d.dnPtr
	case off == etherlink.RegUpListPtr:
		return d.upPtr
	}
	switch d.window {
	case 1:
		if off == etherlink.RegTxStatus {
			if len(d.txStatus) == 0 {
				return 0
			}
			st := d.txStatus[0]
			d.txStatus = d.txStatus[1:]
			return uint32(st)
		}
	case 2:
		if off < 6 {
			return uint32(d.station[off])
		}
	case 6:
		return 0
	}
	return 0
}

func (d *EL515) PortOut(port uint16, size int, v uint32) {
	off := port - d.base
	switch {
	case off == etherlink.RegCommand && size == 2:
		d.command(uint16(v))
		return
	case off == etherlink.RegDownListPtr:
		d.dnPtr = v
		return
	case off == etherlink.RegUpListPtr:
		d.upPtr = v
		return
	case off == etherlink.RegDownPoll:
		d.runDownload()
		return
	case off == etherlink.RegUpPoll:
		return // upload engine re-armed; nothing pending to do
	}
	if d.window == 2 && off < 6 {
		d.station[off] = uint8(v)
	}
}

func (d *EL515) command(cmd uint16) {
	op := cmd & 0xF800
	operand := cmd & 0x07FF
	switch op {
	case etherlink.CmdGlobalReset:
		*d = EL515{m: d.m, base: d.base, irq: d.irq, station: d.station}
	case etherlink.CmdSelectWindow:
		d.window = uint8(operand & 7)
	case etherlink.CmdRxEnable:
		d.rxOn = true
	case etherlink.CmdRxDisable:
		d.rxOn = false
	case etherlink.CmdTxEnable:
		d.txOn = true
	case etherlink.CmdTxDisable:
		d.txOn = false
	case etherlink.CmdAckInterrupt:
		d.latched &^= operand
	case etherlink.CmdSetIntrEnable:
		d.intEnable = operand
	case etherlink.CmdSetRxFilter:
		d.rxFilter = operand
	}
}

func (d *EL515) desc(phys uint32) []byte {
	return d.m.Mem.View(phys, etherlink.DescSize)
}

// runDownload walks posted download descriptors from the current pointer,
// consuming each frame and marking the slot done.
func (d *EL515) runDownload() {
	if !d.txOn || d.dnPtr == 0 {
		return
	}
	worked := false
	for {
		slot := d.desc(d.dnPtr)
		status := binary.LittleEndian.Uint32(slot[etherlink.DescStatus:])
		if status&etherlink.DnPosted == 0 {
			break
		}
		addr := binary.LittleEndian.Uint32(slot[etherlink.DescFragAddr:])
		lenFlags := binary.LittleEndian.Uint32(slot[etherlink.DescFragLen:])
		length := int(lenFlags & etherlink.FragLenMask)
		frame := append([]byte(nil), d.m.Mem.View(addr, length)...)
		d.Transmitted = append(d.Transmitted, frame)
		binary.LittleEndian.PutUint32(slot[etherlink.DescStatus:], uint32(length)|etherlink.DnDone)
		d.dnPtr = binary.LittleEndian.Uint32(slot[etherlink.DescNext:])
		worked = true
		if d.dnPtr == 0 {
			break
		}
	}
	if worked {
		d.latch(etherlink.StatDownComplete)
	}
}

// Inject writes an inbound frame into the next empty upload slot and
// completes it. A full ring drops the frame, as the hardware would.
func (d *EL515) Inject(frame []byte) bool {
	if !d.rxOn || d.upPtr == 0 {
		return false
	}
	slot := d.desc(d.upPtr)
	status := binary.LittleEndian.Uint32(slot[etherlink.DescStatus:])
	if status != 0 {
		return false // ring full
	}
	addr := binary.LittleEndian.Uint32(slot[etherlink.DescFragAddr:])
	room := binary.LittleEndian.Uint32(slot[etherlink.DescFragLen:]) & etherlink.FragLenMask
	if uint32(len(frame)) > room {
		return false
	}
	copy(d.m.Mem.View(addr, len(frame)), frame)
	binary.LittleEndian.PutUint32(slot[etherlink.DescStatus:],
		uint32(len(frame))|etherlink.UpComplete)
	d.upPtr = binary.LittleEndian.Uint32(slot[etherlink.DescNext:])
	d.latch(etherlink.StatUpComplete)
	return true
}

// InjectError completes the next upload slot with the error bit set.
func (d *EL515) InjectError() bool {
	if !d.rxOn || d.upPtr == 0 {
		return false
	}
	slot := d.desc(d.upPtr)
	if binary.LittleEndian.Uint32(slot[etherlink.DescStatus:]) != 0 {
		return false
	}
	binary.LittleEndian.PutUint32(slot[etherlink.DescStatus:],
		etherlink.UpComplete|etherlink.UpError)
	d.upPtr = binary.LittleEndian.Uint32(slot[etherlink.DescNext:])
	d.latch(etherlink.StatUpComplete)
	return true
}
