package driver

import (
	"sync/atomic"

	etherlink "github.com/jfabienke/etherlink-go"
	"github.com/jfabienke/etherlink-go/nic"
)

// Info is the driver_info result.
type Info struct {
	Version    uint16
	Class      uint8
	Type       uint16
	Number     uint8
	Name       string
	Functions  uint8
	Interfaces int
}

// Parameters is the get_parameters result block.
type Parameters struct {
	MajorRev          uint8
	MinorRev          uint8
	Length            uint8
	MTU               uint16
	MulticastAperture uint16
	RcvBufs           uint8
	XmitBufs          uint8
	IntNum            uint8
}

// DriverInfo implements driver_info.
func (p *PacketDriver) DriverInfo() (Info, error) {
	if err := p.enter(); err != nil {
		return Info{}, err
	}
	return Info{
		Version:    Version,
		Class:      etherlink.ClassEthernet,
		Type:       0xFFFF, // all types this class
		Number:     0,
		Name:       DriverName,
		Functions:  DriverHighPerf,
		Interfaces: len(p.devices),
	}, nil
}

// DriverHighPerf mirrors the functionality value of the high-performance
// driver class.
const DriverHighPerf = etherlink.DriverHighPerf

// AccessType implements access_type: register a class/type filter and
// receiver, yielding a handle. The structural mutation runs with the
// interface's IRQ masked.
func (p *PacketDriver) AccessType(ifIndex int, class uint8, filter []byte, rcv Receiver) (uint16, error) {
	if err := p.enter(); err != nil {
		return 0, err
	}
	if ifIndex < 0 || ifIndex >= len(p.devices) {
		return 0, etherlink.ErrBadHandle
	}
	dev := p.devices[ifIndex]
	var handle uint16
	err := p.withIRQMasked(dev, func() error {
		var err error
		handle, err = p.handles.Allocate(class, ifIndex, filter, rcv)
		return err
	})
	return handle, err
}

// ReleaseType implements release_type.
func (p *PacketDriver) ReleaseType(handle uint16) error {
	if err := p.enter(); err != nil {
		return err
	}
	h, err := p.handles.Get(handle)
	if err != nil {
		return err
	}
	dev, err := p.device(h)
	if err != nil {
		return err
	}
	return p.withIRQMasked(dev, func() error {
		return p.handles.Release(handle)
	})
}

// SendPacket implements send_pkt for a Go-side frame. The call is
// synchronous; there is no completion callback.
func (p *PacketDriver) SendPacket(handle uint16, frame []byte) error {
	if err := p.enter(); err != nil {
		return err
	}
	h, err := p.handles.Get(handle)
	if err != nil {
		return err
	}
	dev, err := p.device(h)
	if err != nil {
		return err
	}
	if len(frame) == 0 || len(frame) > etherlink.EthMaxFrame {
		return etherlink.ErrCantSend
	}
	if p.cfg.RewriteSource && len(frame) >= etherlink.EthHeaderLen {
		p.profile.Copy(p.scratch[:len(frame)], frame)
		copy(p.scratch[etherlink.EthAddrLen:2*etherlink.EthAddrLen], dev.Desc.MAC[:])
		frame = p.scratch[:len(frame)]
	}
	if err := dev.Ops.SubmitTx(dev, frame); err != nil {
		return err
	}
	atomic.AddUint32(&h.Counters.TxSubmitted, 1)
	return nil
}

// SendPacketPhys submits a frame living in physical memory, the shape the
// register-convention entry uses. Bus-master parts DMA straight from the
// client buffer, bouncing when it is unreachable; PIO parts copy out.
func (p *PacketDriver) SendPacketPhys(handle uint16, phys uint32, length int) error {
	if err := p.enter(); err != nil {
		return err
	}
	h, err := p.handles.Get(handle)
	if err != nil {
		return err
	}
	dev, err := p.device(h)
	if err != nil {
		return err
	}
	if length == 0 || length > etherlink.EthMaxFrame {
		return etherlink.ErrCantSend
	}
	var submitErr error
	if dev.Desc.Family.BusMaster() && !p.cfg.RewriteSource {
		submitErr = dev.SubmitTxPhys(phys, length)
	} else {
		submitErr = p.SendPacket(handle, p.cfg.Mem.View(phys, length))
		if submitErr == nil {
			return nil // counter already bumped
		}
		return submitErr
	}
	if submitErr != nil {
		return submitErr
	}
	atomic.AddUint32(&h.Counters.TxSubmitted, 1)
	return nil
}

// Terminate implements terminate: while other handles are live it refuses
// with ErrCantTerminate; when the caller's handle is the last registration
// it releases it and unloads the driver entirely.
func (p *PacketDriver) Terminate(handle uint16) error {
	if err := p.enter(); err != nil {
		return err
	}
	if _, err := p.handles.Get(handle); err != nil {
		return err
	}
	if p.handles.InUseCount() > 1 {
		return etherlink.ErrCantTerminate
	}
	if err := p.ReleaseType(handle); err != nil {
		return err
	}
	return p.Uninstall()
}

// GetAddress implements get_address.
func (p *PacketDriver) GetAddress(handle uint16) ([6]byte, error) {
	if err := p.enter(); err != nil {
		return [6]byte{}, err
	}
	h, err := p.handles.Get(handle)
	if err != nil {
		return [6]byte{}, err
	}
	dev, err := p.device(h)
	if err != nil {
		return [6]byte{}, err
	}
	return dev.Desc.MAC, nil
}

// SetAddress implements set_address.
func (p *PacketDriver) SetAddress(handle uint16, mac [6]byte) error {
	if err := p.enter(); err != nil {
		return err
	}
	h, err := p.handles.Get(handle)
	if err != nil {
		return err
	}
	dev, err := p.device(h)
	if err != nil {
		return err
	}
	if !dev.Desc.Caps.Has(etherlink.CapSetStationAddr) {
		return etherlink.ErrCantSet
	}
	return p.withIRQMasked(dev, func() error {
		if err := dev.Ops.SetStationAddr(dev, mac); err != nil {
			return etherlink.ErrCantSet
		}
		return nil
	})
}

// ResetInterface implements reset_interface: the controller is bounced
// while remaining observably Running — same station address, same filters,
// counters cleared.
func (p *PacketDriver) ResetInterface(handle uint16) error {
	if err := p.enter(); err != nil {
		return err
	}
	h, err := p.handles.Get(handle)
	if err != nil {
		return err
	}
	dev, err := p.device(h)
	if err != nil {
		return err
	}
	return p.withIRQMasked(dev, func() error {
		if dev.State() == etherlink.Running {
			if err := dev.Ops.Stop(dev); err != nil {
				return etherlink.ErrCantReset
			}
		}
		if err := dev.Ops.Reset(dev); err != nil {
			return etherlink.ErrCantReset
		}
		if err := dev.Ops.Start(dev); err != nil {
			return etherlink.ErrCantReset
		}
		dev.Counters.Clear()
		return nil
	})
}

// SetReceiveMode implements set_rcv_mode, validating the mode against the
// controller's capability set.
func (p *PacketDriver) SetReceiveMode(handle uint16, mode etherlink.RxMode) error {
	if err := p.enter(); err != nil {
		return err
	}
	h, err := p.handles.Get(handle)
	if err != nil {
		return err
	}
	dev, err := p.device(h)
	if err != nil {
		return err
	}
	return p.withIRQMasked(dev, func() error {
		if err := dev.Ops.SetReceiveMode(dev, mode); err != nil {
			return err
		}
		h.mode = mode
		return nil
	})
}

// MulticastAperture bounds the programmable multicast list.
const MulticastAperture = 8

// SetMulticastList implements set_multicast_list, capability-gated on the
// controller. An empty list restores accept-all within ModeMulticast.
func (p *PacketDriver) SetMulticastList(handle uint16, addrs [][6]byte) error {
	if err := p.enter(); err != nil {
		return err
	}
	h, err := p.handles.Get(handle)
	if err != nil {
		return err
	}
	dev, err := p.device(h)
	if err != nil {
		return err
	}
	if !dev.Desc.Caps.Has(etherlink.CapMulticast) || len(addrs) > MulticastAperture {
		return etherlink.ErrNoMulticast
	}
	return p.withIRQMasked(dev, func() error {
		p.handles.SetMulticastList(h.ifIndex, addrs)
		return nil
	})
}

// GetReceiveMode implements get_rcv_mode.
func (p *PacketDriver) GetReceiveMode(handle uint16) (etherlink.RxMode, error) {
	if err := p.enter(); err != nil {
		return 0, err
	}
	h, err := p.handles.Get(handle)
	if err != nil {
		return 0, err
	}
	return h.mode, nil
}

// GetStatistics implements get_statistics. The NIC's line is masked across
// the snapshot so paired counters cannot tear on pre-386 targets.
func (p *PacketDriver) GetStatistics(handle uint16) (nic.Counters, HandleCounters, error) {
	if err := p.enter(); err != nil {
		return nic.Counters{}, HandleCounters{}, err
	}
	h, err := p.handles.Get(handle)
	if err != nil {
		return nic.Counters{}, HandleCounters{}, err
	}
	dev, err := p.device(h)
	if err != nil {
		return nic.Counters{}, HandleCounters{}, err
	}
	var snap nic.Counters
	_ = p.withIRQMasked(dev, func() error {
		snap = dev.Counters.Snapshot()
		return nil
	})
	hc := HandleCounters{
		RxDelivered:       atomic.LoadUint32(&h.Counters.RxDelivered),
		RxDroppedNoBuffer: atomic.LoadUint32(&h.Counters.RxDroppedNoBuffer),
		TxSubmitted:       atomic.LoadUint32(&h.Counters.TxSubmitted),
	}
	return snap, hc, nil
}

// GetParameters implements get_parameters.
func (p *PacketDriver) GetParameters(handle uint16) (Parameters, error) {
	if err := p.enter(); err != nil {
		return Parameters{}, err
	}
	h, err := p.handles.Get(handle)
	if err != nil {
		return Parameters{}, err
	}
	dev, err := p.device(h)
	if err != nil {
		return Parameters{}, err
	}
	ringDepth := p.cfg.RingDepth
	if ringDepth == 0 {
		ringDepth = 16
	}
	if !dev.Desc.Family.BusMaster() {
		ringDepth = 1
	}
	return Parameters{
		MajorRev:          uint8(Version >> 8),
		MinorRev:          uint8(Version),
		Length:            14,
		MTU:               etherlink.EthMaxFrame,
		MulticastAperture: MulticastAperture,
		RcvBufs:           uint8(ringDepth),
		XmitBufs:          uint8(ringDepth),
		IntNum:            p.cfg.Vector,
	}, nil
}
