package driver

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	etherlink "github.com/jfabienke/etherlink-go"
	"github.com/jfabienke/etherlink-go/cpu"
	"github.com/jfabienke/etherlink-go/dma"
	"github.com/jfabienke/etherlink-go/irq"
	"github.com/jfabienke/etherlink-go/nic"
)

// Version reported by driver_info.
const Version = 0x0B11

// DriverName is the name driver_info reports.
const DriverName = "EtherLink"

// Software interrupt range reserved by the Packet Driver specification.
const (
	VectorMin = 0x60
	VectorMax = 0x7F
)

// Config is everything install needs. The probe layer has already run: the
// descriptors arrive fully populated.
type Config struct {
	Vector uint8
	Bus    etherlink.Bus
	Mem    etherlink.PhysMem
	Table  *etherlink.VectorTable
	NICs   []*etherlink.Descriptor

	// Features overrides CPU detection; nil probes the host.
	Features *cpu.Features

	// PoolBase/PoolSize bound the physical region the driver carves its
	// rings, buffers and bounce pools from. A zero size takes everything
	// above PoolBase.
	PoolBase uint32
	PoolSize uint32

	// Buffers and RingDepth size each NIC's resources; zero = defaults.
	Buffers   int
	RingDepth int

	// WriteThrough consents to the Tier-3 write-through option.
	WriteThrough bool

	// RewriteSource stamps the station address into outbound frames.
	RewriteSource bool

	Log *logrus.Logger
}

// PacketDriver is the installed resident core.
type PacketDriver struct {
	cfg     Config
	profile *cpu.Profile
	devices []*nic.Device
	core    *irq.Core
	policy  *irq.Policy
	handles *HandleTable
	unwind  *Unwind
	log     *logrus.Logger

	ready atomic.Bool

	self *etherlink.ISR
	prev *etherlink.ISR

	callbacks map[etherlink.SegOff]Receiver

	// scratch backs the source-MAC rewrite; the API is single-threaded
	// with respect to itself, so one buffer suffices.
	scratch [etherlink.EthMaxFrame]byte
}

// Install brings up the resident core. Any failure runs the unwind
// registry and leaves nothing behind.
func Install(cfg Config) (*PacketDriver, error) {
	log := cfg.Log
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}

	if cfg.Bus == nil || cfg.Mem == nil || cfg.Table == nil {
		return nil, fmt.Errorf("machine surfaces not bound")
	}
	if cfg.Vector < VectorMin || cfg.Vector > VectorMax {
		return nil, fmt.Errorf("vector %#02x outside packet driver range", cfg.Vector)
	}
	if cfg.Table.Get(cfg.Vector) != nil {
		return nil, fmt.Errorf("vector %#02x already occupied", cfg.Vector)
	}
	if len(cfg.NICs) == 0 {
		return nil, fmt.Errorf("no controllers to drive")
	}
	for _, desc := range cfg.NICs {
		if !etherlink.ValidIRQ(desc.IRQ) {
			return nil, fmt.Errorf("nic %s: IRQ %d not permissible", desc.ID, desc.IRQ)
		}
	}

	features := cfg.Features
	if features == nil {
		f := cpu.Detect()
		features = &f
	}
	profile, err := cpu.NewProfile(*features)
	if err != nil {
		return nil, fmt.Errorf("dispatch profile: %w", err)
	}

	poolSize := cfg.PoolSize
	if poolSize == 0 {
		poolSize = cfg.Mem.Size() - cfg.PoolBase
	}
	region, err := dma.NewRegion(cfg.Mem, cfg.PoolBase, poolSize)
	if err != nil {
		return nil, err
	}

	p := &PacketDriver{
		cfg:       cfg,
		profile:   profile,
		policy:    irq.NewPolicy(profile.BatchCeiling),
		handles:   NewHandleTable(profile.Copy),
		unwind:    NewUnwind(log),
		log:       log,
		callbacks: make(map[etherlink.SegOff]Receiver),
	}
	p.core = irq.NewCore(cfg.Bus, cfg.Table, p.policy, p.classify)

	if err := p.bringUp(region); err != nil {
		log.WithField("error", err).Error("install failed, unwinding")
		p.unwind.Run()
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"vector": fmt.Sprintf("%#02x", cfg.Vector),
		"nics":   len(p.devices),
		"cpu":    features.Generation.String(),
		"batch":  profile.BatchCeiling,
	}).Info("packet driver resident")
	return p, nil
}

func (p *PacketDriver) bringUp(region *dma.Region) error {
	cfg := p.cfg

	// Build every device before touching machine state.
	for _, desc := range cfg.NICs {
		dev, err := nic.New(desc, nic.Deps{
			Bus:          cfg.Bus,
			Mem:          cfg.Mem,
			Profile:      p.profile,
			Region:       region,
			Buffers:      cfg.Buffers,
			RingDepth:    cfg.RingDepth,
			WriteThrough: cfg.WriteThrough,
			Log:          p.log,
		})
		if err != nil {
			return err
		}
		p.devices = append(p.devices, dev)
		p.policy.Register(dev)
		p.core.Attach(dev)
	}

	// Hook the API vector.
	p.self = &etherlink.ISR{
		Name:      "etherlink-pktdrv",
		Signature: etherlink.DriverSignature,
		Serve:     p.ServeINT,
	}
	p.prev = cfg.Table.Hook(cfg.Vector, p.self)
	p.unwind.Push("unhook api vector", func() error {
		return cfg.Table.Unhook(cfg.Vector, p.self, p.prev)
	})

	// Quiet and hook each owned IRQ line.
	hookedLines := map[int]bool{}
	for _, dev := range p.devices {
		irqLine := dev.Desc.IRQ
		if hookedLines[irqLine] {
			continue
		}
		hookedLines[irqLine] = true

		wasMasked := irq.Masked(cfg.Bus, irqLine)
		irq.MaskIRQ(cfg.Bus, irqLine)
		p.unwind.Push(fmt.Sprintf("restore mask irq %d", irqLine), func() error {
			if wasMasked {
				irq.MaskIRQ(cfg.Bus, irqLine)
			} else {
				irq.UnmaskIRQ(cfg.Bus, irqLine)
			}
			return nil
		})

		unhook, err := p.core.Hook(irqLine)
		if err != nil {
			return err
		}
		p.unwind.Push(fmt.Sprintf("unhook irq %d", irqLine), unhook)
	}

	// Reset and start each controller.
	for _, dev := range p.devices {
		dev := dev
		if err := dev.Ops.Reset(dev); err != nil {
			return err
		}
		if err := dev.Ops.Start(dev); err != nil {
			return err
		}
		p.unwind.Push("stop "+dev.Desc.ID, func() error {
			return dev.Ops.Stop(dev)
		})
	}

	// Open the lines.
	for irqLine := range hookedLines {
		irq.UnmaskIRQ(cfg.Bus, irqLine)
	}

	// Interrupt self-test: every hooked line must still point at our stub
	// and survive a spurious entry.
	for irqLine := range hookedLines {
		if !p.core.Hooked(irqLine) {
			return fmt.Errorf("irq %d vector lost before ready", irqLine)
		}
		var r etherlink.Regs
		cfg.Table.Invoke(etherlink.IRQVector(irqLine), &r)
	}

	p.ready.Store(true)
	p.unwind.Push("clear ready gate", func() error {
		p.ready.Store(false)
		return nil
	})
	return nil
}

// Uninstall tears the driver down: the API gate drops first, every owned
// IRQ is masked, controllers stop, the unwind registry runs, and the vector
// state is verified. A vector still pointing at driver code refuses the
// teardown.
func (p *PacketDriver) Uninstall() error {
	p.ready.Store(false)
	for _, dev := range p.devices {
		irq.MaskIRQ(p.cfg.Bus, dev.Desc.IRQ)
	}
	for _, dev := range p.devices {
		if dev.State() == etherlink.Running {
			if err := dev.Ops.Stop(dev); err != nil {
				p.log.WithField("nic", dev.Desc.ID).Warn("stop failed during uninstall")
			}
		}
	}
	p.unwind.Run()

	if p.cfg.Table.Get(p.cfg.Vector) == p.self {
		return fmt.Errorf("api vector %#02x still points at driver code", p.cfg.Vector)
	}
	for _, dev := range p.devices {
		if p.core.Hooked(dev.Desc.IRQ) {
			return fmt.Errorf("irq %d vector still points at driver code", dev.Desc.IRQ)
		}
	}
	p.log.Info("packet driver unloaded")
	return nil
}

// Ready reports the API gate.
func (p *PacketDriver) Ready() bool { return p.ready.Load() }

// Devices exposes the driven controllers.
func (p *PacketDriver) Devices() []*nic.Device { return p.devices }

// Handles exposes the handle table.
func (p *PacketDriver) Handles() *HandleTable { return p.handles }

// Policy exposes the mitigation policy.
func (p *PacketDriver) Policy() *irq.Policy { return p.policy }

// classify is the Deliver hook the interrupt core fans frames through.
func (p *PacketDriver) classify(d *nic.Device, frame []byte) {
	for i, dev := range p.devices {
		if dev == d {
			p.handles.Classify(i, d, frame)
			return
		}
	}
}

// enter gates every API function and consumes deferred work raised by the
// full ISR path.
func (p *PacketDriver) enter() error {
	if !p.ready.Load() {
		return etherlink.ErrNotReady
	}
	for _, dev := range p.devices {
		if p.policy.TakeDeferred(dev) {
			dev.Ops.ReadStats(dev)
		}
	}
	return nil
}

func (p *PacketDriver) device(h *Handle) (*nic.Device, error) {
	if h.ifIndex < 0 || h.ifIndex >= len(p.devices) {
		return nil, etherlink.ErrBadHandle
	}
	return p.devices[h.ifIndex], nil
}

// withIRQMasked brackets a structural mutation: the NIC's line is masked at
// the PIC across the critical section.
func (p *PacketDriver) withIRQMasked(dev *nic.Device, fn func() error) error {
	wasMasked := irq.Masked(p.cfg.Bus, dev.Desc.IRQ)
	irq.MaskIRQ(p.cfg.Bus, dev.Desc.IRQ)
	err := fn()
	if !wasMasked {
		irq.UnmaskIRQ(p.cfg.Bus, dev.Desc.IRQ)
	}
	return err
}
