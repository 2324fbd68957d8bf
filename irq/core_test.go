package irq_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	etherlink "github.com/jfabienke/etherlink-go"
	"github.com/jfabienke/etherlink-go/cpu"
	"github.com/jfabienke/etherlink-go/dma"
	"github.com/jfabienke/etherlink-go/hwsim"
	"github.com/jfabienke/etherlink-go/irq"
	"github.com/jfabienke/etherlink-go/nic"
)

var testMAC = [6]byte{0x00, 0xA0, 0x24, 0x11, 0x22, 0x33}

const pioCaps = etherlink.CapPromiscuous | etherlink.CapMulticast | etherlink.CapSetStationAddr

type rig struct {
	m      *hwsim.Machine
	el3    *hwsim.EL3
	dev    *nic.Device
	core   *irq.Core
	policy *irq.Policy
	got    [][]byte
	unhook func() error
}

func newRig(t *testing.T, irqLine int) *rig {
	t.Helper()
	r := &rig{}
	r.m = hwsim.NewMachine(0x100000)
	r.el3 = hwsim.NewEL3(r.m, 0x300, irqLine, testMAC)

	profile, err := cpu.NewProfile(cpu.For(cpu.GenPentium))
	require.NoError(t, err)
	region, err := dma.NewRegion(r.m.Mem, 0x10000, 0x80000)
	require.NoError(t, err)
	desc := etherlink.NewDescriptor(0x300, irqLine, etherlink.FamilyPIOClassic, testMAC, pioCaps)
	r.dev, err = nic.New(desc, nic.Deps{Bus: r.m, Mem: r.m.Mem, Profile: profile, Region: region})
	require.NoError(t, err)

	r.policy = irq.NewPolicy(profile.BatchCeiling)
	r.policy.Register(r.dev)
	r.core = irq.NewCore(r.m, r.m.Table, r.policy, func(d *nic.Device, frame []byte) {
		r.got = append(r.got, append([]byte(nil), frame...))
	})
	r.core.Attach(r.dev)
	r.unhook, err = r.core.Hook(irqLine)
	require.NoError(t, err)

	require.NoError(t, r.dev.Ops.Reset(r.dev))
	require.NoError(t, r.dev.Ops.Start(r.dev))
	irq.UnmaskIRQ(r.m, irqLine)
	return r
}

func TestInterruptDrivenReceive(t *testing.T) {
	r := newRig(t, 10)

	frame := make([]byte, 64)
	copy(frame, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	r.el3.Inject(frame) // delivery is synchronous through the PIC

	require.Len(t, r.got, 1)
	assert.Equal(t, frame, r.got[0])
	assert.Equal(t, uint32(1), r.dev.Counters.IntsServiced)
	assert.Equal(t, uint32(1), r.dev.Counters.RxFrames)

	// EOI went through: a second frame is delivered too.
	r.el3.Inject(frame)
	assert.Len(t, r.got, 2)
}

func TestBatchCeilingBoundsEntry(t *testing.T) {
	r := newRig(t, 10)

	// Queue 40 frames behind a masked line, then open it: one entry may
	// drain at most the ceiling (32 for this tier).
	irq.MaskIRQ(r.m, 10)
	for i := 0; i < 40; i++ {
		r.el3.Inject(make([]byte, 60))
	}
	assert.Empty(t, r.got)
	irq.UnmaskIRQ(r.m, 10)
	assert.Len(t, r.got, 32)

	// The remainder waits for the next interrupt.
	r.el3.Inject(make([]byte, 60))
	assert.Len(t, r.got, 41)
}

func TestLoweredCeiling(t *testing.T) {
	r := newRig(t, 10)
	r.policy.SetCeiling(r.dev, 4)

	irq.MaskIRQ(r.m, 10)
	for i := 0; i < 10; i++ {
		r.el3.Inject(make([]byte, 60))
	}
	irq.UnmaskIRQ(r.m, 10)
	assert.Len(t, r.got, 4)
}

func TestSpuriousEntryCounted(t *testing.T) {
	r := newRig(t, 10)

	var regs etherlink.Regs
	r.m.Table.Invoke(etherlink.IRQVector(10), &regs)
	assert.Equal(t, uint32(1), r.dev.Counters.IntsSpurious)
	assert.Zero(t, r.dev.Counters.IntsServiced)
}

func TestVectorHijackSurvival(t *testing.T) {
	// A previous owner sits on the vector before the driver installs.
	m := hwsim.NewMachine(0x100000)
	prevCalls := 0
	prev := &etherlink.ISR{Name: "previous-tsr", Serve: func(*etherlink.Regs) { prevCalls++ }}
	m.Table.Hook(etherlink.IRQVector(10), prev)

	el3 := hwsim.NewEL3(m, 0x300, 10, testMAC)
	profile, err := cpu.NewProfile(cpu.For(cpu.GenPentium))
	require.NoError(t, err)
	region, err := dma.NewRegion(m.Mem, 0x10000, 0x80000)
	require.NoError(t, err)
	desc := etherlink.NewDescriptor(0x300, 10, etherlink.FamilyPIOClassic, testMAC, pioCaps)
	dev, err := nic.New(desc, nic.Deps{Bus: m, Mem: m.Mem, Profile: profile, Region: region})
	require.NoError(t, err)

	policy := irq.NewPolicy(profile.BatchCeiling)
	policy.Register(dev)
	core := irq.NewCore(m, m.Table, policy, func(*nic.Device, []byte) {})
	core.Attach(dev)
	_, err = core.Hook(10)
	require.NoError(t, err)
	require.NoError(t, dev.Ops.Reset(dev))
	require.NoError(t, dev.Ops.Start(dev))
	irq.UnmaskIRQ(m, 10)

	// Another resident overwrites the vector without chaining; a stray
	// entry still reaches our stub through its old address.
	ourStub := prevOwner(t, m, core)
	hijacker := &etherlink.ISR{Name: "hijacker", Serve: func(*etherlink.Regs) {}}
	m.Table.Hook(etherlink.IRQVector(10), hijacker)

	var regs etherlink.Regs
	ourStub.Serve(&regs)
	assert.Equal(t, 1, prevCalls, "call forwarded to the snapshot of the previous handler")
	assert.Equal(t, uint32(1), dev.Counters.IntsChained)
	assert.Zero(t, dev.Counters.IntsServiced)
	_ = el3
}

// prevOwner digs the driver's installed stub out of the table before the
// hijack, the address a stale chain would still jump through.
func prevOwner(t *testing.T, m *hwsim.Machine, core *irq.Core) *etherlink.ISR {
	t.Helper()
	stub := m.Table.Get(etherlink.IRQVector(10))
	require.NotNil(t, stub)
	require.True(t, core.Hooked(10))
	return stub
}

func TestReentrancyGuard(t *testing.T) {
	r := newRig(t, 10)
	depth := 0

	// A receiver that re-enters the stub mid-delivery: the nested entry
	// must bail out at the guard instead of recursing into the drain.
	reentered := false
	core := irq.NewCore(r.m, r.m.Table, r.policy, func(d *nic.Device, frame []byte) {
		depth++
		if depth == 1 && !reentered {
			reentered = true
			var regs etherlink.Regs
			r.m.Table.Invoke(etherlink.IRQVector(10), &regs)
		}
		depth--
	})
	core.Attach(r.dev)
	require.NoError(t, r.unhook())
	_, err := core.Hook(10)
	require.NoError(t, err)

	r.el3.Inject(make([]byte, 60))
	assert.True(t, reentered)
	assert.Equal(t, uint32(1), r.dev.Counters.RxFrames)
}

func TestEOISequencingSlaveLine(t *testing.T) {
	// IRQ 11 lives on the slave PIC; after service the in-service bits of
	// both chips must be clear or the next interrupt never arrives.
	r := newRig(t, 11)
	r.el3.Inject(make([]byte, 60))
	require.Len(t, r.got, 1)
	r.el3.Inject(make([]byte, 60))
	require.Len(t, r.got, 2)
}

func TestMultiNICFairness(t *testing.T) {
	m := hwsim.NewMachine(0x100000)
	elA := hwsim.NewEL3(m, 0x300, 10, testMAC)
	elB := hwsim.NewEL3(m, 0x320, 10, [6]byte{0x00, 0xA0, 0x24, 0x44, 0x55, 0x66})

	profile, err := cpu.NewProfile(cpu.For(cpu.GenPentium))
	require.NoError(t, err)
	region, err := dma.NewRegion(m.Mem, 0x10000, 0x80000)
	require.NoError(t, err)

	descA := etherlink.NewDescriptor(0x300, 10, etherlink.FamilyPIOClassic, testMAC, pioCaps)
	devA, err := nic.New(descA, nic.Deps{Bus: m, Mem: m.Mem, Profile: profile, Region: region})
	require.NoError(t, err)
	descB := etherlink.NewDescriptor(0x320, 10, etherlink.FamilyPIOClassic, [6]byte{0x00, 0xA0, 0x24, 0x44, 0x55, 0x66}, pioCaps)
	devB, err := nic.New(descB, nic.Deps{Bus: m, Mem: m.Mem, Profile: profile, Region: region})
	require.NoError(t, err)

	policy := irq.NewPolicy(profile.BatchCeiling)
	policy.Register(devA)
	policy.Register(devB)
	var frames [][]byte
	core := irq.NewCore(m, m.Table, policy, func(d *nic.Device, frame []byte) {
		frames = append(frames, append([]byte(nil), frame...))
	})
	core.Attach(devA)
	core.Attach(devB)
	_, err = core.Hook(10)
	require.NoError(t, err)
	for _, dev := range []*nic.Device{devA, devB} {
		require.NoError(t, dev.Ops.Reset(dev))
		require.NoError(t, dev.Ops.Start(dev))
	}
	irq.UnmaskIRQ(m, 10)

	// Both controllers share the line: one entry scans both.
	irq.MaskIRQ(m, 10)
	elA.Inject(make([]byte, 60))
	elB.Inject(make([]byte, 60))
	irq.UnmaskIRQ(m, 10)

	assert.Len(t, frames, 2)
	assert.Equal(t, uint32(1), devA.Counters.RxFrames)
	assert.Equal(t, uint32(1), devB.Counters.RxFrames)
}

func TestAdapterFailureFaultsAndMasks(t *testing.T) {
	r := newRig(t, 10)

	r.el3.RaiseFailure()
	assert.Equal(t, etherlink.Faulted, r.dev.State())
	assert.True(t, irq.Masked(r.m, 10))
}
