package nic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	etherlink "github.com/jfabienke/etherlink-go"
	"github.com/jfabienke/etherlink-go/cpu"
	"github.com/jfabienke/etherlink-go/dma"
	"github.com/jfabienke/etherlink-go/hwsim"
	"github.com/jfabienke/etherlink-go/nic"
)

const bmCaps = etherlink.CapBusMaster | etherlink.CapPromiscuous |
	etherlink.CapMulticast | etherlink.CapSetStationAddr

func newISA(t *testing.T, memSize uint32) (*hwsim.Machine, *hwsim.EL515, *nic.Device) {
	t.Helper()
	m := hwsim.NewMachine(memSize)
	el := hwsim.NewEL515(m, 0x280, 11, testMAC)

	profile, err := cpu.NewProfile(cpu.For(cpu.GenPentium))
	require.NoError(t, err)
	region, err := dma.NewRegion(m.Mem, 0x20000, 0xC0000)
	require.NoError(t, err)

	desc := etherlink.NewDescriptor(0x280, 11, etherlink.FamilyISABusMaster, testMAC, bmCaps)
	dev, err := nic.New(desc, nic.Deps{Bus: m, Mem: m.Mem, Profile: profile, Region: region})
	require.NoError(t, err)
	require.NoError(t, dev.Ops.Reset(dev))
	require.NoError(t, dev.Ops.Start(dev))
	return m, el, dev
}

func TestBusMasterTransmitViaRing(t *testing.T) {
	_, el, dev := newISA(t, 0x100000)

	frame := make([]byte, 60)
	for i := range frame {
		frame[i] = byte(i)
	}
	require.NoError(t, dev.Ops.SubmitTx(dev, frame))
	require.Len(t, el.Transmitted, 1)
	assert.Equal(t, frame, el.Transmitted[0])

	reaped := dev.Ops.ReapTx(dev)
	assert.Equal(t, 1, reaped)
	assert.Equal(t, uint32(1), dev.Counters.TxFrames)
	assert.Equal(t, uint32(60), dev.Counters.TxBytes)
}

func TestBusMasterTxBounce(t *testing.T) {
	m, el, dev := newISA(t, 0x100000)

	// Frame of 0x200 bytes at 0x0FE80 crosses 0x10000: the descriptor must
	// carry a bounce address, and the bounce must come back after reaping.
	payload := m.Mem.View(0x0FE80, 0x200)
	for i := range payload {
		payload[i] = byte(i * 3)
	}
	avail := dev.Mapper.BounceAvailable()
	require.NoError(t, dev.SubmitTxPhys(0x0FE80, 0x200))
	assert.Equal(t, avail-1, dev.Mapper.BounceAvailable())

	require.Len(t, el.Transmitted, 1)
	assert.Equal(t, append([]byte(nil), payload...), el.Transmitted[0])

	dev.Ops.ReapTx(dev)
	assert.Equal(t, avail, dev.Mapper.BounceAvailable())
	assert.Equal(t, uint32(1), dev.Counters.TxFrames)
}

func TestBusMasterCeilingBounce(t *testing.T) {
	_, _, dev := newISA(t, 0x1100000) // 17 MB of physical space

	// ISA DMA stops at 16 MB: a buffer at 0xFFFFFE must bounce.
	avail := dev.Mapper.BounceAvailable()
	require.NoError(t, dev.SubmitTxPhys(0xFFFFFE, 4))
	assert.Equal(t, avail-1, dev.Mapper.BounceAvailable())
	dev.Ops.ReapTx(dev)
	assert.Equal(t, avail, dev.Mapper.BounceAvailable())
}

func TestBusMasterReceive(t *testing.T) {
	_, el, dev := newISA(t, 0x100000)

	frame := make([]byte, 128)
	frame[0] = 0xFF
	frame[12], frame[13] = 0x08, 0x00
	require.True(t, el.Inject(frame))

	var got [][]byte
	n := dev.Ops.DrainRx(dev, 32, collect(&got))
	assert.Equal(t, 1, n)
	require.Len(t, got, 1)
	assert.Equal(t, frame, got[0])
	assert.Equal(t, uint32(1), dev.Counters.RxFrames)
	assert.Equal(t, uint32(128), dev.Counters.RxBytes)

	// The slot was re-posted: a second frame flows through the same ring.
	require.True(t, el.Inject(frame))
	n = dev.Ops.DrainRx(dev, 32, collect(&got))
	assert.Equal(t, 1, n)
	assert.Len(t, got, 2)
}

func TestBusMasterReceiveError(t *testing.T) {
	_, el, dev := newISA(t, 0x100000)

	require.True(t, el.InjectError())
	var got [][]byte
	dev.Ops.DrainRx(dev, 32, collect(&got))
	assert.Empty(t, got)
	assert.Equal(t, uint32(1), dev.Counters.RxErrorsTotal)
}

func TestBusMasterTxRingFull(t *testing.T) {
	m := hwsim.NewMachine(0x100000)
	hwsim.NewEL515(m, 0x280, 11, testMAC)
	profile, err := cpu.NewProfile(cpu.For(cpu.GenPentium))
	require.NoError(t, err)
	region, err := dma.NewRegion(m.Mem, 0x20000, 0xC0000)
	require.NoError(t, err)
	desc := etherlink.NewDescriptor(0x280, 11, etherlink.FamilyISABusMaster, testMAC, bmCaps)
	dev, err := nic.New(desc, nic.Deps{Bus: m, Mem: m.Mem, Profile: profile, Region: region, RingDepth: 4})
	require.NoError(t, err)
	require.NoError(t, dev.Ops.Reset(dev))
	require.NoError(t, dev.Ops.Start(dev))

	// Disable the transmitter so posted slots stay posted, then fill the
	// ring: depth 4 holds 3 outstanding frames.
	dev.IssueCommand(etherlink.CmdTxDisable)
	for i := 0; i < 3; i++ {
		require.NoError(t, dev.Ops.SubmitTx(dev, make([]byte, 60)))
	}
	err = dev.Ops.SubmitTx(dev, make([]byte, 60))
	assert.ErrorIs(t, err, etherlink.ErrTxBusy)
	assert.Equal(t, uint32(1), dev.Counters.TxBusyDrops)
}

func TestBusMasterStopDropsPostedTx(t *testing.T) {
	m := hwsim.NewMachine(0x100000)
	hwsim.NewEL515(m, 0x280, 11, testMAC)
	profile, err := cpu.NewProfile(cpu.For(cpu.GenPentium))
	require.NoError(t, err)
	region, err := dma.NewRegion(m.Mem, 0x20000, 0xC0000)
	require.NoError(t, err)
	desc := etherlink.NewDescriptor(0x280, 11, etherlink.FamilyISABusMaster, testMAC, bmCaps)
	dev, err := nic.New(desc, nic.Deps{Bus: m, Mem: m.Mem, Profile: profile, Region: region, RingDepth: 4})
	require.NoError(t, err)
	require.NoError(t, dev.Ops.Reset(dev))
	require.NoError(t, dev.Ops.Start(dev))

	dev.IssueCommand(etherlink.CmdTxDisable)
	require.NoError(t, dev.Ops.SubmitTx(dev, make([]byte, 60)))
	require.NoError(t, dev.Ops.SubmitTx(dev, make([]byte, 60)))

	// Stop drops the posted frames on the floor; no completion is counted.
	require.NoError(t, dev.Ops.Stop(dev))
	assert.Equal(t, etherlink.Stopped, dev.State())
	assert.Zero(t, dev.Counters.TxFrames)

	// The pool recovered every buffer: a restart can repost the ring.
	require.NoError(t, dev.Ops.Start(dev))
	assert.Equal(t, etherlink.Running, dev.State())
}

func TestPCIStartHonorsCommandRegister(t *testing.T) {
	m := hwsim.NewMachine(0x100000)
	hwsim.NewEL515(m, 0x280, 11, testMAC)
	profile, err := cpu.NewProfile(cpu.For(cpu.GenPentium))
	require.NoError(t, err)
	region, err := dma.NewRegion(m.Mem, 0x20000, 0xC0000)
	require.NoError(t, err)

	desc := etherlink.NewDescriptor(0x280, 11, etherlink.FamilyBoomerang, testMAC, bmCaps)
	dev, err := nic.New(desc, nic.Deps{Bus: m, Mem: m.Mem, Profile: profile, Region: region})
	require.NoError(t, err)
	require.NoError(t, dev.Ops.Reset(dev))

	// Bus-master enable missing: start refuses.
	desc.PCICommand = etherlink.PCICmdIOSpace
	assert.Error(t, dev.Ops.Start(dev))

	desc.PCICommand = etherlink.PCICmdIOSpace | etherlink.PCICmdBusMaster
	require.NoError(t, dev.Ops.Start(dev))
	assert.Equal(t, etherlink.Running, dev.State())
}

func TestPCIFamilyCaps(t *testing.T) {
	assert.True(t, etherlink.FamilyTornado.BusMaster())
	assert.False(t, etherlink.FamilyPIOClassic.BusMaster())
	assert.Equal(t, uint32(0xFFFFFF), etherlink.FamilyISABusMaster.DMACeiling())
	assert.Equal(t, uint32(0xFFFFFFFF), etherlink.FamilyCyclone.DMACeiling())
}

func TestRingInvariants(t *testing.T) {
	m := hwsim.NewMachine(0x100000)
	profile, err := cpu.NewProfile(cpu.For(cpu.GenPentium))
	require.NoError(t, err)
	region, err := dma.NewRegion(m.Mem, 0x20000, 0x40000)
	require.NoError(t, err)
	mapper, err := dma.NewMapper(m.Mem, region, profile, dma.Config{Ceiling: 0xFFFFFF, BounceCount: 1, Tier: profile.Coherency})
	require.NoError(t, err)

	_, err = nic.NewRing(m.Mem, region, mapper, 12)
	assert.Error(t, err, "depth must be a power of two")

	r, err := nic.NewRing(m.Mem, region, mapper, 16)
	require.NoError(t, err)
	assert.True(t, r.Empty())
	assert.False(t, r.Full())
	assert.False(t, dma.CrossesBoundary(r.Base, 16*etherlink.DescSize))
}
