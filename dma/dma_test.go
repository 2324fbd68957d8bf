package dma_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	etherlink "github.com/jfabienke/etherlink-go"
	"github.com/jfabienke/etherlink-go/cpu"
	"github.com/jfabienke/etherlink-go/dma"
)

func testMapper(t *testing.T, mem *etherlink.Mem, ceiling uint32, bounces int) (*dma.Mapper, *dma.Region) {
	t.Helper()
	profile, err := cpu.NewProfile(cpu.For(cpu.GenPentium))
	require.NoError(t, err)
	// Reserve the bounce pool low, well under any ceiling in the tests.
	region, err := dma.NewRegion(mem, 0x1000, 0x40000)
	require.NoError(t, err)
	m, err := dma.NewMapper(mem, region, profile, dma.Config{
		Ceiling:     ceiling,
		BounceCount: bounces,
		Tier:        profile.Coherency,
	})
	require.NoError(t, err)
	return m, region
}

func TestCrossesBoundary(t *testing.T) {
	assert.False(t, dma.CrossesBoundary(0x0000, 0x10000))
	assert.True(t, dma.CrossesBoundary(0x0001, 0x10000))
	assert.False(t, dma.CrossesBoundary(0xFFFF, 1))
	assert.True(t, dma.CrossesBoundary(0xFFFF, 2))
	// 1514 bytes starting at 0x0FF00 cross 0x10000.
	assert.True(t, dma.CrossesBoundary(0x0FF00, 1514))
	assert.False(t, dma.CrossesBoundary(0x0FF00, 0x100))
}

func TestPrepareInPlace(t *testing.T) {
	mem := etherlink.NewMem(0x100000)
	m, _ := testMapper(t, mem, 0xFFFFFF, 2)

	ticket, err := m.Prepare(0x80000, 1514, dma.DeviceWrite)
	require.NoError(t, err)
	assert.False(t, ticket.Bounced())
	assert.Equal(t, uint32(0x80000), ticket.DevAddr)
	m.Complete(ticket)
	assert.Equal(t, 2, m.BounceAvailable())
}

func TestPrepareBouncesBoundaryCrossing(t *testing.T) {
	mem := etherlink.NewMem(0x100000)
	m, _ := testMapper(t, mem, 0xFFFFFF, 2)

	copy(mem.View(0x0FF00, 4), []byte{0xDE, 0xAD, 0xBE, 0xEF})
	ticket, err := m.Prepare(0x0FF00, 1514, dma.DeviceWrite)
	require.NoError(t, err)
	assert.True(t, ticket.Bounced())
	assert.NotEqual(t, uint32(0x0FF00), ticket.DevAddr)
	assert.False(t, dma.CrossesBoundary(ticket.DevAddr, 1514))
	// Transmit data was carried into the bounce.
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, mem.View(ticket.DevAddr, 4))

	m.Complete(ticket)
	assert.Equal(t, 2, m.BounceAvailable())
}

func TestPrepareBouncesAboveCeiling(t *testing.T) {
	mem := etherlink.NewMem(0x1100000) // 17 MB
	m, _ := testMapper(t, mem, 0xFFFFFF, 2)

	// ISA bus-master: 4 bytes at 0xFFFFFE reach past the 16 MB line.
	ticket, err := m.Prepare(0xFFFFFE, 4, dma.DeviceRead)
	require.NoError(t, err)
	assert.True(t, ticket.Bounced())
	assert.LessOrEqual(t, uint64(ticket.DevAddr)+3, uint64(0xFFFFFF))
	m.Complete(ticket)
}

func TestCompleteCopiesBackOnDeviceRead(t *testing.T) {
	mem := etherlink.NewMem(0x1100000)
	m, _ := testMapper(t, mem, 0xFFFFFF, 2)

	ticket, err := m.Prepare(0xFFFFFE, 4, dma.DeviceRead)
	require.NoError(t, err)
	// The device writes into the bounce.
	copy(mem.View(ticket.DevAddr, 4), []byte{1, 2, 3, 4})
	m.Complete(ticket)
	assert.Equal(t, []byte{1, 2, 3, 4}, mem.View(0xFFFFFE, 4))
}

func TestBounceExhaustion(t *testing.T) {
	mem := etherlink.NewMem(0x100000)
	m, _ := testMapper(t, mem, 0xFFFFFF, 1)

	t1, err := m.Prepare(0x0FF00, 1514, dma.DeviceWrite)
	require.NoError(t, err)
	_, err = m.Prepare(0x1FF00, 1514, dma.DeviceWrite)
	assert.ErrorIs(t, err, etherlink.ErrBufferUnreachable)

	m.Complete(t1)
	_, err = m.Prepare(0x1FF00, 1514, dma.DeviceWrite)
	assert.NoError(t, err)
}

func TestPrepareStatic(t *testing.T) {
	mem := etherlink.NewMem(0x100000)
	m, _ := testMapper(t, mem, 0xFFFFFF, 1)

	assert.NoError(t, m.PrepareStatic(0x50000, 256))
	assert.Error(t, m.PrepareStatic(0x0FFF0, 256)) // crosses, static never bounces
}

func TestRegionAllocContained(t *testing.T) {
	mem := etherlink.NewMem(0x100000)
	region, err := dma.NewRegion(mem, 0xF000, 0x30000)
	require.NoError(t, err)

	// First carve leaves only 0x100 bytes below the boundary; the contained
	// carve after it must skip to the next segment rather than hand out a
	// crossing range.
	phys, err := region.Alloc(0xF00, 16)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xF000), phys)

	phys, err = region.AllocContained(0x1000, 16)
	require.NoError(t, err)
	assert.False(t, dma.CrossesBoundary(phys, 0x1000))
	assert.Equal(t, uint32(0x10000), phys)

	_, err = region.AllocContained(0x20000, 16)
	assert.Error(t, err, "larger than a segment cannot be contained")
}

func TestStrategySelection(t *testing.T) {
	for _, tier := range []cpu.CoherencyTier{cpu.TierNone, cpu.TierBarrier, cpu.TierWBINVD, cpu.TierCLFLUSH} {
		s := dma.StrategyFor(tier, false)
		require.NotNil(t, s)
		// The strategies must tolerate arbitrary region sizes.
		buf := make([]byte, 200)
		s.FlushForDevice(buf)
		s.InvalidateForCPU(buf)
		s.Barrier()
	}
}
