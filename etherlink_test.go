//go:generate mockgen -source=machine.go -destination=mock/bus.go -package=mock_etherlink

package etherlink_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	etherlink "github.com/jfabienke/etherlink-go"
)

func TestSegOffLinear(t *testing.T) {
	assert.Equal(t, uint32(0), etherlink.SegOff{}.Linear())
	assert.Equal(t, uint32(0x12345), etherlink.SegOff{Seg: 0x1234, Off: 0x0005}.Linear())
	assert.Equal(t, uint32(0x10FFEF), etherlink.SegOff{Seg: 0xFFFF, Off: 0xFFFF}.Linear())
}

func TestVectorHookUnhook(t *testing.T) {
	table := etherlink.NewVectorTable()
	prev := &etherlink.ISR{Name: "bios"}
	table.Hook(0x60, prev)

	ours := &etherlink.ISR{Name: "driver", Signature: etherlink.DriverSignature}
	got := table.Hook(0x60, ours)
	assert.Same(t, prev, got)
	assert.Same(t, ours, table.Get(0x60))

	require.NoError(t, table.Unhook(0x60, ours, prev))
	assert.Same(t, prev, table.Get(0x60))
}

func TestUnhookRefusesLostVector(t *testing.T) {
	table := etherlink.NewVectorTable()
	ours := &etherlink.ISR{Name: "driver"}
	prev := table.Hook(0x60, ours)

	hijacker := &etherlink.ISR{Name: "hijacker"}
	table.Hook(0x60, hijacker)

	err := table.Unhook(0x60, ours, prev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hijacker")
	assert.Same(t, hijacker, table.Get(0x60))
}

func TestInvokeEmptyVectorIsNoop(t *testing.T) {
	table := etherlink.NewVectorTable()
	var r etherlink.Regs
	table.Invoke(0x42, &r) // must not panic
}

func TestIRQVectorMapping(t *testing.T) {
	assert.Equal(t, uint8(0x0B), etherlink.IRQVector(3))
	assert.Equal(t, uint8(0x72), etherlink.IRQVector(10))
	assert.Equal(t, uint8(0x77), etherlink.IRQVector(15))
}

func TestValidIRQ(t *testing.T) {
	for _, irq := range []int{3, 5, 7, 9, 10, 11, 12, 15} {
		assert.True(t, etherlink.ValidIRQ(irq), "irq %d", irq)
	}
	for _, irq := range []int{0, 1, 2, 6, 8, 13, 14} {
		assert.False(t, etherlink.ValidIRQ(irq), "irq %d", irq)
	}
}

func TestRegsAccessors(t *testing.T) {
	r := &etherlink.Regs{}
	r.SetAH(0x12)
	r.SetAL(0x34)
	assert.Equal(t, uint16(0x1234), r.AX)
	assert.Equal(t, uint8(0x12), r.AH())
	assert.Equal(t, uint8(0x34), r.AL())
	r.SetDH(0x0B)
	assert.Equal(t, uint8(0x0B), r.DH())
}

func TestDescriptorIdentity(t *testing.T) {
	mac := [6]byte{0, 0xA0, 0x24, 1, 2, 3}
	a := etherlink.NewDescriptor(0x300, 10, etherlink.FamilyPIOClassic, mac, 0)
	b := etherlink.NewDescriptor(0x300, 10, etherlink.FamilyPIOClassic, mac, 0)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID, "identifiers are unique per probe")
	assert.Contains(t, a.String(), "pio-classic")
}

func TestMemViewAliases(t *testing.T) {
	mem := etherlink.NewMem(0x1000)
	v1 := mem.View(0x100, 4)
	copy(v1, []byte{1, 2, 3, 4})
	assert.Equal(t, []byte{1, 2, 3, 4}, mem.View(0x100, 4))
	assert.Panics(t, func() { mem.View(0xFFF, 2) })
}
