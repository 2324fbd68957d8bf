package irq_test

import (
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	etherlink "github.com/jfabienke/etherlink-go"
	"github.com/jfabienke/etherlink-go/irq"
	mock_etherlink "github.com/jfabienke/etherlink-go/mock"
)

func TestMaskIRQReadModifyWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	bus := mock_etherlink.NewMockBus(ctrl)
	bus.EXPECT().In8(uint16(etherlink.PICMasterData)).Return(uint8(0x10))
	bus.EXPECT().Out8(uint16(etherlink.PICMasterData), uint8(0x30))
	irq.MaskIRQ(bus, 5)

	bus.EXPECT().In8(uint16(etherlink.PICSlaveData)).Return(uint8(0xFF))
	bus.EXPECT().Out8(uint16(etherlink.PICSlaveData), uint8(0xFB))
	irq.UnmaskIRQ(bus, 10)
}

func TestEOIOrderingForSlaveLine(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	bus := mock_etherlink.NewMockBus(ctrl)
	gomock.InOrder(
		bus.EXPECT().Out8(uint16(etherlink.PICSlaveCmd), uint8(etherlink.PICEOI)),
		bus.EXPECT().Out8(uint16(etherlink.PICMasterCmd), uint8(etherlink.PICEOI)),
	)
	irq.EOI(bus, 11)
}

func TestEOIMasterLineOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	bus := mock_etherlink.NewMockBus(ctrl)
	bus.EXPECT().Out8(uint16(etherlink.PICMasterCmd), uint8(etherlink.PICEOI))
	irq.EOI(bus, 5)
}

func TestMaskedQuery(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	bus := mock_etherlink.NewMockBus(ctrl)
	bus.EXPECT().In8(uint16(etherlink.PICMasterData)).Return(uint8(0x20))
	assert.True(t, irq.Masked(bus, 5))
}
