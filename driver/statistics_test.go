package driver_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	etherlink "github.com/jfabienke/etherlink-go"
	"github.com/jfabienke/etherlink-go/driver"
)

func TestCollectorRegistersAndCollects(t *testing.T) {
	_, el3, p := install(t)

	c := &client{}
	_, err := p.AccessType(0, etherlink.ClassEthernet, nil, c.receive)
	require.NoError(t, err)
	el3.Inject(broadcastFrame(0x0800, 64))

	collector := driver.NewCollector(p, prometheus.Labels{"driver": "etherlink"})
	registry := prometheus.NewPedanticRegistry()
	require.NoError(t, registry.Register(collector))

	families, err := registry.Gather()
	require.NoError(t, err)

	byName := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			byName[mf.GetName()] = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), byName["etherlink_rx_frames_total"])
	assert.Equal(t, float64(64), byName["etherlink_rx_bytes_total"])
	assert.Equal(t, float64(1), byName["etherlink_handle_rx_delivered_total"])
	assert.Contains(t, byName, "etherlink_interrupts_serviced_total")
	assert.Contains(t, byName, "etherlink_rx_unclaimed_total")
}
