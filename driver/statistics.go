package driver

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jfabienke/etherlink-go/nic"
)

// counterInfo pairs a metric description with the field it reads from a
// counter snapshot.
type counterInfo struct {
	description *prometheus.Desc
	supplier    func(s nic.Counters) float64
}

// Collector exposes the driver's statistics blocks as Prometheus counters,
// one series per NIC labelled by its stable identifier, plus per-handle
// series labelled by handle number. Collection goes through the sanctioned
// snapshot path, so the IRQ-masked pair-read rule holds here too.
type Collector struct {
	driver *PacketDriver
	infos  []counterInfo

	handleDelivered *prometheus.Desc
	handleDropped   *prometheus.Desc
	handleSubmitted *prometheus.Desc
	discarded       *prometheus.Desc
}

// NewCollector builds a collector for an installed driver.
func NewCollector(p *PacketDriver, constLabels prometheus.Labels) *Collector {
	nicLabels := []string{"nic"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("etherlink_"+name, help, nicLabels, constLabels)
	}
	c := &Collector{
		driver: p,
		infos: []counterInfo{
			{desc("rx_frames_total", "Frames received"), func(s nic.Counters) float64 { return float64(s.RxFrames) }},
			{desc("rx_bytes_total", "Bytes received"), func(s nic.Counters) float64 { return float64(s.RxBytes) }},
			{desc("rx_errors_total", "Receive errors"), func(s nic.Counters) float64 { return float64(s.RxErrorsTotal) }},
			{desc("rx_dropped_total", "Frames dropped for want of buffers"), func(s nic.Counters) float64 { return float64(s.RxDropped) }},
			{desc("tx_frames_total", "Frames transmitted"), func(s nic.Counters) float64 { return float64(s.TxFrames) }},
			{desc("tx_bytes_total", "Bytes transmitted"), func(s nic.Counters) float64 { return float64(s.TxBytes) }},
			{desc("tx_errors_total", "Transmit errors"), func(s nic.Counters) float64 { return float64(s.TxErrorsTotal) }},
			{desc("tx_deferred_total", "Deferred transmissions"), func(s nic.Counters) float64 { return float64(s.TxDeferred) }},
			{desc("tx_collisions_single_total", "Single-collision transmissions"), func(s nic.Counters) float64 { return float64(s.TxSingleColl) }},
			{desc("tx_collisions_multi_total", "Multi-collision transmissions"), func(s nic.Counters) float64 { return float64(s.TxMultiColl) }},
			{desc("tx_duplex_mismatch_total", "Duplex-mismatch warnings"), func(s nic.Counters) float64 { return float64(s.TxDuplexMismatch) }},
			{desc("interrupts_serviced_total", "Interrupt entries with latched work"), func(s nic.Counters) float64 { return float64(s.IntsServiced) }},
			{desc("interrupts_chained_total", "Interrupt entries forwarded to the previous vector owner"), func(s nic.Counters) float64 { return float64(s.IntsChained) }},
			{desc("interrupts_spurious_total", "Interrupt entries with nothing latched"), func(s nic.Counters) float64 { return float64(s.IntsSpurious) }},
		},
		handleDelivered: prometheus.NewDesc("etherlink_handle_rx_delivered_total",
			"Frames delivered to the handle's receiver", []string{"handle"}, constLabels),
		handleDropped: prometheus.NewDesc("etherlink_handle_rx_dropped_no_buffer_total",
			"Frames declined by the handle's receiver", []string{"handle"}, constLabels),
		handleSubmitted: prometheus.NewDesc("etherlink_handle_tx_submitted_total",
			"Frames submitted on the handle", []string{"handle"}, constLabels),
		discarded: prometheus.NewDesc("etherlink_rx_unclaimed_total",
			"Frames no handle claimed", nil, constLabels),
	}
	return c
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	for _, info := range c.infos {
		descs <- info.description
	}
	descs <- c.handleDelivered
	descs <- c.handleDropped
	descs <- c.handleSubmitted
	descs <- c.discarded
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	for _, dev := range c.driver.Devices() {
		var snap nic.Counters
		_ = c.driver.withIRQMasked(dev, func() error {
			snap = dev.Counters.Snapshot()
			return nil
		})
		for _, info := range c.infos {
			metrics <- prometheus.MustNewConstMetric(
				info.description, prometheus.CounterValue, info.supplier(snap), dev.Desc.ID)
		}
	}
	t := c.driver.Handles()
	for i := range t.handles {
		h := &t.handles[i]
		if !h.inUse {
			continue
		}
		label := strconv.Itoa(i)
		metrics <- prometheus.MustNewConstMetric(c.handleDelivered, prometheus.CounterValue,
			float64(atomic.LoadUint32(&h.Counters.RxDelivered)), label)
		metrics <- prometheus.MustNewConstMetric(c.handleDropped, prometheus.CounterValue,
			float64(atomic.LoadUint32(&h.Counters.RxDroppedNoBuffer)), label)
		metrics <- prometheus.MustNewConstMetric(c.handleSubmitted, prometheus.CounterValue,
			float64(atomic.LoadUint32(&h.Counters.TxSubmitted)), label)
	}
	metrics <- prometheus.MustNewConstMetric(c.discarded, prometheus.CounterValue, float64(t.Discarded()))
}
