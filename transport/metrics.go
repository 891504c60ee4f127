package transport

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exports per-connection recovery and stream state as
// Prometheus gauges, following the pull-based prometheus.Collector
// pattern of pkg/exporter.TCPInfoCollector in
// _examples/runZeroInc-conniver: a small table of descriptor+supplier
// pairs walked over every tracked connection on each scrape, rather than
// pushing updates as they happen.
type MetricsCollector struct {
	conns func() []*Conn

	bytesInFlight *prometheus.Desc
	cwnd          *prometheus.Desc
	smoothedRTT   *prometheus.Desc
	packetsLost   *prometheus.Desc
	streamsActive *prometheus.Desc
}

// NewMetricsCollector builds a collector that scrapes every connection
// returned by conns at collection time.
func NewMetricsCollector(conns func() []*Conn) *MetricsCollector {
	return &MetricsCollector{
		conns: conns,
		bytesInFlight: prometheus.NewDesc(
			"quic_bytes_in_flight", "Unacknowledged bytes currently in flight.",
			[]string{"conn"}, nil),
		cwnd: prometheus.NewDesc(
			"quic_congestion_window_bytes", "Current congestion window.",
			[]string{"conn"}, nil),
		smoothedRTT: prometheus.NewDesc(
			"quic_smoothed_rtt_seconds", "Smoothed round-trip time estimate.",
			[]string{"conn"}, nil),
		packetsLost: prometheus.NewDesc(
			"quic_packets_lost_total", "Packets declared lost.",
			[]string{"conn"}, nil),
		streamsActive: prometheus.NewDesc(
			"quic_streams_active", "Streams currently open.",
			[]string{"conn"}, nil),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.bytesInFlight
	ch <- c.cwnd
	ch <- c.smoothedRTT
	ch <- c.packetsLost
	ch <- c.streamsActive
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	for _, conn := range c.conns() {
		label := conn.scidString()
		ch <- prometheus.MustNewConstMetric(c.bytesInFlight, prometheus.GaugeValue,
			float64(conn.recovery.bytesInFlight()), label)
		ch <- prometheus.MustNewConstMetric(c.cwnd, prometheus.GaugeValue,
			float64(conn.recovery.cwnd), label)
		ch <- prometheus.MustNewConstMetric(c.smoothedRTT, prometheus.GaugeValue,
			conn.recovery.smoothedRTT.Seconds(), label)
		ch <- prometheus.MustNewConstMetric(c.packetsLost, prometheus.CounterValue,
			float64(conn.lostPacketCount), label)
		ch <- prometheus.MustNewConstMetric(c.streamsActive, prometheus.GaugeValue,
			float64(len(conn.streams.streams)), label)
	}
}
