package transport

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsCollectorDescribe(t *testing.T) {
	c := NewMetricsCollector(func() []*Conn { return nil })
	ch := make(chan *prometheus.Desc, 16)
	c.Describe(ch)
	close(ch)
	n := 0
	for range ch {
		n++
	}
	if n != 5 {
		t.Fatalf("Describe() sent %d descriptors, want 5", n)
	}
}

func TestMetricsCollectorCollectEmpty(t *testing.T) {
	c := NewMetricsCollector(func() []*Conn { return nil })
	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)
	n := 0
	for range ch {
		n++
	}
	if n != 0 {
		t.Fatalf("Collect() with no connections sent %d metrics, want 0", n)
	}
}
