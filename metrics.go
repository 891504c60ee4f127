package quic

import "github.com/normanjoyner/quic/transport"

// Connections returns a snapshot of every transport.Conn currently open
// on this Client, for registering with transport.NewMetricsCollector.
func (c *Client) Connections() []*transport.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*transport.Conn, 0, len(c.conns))
	for _, rc := range c.conns {
		out = append(out, rc.conn)
	}
	return out
}

// MetricsCollector builds a prometheus.Collector scraping every
// connection this Client currently holds open.
func (c *Client) MetricsCollector() *transport.MetricsCollector {
	return transport.NewMetricsCollector(c.Connections)
}

// Connections returns a snapshot of every transport.Conn currently open
// on this Server.
func (s *Server) Connections() []*transport.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*transport.Conn, 0, len(s.conns))
	for _, rc := range s.conns {
		out = append(out, rc.conn)
	}
	return out
}

// MetricsCollector builds a prometheus.Collector scraping every
// connection this Server currently holds open.
func (s *Server) MetricsCollector() *transport.MetricsCollector {
	return transport.NewMetricsCollector(s.Connections)
}
