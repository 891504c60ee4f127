package quic

import (
	"crypto/tls"

	"github.com/normanjoyner/quic/transport"
)

// Config bundles the TLS and transport-parameter configuration a Client or
// Server needs to dial or accept connections, kept as a plain value struct
// the way the teacher's cmd/quince/config.go builds one programmatically
// (spec.md's AMBIENT STACK: "Configuration").
type Config struct {
	TLS tls.Config

	// MinCIDPoolSize and ReorderBufferCap tune transport.Config directly;
	// see transport/config.go for their meaning.
	MinCIDPoolSize   int
	ReorderBufferCap uint64

	Params transport.Parameters
}

// NewConfig returns a Config with the transport defaults from
// transport.NewConfig plus an empty, caller-must-fill tls.Config.
func NewConfig() *Config {
	return &Config{
		Params:           transport.NewConfig(&tls.Config{}).Params,
		MinCIDPoolSize:   4,
		ReorderBufferCap: 64 * 1024,
	}
}

func (c *Config) transportConfig() *transport.Config {
	tc := transport.NewConfig(&c.TLS)
	tc.Params = c.Params
	tc.MinCIDPoolSize = c.MinCIDPoolSize
	tc.ReorderBufferCap = c.ReorderBufferCap
	return tc
}
