package quic

import "testing"

func TestNewConfigDefaults(t *testing.T) {
	c := NewConfig()
	if c.MinCIDPoolSize != 4 {
		t.Fatalf("MinCIDPoolSize = %d, want 4", c.MinCIDPoolSize)
	}
	if c.ReorderBufferCap != 64*1024 {
		t.Fatalf("ReorderBufferCap = %d, want 65536", c.ReorderBufferCap)
	}
	if c.Params.InitialMaxData == 0 {
		t.Fatal("Params should be populated from transport.NewConfig's defaults")
	}
}

func TestConfigTransportConfigCarriesOverrides(t *testing.T) {
	c := NewConfig()
	c.MinCIDPoolSize = 9
	c.ReorderBufferCap = 123
	tc := c.transportConfig()
	if tc.MinCIDPoolSize != 9 || tc.ReorderBufferCap != 123 {
		t.Fatalf("transportConfig() = %+v, want overrides carried over", tc)
	}
	if tc.TLSConfig != &c.TLS {
		t.Fatal("transportConfig() should point at the Config's own tls.Config")
	}
}
