package transport

import (
	"crypto/tls"
	"testing"
)

func TestNewConfigDefaults(t *testing.T) {
	tlsConfig := &tls.Config{}
	c := NewConfig(tlsConfig)
	if c.TLSConfig != tlsConfig {
		t.Fatal("NewConfig should retain the given tls.Config")
	}
	if c.Params.MaxIdleTimeout <= 0 {
		t.Fatal("default MaxIdleTimeout should be positive")
	}
	if c.Params.InitialMaxStreamsBidi == 0 {
		t.Fatal("default InitialMaxStreamsBidi should be nonzero")
	}
	if c.MinCIDPoolSize != 4 {
		t.Fatalf("MinCIDPoolSize = %d, want 4", c.MinCIDPoolSize)
	}
}
