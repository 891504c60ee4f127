package transport

import (
	"crypto/tls"
	"time"
)

// transport parameter identifiers (RFC 9000 §18.2), extended with the
// preferred_address supplemented feature (SPEC_FULL.md item 4).
const (
	paramOriginalDestinationCID     = 0x00
	paramMaxIdleTimeout             = 0x01
	paramStatelessResetToken        = 0x02
	paramMaxUDPPayloadSize          = 0x03
	paramInitialMaxData             = 0x04
	paramInitialMaxStreamDataBidiLocal  = 0x05
	paramInitialMaxStreamDataBidiRemote = 0x06
	paramInitialMaxStreamDataUni    = 0x07
	paramInitialMaxStreamsBidi      = 0x08
	paramInitialMaxStreamsUni       = 0x09
	paramAckDelayExponent           = 0x0a
	paramMaxAckDelay                = 0x0b
	paramDisableActiveMigration     = 0x0c
	paramPreferredAddress           = 0x0d
	paramActiveConnectionIDLimit    = 0x0e
	paramInitialSourceCID           = 0x0f
	paramRetrySourceCID             = 0x10
)

// PreferredAddress is the supplemented transport parameter of
// SPEC_FULL.md item 4, grounded on ngtcp2_preferred_addr in
// original_source/deps/ngtcp2/lib/ngtcp2_pkt.c/ngtcp2_conn.c: an
// endpoint may advertise an alternate address/CID pair for the peer to
// migrate to right after the handshake completes.
type PreferredAddress struct {
	IPv4             string
	IPv6             string
	ConnectionID     []byte
	StatelessResetToken [16]byte
}

// Parameters holds one side's transport parameter set (a Conn keeps one
// for itself and one for the peer), spec.md §6.3.
type Parameters struct {
	OriginalDestinationCID []byte
	MaxIdleTimeout         time.Duration
	StatelessResetToken    *[16]byte
	MaxUDPPayloadSize      uint64
	InitialMaxData         uint64
	InitialMaxStreamDataBidiLocal  uint64
	InitialMaxStreamDataBidiRemote uint64
	InitialMaxStreamDataUni        uint64
	InitialMaxStreamsBidi  uint64
	InitialMaxStreamsUni   uint64
	AckDelayExponent       uint64
	MaxAckDelay            time.Duration
	DisableActiveMigration bool
	PreferredAddress       *PreferredAddress
	ActiveConnectionIDLimit uint64
	InitialSourceCID       []byte
	RetrySourceCID         []byte
}

func defaultParameters() Parameters {
	return Parameters{
		MaxIdleTimeout:          30 * time.Second,
		MaxUDPPayloadSize:       MaxPacketSize,
		InitialMaxData:          10 << 20,
		InitialMaxStreamDataBidiLocal:  1 << 20,
		InitialMaxStreamDataBidiRemote: 1 << 20,
		InitialMaxStreamDataUni:        1 << 20,
		InitialMaxStreamsBidi:   100,
		InitialMaxStreamsUni:    100,
		AckDelayExponent:        3,
		MaxAckDelay:             25 * time.Millisecond,
		ActiveConnectionIDLimit: 4,
	}
}

// Config bundles the per-endpoint configuration of spec.md §6.2: a TLS
// config (the external collaborator arriving via crypto/tls's native
// QUIC support, as in the teacher) plus local transport parameters.
type Config struct {
	TLSConfig        *tls.Config
	Params           Parameters
	MinCIDPoolSize   int
	ReorderBufferCap uint64
}

func NewConfig(tlsConfig *tls.Config) *Config {
	return &Config{
		TLSConfig:        tlsConfig,
		Params:           defaultParameters(),
		MinCIDPoolSize:   4,
		ReorderBufferCap: 0,
	}
}
