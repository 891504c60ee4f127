package transport

import (
	"crypto/tls"
)

// Callbacks is the capability set the embedder supplies (spec.md §6.3,
// §9 "Stateful callbacks"). Required callbacks absent at construction is
// a programmer error; optional callbacks default to no-ops.
type Callbacks struct {
	// GetNewConnectionID generates bytes for a new source CID and its
	// stateless-reset token. Required.
	GetNewConnectionID func(seq uint64) (cid []byte, resetToken [16]byte, err error)
	// Rand fills b with random bytes. Required; defaults to crypto/rand
	// when nil (see Conn.rand).
	Rand func(b []byte) error
	// UpdateKey is invoked when a 1-RTT key update is confirmed, so the
	// embedder can rotate any cached key material it mirrors. Optional.
	UpdateKey func()

	// HandshakeCompleted fires once when the TLS handshake finishes.
	HandshakeCompleted func()
	// RecvStreamData delivers in-order application stream bytes.
	RecvStreamData func(streamID uint64, data []byte, fin bool)
	// StreamOpen/StreamClose/StreamReset report stream lifecycle events.
	StreamOpen  func(streamID uint64)
	StreamClose func(streamID uint64)
	StreamReset func(streamID uint64, errorCode uint64)
	// ExtendMaxStreamData reports local flow-control windows growing.
	ExtendMaxStreamData func(streamID uint64, max uint64)
	// RemoveConnectionID reports a local SCID being retired long enough
	// to be safely forgotten by the embedder (e.g. routing tables).
	RemoveConnectionID func(cid []byte)
	// PathValidation reports the outcome of path validation.
	PathValidation func(path Path, ok bool)
	// RecvVersionNegotiation reports a received VN packet (client only).
	RecvVersionNegotiation func(versions []uint32)
	// RecvStatelessReset reports detection of a peer stateless reset.
	RecvStatelessReset func()
}

// Path is the 4-tuple identifying a network path (spec.md GLOSSARY).
type Path struct {
	Local  string
	Remote string
}

// tlsHandshake holds the TLS-side state of a connection. Per spec.md §1,
// the TLS implementation itself is an external collaborator and this
// package does not run a handshake library: tlsHandshake stores the
// tls.Config, the local and peer transport parameters and the completion
// and early-data-rejection flags. Callbacks has no key, nonce or
// header-protection-mask entries.
type tlsHandshake struct {
	tlsConfig *tls.Config
	conn      *Conn

	peerParams    Parameters
	handshakeDone bool
	localParams   *Parameters

	// earlyDataRejected is set by the embedder's TLS callback when 0-RTT
	// data offered by the client was rejected by the server, per
	// SPEC_FULL.md's supplemented "early data rejection" feature.
	earlyDataRejected bool
}

func (s *tlsHandshake) init(c *Conn, cfg *tls.Config) {
	s.conn = c
	s.tlsConfig = cfg
}

func (s *tlsHandshake) reset() {
	s.handshakeDone = false
}

func (s *tlsHandshake) setTransportParams(p *Parameters) {
	s.localParams = p
}

// doHandshake is the hook the connection core calls to advance the TLS
// handshake. It does nothing: no TLS engine consumes or produces CRYPTO
// data here, and completion changes only through markHandshakeComplete.
func (s *tlsHandshake) doHandshake() error {
	// Completion is reported by HandshakeComplete(), which reflects
	// markHandshakeComplete.
	return nil
}

func (s *tlsHandshake) HandshakeComplete() bool {
	return s.handshakeDone
}

func (s *tlsHandshake) peerTransportParams() *Parameters {
	if !s.handshakeDone {
		return nil
	}
	return &s.peerParams
}

// writeSpace reports which packet-number space the TLS layer still has
// pending handshake bytes to send in, used when writeSpace needs a
// fallback for probes/closes (spec.md §4.12 step 7).
func (s *tlsHandshake) writeSpace() packetSpace {
	if !s.handshakeDone {
		return packetSpaceHandshake
	}
	return packetSpaceApplication
}

// markHandshakeComplete is called by the embedder once crypto/tls reports
// HandshakeComplete() == true and transport parameters have been
// exchanged.
func (s *tlsHandshake) markHandshakeComplete(peer Parameters) {
	s.peerParams = peer
	s.handshakeDone = true
}

// feedCryptoData hands newly reassembled, in-order CRYPTO bytes for one
// space to the TLS engine. A real embedder forwards these into
// crypto/tls's QUICConn.HandleData; this keeps the same call shape as a
// no-op placeholder since the handshake is driven externally.
func (s *tlsHandshake) feedCryptoData(space packetSpace, data []byte) {
	_ = space
	_ = data
}

// rejectEarlyData implements the SUPPLEMENTED "early data rejection" path
// (SPEC_FULL.md item 3) by recording the rejection in earlyDataRejected.
// It drops no queued data and discards no keys, and nothing in this
// package reads the flag.
func (s *tlsHandshake) rejectEarlyData() {
	s.earlyDataRejected = true
}
