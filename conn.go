package quic

import (
	"net"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/normanjoyner/quic/transport"
)

// Event types surfaced by Handler.Serve alongside transport.Event
// (spec.md §6.3 extended with connection-lifecycle events the outer
// socket layer is responsible for, since transport.Conn itself never
// knows about accept/close at the session level).
type EventType = transport.EventType

const (
	// EventConnAccept fires once for a newly accepted or dialed
	// connection, before any transport.Event for it.
	EventConnAccept transport.EventType = 100 + iota
	// EventConnHandshakeDone fires once the handshake completes.
	EventConnHandshakeDone
	// EventConnClose fires once a connection is fully drained and
	// removed from its owning Client/Server.
	EventConnClose
)

// Stream is the application stream type, re-exported directly since the
// outer package adds no state of its own around it.
type Stream = transport.Stream

// Conn is the per-connection handle exposed to a Handler: socket identity
// plus the transport-level stream API (spec.md §1's "external
// collaborator" owning sockets, kept and adapted from the teacher).
type Conn interface {
	// LocalAddr is the socket address this connection is reachable on.
	LocalAddr() net.Addr
	// RemoteAddr is the peer's address for this connection's current path.
	RemoteAddr() net.Addr
	// Stream returns the named stream if it is already open, or nil; it
	// does not open a stream.
	Stream(id uint64) *Stream
	// Close begins an immediate transport close with the given
	// application error code and reason.
	Close(appErrorCode uint64, reason string) error
}

// remoteConn implements Conn by pairing a transport.Conn with the socket
// and addressing state the transport package deliberately knows nothing
// about (spec.md §1 Non-goals: socket I/O, retry/address validation are
// an external collaborator's job).
type remoteConn struct {
	conn    *transport.Conn
	socket  net.PacketConn
	localAddr net.Addr
	addr    net.Addr // remote address
	scid    []byte
	traceID string

	mu         sync.Mutex
	lastActive time.Time

	// handshakeReported guards EventConnHandshakeDone from firing more
	// than once per connection.
	handshakeReported bool
}

func newRemoteConn(tc *transport.Conn, socket net.PacketConn, local, remote net.Addr, scid []byte) *remoteConn {
	return &remoteConn{
		conn:      tc,
		socket:    socket,
		localAddr: local,
		addr:      remote,
		scid:      append([]byte(nil), scid...),
		traceID:   xid.New().String(),
		lastActive: time.Now(),
	}
}

func (c *remoteConn) LocalAddr() net.Addr  { return c.localAddr }
func (c *remoteConn) RemoteAddr() net.Addr { return c.addr }

func (c *remoteConn) Stream(id uint64) *Stream {
	return c.conn.Stream(id)
}

func (c *remoteConn) Close(appErrorCode uint64, reason string) error {
	return c.conn.Close(true, appErrorCode, reason)
}

func (c *remoteConn) scidHex() string {
	const hex = "0123456789abcdef"
	out := make([]byte, len(c.scid)*2)
	for i, b := range c.scid {
		out[i*2] = hex[b>>4]
		out[i*2+1] = hex[b&0xf]
	}
	return string(out)
}

// touch records that the connection produced or consumed a datagram just
// now, so idleSince can report how long it has been idle. Neither Client
// nor Server reaps idle connections.
func (c *remoteConn) touch(now time.Time) {
	c.mu.Lock()
	c.lastActive = now
	c.mu.Unlock()
}

func (c *remoteConn) idleSince(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastActive)
}
