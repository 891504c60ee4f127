package quic

import (
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/normanjoyner/quic/transport"
)

// Client owns a UDP socket and every transport.Conn dialed through it,
// polling the socket and the connections' timers in one loop the way the
// teacher's quic.Client does (spec.md §1: the socket-owning "external
// collaborator" transport.Conn itself never touches).
type Client struct {
	config  *Config
	handler Handler
	logger  *logger

	socket net.PacketConn

	mu    sync.Mutex
	conns map[string]*remoteConn

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient creates a Client that will dial connections using config.
func NewClient(config *Config) *Client {
	return &Client{
		config:  config,
		handler: HandlerFunc(func(Conn, []transport.Event) {}),
		logger:  newLogger(),
		conns:   make(map[string]*remoteConn),
		closed:  make(chan struct{}),
	}
}

// SetHandler installs the application callback invoked with new events.
func (c *Client) SetHandler(h Handler) {
	c.handler = h
}

// SetLogger configures verbosity and destination for qlog-style
// per-connection tracing, keeping the teacher's (level int, io.Writer)
// signature cmd/quince already calls with.
func (c *Client) SetLogger(level int, w io.Writer) {
	c.logger.setLevel(logLevel(level))
	c.logger.log.SetOutput(w)
}

// ListenAndServe opens the local UDP socket this Client dials from and
// starts its background poll loop.
func (c *Client) ListenAndServe(addr string) error {
	socket, err := net.ListenPacket("udp", addr)
	if err != nil {
		return err
	}
	c.socket = socket
	go c.readLoop()
	go c.timerLoop()
	return nil
}

// Connect dials a new QUIC connection to addr.
func (c *Client) Connect(addr string) error {
	if c.socket == nil {
		return fmt.Errorf("quic: client socket not listening")
	}
	remoteAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	scid, _, err := c.newLocalCID()
	if err != nil {
		return err
	}
	dcid, _, err := c.newLocalCID()
	if err != nil {
		return err
	}
	tc, err := transport.Connect(scid, dcid, c.config.transportConfig(), c.callbacks())
	if err != nil {
		return err
	}
	rc := newRemoteConn(tc, c.socket, c.socket.LocalAddr(), remoteAddr, scid)
	c.addConn(rc)
	c.logger.attachLogger(rc)
	c.handler.Serve(rc, []transport.Event{{Type: EventConnAccept}})
	return c.flush(rc)
}

func (c *Client) newLocalCID() ([]byte, [16]byte, error) {
	cid, err := transport.GenerateCID(transport.MaxCIDLength)
	if err != nil {
		return nil, [16]byte{}, err
	}
	token, err := transport.GenerateStatelessResetToken()
	if err != nil {
		return nil, [16]byte{}, err
	}
	return cid, token, nil
}

func (c *Client) callbacks() transport.Callbacks {
	return transport.Callbacks{
		GetNewConnectionID: func(seq uint64) ([]byte, [16]byte, error) {
			return c.newLocalCID()
		},
		Rand: func(b []byte) error {
			_, err := rand.Read(b)
			return err
		},
	}
}

func (c *Client) addConn(rc *remoteConn) {
	c.mu.Lock()
	c.conns[rc.scidHex()] = rc
	c.mu.Unlock()
}

func (c *Client) removeConn(rc *remoteConn) {
	c.mu.Lock()
	delete(c.conns, rc.scidHex())
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	buf := make([]byte, transport.MaxPacketSize)
	for {
		n, addr, err := c.socket.ReadFrom(buf)
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
				continue
			}
		}
		c.handlePacket(buf[:n], addr)
	}
}

func (c *Client) handlePacket(b []byte, addr net.Addr) {
	c.mu.Lock()
	var match *remoteConn
	for _, rc := range c.conns {
		if rc.addr.String() == addr.String() {
			match = rc
			break
		}
	}
	c.mu.Unlock()
	if match == nil {
		return
	}
	now := time.Now()
	if _, err := match.conn.Read(b, transport.Path{Local: match.localAddr.String(), Remote: addr.String()}, now); err != nil {
		return
	}
	match.touch(now)
	c.dispatch(match)
	_ = c.flush(match)
}

func (c *Client) dispatch(rc *remoteConn) {
	events := rc.conn.Events()
	if rc.conn.IsEstablished() && !rc.handshakeReported {
		rc.handshakeReported = true
		events = append([]transport.Event{{Type: EventConnHandshakeDone}}, events...)
	}
	if len(events) > 0 {
		c.handler.Serve(rc, events)
	}
	if rc.conn.IsClosed() {
		c.handler.Serve(rc, []transport.Event{{Type: EventConnClose}})
		c.logger.detachLogger(rc)
		c.removeConn(rc)
	}
}

func (c *Client) flush(rc *remoteConn) error {
	buf := make([]byte, transport.MaxPacketSize)
	now := time.Now()
	for {
		n, err := rc.conn.Write(buf, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := c.socket.WriteTo(buf[:n], rc.addr); err != nil {
			return err
		}
		rc.touch(now)
	}
}

func (c *Client) timerLoop() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			conns := make([]*remoteConn, 0, len(c.conns))
			for _, rc := range c.conns {
				conns = append(conns, rc)
			}
			c.mu.Unlock()
			for _, rc := range conns {
				if d := rc.conn.Timeout(now); d == 0 {
					rc.conn.CheckTimeout(now)
					c.dispatch(rc)
					_ = c.flush(rc)
				}
			}
		}
	}
}

// Close shuts down the socket and every open connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	if c.socket != nil {
		return c.socket.Close()
	}
	return nil
}
