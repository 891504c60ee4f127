package quic

import (
	"crypto/rand"
	"io"
	"net"
	"sync"
	"time"

	"github.com/normanjoyner/quic/transport"
)

// Server accepts incoming QUIC connections on one UDP socket, the
// accept-side counterpart of Client (spec.md §1, kept from the teacher's
// quic.Server).
type Server struct {
	config  *Config
	handler Handler
	logger  *logger

	socket net.PacketConn

	mu    sync.Mutex
	conns map[string]*remoteConn

	closeOnce sync.Once
	closed    chan struct{}
}

// NewServer creates a Server that will accept connections using config.
func NewServer(config *Config) *Server {
	return &Server{
		config:  config,
		handler: HandlerFunc(func(Conn, []transport.Event) {}),
		logger:  newLogger(),
		conns:   make(map[string]*remoteConn),
		closed:  make(chan struct{}),
	}
}

func (s *Server) SetHandler(h Handler) {
	s.handler = h
}

func (s *Server) SetLogger(level int, w io.Writer) {
	s.logger.setLevel(logLevel(level))
	s.logger.log.SetOutput(w)
}

// ListenAndServe opens addr and starts accepting connections.
func (s *Server) ListenAndServe(addr string) error {
	socket, err := net.ListenPacket("udp", addr)
	if err != nil {
		return err
	}
	s.socket = socket
	go s.readLoop()
	go s.timerLoop()
	return nil
}

func (s *Server) readLoop() {
	buf := make([]byte, transport.MaxPacketSize)
	for {
		n, addr, err := s.socket.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
				continue
			}
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		s.handlePacket(pkt, addr)
	}
}

func (s *Server) handlePacket(b []byte, addr net.Addr) {
	s.mu.Lock()
	rc, ok := s.conns[addr.String()]
	s.mu.Unlock()

	now := time.Now()
	if !ok {
		newConn, err := s.accept(b, addr)
		if err != nil {
			return
		}
		rc = newConn
		s.mu.Lock()
		s.conns[addr.String()] = rc
		s.mu.Unlock()
		s.logger.attachLogger(rc)
		s.handler.Serve(rc, []transport.Event{{Type: EventConnAccept}})
	}

	if _, err := rc.conn.Read(b, transport.Path{Local: rc.localAddr.String(), Remote: addr.String()}, now); err != nil {
		return
	}
	rc.touch(now)
	s.dispatch(rc)
	_ = s.flush(rc)
}

// accept derives local connection ids and builds a transport.Conn for a
// first datagram from a previously unseen peer address. Address
// validation (Retry) is out of scope (spec.md §9 Non-goals); every new
// address is accepted directly, as the teacher does.
func (s *Server) accept(b []byte, addr net.Addr) (*remoteConn, error) {
	scid, err := transport.GenerateCID(transport.MaxCIDLength)
	if err != nil {
		return nil, err
	}
	dcid, err := transport.GenerateCID(transport.MaxCIDLength)
	if err != nil {
		return nil, err
	}
	tc, err := transport.Accept(scid, dcid, dcid, s.config.transportConfig(), s.callbacks())
	if err != nil {
		return nil, err
	}
	return newRemoteConn(tc, s.socket, s.socket.LocalAddr(), addr, scid), nil
}

func (s *Server) callbacks() transport.Callbacks {
	return transport.Callbacks{
		GetNewConnectionID: func(seq uint64) ([]byte, [16]byte, error) {
			cid, err := transport.GenerateCID(transport.MaxCIDLength)
			if err != nil {
				return nil, [16]byte{}, err
			}
			token, err := transport.GenerateStatelessResetToken()
			return cid, token, err
		},
		Rand: func(b []byte) error {
			_, err := rand.Read(b)
			return err
		},
	}
}

func (s *Server) dispatch(rc *remoteConn) {
	events := rc.conn.Events()
	if rc.conn.IsEstablished() && !rc.handshakeReported {
		rc.handshakeReported = true
		events = append([]transport.Event{{Type: EventConnHandshakeDone}}, events...)
	}
	if len(events) > 0 {
		s.handler.Serve(rc, events)
	}
	if rc.conn.IsClosed() {
		s.handler.Serve(rc, []transport.Event{{Type: EventConnClose}})
		s.logger.detachLogger(rc)
		s.mu.Lock()
		delete(s.conns, rc.addr.String())
		s.mu.Unlock()
	}
}

func (s *Server) flush(rc *remoteConn) error {
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
		if _, err := s.socket.WriteTo(buf[:n], rc.addr); err != nil {
			return err
		}
		rc.touch(now)
	}
}

func (s *Server) timerLoop() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			conns := make([]*remoteConn, 0, len(s.conns))
			for _, rc := range s.conns {
				conns = append(conns, rc)
			}
			s.mu.Unlock()
			for _, rc := range conns {
				if d := rc.conn.Timeout(now); d == 0 {
					rc.conn.CheckTimeout(now)
					s.dispatch(rc)
					_ = s.flush(rc)
				}
			}
		}
	}
}

// Close shuts down the socket and every open connection.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	if s.socket != nil {
		return s.socket.Close()
	}
	return nil
}
