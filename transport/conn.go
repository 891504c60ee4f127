package transport

import (
	"crypto/rand"
	"crypto/tls"
	"time"
)

// connectionState is spec.md §4.13's connection state machine.
type connectionState int

const (
	stateClientInitial connectionState = iota
	stateClientWaitHandshake
	stateServerInitial
	stateServerWaitHandshake
	statePostHandshake
	stateClosing
	stateDraining
	stateClientTLSFailed
	stateServerTLSFailed
)

func (s connectionState) String() string {
	switch s {
	case stateClientInitial:
		return "client_initial"
	case stateClientWaitHandshake:
		return "client_wait_handshake"
	case stateServerInitial:
		return "server_initial"
	case stateServerWaitHandshake:
		return "server_wait_handshake"
	case statePostHandshake:
		return "post_handshake"
	case stateClosing:
		return "closing"
	case stateDraining:
		return "draining"
	case stateClientTLSFailed:
		return "client_tls_failed"
	case stateServerTLSFailed:
		return "server_tls_failed"
	default:
		return "unknown"
	}
}

// packetNumberSpace bundles the per-space state of spec.md §3: its own
// packet number counter, ack tracker, crypto stream and AEAD keys.
type packetNumberSpace struct {
	space                   packetSpace
	nextPacketNumber        uint64
	largestRecvPacketNumber uint64
	hasLargestRecv          bool

	ackTr  ackTracker
	crypto cryptoStream

	rxKeys    packetKeys
	txKeys    packetKeys
	discarded bool
}

func (s *packetNumberSpace) init(space packetSpace, reorderCap uint64) {
	s.space = space
	s.crypto = newCryptoStream(reorderCap)
}

// Conn is spec.md §2's connection core: packet and frame codecs, the
// three packet-number spaces, stream multiplexing, loss recovery and the
// state machine, all driven by the embedder through Read/Write/Timeout
// rather than owning any socket or timer itself. Grounded on
// transport.Conn in _examples/tawawhite-quic/transport/conn.go, carrying
// forward its event-queue and qlog-style logging idiom while replacing
// its internals with the expanded module layout of SPEC_FULL.md.
type Conn struct {
	isClient bool
	version  uint32

	scid  []byte
	dcid  []byte
	odcid []byte
	token []byte

	localCIDs  cidPool
	remoteCIDs cidPool

	spaces [packetSpaceCount]packetNumberSpace

	streams  streamMap
	flow     flowControl
	recovery lossRecovery

	localParams Parameters
	peerParams  Parameters
	config      *Config

	handshake tlsHandshake

	path           Path
	pathValidation pathValidationState

	state      connectionState
	closeFrame *connectionCloseFrame
	closeSent  bool

	idleTimeout      time.Duration
	idleDeadline     time.Time
	draining         bool
	drainingDeadline time.Time

	events          []Event
	lostPacketCount uint64

	logEventFn func(LogEvent)
	callbacks  Callbacks

	keyUpdatePending       bool
	keyPhase               bool
	handshakeDoneFrameSent bool

	// pendingNewCIDs/pendingRetireCIDs are SCIDs and sequence numbers
	// queued for announcement, drained by writeSpace as
	// NEW_CONNECTION_ID/RETIRE_CONNECTION_ID frames (spec.md §4.10).
	pendingNewCIDs    []connID
	pendingRetireCIDs []uint64

	// migratingDCID holds the DCID that was in use before a path migration
	// currently being validated; once validation succeeds it is retired
	// (spec.md §4.11 "migration", RFC 9000 §9.5).
	migratingDCID []byte
}

// Connect creates a client-initiated connection (spec.md §4.12 "Connect").
func Connect(scid, dcid []byte, config *Config, callbacks Callbacks) (*Conn, error) {
	c := newConn(true, scid, dcid, config, callbacks)
	c.odcid = dcid
	c.state = stateClientInitial
	if err := c.deriveInitialKeyMaterial(dcid); err != nil {
		return nil, err
	}
	c.handshake.init(c, config.TLSConfig)
	return c, nil
}

// Accept creates a server-side connection from a received Initial packet
// (spec.md §4.12 "Accept").
func Accept(scid, dcid, odcid []byte, config *Config, callbacks Callbacks) (*Conn, error) {
	c := newConn(false, scid, dcid, config, callbacks)
	c.odcid = odcid
	c.state = stateServerInitial
	if err := c.deriveInitialKeyMaterial(odcid); err != nil {
		return nil, err
	}
	c.handshake.init(c, config.TLSConfig)
	return c, nil
}

func newConn(isClient bool, scid, dcid []byte, config *Config, callbacks Callbacks) *Conn {
	c := &Conn{
		isClient:    isClient,
		version:     quicVersion1,
		scid:        scid,
		dcid:        dcid,
		config:      config,
		localParams: config.Params,
		callbacks:   callbacks,
	}
	for i := range c.spaces {
		c.spaces[i].init(packetSpace(i), config.ReorderBufferCap)
	}
	c.localCIDs.init(config.MinCIDPoolSize)
	c.remoteCIDs.init(config.MinCIDPoolSize)
	c.localCIDs.addLocal(scid, [16]byte{})
	c.remoteCIDs.addRemote(0, dcid, [16]byte{}, 0)
	c.streams.init(config.Params.InitialMaxStreamsBidi, config.Params.InitialMaxStreamsUni)
	c.flow.init(config.Params.InitialMaxData, 0)
	c.idleTimeout = config.Params.MaxIdleTimeout
	c.recovery.init(time.Time{})
	return c
}

// deriveInitialKeyMaterial computes the Initial AEAD keys for both
// directions from the given connection ID (spec.md §6.1, RFC 9001 §5.2).
func (c *Conn) deriveInitialKeyMaterial(cid []byte) error {
	var initial initialAEAD
	initial.init(cid)
	if c.isClient {
		c.spaces[packetSpaceInitial].txKeys = initial.client
		c.spaces[packetSpaceInitial].rxKeys = initial.server
	} else {
		c.spaces[packetSpaceInitial].txKeys = initial.server
		c.spaces[packetSpaceInitial].rxKeys = initial.client
	}
	return nil
}

// IsEstablished reports whether the handshake has completed.
func (c *Conn) IsEstablished() bool {
	return c.state == statePostHandshake
}

// IsClosed reports whether the connection has finished draining and may
// be discarded by the embedder.
func (c *Conn) IsClosed() bool {
	return c.state == stateDraining && time.Now().After(c.drainingDeadline)
}

// Events drains and returns pending application-visible events (spec.md
// §6.3).
func (c *Conn) Events() []Event {
	e := c.events
	c.events = nil
	return e
}

func (c *Conn) addEvent(e Event) {
	c.events = append(c.events, e)
}

// Stream returns the named stream, if any.
func (c *Conn) Stream(id uint64) *Stream {
	return c.streams.get(id)
}

// getOrCreateStream returns an existing stream or creates one for a
// newly referenced, peer-initiated stream ID, enforcing bounds (spec.md
// §4.9).
func (c *Conn) getOrCreateStream(id uint64) (*Stream, error) {
	if st := c.streams.get(id); st != nil {
		return st, nil
	}
	local := isStreamLocal(id, c.isClient)
	if local {
		return nil, newError(StreamStateError, "unknown local stream")
	}
	bidi := isStreamBidi(id)
	st, err := c.streams.create(id, local, bidi)
	if err != nil {
		return nil, err
	}
	if bidi {
		st.flow.init(c.localParams.InitialMaxStreamDataBidiRemote, c.peerParams.InitialMaxStreamDataBidiLocal)
	} else {
		st.flow.init(c.localParams.InitialMaxStreamDataUni, 0)
	}
	c.addEvent(newEventStream(id))
	return st, nil
}

// OpenStream creates a new locally-initiated stream (spec.md §4.9).
func (c *Conn) OpenStream(bidi bool) (*Stream, error) {
	var id uint64
	if bidi {
		id = c.streams.localOpenedBidi<<2 | localStreamBits(c.isClient, true)
		if id>>2 >= c.streams.peerMaxStreamsBidi {
			return nil, newError(StreamLimitError, "bidi stream limit")
		}
		c.streams.localOpenedBidi++
	} else {
		id = c.streams.localOpenedUni<<2 | localStreamBits(c.isClient, false)
		if id>>2 >= c.streams.peerMaxStreamsUni {
			return nil, newError(StreamLimitError, "uni stream limit")
		}
		c.streams.localOpenedUni++
	}
	st, err := c.streams.create(id, true, bidi)
	if err != nil {
		return nil, err
	}
	if bidi {
		st.flow.init(c.localParams.InitialMaxStreamDataBidiLocal, c.peerParams.InitialMaxStreamDataBidiRemote)
	} else {
		st.flow.init(0, c.peerParams.InitialMaxStreamDataUni)
	}
	return st, nil
}

// ShutdownWrite abruptly terminates the send side of stream id (spec.md
// §6.2 "shutdown-write"), queuing a RESET_STREAM carrying the stream's
// current write offset as its final size (spec.md §4.9 "Reset/Stop").
func (c *Conn) ShutdownWrite(id uint64, errorCode uint64) error {
	st := c.streams.get(id)
	if st == nil {
		return newError(StreamNotFound, "")
	}
	if st.sentRST || st.send.complete() {
		return nil
	}
	st.appErrorCode = errorCode
	st.resetPending = true
	st.shutWR = true
	return nil
}

// ShutdownRead abruptly terminates the receive side of stream id (spec.md
// §6.2 "shutdown-read"), queuing a STOP_SENDING asking the peer to stop
// sending (spec.md §4.9 "Reset/Stop").
func (c *Conn) ShutdownRead(id uint64, errorCode uint64) error {
	st := c.streams.get(id)
	if st == nil {
		return newError(StreamNotFound, "")
	}
	if st.shutRD {
		return nil
	}
	st.localStopErrorCode = errorCode
	st.localStopPending = true
	st.shutRD = true
	return nil
}

func localStreamBits(isClient, bidi bool) uint64 {
	switch {
	case isClient && bidi:
		return streamClientBidi
	case !isClient && bidi:
		return streamServerBidi
	case isClient && !bidi:
		return streamClientUni
	default:
		return streamServerUni
	}
}

// validatePeerTransportParams enforces the handful of parameters that
// must agree with what we already know (spec.md §6.3): the peer's
// original_destination_connection_id must echo what the client sent.
func (c *Conn) validatePeerTransportParams(p Parameters) error {
	if !c.isClient {
		return nil
	}
	if len(p.OriginalDestinationCID) > 0 {
		if string(p.OriginalDestinationCID) != string(c.odcid) {
			return newError(TransportParameterError, "original_destination_connection_id mismatch")
		}
	}
	return nil
}

// doHandshake drives the TLS handshake to completion or failure,
// applying negotiated transport parameters once available (spec.md
// §4.12).
func (c *Conn) doHandshake(now time.Time) error {
	if c.handshake.HandshakeComplete() {
		return nil
	}
	if err := c.handshake.doHandshake(); err != nil {
		if c.isClient {
			c.state = stateClientTLSFailed
		} else {
			c.state = stateServerTLSFailed
		}
		return err
	}
	if c.handshake.HandshakeComplete() {
		peer := c.handshake.peerTransportParams()
		if peer != nil {
			if err := c.validatePeerTransportParams(*peer); err != nil {
				return err
			}
			c.peerParams = *peer
			c.streams.setPeerMaxStreamsBidi(peer.InitialMaxStreamsBidi)
			c.streams.setPeerMaxStreamsUni(peer.InitialMaxStreamsUni)
			c.flow.setMaxSend(peer.InitialMaxData)
			c.recovery.maxAckDelay = peer.MaxAckDelay
		}
		c.state = statePostHandshake
		if c.callbacks.HandshakeCompleted != nil {
			c.callbacks.HandshakeCompleted()
		}
		c.dropPacketSpace(packetSpaceInitial)
	}
	return nil
}

// dropPacketSpace discards keys and in-flight state for a space no
// longer needed (spec.md §4.13).
func (c *Conn) dropPacketSpace(space packetSpace) {
	if c.spaces[space].discarded {
		return
	}
	c.spaces[space].discarded = true
	c.recovery.dropUnackedData(space)
}

// InitiateKeyUpdate starts the 1-RTT key update handshake of
// SPEC_FULL.md item 1 by marking an update pending; applyPendingKeyUpdate
// then flips the key_phase bit carried by later short-header packets and
// invokes Callbacks.UpdateKey. No new packet protection keys are derived
// and no old keys are retained; packets stay protected with the current
// Application keys. Grounded on
// ngtcp2_conn_initiate_key_update in
// original_source/deps/ngtcp2/lib/ngtcp2_conn.c.
func (c *Conn) InitiateKeyUpdate() error {
	if !c.IsEstablished() {
		return newError(ProtocolViolation, "key update before handshake completion")
	}
	if c.keyUpdatePending {
		return nil
	}
	c.keyUpdatePending = true
	return nil
}

func (c *Conn) applyPendingKeyUpdate() {
	if !c.keyUpdatePending {
		return
	}
	c.keyUpdatePending = false
	c.keyPhase = !c.keyPhase
	if c.callbacks.UpdateKey != nil {
		c.callbacks.UpdateKey()
	}
}

// maxPacketSize returns the largest UDP payload this connection may send
// right now, bounded by the peer's max_udp_payload_size once known and by
// spec.md's Initial anti-amplification floor.
func (c *Conn) maxPacketSize() int {
	if c.state == stateClientInitial || c.state == stateServerInitial {
		return MinInitialPacketSize
	}
	if c.peerParams.MaxUDPPayloadSize > 0 && c.peerParams.MaxUDPPayloadSize < MaxPacketSize {
		return int(c.peerParams.MaxUDPPayloadSize)
	}
	return MaxPacketSize
}

// Timeout returns the duration until Conn next needs CheckTimeout called,
// per spec.md §5's embedder-driven timer contract.
func (c *Conn) Timeout(now time.Time) time.Duration {
	deadline := c.idleDeadline
	if lt := c.recovery.lossDetectionTimer; !lt.IsZero() && (deadline.IsZero() || lt.Before(deadline)) {
		deadline = lt
	}
	if c.draining && (deadline.IsZero() || c.drainingDeadline.Before(deadline)) {
		deadline = c.drainingDeadline
	}
	if deadline.IsZero() {
		return -1
	}
	if !deadline.After(now) {
		return 0
	}
	return deadline.Sub(now)
}

// CheckTimeout is called by the embedder once Timeout's deadline has
// passed (spec.md §5).
func (c *Conn) CheckTimeout(now time.Time) {
	if c.draining && !now.Before(c.drainingDeadline) {
		return
	}
	if !c.idleDeadline.IsZero() && !now.Before(c.idleDeadline) {
		c.setDraining(now)
		return
	}
	if lt := c.recovery.lossDetectionTimer; !lt.IsZero() && !now.Before(lt) {
		c.recovery.onLossDetectionTimeout(now)
	}
	c.localCIDs.reap(now)
	c.remoteCIDs.reap(now)
	c.maybeIssueNewConnectionID()
	if fellBack, path := c.pathValidation.checkTimeout(now); fellBack {
		c.path = path
		if c.migratingDCID != nil {
			c.dcid = c.migratingDCID
			c.migratingDCID = nil
		}
		if c.callbacks.PathValidation != nil {
			c.callbacks.PathValidation(path, false)
		}
	}
}

// maybeStartMigration detects a non-probing packet arriving on a path
// other than the current one and starts validating it (spec.md §4.11
// "migration"), grounded on conn_recv_non_probing_pkt_on_new_path in
// original_source's ngtcp2_conn.c. Only a server reacts this way; a
// client only ever sends on paths it chose itself.
func (c *Conn) maybeStartMigration(path Path, now time.Time) {
	if c.isClient || path == c.path {
		return
	}
	if c.pathValidation.validating && c.pathValidation.path == path {
		return
	}
	prior := c.path
	c.recovery.resetCongestion()
	if err := c.pathValidation.start(path, prior, now); err != nil {
		return
	}
	c.path = path
	c.migratingDCID = c.dcid
	if spare, ok := c.pickSpareRemoteCID(); ok {
		c.dcid = spare.id
	}
}

// pickSpareRemoteCID returns a remote CID other than the one currently in
// use, for the new path to address the peer with once migration completes
// (RFC 9000 §9.5 recommends not reusing a CID across paths). Reports false
// if the peer hasn't issued us a spare one.
func (c *Conn) pickSpareRemoteCID() (connID, bool) {
	for _, id := range c.remoteCIDs.active() {
		if !id.equal(c.dcid) {
			return id, true
		}
	}
	return connID{}, false
}

// maybeIssueNewConnectionID tops up the local CID pool toward
// config.MinCIDPoolSize, queueing a NEW_CONNECTION_ID frame for each one
// issued (spec.md §4.10 "MIN_SCID_POOL pre-issuance").
func (c *Conn) maybeIssueNewConnectionID() {
	if c.callbacks.GetNewConnectionID == nil {
		return
	}
	for c.localCIDs.needsMore() {
		seq := c.localCIDs.nextSeq
		const maxCollisionRetries = 8
		var cid []byte
		var token [16]byte
		for attempt := 0; attempt < maxCollisionRetries; attempt++ {
			var err error
			cid, token, err = c.callbacks.GetNewConnectionID(seq)
			if err != nil {
				return
			}
			if _, collides := c.localCIDs.byValue(cid); !collides {
				break
			}
			cid = nil
		}
		if cid == nil {
			return
		}
		id := c.localCIDs.addLocal(cid, token)
		c.pendingNewCIDs = append(c.pendingNewCIDs, id)
	}
}

// setDraining transitions into the draining state for the closing/draining
// timeout (spec.md §4.13), after which the embedder may discard the
// connection.
func (c *Conn) setDraining(now time.Time) {
	if c.draining {
		return
	}
	c.draining = true
	c.state = stateDraining
	pto := c.recovery.probeTimeout()
	c.drainingDeadline = now.Add(3 * pto)
	c.addEvent(Event{Type: EventStream}) // wake the embedder to notice closure
}

// Close starts the immediate close of spec.md §4.13: queues a
// CONNECTION_CLOSE frame to be sent on the next Write and enters the
// closing state.
func (c *Conn) Close(appErr bool, code uint64, reason string) error {
	if c.state == stateClosing || c.state == stateDraining {
		return nil
	}
	c.closeFrame = newConnectionCloseFrame(code, 0, []byte(reason), appErr)
	c.state = stateClosing
	return nil
}

func (c *Conn) rand(b []byte) error {
	if c.callbacks.Rand != nil {
		return c.callbacks.Rand(b)
	}
	_, err := rand.Read(b)
	return err
}

func (c *Conn) scidString() string {
	if len(c.scid) == 0 {
		return ""
	}
	const hex = "0123456789abcdef"
	out := make([]byte, len(c.scid)*2)
	for i, b := range c.scid {
		out[i*2] = hex[b>>4]
		out[i*2+1] = hex[b&0xf]
	}
	return string(out)
}

func (c *Conn) logEvent(e LogEvent) {
	if c.logEventFn != nil {
		c.logEventFn(e)
	}
}

// OnLogEvent installs a qlog-style sink, following the teacher's
// transport.Conn.OnLogEvent idiom.
func (c *Conn) OnLogEvent(fn func(LogEvent)) {
	c.logEventFn = fn
}

func (c *Conn) logPacketDropped(p *packet, now time.Time) {
	if c.logEventFn != nil {
		c.logEvent(newLogEventPacket(now, logEventPacketDropped, p))
	}
}

func (c *Conn) logPacketReceived(p *packet, now time.Time) {
	if c.logEventFn != nil {
		c.logEvent(newLogEventPacket(now, logEventPacketReceived, p))
	}
}

func (c *Conn) logPacketSent(p *packet, frames []frame, now time.Time) {
	if c.logEventFn == nil {
		return
	}
	c.logEvent(newLogEventPacket(now, logEventPacketSent, p))
	for _, f := range frames {
		c.logEvent(newLogEventFrame(now, logEventFramesProcessed, f))
	}
}

func (c *Conn) logFrameProcessed(f frame, now time.Time) {
	if c.logEventFn != nil {
		c.logEvent(newLogEventFrame(now, logEventFramesProcessed, f))
	}
}

var _ = tls.VersionTLS13 // ties this file's handshake plumbing to crypto/tls's QUIC support, as in the teacher
