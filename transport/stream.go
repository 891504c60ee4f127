package transport

// Stream id helpers (spec.md §3 "Application stream"): the low two bits
// encode {initiator, kind}.
const (
	streamClientBidi = 0x00
	streamServerBidi = 0x01
	streamClientUni  = 0x02
	streamServerUni  = 0x03
)

func isStreamBidi(id uint64) bool {
	return id&0x02 == 0
}

func isStreamLocal(id uint64, isClient bool) bool {
	initiatedByClient := id&0x01 == 0
	return initiatedByClient == isClient
}

// byteRange is an [offset, offset+len) span of stream bytes, used by the
// send-side retransmit queue to prioritize lost fragments over fresh data
// (spec.md §4.6 "Rescheduling").
type byteRange struct {
	offset uint64
	length int
}

// streamSendState is the write side of a stream or crypto stream: an
// append-only buffer of bytes not yet fully acknowledged, plus a FIFO of
// ranges that were sent, declared lost, and now need to be resent ahead of
// fresh data.
type streamSendState struct {
	buf         []byte
	base        uint64 // offset of buf[0]
	writeOffset uint64 // offset just past the last written byte
	sendOffset  uint64 // offset of the next never-yet-sent byte

	finSet    bool
	finOffset uint64
	finSent   bool

	acked  pngapSet
	resend []byteRange
}

func (s *streamSendState) write(data []byte, fin bool) error {
	if s.finSet && len(data) > 0 {
		return errFinalSize
	}
	s.buf = append(s.buf, data...)
	s.writeOffset += uint64(len(data))
	if fin {
		s.finSet = true
		s.finOffset = s.writeOffset
	}
	return nil
}

// push re-queues a previously sent (now lost) byte range for resend,
// per spec.md §4.6. It is a no-op for bytes already acked.
func (s *streamSendState) push(data []byte, offset uint64, fin bool) error {
	length := len(data)
	if length > 0 {
		if s.acked.isPushed(offset) {
			// Best-effort: trim the leading already-acked prefix.
			for length > 0 && s.acked.isPushed(offset) {
				offset++
				length--
			}
		}
		if length > 0 {
			s.resend = append(s.resend, byteRange{offset: offset, length: length})
		}
	}
	if fin && s.finSent {
		s.finSent = false
	}
	return nil
}

// popSend returns up to maxLen bytes of data to send next: lost ranges
// first (priority resend), then fresh data, then a final zero-length FIN
// frame once all data has been sent.
func (s *streamSendState) popSend(maxLen int) ([]byte, uint64, bool) {
	for len(s.resend) > 0 {
		r := s.resend[0]
		if r.offset+uint64(r.length) <= s.base {
			s.resend = s.resend[1:]
			continue
		}
		start := r.offset
		if start < s.base {
			start = s.base
		}
		end := r.offset + uint64(r.length)
		n := int(end - start)
		if n > maxLen {
			n = maxLen
		}
		if n <= 0 {
			return nil, 0, false
		}
		data := s.sliceAt(start, n)
		remaining := r
		remaining.offset = start + uint64(n)
		remaining.length = r.length - int(remaining.offset-r.offset)
		if remaining.length <= 0 {
			s.resend = s.resend[1:]
		} else {
			s.resend[0] = remaining
		}
		fin := s.finSet && remaining.length <= 0 && start+uint64(n) == s.finOffset
		return data, start, fin
	}
	if s.sendOffset < s.writeOffset {
		n := int(s.writeOffset - s.sendOffset)
		if n > maxLen {
			n = maxLen
		}
		if n <= 0 {
			return nil, 0, false
		}
		offset := s.sendOffset
		data := s.sliceAt(offset, n)
		s.sendOffset += uint64(n)
		fin := s.finSet && s.sendOffset == s.finOffset
		if fin {
			s.finSent = true
		}
		return data, offset, fin
	}
	if s.finSet && !s.finSent && maxLen >= 0 {
		s.finSent = true
		return nil, s.finOffset, true
	}
	return nil, 0, false
}

func (s *streamSendState) sliceAt(offset uint64, n int) []byte {
	i := int(offset - s.base)
	if i < 0 || i+n > len(s.buf) {
		return nil
	}
	out := make([]byte, n)
	copy(out, s.buf[i:i+n])
	return out
}

// ack records that [offset, offset+len) has been acknowledged by the
// peer, and trims the leading acknowledged prefix of buf to bound memory.
func (s *streamSendState) ack(offset uint64, length uint64) {
	for n := uint64(0); n < length; n++ {
		s.acked.push(offset + n)
	}
	for len(s.acked.ranges) > 0 && s.acked.ranges[0].lo == s.base {
		trim := s.acked.ranges[0].hi + 1 - s.base
		if trim > uint64(len(s.buf)) {
			trim = uint64(len(s.buf))
		}
		s.buf = s.buf[trim:]
		s.base += trim
		if s.base > s.acked.ranges[0].hi {
			continue
		}
		break
	}
}

// complete reports whether all written data, including FIN, has been
// acknowledged.
func (s *streamSendState) complete() bool {
	if !s.finSet {
		return false
	}
	if s.finOffset == 0 {
		return s.finSent
	}
	return s.acked.isPushed(s.finOffset-1) && s.base >= s.finOffset
}

func (s *streamSendState) hasPending() bool {
	return len(s.resend) > 0 || s.sendOffset < s.writeOffset || (s.finSet && !s.finSent)
}

// streamRecvState is the read side of a stream or crypto stream: a
// reassembly buffer plus final-size bookkeeping (spec.md invariant 6).
type streamRecvState struct {
	rob       reorderBuffer
	finalSize int64 // -1 until known
	errorCode uint64
	resetRecv bool
}

func newStreamRecvState(reorderCap uint64) streamRecvState {
	s := streamRecvState{finalSize: -1}
	s.rob.init(reorderCap)
	return s
}

// push inserts received bytes, enforcing final-size consistency (spec.md
// §4.9 "final-size rules").
func (s *streamRecvState) push(data []byte, offset uint64, fin bool) error {
	end := offset + uint64(len(data))
	if fin {
		if s.finalSize >= 0 && uint64(s.finalSize) != end {
			return errFinalSize
		}
		s.finalSize = int64(end)
	} else if s.finalSize >= 0 && end > uint64(s.finalSize) {
		return errFinalSize
	}
	return s.rob.push(offset, data)
}

// reset applies a RESET_STREAM's declared final size, returning how many
// additional bytes (beyond what conn-level flow control has already
// counted) must be charged against the connection's receive window.
func (s *streamRecvState) reset(finalSize uint64) (int, error) {
	if s.finalSize >= 0 && uint64(s.finalSize) != finalSize {
		return 0, errFinalSize
	}
	prevKnown := s.finalSize
	s.finalSize = int64(finalSize)
	s.resetRecv = true
	if prevKnown >= 0 {
		return 0, nil
	}
	// Bytes between the highest contiguous delivery point and finalSize
	// were never individually counted; charge them now.
	delivered := s.rob.firstGapOffset()
	if finalSize <= delivered {
		return 0, nil
	}
	return int(finalSize - delivered), nil
}

func (s *streamRecvState) String() string {
	return "recv"
}

// cryptoStream is the per-space handshake byte stream of spec.md §3
// "Crypto stream": same reassembly machinery as an application stream,
// but with no flow-control limit beyond a configurable reorder cap.
type cryptoStream struct {
	send streamSendState
	recv streamRecvState
}

func newCryptoStream(reorderCap uint64) cryptoStream {
	return cryptoStream{recv: newStreamRecvState(reorderCap)}
}

func (s *cryptoStream) pushRecv(data []byte, offset uint64, fin bool) error {
	return s.recv.push(data, offset, fin)
}

func (s *cryptoStream) popSend(maxLen int) ([]byte, uint64, bool) {
	return s.send.popSend(maxLen)
}

// Stream is the application stream of spec.md §3.
type Stream struct {
	id   uint64
	bidi bool

	send streamSendState
	recv streamRecvState
	flow flowControl

	shutRD      bool
	shutWR      bool
	sentRST     bool
	recvRST     bool
	stopSending bool
	rstAcked    bool
	appErrorCode uint64

	// stopSendingErrorCode is the error code the peer's STOP_SENDING
	// carried; copied into the RESET_STREAM writeSpace sends in response
	// (spec.md §4.9 "Reset/Stop"; RFC 9000 §3.5).
	stopSendingErrorCode uint64
	// resetPending marks that a RESET_STREAM for this stream still needs
	// to be placed in a packet, whether triggered locally (ShutdownWrite)
	// or by a received STOP_SENDING.
	resetPending bool
	// localStopPending/localStopErrorCode track a locally originated
	// STOP_SENDING still needing to be sent (ShutdownRead).
	localStopPending   bool
	localStopErrorCode uint64

	updateMaxData bool
	cycle         uint64 // not read by the tx path; streams are not scheduled round-robin
}

func newStream(id uint64, bidi bool, reorderCap uint64) *Stream {
	return &Stream{
		id:   id,
		bidi: bidi,
		recv: newStreamRecvState(reorderCap),
	}
}

// pushRecv accepts STREAM-frame bytes into the stream's reassembly
// buffer, enforcing final-size rules (spec.md §4.9, invariant 6).
func (s *Stream) pushRecv(data []byte, offset uint64, fin bool) error {
	return s.recv.push(data, offset, fin)
}

// popSend returns up to maxLen bytes to place in a STREAM frame.
func (s *Stream) popSend(maxLen int) ([]byte, uint64, bool) {
	return s.send.popSend(maxLen)
}

// Write enqueues data for sending (spec.md §4.9 "write"); the connection's
// writeSpace drains it during subsequent Conn.Write calls. Streams are
// visited in Go map iteration order; there is no round-robin ordering.
func (s *Stream) Write(data []byte) (int, error) {
	if s.shutWR {
		return 0, newError(StreamShutForWrite, "")
	}
	if err := s.send.write(data, false); err != nil {
		return 0, err
	}
	return len(data), nil
}

// Close marks the stream's send side as finished (FIN).
func (s *Stream) Close() error {
	if s.shutWR {
		return nil
	}
	s.shutWR = true
	return s.send.write(nil, true)
}

// Read drains delivered bytes below the first gap.
func (s *Stream) Read(b []byte) (int, error) {
	data := s.recv.rob.popAll()
	if data == nil {
		if s.shutRD {
			return 0, nil
		}
		return 0, nil
	}
	n := copy(b, data)
	if n < len(data) {
		// put back what didn't fit
		s.recv.rob.chunks = append([]robChunk{{offset: s.recv.rob.consumed, data: data[n:]}}, s.recv.rob.chunks...)
		s.recv.rob.consumed -= uint64(len(data) - n)
	}
	return n, nil
}

// ExtendMaxStreamData grows this stream's advertised receive window
// (spec.md §6.2's extend-max-offset op), e.g. once the application has
// consumed enough of Read's output to free up buffer space. Scheduling the
// MAX_STREAM_DATA frame itself happens in writeSpace once updateMaxData or
// flow.shouldUpdateMaxRecv() is true.
func (s *Stream) ExtendMaxStreamData(max uint64) {
	s.flow.extendMaxRecv(max)
	s.updateMaxData = true
}

// ackMaxData is invoked when a previously-sent MAX_STREAM_DATA frame for
// this stream is acknowledged; nothing further to do since the window and
// updateMaxData flag were already committed at send time (writeSpace), but
// kept as a named hook so the RTB's generic "mark resolved" dispatch
// (spec.md §4.6 step 2) has somewhere to call into.
func (s *Stream) ackMaxData() {}

// streamMap owns every Stream for a connection (spec.md "Ownership").
type streamMap struct {
	streams map[uint64]*Stream

	reorderCap uint64

	localMaxStreamsBidi  uint64
	localMaxStreamsUni   uint64
	localNextStreamBidi  uint64
	localNextStreamUni   uint64

	peerMaxStreamsBidi uint64
	peerMaxStreamsUni  uint64

	localOpenedBidi uint64
	localOpenedUni  uint64

	finishedBidi uint64 // count of remote-initiated bidi streams fully terminated
	finishedUni  uint64

	// sentMaxStreamsBidi/Uni is the limit value last advertised to the peer
	// via a MAX_STREAMS frame (or the initial value, before any update is
	// due). The live, enforced limit grows by one for every remote-
	// initiated stream that finishes (effectiveMaxStreamsBidi/Uni), so the
	// peer's available concurrency window stays constant rather than
	// shrinking to zero as streams complete; an update is scheduled
	// whenever the effective limit has outgrown what was last advertised.
	sentMaxStreamsBidi uint64
	sentMaxStreamsUni  uint64
}

func (s *streamMap) init(maxBidi, maxUni uint64) {
	s.streams = make(map[uint64]*Stream)
	s.localMaxStreamsBidi = maxBidi
	s.localMaxStreamsUni = maxUni
	s.sentMaxStreamsBidi = maxBidi
	s.sentMaxStreamsUni = maxUni
	s.reorderCap = 0
}

// effectiveMaxStreamsBidi/Uni is the limit actually enforced by create():
// the original window plus one slot reopened for every remote-initiated
// stream of that kind that has fully terminated.
func (s *streamMap) effectiveMaxStreamsBidi() uint64 {
	return s.localMaxStreamsBidi + s.finishedBidi
}

func (s *streamMap) effectiveMaxStreamsUni() uint64 {
	return s.localMaxStreamsUni + s.finishedUni
}

// pendingMaxStreamsBidi/Uni reports the new limit to advertise, if the
// effective limit has grown past what was last sent to the peer.
func (s *streamMap) pendingMaxStreamsBidi() (uint64, bool) {
	if eff := s.effectiveMaxStreamsBidi(); eff > s.sentMaxStreamsBidi {
		return eff, true
	}
	return 0, false
}

func (s *streamMap) pendingMaxStreamsUni() (uint64, bool) {
	if eff := s.effectiveMaxStreamsUni(); eff > s.sentMaxStreamsUni {
		return eff, true
	}
	return 0, false
}

func (s *streamMap) commitMaxStreamsBidi(max uint64) { s.sentMaxStreamsBidi = max }
func (s *streamMap) commitMaxStreamsUni(max uint64)  { s.sentMaxStreamsUni = max }

func (s *streamMap) get(id uint64) *Stream {
	return s.streams[id]
}

// create allocates a new stream, enforcing the relevant stream-limit
// (spec.md §4.9 "check stream initiation bounds").
func (s *streamMap) create(id uint64, local bool, bidi bool) (*Stream, error) {
	if _, ok := s.streams[id]; ok {
		return nil, newError(StreamInUse, "")
	}
	index := id >> 2
	if local {
		if bidi && index >= s.localOpenedBidi {
			// opening in order is the caller's responsibility; nothing to check
			// against a peer limit here since the peer's MAX_STREAMS bounds it
			// when the stream is opened (Conn.OpenStream / StreamsBlocked).
		}
	} else {
		if bidi && index >= s.effectiveMaxStreamsBidi() {
			return nil, newError(StreamLimitError, "bidi stream limit")
		}
		if !bidi && index >= s.effectiveMaxStreamsUni() {
			return nil, newError(StreamLimitError, "uni stream limit")
		}
	}
	st := newStream(id, bidi, s.reorderCap)
	s.streams[id] = st
	return st, nil
}

func (s *streamMap) setPeerMaxStreamsBidi(max uint64) {
	if max > s.peerMaxStreamsBidi {
		s.peerMaxStreamsBidi = max
	}
}

func (s *streamMap) setPeerMaxStreamsUni(max uint64) {
	if max > s.peerMaxStreamsUni {
		s.peerMaxStreamsUni = max
	}
}

// hasFlushable reports whether any stream has data ready to send.
func (s *streamMap) hasFlushable() bool {
	for _, st := range s.streams {
		if st.send.hasPending() {
			return true
		}
	}
	return false
}

// remove deletes a stream once both directions are shut and all
// outstanding data is acked or reset is acked (spec.md "Lifecycle").
func (s *streamMap) remove(id uint64, bidi bool, local bool) {
	delete(s.streams, id)
	if !local {
		if bidi {
			s.finishedBidi++
		} else {
			s.finishedUni++
		}
	}
}

// streamTerminated reports whether a stream is fully done in both directions,
// used by the connection core to garbage-collect it (spec.md "Lifecycle").
func streamTerminated(st *Stream) bool {
	sendDone := st.send.complete() || (st.sentRST && st.rstAcked)
	recvDone := st.shutRD || st.recvRST
	return sendDone && recvDone
}
