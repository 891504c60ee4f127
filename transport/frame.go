package transport

import "fmt"

// Frame type codes.
// https://quicwg.org/base-drafts/draft-ietf-quic-transport.html#frames
const (
	frameTypePadding             = 0x00
	frameTypePing                = 0x01
	frameTypeAck                 = 0x02
	frameTypeAckECN              = 0x03
	frameTypeResetStream         = 0x04
	frameTypeStopSending         = 0x05
	frameTypeCrypto              = 0x06
	frameTypeNewToken            = 0x07
	frameTypeStream              = 0x08
	frameTypeStreamEnd           = 0x0f
	frameTypeMaxData             = 0x10
	frameTypeMaxStreamData       = 0x11
	frameTypeMaxStreamsBidi      = 0x12
	frameTypeMaxStreamsUni       = 0x13
	frameTypeDataBlocked         = 0x14
	frameTypeStreamDataBlocked   = 0x15
	frameTypeStreamsBlockedBidi  = 0x16
	frameTypeStreamsBlockedUni   = 0x17
	frameTypeNewConnectionID     = 0x18
	frameTypeRetireConnectionID  = 0x19
	frameTypePathChallenge       = 0x1a
	frameTypePathResponse        = 0x1b
	frameTypeConnectionClose     = 0x1c
	frameTypeApplicationClose    = 0x1d
	frameTypeHandshakeDone       = 0x1e
)

// maxAckBlocks bounds the number of ack ranges kept inline, per spec.md §5
// "Bounds" (MAX_ACK_BLKS). Excess ranges are tolerated on decode but
// forgotten on the next ACK we send ourselves (see acktr.go).
const maxAckBlocks = 32

// isFrameAckEliciting reports whether a received frame of this type
// obliges the receiver to eventually acknowledge the packet (spec.md
// GLOSSARY "ACK-eliciting").
func isFrameAckEliciting(typ uint64) bool {
	switch typ {
	case frameTypePadding, frameTypeAck, frameTypeAckECN,
		frameTypeConnectionClose, frameTypeApplicationClose:
		return false
	default:
		return true
	}
}

// isFrameNonProbing reports whether a frame type counts as "non-probing"
// for path migration purposes (RFC 9000 §9.3): receiving one of these on a
// new path is evidence the peer has actually migrated there, rather than
// merely testing reachability.
func isFrameNonProbing(typ uint64) bool {
	switch typ {
	case frameTypePadding, frameTypePathChallenge, frameTypePathResponse,
		frameTypeNewConnectionID:
		return false
	default:
		return true
	}
}

// frame is implemented by every frame kind. Encoders dispatch on the
// concrete type; decoders return (frame, consumed) pairs to their caller.
type frame interface {
	encode(b []byte) (int, error)
	encodedLen() int
}

// --- PADDING ---

type paddingFrame struct {
	length int
}

func newPaddingFrame(length int) *paddingFrame {
	return &paddingFrame{length: length}
}

func (s *paddingFrame) encode(b []byte) (int, error) {
	if len(b) < s.length {
		return 0, newError(BufferTooSmall, "padding")
	}
	for i := 0; i < s.length; i++ {
		b[i] = frameTypePadding
	}
	return s.length, nil
}

func (s *paddingFrame) encodedLen() int { return s.length }

func (s *paddingFrame) decode(b []byte) (int, error) {
	n := 0
	for n < len(b) && b[n] == frameTypePadding {
		n++
	}
	s.length = n
	if n == 0 {
		n = 1 // consume the single PADDING byte that triggered the call
		s.length = 1
	}
	return n, nil
}

func (s *paddingFrame) String() string { return "PADDING" }

// --- PING ---

type pingFrame struct{}

func (s *pingFrame) encode(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, newError(BufferTooSmall, "ping")
	}
	b[0] = frameTypePing
	return 1, nil
}

func (s *pingFrame) encodedLen() int { return 1 }

func (s *pingFrame) String() string { return "PING" }

// --- ACK ---

// ackRange is a contiguous, already-merged range of acknowledged packet
// numbers [smallest, largest].
type ackRange struct {
	smallest uint64
	largest  uint64
}

type ackFrame struct {
	largestAck     uint64
	ackDelay       uint64
	firstAckRange  uint64
	ackRanges      []ackRange // beyond the first range, oldest-last on wire
	ecnCounts      *ecnCounts
}

type ecnCounts struct {
	ect0 uint64
	ect1 uint64
	ce   uint64
}

// newAckFrame builds an ACK frame from a set of received ranges (largest
// first), as produced by the ack tracker (spec.md §4.5, S3).
func newAckFrame(ackDelay uint64, ranges []ackRange) *ackFrame {
	if len(ranges) == 0 {
		return nil
	}
	f := &ackFrame{
		ackDelay: ackDelay,
	}
	largestRange := ranges[0]
	f.largestAck = largestRange.largest
	f.firstAckRange = largestRange.largest - largestRange.smallest
	prevSmallest := largestRange.smallest
	n := len(ranges)
	if n > maxAckBlocks+1 {
		n = maxAckBlocks + 1 // spec.md §4.2: excess blocks are forgotten
	}
	for i := 1; i < n; i++ {
		r := ranges[i]
		gap := prevSmallest - r.largest - 2
		blkLen := r.largest - r.smallest
		f.ackRanges = append(f.ackRanges, ackRange{smallest: gap, largest: blkLen})
		prevSmallest = r.smallest
	}
	return f
}

func (s *ackFrame) encodedLen() int {
	n := varintLen(frameTypeAck) + varintLen(s.largestAck) + varintLen(s.ackDelay) +
		varintLen(uint64(len(s.ackRanges))) + varintLen(s.firstAckRange)
	for _, r := range s.ackRanges {
		n += varintLen(r.smallest) + varintLen(r.largest)
	}
	if s.ecnCounts != nil {
		n += varintLen(s.ecnCounts.ect0) + varintLen(s.ecnCounts.ect1) + varintLen(s.ecnCounts.ce)
	}
	return n
}

func (s *ackFrame) encode(b []byte) (int, error) {
	total := s.encodedLen()
	if len(b) < total {
		return 0, newError(BufferTooSmall, "ack")
	}
	typ := uint64(frameTypeAck)
	if s.ecnCounts != nil {
		typ = frameTypeAckECN
	}
	n := putVarint(b, typ)
	n += putVarint(b[n:], s.largestAck)
	n += putVarint(b[n:], s.ackDelay)
	n += putVarint(b[n:], uint64(len(s.ackRanges)))
	n += putVarint(b[n:], s.firstAckRange)
	for _, r := range s.ackRanges {
		n += putVarint(b[n:], r.smallest)
		n += putVarint(b[n:], r.largest)
	}
	if s.ecnCounts != nil {
		n += putVarint(b[n:], s.ecnCounts.ect0)
		n += putVarint(b[n:], s.ecnCounts.ect1)
		n += putVarint(b[n:], s.ecnCounts.ce)
	}
	return n, nil
}

func (s *ackFrame) decode(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 || (typ != frameTypeAck && typ != frameTypeAckECN) {
		return 0, newError(FrameEncodingError, "ack type")
	}
	off := n
	var largest, delay, count, first uint64
	if m := getVarint(b[off:], &largest); m == 0 {
		return 0, newError(FrameEncodingError, "ack largest")
	} else {
		off += m
	}
	if m := getVarint(b[off:], &delay); m == 0 {
		return 0, newError(FrameEncodingError, "ack delay")
	} else {
		off += m
	}
	if m := getVarint(b[off:], &count); m == 0 {
		return 0, newError(FrameEncodingError, "ack count")
	} else {
		off += m
	}
	if m := getVarint(b[off:], &first); m == 0 {
		return 0, newError(FrameEncodingError, "ack first range")
	} else {
		off += m
	}
	if first > largest {
		return 0, newError(FrameEncodingError, "ack first range exceeds largest")
	}
	s.largestAck = largest
	s.ackDelay = delay
	s.firstAckRange = first
	s.ackRanges = s.ackRanges[:0]
	for i := uint64(0); i < count; i++ {
		var gap, blk uint64
		if m := getVarint(b[off:], &gap); m == 0 {
			return 0, newError(FrameEncodingError, "ack gap")
		} else {
			off += m
		}
		if m := getVarint(b[off:], &blk); m == 0 {
			return 0, newError(FrameEncodingError, "ack block")
		} else {
			off += m
		}
		if i < maxAckBlocks {
			s.ackRanges = append(s.ackRanges, ackRange{smallest: gap, largest: blk})
		}
		// else: tolerated but truncated, per spec.md §4.2.
	}
	if typ == frameTypeAckECN {
		var ect0, ect1, ce uint64
		for _, p := range []*uint64{&ect0, &ect1, &ce} {
			m := getVarint(b[off:], p)
			if m == 0 {
				return 0, newError(FrameEncodingError, "ack ecn")
			}
			off += m
		}
		s.ecnCounts = &ecnCounts{ect0: ect0, ect1: ect1, ce: ce}
	}
	if err := s.validate(); err != nil {
		return 0, err
	}
	return off, nil
}

// validate enforces spec.md §4.2's validate_ack: no block descends below
// zero.
func (s *ackFrame) validate() error {
	if s.firstAckRange > s.largestAck {
		return newError(MalformedAck, "first range exceeds largest")
	}
	smallest := s.largestAck - s.firstAckRange
	for _, r := range s.ackRanges {
		if r.smallest+2 > smallest {
			return newError(MalformedAck, "ack range underflow")
		}
		largest := smallest - r.smallest - 2
		if r.largest > largest {
			return newError(MalformedAck, "ack block descends below zero")
		}
		smallest = largest - r.largest
	}
	return nil
}

// toRangeSet expands the wire-encoded gap/block representation into a
// list of [smallest,largest] ranges, largest-first. Returns nil if the
// frame fails validate_ack.
func (s *ackFrame) toRangeSet() []ackRange {
	if err := s.validate(); err != nil {
		return nil
	}
	ranges := make([]ackRange, 0, 1+len(s.ackRanges))
	largest := s.largestAck
	smallest := largest - s.firstAckRange
	ranges = append(ranges, ackRange{smallest: smallest, largest: largest})
	for _, r := range s.ackRanges {
		largest = smallest - r.smallest - 2
		smallest = largest - r.largest
		ranges = append(ranges, ackRange{smallest: smallest, largest: largest})
	}
	return ranges
}

func (s *ackFrame) String() string {
	return fmt.Sprintf("ACK largest=%d delay=%d first_range=%d blocks=%d", s.largestAck, s.ackDelay, s.firstAckRange, len(s.ackRanges))
}

// --- RESET_STREAM ---

type resetStreamFrame struct {
	streamID  uint64
	errorCode uint64
	finalSize uint64
}

func newResetStreamFrame(streamID, errorCode, finalSize uint64) *resetStreamFrame {
	return &resetStreamFrame{streamID: streamID, errorCode: errorCode, finalSize: finalSize}
}

func (s *resetStreamFrame) encodedLen() int {
	return varintLen(frameTypeResetStream) + varintLen(s.streamID) + varintLen(s.errorCode) + varintLen(s.finalSize)
}

func (s *resetStreamFrame) encode(b []byte) (int, error) {
	if len(b) < s.encodedLen() {
		return 0, newError(BufferTooSmall, "reset_stream")
	}
	n := putVarint(b, frameTypeResetStream)
	n += putVarint(b[n:], s.streamID)
	n += putVarint(b[n:], s.errorCode)
	n += putVarint(b[n:], s.finalSize)
	return n, nil
}

func (s *resetStreamFrame) decode(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 || typ != frameTypeResetStream {
		return 0, newError(FrameEncodingError, "reset_stream type")
	}
	off := n
	for _, p := range []*uint64{&s.streamID, &s.errorCode, &s.finalSize} {
		m := getVarint(b[off:], p)
		if m == 0 {
			return 0, newError(FrameEncodingError, "reset_stream")
		}
		off += m
	}
	return off, nil
}

func (s *resetStreamFrame) String() string {
	return fmt.Sprintf("RESET_STREAM id=%d error=%d final_size=%d", s.streamID, s.errorCode, s.finalSize)
}

// --- STOP_SENDING ---

type stopSendingFrame struct {
	streamID  uint64
	errorCode uint64
}

func newStopSendingFrame(streamID, errorCode uint64) *stopSendingFrame {
	return &stopSendingFrame{streamID: streamID, errorCode: errorCode}
}

func (s *stopSendingFrame) encodedLen() int {
	return varintLen(frameTypeStopSending) + varintLen(s.streamID) + varintLen(s.errorCode)
}

func (s *stopSendingFrame) encode(b []byte) (int, error) {
	if len(b) < s.encodedLen() {
		return 0, newError(BufferTooSmall, "stop_sending")
	}
	n := putVarint(b, frameTypeStopSending)
	n += putVarint(b[n:], s.streamID)
	n += putVarint(b[n:], s.errorCode)
	return n, nil
}

func (s *stopSendingFrame) decode(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 || typ != frameTypeStopSending {
		return 0, newError(FrameEncodingError, "stop_sending type")
	}
	off := n
	for _, p := range []*uint64{&s.streamID, &s.errorCode} {
		m := getVarint(b[off:], p)
		if m == 0 {
			return 0, newError(FrameEncodingError, "stop_sending")
		}
		off += m
	}
	return off, nil
}

func (s *stopSendingFrame) String() string {
	return fmt.Sprintf("STOP_SENDING id=%d error=%d", s.streamID, s.errorCode)
}

// --- CRYPTO ---

type cryptoFrame struct {
	offset uint64
	data   []byte
}

func newCryptoFrame(data []byte, offset uint64) *cryptoFrame {
	return &cryptoFrame{data: data, offset: offset}
}

func (s *cryptoFrame) encodedLen() int {
	return varintLen(frameTypeCrypto) + varintLen(s.offset) + varintLen(uint64(len(s.data))) + len(s.data)
}

// maxCryptoFrameOverhead bounds the non-data part of an encoded CRYPTO
// frame (type + offset + length varints at their largest).
const maxCryptoFrameOverhead = 1 + 8 + 8

func (s *cryptoFrame) encode(b []byte) (int, error) {
	if len(b) < s.encodedLen() {
		return 0, newError(BufferTooSmall, "crypto")
	}
	n := putVarint(b, frameTypeCrypto)
	n += putVarint(b[n:], s.offset)
	n += putVarint(b[n:], uint64(len(s.data)))
	n += copy(b[n:], s.data)
	return n, nil
}

func (s *cryptoFrame) decode(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 || typ != frameTypeCrypto {
		return 0, newError(FrameEncodingError, "crypto type")
	}
	off := n
	var offset, length uint64
	if m := getVarint(b[off:], &offset); m == 0 {
		return 0, newError(FrameEncodingError, "crypto offset")
	} else {
		off += m
	}
	if m := getVarint(b[off:], &length); m == 0 {
		return 0, newError(FrameEncodingError, "crypto length")
	} else {
		off += m
	}
	if uint64(len(b)-off) < length {
		return 0, newError(FrameEncodingError, "crypto data")
	}
	s.offset = offset
	s.data = b[off : off+int(length)]
	off += int(length)
	return off, nil
}

func (s *cryptoFrame) String() string {
	return fmt.Sprintf("CRYPTO offset=%d length=%d", s.offset, len(s.data))
}

// --- NEW_TOKEN ---

type newTokenFrame struct {
	token []byte
}

func newNewTokenFrame(token []byte) *newTokenFrame {
	return &newTokenFrame{token: token}
}

func (s *newTokenFrame) encodedLen() int {
	return varintLen(frameTypeNewToken) + varintLen(uint64(len(s.token))) + len(s.token)
}

func (s *newTokenFrame) encode(b []byte) (int, error) {
	if len(b) < s.encodedLen() {
		return 0, newError(BufferTooSmall, "new_token")
	}
	n := putVarint(b, frameTypeNewToken)
	n += putVarint(b[n:], uint64(len(s.token)))
	n += copy(b[n:], s.token)
	return n, nil
}

func (s *newTokenFrame) decode(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 || typ != frameTypeNewToken {
		return 0, newError(FrameEncodingError, "new_token type")
	}
	off := n
	var length uint64
	if m := getVarint(b[off:], &length); m == 0 {
		return 0, newError(FrameEncodingError, "new_token length")
	} else {
		off += m
	}
	if length == 0 {
		return 0, newError(FrameEncodingError, "empty new_token")
	}
	if uint64(len(b)-off) < length {
		return 0, newError(FrameEncodingError, "new_token data")
	}
	s.token = append(s.token[:0], b[off:off+int(length)]...)
	off += int(length)
	return off, nil
}

func (s *newTokenFrame) String() string {
	return fmt.Sprintf("NEW_TOKEN length=%d", len(s.token))
}

// --- STREAM ---

type streamFrame struct {
	streamID uint64
	offset   uint64
	data     []byte
	fin      bool
}

func newStreamFrame(streamID uint64, data []byte, offset uint64, fin bool) *streamFrame {
	return &streamFrame{streamID: streamID, data: data, offset: offset, fin: fin}
}

// maxStreamFrameOverhead bounds the non-data part of an encoded STREAM
// frame (type + id + offset + length varints at their largest).
const maxStreamFrameOverhead = 1 + 8 + 8 + 8

func (s *streamFrame) frameType() uint64 {
	typ := uint64(frameTypeStream)
	typ |= 0x02 // LEN always present, so decode is unambiguous
	if s.offset > 0 {
		typ |= 0x04
	}
	if s.fin {
		typ |= 0x01
	}
	return typ
}

func (s *streamFrame) encodedLen() int {
	n := varintLen(s.frameType()) + varintLen(s.streamID)
	if s.offset > 0 {
		n += varintLen(s.offset)
	}
	n += varintLen(uint64(len(s.data))) + len(s.data)
	return n
}

func (s *streamFrame) encode(b []byte) (int, error) {
	if len(b) < s.encodedLen() {
		return 0, newError(BufferTooSmall, "stream")
	}
	n := putVarint(b, s.frameType())
	n += putVarint(b[n:], s.streamID)
	if s.offset > 0 {
		n += putVarint(b[n:], s.offset)
	}
	n += putVarint(b[n:], uint64(len(s.data)))
	n += copy(b[n:], s.data)
	return n, nil
}

func (s *streamFrame) decode(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 || typ < frameTypeStream || typ > frameTypeStreamEnd {
		return 0, newError(FrameEncodingError, "stream type")
	}
	off := n
	var id uint64
	if m := getVarint(b[off:], &id); m == 0 {
		return 0, newError(FrameEncodingError, "stream id")
	} else {
		off += m
	}
	var offset uint64
	if typ&0x04 != 0 {
		if m := getVarint(b[off:], &offset); m == 0 {
			return 0, newError(FrameEncodingError, "stream offset")
		} else {
			off += m
		}
	}
	var length uint64
	if typ&0x02 != 0 {
		if m := getVarint(b[off:], &length); m == 0 {
			return 0, newError(FrameEncodingError, "stream length")
		} else {
			off += m
		}
	} else {
		length = uint64(len(b) - off)
	}
	if uint64(len(b)-off) < length {
		return 0, newError(FrameEncodingError, "stream data")
	}
	s.streamID = id
	s.offset = offset
	s.data = b[off : off+int(length)]
	s.fin = typ&0x01 != 0
	off += int(length)
	return off, nil
}

func (s *streamFrame) String() string {
	return fmt.Sprintf("STREAM id=%d offset=%d length=%d fin=%v", s.streamID, s.offset, len(s.data), s.fin)
}

// --- MAX_DATA ---

type maxDataFrame struct {
	maximumData uint64
}

func newMaxDataFrame(max uint64) *maxDataFrame { return &maxDataFrame{maximumData: max} }

func (s *maxDataFrame) encodedLen() int {
	return varintLen(frameTypeMaxData) + varintLen(s.maximumData)
}

func (s *maxDataFrame) encode(b []byte) (int, error) {
	if len(b) < s.encodedLen() {
		return 0, newError(BufferTooSmall, "max_data")
	}
	n := putVarint(b, frameTypeMaxData)
	n += putVarint(b[n:], s.maximumData)
	return n, nil
}

func (s *maxDataFrame) decode(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 || typ != frameTypeMaxData {
		return 0, newError(FrameEncodingError, "max_data type")
	}
	off := n
	if m := getVarint(b[off:], &s.maximumData); m == 0 {
		return 0, newError(FrameEncodingError, "max_data")
	} else {
		off += m
	}
	return off, nil
}

func (s *maxDataFrame) String() string { return fmt.Sprintf("MAX_DATA max=%d", s.maximumData) }

// --- MAX_STREAM_DATA ---

type maxStreamDataFrame struct {
	streamID    uint64
	maximumData uint64
}

func newMaxStreamDataFrame(streamID, max uint64) *maxStreamDataFrame {
	return &maxStreamDataFrame{streamID: streamID, maximumData: max}
}

func (s *maxStreamDataFrame) encodedLen() int {
	return varintLen(frameTypeMaxStreamData) + varintLen(s.streamID) + varintLen(s.maximumData)
}

func (s *maxStreamDataFrame) encode(b []byte) (int, error) {
	if len(b) < s.encodedLen() {
		return 0, newError(BufferTooSmall, "max_stream_data")
	}
	n := putVarint(b, frameTypeMaxStreamData)
	n += putVarint(b[n:], s.streamID)
	n += putVarint(b[n:], s.maximumData)
	return n, nil
}

func (s *maxStreamDataFrame) decode(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 || typ != frameTypeMaxStreamData {
		return 0, newError(FrameEncodingError, "max_stream_data type")
	}
	off := n
	for _, p := range []*uint64{&s.streamID, &s.maximumData} {
		m := getVarint(b[off:], p)
		if m == 0 {
			return 0, newError(FrameEncodingError, "max_stream_data")
		}
		off += m
	}
	return off, nil
}

func (s *maxStreamDataFrame) String() string {
	return fmt.Sprintf("MAX_STREAM_DATA id=%d max=%d", s.streamID, s.maximumData)
}

// --- MAX_STREAMS ---

type maxStreamsFrame struct {
	maximumStreams uint64
	bidi           bool
}

func newMaxStreamsFrame(max uint64, bidi bool) *maxStreamsFrame {
	return &maxStreamsFrame{maximumStreams: max, bidi: bidi}
}

func (s *maxStreamsFrame) frameType() uint64 {
	if s.bidi {
		return frameTypeMaxStreamsBidi
	}
	return frameTypeMaxStreamsUni
}

func (s *maxStreamsFrame) encodedLen() int {
	return varintLen(s.frameType()) + varintLen(s.maximumStreams)
}

func (s *maxStreamsFrame) encode(b []byte) (int, error) {
	if len(b) < s.encodedLen() {
		return 0, newError(BufferTooSmall, "max_streams")
	}
	n := putVarint(b, s.frameType())
	n += putVarint(b[n:], s.maximumStreams)
	return n, nil
}

func (s *maxStreamsFrame) decode(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 || (typ != frameTypeMaxStreamsBidi && typ != frameTypeMaxStreamsUni) {
		return 0, newError(FrameEncodingError, "max_streams type")
	}
	s.bidi = typ == frameTypeMaxStreamsBidi
	off := n
	if m := getVarint(b[off:], &s.maximumStreams); m == 0 {
		return 0, newError(FrameEncodingError, "max_streams")
	} else {
		off += m
	}
	return off, nil
}

func (s *maxStreamsFrame) String() string {
	kind := "uni"
	if s.bidi {
		kind = "bidi"
	}
	return fmt.Sprintf("MAX_STREAMS(%s) max=%d", kind, s.maximumStreams)
}

// --- DATA_BLOCKED ---

type dataBlockedFrame struct {
	dataLimit uint64
}

func newDataBlockedFrame(limit uint64) *dataBlockedFrame { return &dataBlockedFrame{dataLimit: limit} }

func (s *dataBlockedFrame) encodedLen() int {
	return varintLen(frameTypeDataBlocked) + varintLen(s.dataLimit)
}

func (s *dataBlockedFrame) encode(b []byte) (int, error) {
	if len(b) < s.encodedLen() {
		return 0, newError(BufferTooSmall, "data_blocked")
	}
	n := putVarint(b, frameTypeDataBlocked)
	n += putVarint(b[n:], s.dataLimit)
	return n, nil
}

func (s *dataBlockedFrame) decode(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 || typ != frameTypeDataBlocked {
		return 0, newError(FrameEncodingError, "data_blocked type")
	}
	off := n
	if m := getVarint(b[off:], &s.dataLimit); m == 0 {
		return 0, newError(FrameEncodingError, "data_blocked")
	} else {
		off += m
	}
	return off, nil
}

func (s *dataBlockedFrame) String() string { return fmt.Sprintf("DATA_BLOCKED limit=%d", s.dataLimit) }

// --- STREAM_DATA_BLOCKED ---

type streamDataBlockedFrame struct {
	streamID  uint64
	dataLimit uint64
}

func newStreamDataBlockedFrame(streamID, limit uint64) *streamDataBlockedFrame {
	return &streamDataBlockedFrame{streamID: streamID, dataLimit: limit}
}

func (s *streamDataBlockedFrame) encodedLen() int {
	return varintLen(frameTypeStreamDataBlocked) + varintLen(s.streamID) + varintLen(s.dataLimit)
}

func (s *streamDataBlockedFrame) encode(b []byte) (int, error) {
	if len(b) < s.encodedLen() {
		return 0, newError(BufferTooSmall, "stream_data_blocked")
	}
	n := putVarint(b, frameTypeStreamDataBlocked)
	n += putVarint(b[n:], s.streamID)
	n += putVarint(b[n:], s.dataLimit)
	return n, nil
}

func (s *streamDataBlockedFrame) decode(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 || typ != frameTypeStreamDataBlocked {
		return 0, newError(FrameEncodingError, "stream_data_blocked type")
	}
	off := n
	for _, p := range []*uint64{&s.streamID, &s.dataLimit} {
		m := getVarint(b[off:], p)
		if m == 0 {
			return 0, newError(FrameEncodingError, "stream_data_blocked")
		}
		off += m
	}
	return off, nil
}

func (s *streamDataBlockedFrame) String() string {
	return fmt.Sprintf("STREAM_DATA_BLOCKED id=%d limit=%d", s.streamID, s.dataLimit)
}

// --- STREAMS_BLOCKED ---

type streamsBlockedFrame struct {
	streamLimit uint64
	bidi        bool
}

func newStreamsBlockedFrame(limit uint64, bidi bool) *streamsBlockedFrame {
	return &streamsBlockedFrame{streamLimit: limit, bidi: bidi}
}

func (s *streamsBlockedFrame) frameType() uint64 {
	if s.bidi {
		return frameTypeStreamsBlockedBidi
	}
	return frameTypeStreamsBlockedUni
}

func (s *streamsBlockedFrame) encodedLen() int {
	return varintLen(s.frameType()) + varintLen(s.streamLimit)
}

func (s *streamsBlockedFrame) encode(b []byte) (int, error) {
	if len(b) < s.encodedLen() {
		return 0, newError(BufferTooSmall, "streams_blocked")
	}
	n := putVarint(b, s.frameType())
	n += putVarint(b[n:], s.streamLimit)
	return n, nil
}

func (s *streamsBlockedFrame) decode(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 || (typ != frameTypeStreamsBlockedBidi && typ != frameTypeStreamsBlockedUni) {
		return 0, newError(FrameEncodingError, "streams_blocked type")
	}
	s.bidi = typ == frameTypeStreamsBlockedBidi
	off := n
	if m := getVarint(b[off:], &s.streamLimit); m == 0 {
		return 0, newError(FrameEncodingError, "streams_blocked")
	} else {
		off += m
	}
	return off, nil
}

func (s *streamsBlockedFrame) String() string {
	kind := "uni"
	if s.bidi {
		kind = "bidi"
	}
	return fmt.Sprintf("STREAMS_BLOCKED(%s) limit=%d", kind, s.streamLimit)
}

// --- NEW_CONNECTION_ID ---

type newConnectionIDFrame struct {
	sequenceNumber uint64
	retirePriorTo  uint64
	connectionID   []byte
	resetToken     [16]byte
}

func newNewConnectionIDFrame(seq, retirePriorTo uint64, cid []byte, token [16]byte) *newConnectionIDFrame {
	return &newConnectionIDFrame{sequenceNumber: seq, retirePriorTo: retirePriorTo, connectionID: cid, resetToken: token}
}

func (s *newConnectionIDFrame) encodedLen() int {
	return varintLen(frameTypeNewConnectionID) + varintLen(s.sequenceNumber) + varintLen(s.retirePriorTo) +
		1 + len(s.connectionID) + 16
}

func (s *newConnectionIDFrame) encode(b []byte) (int, error) {
	if len(b) < s.encodedLen() {
		return 0, newError(BufferTooSmall, "new_connection_id")
	}
	n := putVarint(b, frameTypeNewConnectionID)
	n += putVarint(b[n:], s.sequenceNumber)
	n += putVarint(b[n:], s.retirePriorTo)
	b[n] = byte(len(s.connectionID))
	n++
	n += copy(b[n:], s.connectionID)
	n += copy(b[n:], s.resetToken[:])
	return n, nil
}

func (s *newConnectionIDFrame) decode(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 || typ != frameTypeNewConnectionID {
		return 0, newError(FrameEncodingError, "new_connection_id type")
	}
	off := n
	for _, p := range []*uint64{&s.sequenceNumber, &s.retirePriorTo} {
		m := getVarint(b[off:], p)
		if m == 0 {
			return 0, newError(FrameEncodingError, "new_connection_id")
		}
		off += m
	}
	if off >= len(b) {
		return 0, newError(FrameEncodingError, "new_connection_id length")
	}
	cidLen := int(b[off])
	off++
	if cidLen < 1 || cidLen > MaxCIDLength || len(b)-off < cidLen+16 {
		return 0, newError(FrameEncodingError, "new_connection_id cid")
	}
	s.connectionID = append(s.connectionID[:0], b[off:off+cidLen]...)
	off += cidLen
	copy(s.resetToken[:], b[off:off+16])
	off += 16
	return off, nil
}

func (s *newConnectionIDFrame) String() string {
	return fmt.Sprintf("NEW_CONNECTION_ID seq=%d retire_prior_to=%d", s.sequenceNumber, s.retirePriorTo)
}

// --- RETIRE_CONNECTION_ID ---

type retireConnectionIDFrame struct {
	sequenceNumber uint64
}

func newRetireConnectionIDFrame(seq uint64) *retireConnectionIDFrame {
	return &retireConnectionIDFrame{sequenceNumber: seq}
}

func (s *retireConnectionIDFrame) encodedLen() int {
	return varintLen(frameTypeRetireConnectionID) + varintLen(s.sequenceNumber)
}

func (s *retireConnectionIDFrame) encode(b []byte) (int, error) {
	if len(b) < s.encodedLen() {
		return 0, newError(BufferTooSmall, "retire_connection_id")
	}
	n := putVarint(b, frameTypeRetireConnectionID)
	n += putVarint(b[n:], s.sequenceNumber)
	return n, nil
}

func (s *retireConnectionIDFrame) decode(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 || typ != frameTypeRetireConnectionID {
		return 0, newError(FrameEncodingError, "retire_connection_id type")
	}
	off := n
	if m := getVarint(b[off:], &s.sequenceNumber); m == 0 {
		return 0, newError(FrameEncodingError, "retire_connection_id")
	} else {
		off += m
	}
	return off, nil
}

func (s *retireConnectionIDFrame) String() string {
	return fmt.Sprintf("RETIRE_CONNECTION_ID seq=%d", s.sequenceNumber)
}

// --- PATH_CHALLENGE / PATH_RESPONSE ---

type pathChallengeFrame struct {
	data [8]byte
}

func newPathChallengeFrame(data [8]byte) *pathChallengeFrame { return &pathChallengeFrame{data: data} }

func (s *pathChallengeFrame) encodedLen() int { return varintLen(frameTypePathChallenge) + 8 }

func (s *pathChallengeFrame) encode(b []byte) (int, error) {
	if len(b) < s.encodedLen() {
		return 0, newError(BufferTooSmall, "path_challenge")
	}
	n := putVarint(b, frameTypePathChallenge)
	n += copy(b[n:], s.data[:])
	return n, nil
}

func (s *pathChallengeFrame) decode(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 || typ != frameTypePathChallenge {
		return 0, newError(FrameEncodingError, "path_challenge type")
	}
	if len(b)-n < 8 {
		return 0, newError(FrameEncodingError, "path_challenge data")
	}
	copy(s.data[:], b[n:n+8])
	return n + 8, nil
}

func (s *pathChallengeFrame) String() string { return "PATH_CHALLENGE" }

type pathResponseFrame struct {
	data [8]byte
}

func newPathResponseFrame(data [8]byte) *pathResponseFrame { return &pathResponseFrame{data: data} }

func (s *pathResponseFrame) encodedLen() int { return varintLen(frameTypePathResponse) + 8 }

func (s *pathResponseFrame) encode(b []byte) (int, error) {
	if len(b) < s.encodedLen() {
		return 0, newError(BufferTooSmall, "path_response")
	}
	n := putVarint(b, frameTypePathResponse)
	n += copy(b[n:], s.data[:])
	return n, nil
}

func (s *pathResponseFrame) decode(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 || typ != frameTypePathResponse {
		return 0, newError(FrameEncodingError, "path_response type")
	}
	if len(b)-n < 8 {
		return 0, newError(FrameEncodingError, "path_response data")
	}
	copy(s.data[:], b[n:n+8])
	return n + 8, nil
}

func (s *pathResponseFrame) String() string { return "PATH_RESPONSE" }

// --- CONNECTION_CLOSE ---

type connectionCloseFrame struct {
	application  bool
	errorCode    uint64
	frameType    uint64
	reasonPhrase []byte
}

func newConnectionCloseFrame(errorCode, frameType uint64, reason []byte, application bool) *connectionCloseFrame {
	return &connectionCloseFrame{application: application, errorCode: errorCode, frameType: frameType, reasonPhrase: reason}
}

func (s *connectionCloseFrame) typ() uint64 {
	if s.application {
		return frameTypeApplicationClose
	}
	return frameTypeConnectionClose
}

func (s *connectionCloseFrame) encodedLen() int {
	n := varintLen(s.typ()) + varintLen(s.errorCode)
	if !s.application {
		n += varintLen(s.frameType)
	}
	n += varintLen(uint64(len(s.reasonPhrase))) + len(s.reasonPhrase)
	return n
}

func (s *connectionCloseFrame) encode(b []byte) (int, error) {
	if len(b) < s.encodedLen() {
		return 0, newError(BufferTooSmall, "connection_close")
	}
	n := putVarint(b, s.typ())
	n += putVarint(b[n:], s.errorCode)
	if !s.application {
		n += putVarint(b[n:], s.frameType)
	}
	n += putVarint(b[n:], uint64(len(s.reasonPhrase)))
	n += copy(b[n:], s.reasonPhrase)
	return n, nil
}

func (s *connectionCloseFrame) decode(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 || (typ != frameTypeConnectionClose && typ != frameTypeApplicationClose) {
		return 0, newError(FrameEncodingError, "connection_close type")
	}
	s.application = typ == frameTypeApplicationClose
	off := n
	if m := getVarint(b[off:], &s.errorCode); m == 0 {
		return 0, newError(FrameEncodingError, "connection_close error")
	} else {
		off += m
	}
	if !s.application {
		if m := getVarint(b[off:], &s.frameType); m == 0 {
			return 0, newError(FrameEncodingError, "connection_close frame type")
		} else {
			off += m
		}
	}
	var length uint64
	if m := getVarint(b[off:], &length); m == 0 {
		return 0, newError(FrameEncodingError, "connection_close reason length")
	} else {
		off += m
	}
	if uint64(len(b)-off) < length {
		return 0, newError(FrameEncodingError, "connection_close reason")
	}
	s.reasonPhrase = append(s.reasonPhrase[:0], b[off:off+int(length)]...)
	off += int(length)
	return off, nil
}

func (s *connectionCloseFrame) String() string {
	space := "transport"
	if s.application {
		space = "application"
	}
	return fmt.Sprintf("CONNECTION_CLOSE(%s) error=%s reason=%q", space, errorCodeString(s.errorCode), s.reasonPhrase)
}

// --- HANDSHAKE_DONE ---

type handshakeDoneFrame struct{}

func (s *handshakeDoneFrame) encodedLen() int { return varintLen(frameTypeHandshakeDone) }

func (s *handshakeDoneFrame) encode(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, newError(BufferTooSmall, "handshake_done")
	}
	n := putVarint(b, frameTypeHandshakeDone)
	return n, nil
}

func (s *handshakeDoneFrame) String() string { return "HANDSHAKE_DONE" }

// encodeFrames writes each frame in order into b, returning the total
// bytes written or NOBUF (BufferTooSmall) if any frame doesn't fit.
func encodeFrames(b []byte, frames []frame) (int, error) {
	n := 0
	for _, f := range frames {
		m, err := f.encode(b[n:])
		if err != nil {
			return 0, err
		}
		n += m
	}
	return n, nil
}
