package transport

import "time"

// flowControl tracks one direction's flow-control state, reused for both
// the connection-wide limits and each stream's own limits (spec.md §3,
// §4.9). "recv" fields bound how much we allow the peer to send us;
// "send" fields bound how much we may send, as advertised by the peer.
type flowControl struct {
	// Receive side.
	recvOffset     uint64 // cumulative bytes received (verified)
	maxRecv        uint64 // limit we have told the peer about
	maxRecvNext    uint64 // "unsent" shadow: limit we intend to advertise next
	initialMaxRecv uint64 // initial window, for the half-window update rule

	// recvSampleStart/recvSampleBytes track a simple rolling receive-rate
	// estimate, used by shouldUpdateMaxRecvBandwidth to schedule a window
	// update before the peer stalls on it.
	recvSampleStart time.Time
	recvSampleBytes uint64
	haveRecvSample  bool

	// Send side.
	sendOffset uint64 // cumulative bytes sent
	maxSend    uint64 // limit the peer has told us about
}

func (s *flowControl) init(maxRecv, maxSend uint64) {
	s.maxRecv = maxRecv
	s.maxRecvNext = maxRecv
	s.initialMaxRecv = maxRecv
	s.maxSend = maxSend
}

// canRecv returns how many more bytes we may accept before exceeding
// maxRecv (spec.md invariant 5: conn.offset must never exceed max_offset).
func (s *flowControl) canRecv() uint64 {
	if s.recvOffset >= s.maxRecv {
		return 0
	}
	return s.maxRecv - s.recvOffset
}

// addRecv records n newly received bytes. The caller must have already
// checked canRecv() >= n.
func (s *flowControl) addRecv(n int, now time.Time) {
	s.recvOffset += uint64(n)
	if !s.haveRecvSample {
		s.recvSampleStart = now
		s.haveRecvSample = true
	}
	s.recvSampleBytes += uint64(n)
}

// recvBandwidth returns bytes/second received since the first addRecv call,
// the rolling estimate shouldUpdateMaxRecvBandwidth reasons about.
func (s *flowControl) recvBandwidth(now time.Time) float64 {
	if !s.haveRecvSample {
		return 0
	}
	elapsed := now.Sub(s.recvSampleStart).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.recvSampleBytes) / elapsed
}

// setMaxSend installs a new peer-advertised send limit (from MAX_DATA /
// MAX_STREAM_DATA); per RFC 9000 the limit is monotonic and a smaller
// value from reordering is ignored.
func (s *flowControl) setMaxSend(max uint64) {
	if max > s.maxSend {
		s.maxSend = max
	}
}

// canSend returns how many more bytes we may send before exceeding the
// peer's advertised maxSend.
func (s *flowControl) canSend() uint64 {
	if s.sendOffset >= s.maxSend {
		return 0
	}
	return s.maxSend - s.sendOffset
}

func (s *flowControl) addSend(n int) {
	s.sendOffset += uint64(n)
}

// extendMaxRecv grows the "unsent" shadow limit; it takes effect once a
// MAX_DATA/MAX_STREAM_DATA frame carrying it is placed into a packet
// (commitMaxRecv).
func (s *flowControl) extendMaxRecv(max uint64) {
	if max > s.maxRecvNext {
		s.maxRecvNext = max
	}
}

// shouldUpdateMaxRecv implements spec.md §4.9's half-window rule: a window
// update is scheduled once the delta between the unsent shadow and the
// currently advertised limit exceeds half the initial window.
func (s *flowControl) shouldUpdateMaxRecv() bool {
	if s.maxRecvNext <= s.maxRecv {
		return false
	}
	half := s.initialMaxRecv / 2
	return s.maxRecvNext-s.maxRecv > half
}

// shouldUpdateMaxRecvBandwidth implements the proactive bandwidth-delay
// rule: 2*rx_bw*srtt >= max_offset-offset, signalling the window should
// grow before the peer stalls on it.
func (s *flowControl) shouldUpdateMaxRecvBandwidth(rxBandwidth float64, srtt float64) bool {
	remaining := float64(s.maxRecv - s.recvOffset)
	return 2*rxBandwidth*srtt >= remaining
}

// commitMaxRecv is called once the MAX_DATA/MAX_STREAM_DATA frame
// advertising maxRecvNext has actually been placed into a packet.
func (s *flowControl) commitMaxRecv() {
	s.maxRecv = s.maxRecvNext
}
