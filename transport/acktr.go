package transport

import "time"

// ackTracker is spec.md §4.5's "Set of acknowledgeable packets; delayed-
// ack timer; ACK frame generation". Grounded on ngtcp2_acktr in
// original_source/deps/ngtcp2/lib/ngtcp2_conn.c, including its Open
// Questions behaviour: once num_blks == MAX_ACK_BLKS, the overflow entry
// is simply forgotten (not re-derived from the gap tracker), so very
// sparse ranges beyond the cap silently stop being acknowledged.
type ackTracker struct {
	gaps pngapSet

	// ackElicitingCount is incremented on ack-eliciting receipt; reset by
	// commitAck. The "immediate ack" threshold (spec.md §4.5) fires at 2.
	ackElicitingCount int
	// immediate forces the next send to carry an ACK regardless of delay.
	immediate bool
	// oldestUnacked is the receive time of the oldest ack-eliciting packet
	// not yet covered by a sent ACK.
	oldestUnacked time.Time
	largestRecvTime time.Time
}

const immediateAckThreshold = 2

// add records receipt of packet n (spec.md §4.5 acktr_add). eliciting
// marks whether the packet obliged an eventual ACK; an out-of-order
// arrival that breaks contiguity also forces an immediate ack.
func (s *ackTracker) add(n uint64, eliciting bool, now time.Time) {
	wasContiguous := s.gaps.isPushed(n-1) || len(s.gaps.ranges) == 0
	s.gaps.push(n)
	if now.After(s.largestRecvTime) {
		s.largestRecvTime = now
	}
	if !eliciting {
		return
	}
	if s.ackElicitingCount == 0 {
		s.oldestUnacked = now
	}
	s.ackElicitingCount++
	if !wasContiguous {
		s.immediate = true
	}
	if s.ackElicitingCount >= immediateAckThreshold {
		s.immediate = true
	}
}

// requireActiveAck reports whether an ACK must be sent now, per spec.md
// §4.5: either the immediate flag is set, or there are ack-eliciting
// packets older than max_ack_delay/8-scaled delay.
func (s *ackTracker) requireActiveAck(maxAckDelay time.Duration, now time.Time) bool {
	if s.ackElicitingCount == 0 {
		return false
	}
	if s.immediate {
		return true
	}
	threshold := maxAckDelay / 8
	if threshold <= 0 {
		threshold = time.Millisecond
	}
	return now.Sub(s.oldestUnacked) >= threshold
}

// commitAck is called after a successful ACK-bearing send: the pending
// ack-eliciting count and immediate flag are cleared (spec.md §4.5).
func (s *ackTracker) commitAck() {
	s.ackElicitingCount = 0
	s.immediate = false
}

// ranges returns all received ranges for ACK frame encoding, largest
// first. It does not bound the count; newAckFrame keeps at most
// maxAckBlocks+1 of them when the frame is built.
func (s *ackTracker) ranges() []ackRange {
	return s.gaps.rangesDescending()
}

// removeUntil forgets ranges at/below n once the peer no longer needs
// them retransmitted (i.e. once our ACK of them has itself been acked).
func (s *ackTracker) removeUntil(n uint64) {
	s.gaps.removeUntil(n)
}
