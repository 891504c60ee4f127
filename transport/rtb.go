package transport

import "time"

// sentPacket is one in-flight record kept by the retransmit buffer
// (spec.md §4.6), grounded on ngtcp2_rtb_entry in
// original_source/deps/ngtcp2/lib/ngtcp2_conn.c.
type sentPacket struct {
	packetNumber uint64
	space        packetSpace
	timeSent     time.Time
	size         int
	ackEliciting bool
	inFlight     bool
	frames       []frame // retained for loss rescheduling
	isPTOProbe   bool
}

// retransmitBuffer (RTB) tracks packets sent but not yet acknowledged,
// draining them into "acked" or "lost" buckets as ACKs arrive or loss is
// detected (spec.md §4.6).
type retransmitBuffer struct {
	packets []sentPacket // ascending by packetNumber

	bytesInFlight int
}

func (r *retransmitBuffer) add(p sentPacket) {
	r.packets = append(r.packets, p)
	if p.inFlight {
		r.bytesInFlight += p.size
	}
}

// largestSent returns the highest packet number ever sent in this space,
// or (0, false) if nothing has been sent yet.
func (r *retransmitBuffer) largestSent() (uint64, bool) {
	if len(r.packets) == 0 {
		return 0, false
	}
	return r.packets[len(r.packets)-1].packetNumber, true
}

// onAcked removes a single acknowledged packet number, returning it.
func (r *retransmitBuffer) onAcked(pn uint64) (sentPacket, bool) {
	for i, p := range r.packets {
		if p.packetNumber == pn {
			r.packets = append(r.packets[:i], r.packets[i+1:]...)
			if p.inFlight {
				r.bytesInFlight -= p.size
			}
			return p, true
		}
	}
	return sentPacket{}, false
}

// drainBelow removes and returns every unacked packet with packetNumber <
// threshold, used for PTO-induced and straggler loss declarations.
func (r *retransmitBuffer) drainBelow(threshold uint64) []sentPacket {
	var out []sentPacket
	kept := r.packets[:0]
	for _, p := range r.packets {
		if p.packetNumber < threshold {
			out = append(out, p)
			if p.inFlight {
				r.bytesInFlight -= p.size
			}
		} else {
			kept = append(kept, p)
		}
	}
	r.packets = kept
	return out
}

// drainAll removes every unacked packet, used when a packet number space
// is dropped entirely (spec.md §4.13 Initial/Handshake discard).
func (r *retransmitBuffer) drainAll() []sentPacket {
	out := r.packets
	r.packets = nil
	r.bytesInFlight = 0
	return out
}

func (r *retransmitBuffer) oldestSentTime() (time.Time, bool) {
	var oldest time.Time
	found := false
	for _, p := range r.packets {
		if !p.ackEliciting {
			continue
		}
		if !found || p.timeSent.Before(oldest) {
			oldest = p.timeSent
			found = true
		}
	}
	return oldest, found
}

func (r *retransmitBuffer) hasInFlight() bool {
	for _, p := range r.packets {
		if p.inFlight {
			return true
		}
	}
	return false
}
