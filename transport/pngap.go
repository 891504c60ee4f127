package transport

// pngapSet is the gap tracker of spec.md §4.4/§8: a monotone set of
// received packet numbers, kept as an ordered list of closed ranges of
// received numbers (sorted ascending, non-adjacent, non-overlapping). Grounded on
// ngtcp2_gaptr in original_source/deps/ngtcp2/lib/ngtcp2_conn.c, which
// keeps received packet numbers the same way to answer duplicate checks.
type pngapSet struct {
	// ranges holds closed intervals [lo,hi] of received packet numbers,
	// sorted ascending and maintained disjoint/non-adjacent.
	ranges []pngapRange
}

type pngapRange struct {
	lo, hi uint64
}

// push marks n as received. Idempotent: pushing the same n twice has the
// same observable effect as pushing it once (spec.md invariant 4).
func (s *pngapSet) push(n uint64) {
	// Linear scan for the insertion point.
	i := 0
	for i < len(s.ranges) && s.ranges[i].hi+1 < n {
		i++
	}
	if i < len(s.ranges) && s.ranges[i].lo <= n && n <= s.ranges[i].hi {
		return // already pushed
	}
	if i < len(s.ranges) && n+1 == s.ranges[i].lo {
		s.ranges[i].lo = n
	} else if i < len(s.ranges) && s.ranges[i].hi+1 == n {
		s.ranges[i].hi = n
	} else {
		s.ranges = append(s.ranges, pngapRange{})
		copy(s.ranges[i+1:], s.ranges[i:])
		s.ranges[i] = pngapRange{lo: n, hi: n}
	}
	// Merge with the following range if now adjacent.
	if i+1 < len(s.ranges) && s.ranges[i].hi+1 >= s.ranges[i+1].lo {
		s.ranges[i].hi = s.ranges[i+1].hi
		s.ranges = append(s.ranges[:i+1], s.ranges[i+2:]...)
	}
}

// isPushed is the decidable membership test for n (spec.md §4.4).
func (s *pngapSet) isPushed(n uint64) bool {
	for _, r := range s.ranges {
		if n < r.lo {
			return false
		}
		if n <= r.hi {
			return true
		}
	}
	return false
}

// removeUntil drops all ranges (or parts of ranges) at or below n,
// used by the ack tracker to forget packets once their receipt has been
// acknowledged by the peer's ACK of our own ACK frame bookkeeping.
func (s *pngapSet) removeUntil(n uint64) {
	i := 0
	for i < len(s.ranges) && s.ranges[i].hi <= n {
		i++
	}
	if i < len(s.ranges) && s.ranges[i].lo <= n {
		s.ranges[i].lo = n + 1
	}
	s.ranges = s.ranges[i:]
}

// firstGapOffset-equivalent for packet numbers: the smallest not-yet-seen
// number at or above lowerBound. Used by loss-detection adjacent checks.
func (s *pngapSet) firstMissing(lowerBound uint64) uint64 {
	n := lowerBound
	for _, r := range s.ranges {
		if n < r.lo {
			return n
		}
		if n <= r.hi {
			n = r.hi + 1
		}
	}
	return n
}

// rangesDescending returns the received ranges, highest-first, for ACK-frame
// generation (spec.md S3).
func (s *pngapSet) rangesDescending() []ackRange {
	out := make([]ackRange, len(s.ranges))
	for i, r := range s.ranges {
		out[len(s.ranges)-1-i] = ackRange{smallest: r.lo, largest: r.hi}
	}
	return out
}
