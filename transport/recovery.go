package transport

import (
	"time"

	"golang.org/x/time/rate"
)

// Constants from spec.md §4.7/§4.8, grounded on RFC 9002 defaults as
// implemented by ngtcp2_rcvry / ngtcp2_cc in original_source's
// deps/ngtcp2/lib/ngtcp2_conn.c.
const (
	packetThreshold   = 3
	timeThresholdNum  = 9
	timeThresholdDen  = 8
	granularity       = time.Millisecond
	initialRTT        = 333 * time.Millisecond
	minimumWindow     = 2 * MinInitialPacketSize
	lossReduction     = 0.5
	persistentCongestionThreshold = 3
)

func initialWindow() int {
	w := 10 * MinInitialPacketSize
	if w > 14720 {
		w = 14720
	}
	if w < 2*MinInitialPacketSize {
		w = 2 * MinInitialPacketSize
	}
	return w
}

// lossRecovery is spec.md §4.6-§4.8's combined loss detection, NewReno
// congestion controller and PTO timer, one instance per connection
// spanning all three packet-number spaces. Grounded on ngtcp2_rcvry /
// ngtcp2_cc_newreno in original_source/deps/ngtcp2/lib/ngtcp2_conn.c, and
// on the pacing technique in github.com/AlexanderYastrebov/net's
// internal/quic loss recovery (other_examples) for the pacer token
// bucket, whose limit and burst are kept current here; the send path does
// not consult it, so packets are not paced.
type lossRecovery struct {
	rtb [packetSpaceCount]retransmitBuffer

	pendingAcked [packetSpaceCount][]sentPacket
	pendingLost  [packetSpaceCount][]sentPacket

	largestAcked    [packetSpaceCount]uint64
	hasLargestAcked [packetSpaceCount]bool

	latestRTT   time.Duration
	minRTT      time.Duration
	smoothedRTT time.Duration
	rttVar      time.Duration
	haveRTT     bool
	maxAckDelay time.Duration

	ptoCount            int
	probes              int
	lossDetectionTimer  time.Time
	lastAckElicitingSent [packetSpaceCount]time.Time
	haveLastSent         [packetSpaceCount]bool

	// Congestion control (NewReno).
	cwnd              int
	ssthresh          int
	bytesAcked        int
	congestionRecoveryStart time.Time
	inCongestionRecovery    bool

	pacer *rate.Limiter
}

func (r *lossRecovery) init(now time.Time) {
	r.cwnd = initialWindow()
	r.ssthresh = int(^uint(0) >> 1)
	r.minRTT = 0
	r.smoothedRTT = initialRTT
	r.rttVar = initialRTT / 2
	r.maxAckDelay = 25 * time.Millisecond
	r.pacer = rate.NewLimiter(rate.Inf, r.cwnd)
}

// bytesInFlight sums across all spaces.
func (r *lossRecovery) bytesInFlight() int {
	total := 0
	for i := range r.rtb {
		total += r.rtb[i].bytesInFlight
	}
	return total
}

// availableWindow reports how many more bytes may be sent under the
// congestion window right now (spec.md §4.7).
func (r *lossRecovery) availableWindow() int {
	inFlight := r.bytesInFlight()
	if inFlight >= r.cwnd {
		return 0
	}
	return r.cwnd - inFlight
}

// onPacketSent records a newly sent packet and, if ack-eliciting and
// in-flight, arms/rearms the PTO timer and updates the pacer.
func (r *lossRecovery) onPacketSent(p sentPacket, now time.Time) {
	r.rtb[p.space].add(p)
	if p.ackEliciting {
		r.lastAckElicitingSent[p.space] = now
		r.haveLastSent[p.space] = true
	}
	if p.inFlight {
		r.updatePacer()
	}
	r.setLossDetectionTimer(now)
}

func (r *lossRecovery) updatePacer() {
	if r.smoothedRTT <= 0 {
		return
	}
	rateLimit := rate.Limit(float64(r.cwnd) / r.smoothedRTT.Seconds())
	r.pacer.SetLimit(rateLimit)
	r.pacer.SetBurst(r.cwnd)
}

// updateRTT applies a fresh RTT sample (spec.md §4.6, RFC 9002 §5.3).
func (r *lossRecovery) updateRTT(sample time.Duration, ackDelay time.Duration, space packetSpace) {
	r.latestRTT = sample
	if !r.haveRTT {
		r.minRTT = sample
		r.smoothedRTT = sample
		r.rttVar = sample / 2
		r.haveRTT = true
		return
	}
	if sample < r.minRTT {
		r.minRTT = sample
	}
	adjusted := sample
	if space == packetSpaceApplication && ackDelay > 0 {
		if sample-r.minRTT >= ackDelay {
			adjusted = sample - ackDelay
		}
	}
	rttVarSample := r.rttVar - r.rttVar/4
	diff := r.smoothedRTT - adjusted
	if diff < 0 {
		diff = -diff
	}
	r.rttVar = rttVarSample + diff/4
	r.smoothedRTT = r.smoothedRTT - r.smoothedRTT/8 + adjusted/8
}

// onAckReceived processes a received ACK frame's ranges: matches acked
// packet numbers against the RTB, updates RTT from the largest newly
// acked packet, runs loss detection, and applies congestion control
// (spec.md §4.6/§4.7).
func (r *lossRecovery) onAckReceived(ranges []ackRange, ackDelay time.Duration, space packetSpace, now time.Time) error {
	if len(ranges) == 0 {
		return nil
	}
	largest := ranges[0].largest
	newlyAcked := false
	var newlyAckedLargestTime time.Time
	for _, rg := range ranges {
		for pn := rg.largest; ; pn-- {
			if p, ok := r.rtb[space].onAcked(pn); ok {
				r.pendingAcked[space] = append(r.pendingAcked[space], p)
				if !newlyAcked || pn > largest-1 {
					newlyAcked = true
				}
				if pn == rg.largest {
					newlyAckedLargestTime = p.timeSent
				}
				r.onPacketAcked(p)
			}
			if pn == rg.smallest {
				break
			}
		}
	}
	if !r.hasLargestAcked[space] || largest > r.largestAcked[space] {
		r.largestAcked[space] = largest
		r.hasLargestAcked[space] = true
		if newlyAcked && !newlyAckedLargestTime.IsZero() {
			r.updateRTT(now.Sub(newlyAckedLargestTime), ackDelay, space)
		}
	}
	r.ptoCount = 0
	r.detectLostPackets(space, now)
	r.setLossDetectionTimer(now)
	return nil
}

// onPacketAcked applies NewReno's congestion-avoidance/slow-start growth
// for one newly acknowledged packet (spec.md §4.7).
func (r *lossRecovery) onPacketAcked(p sentPacket) {
	if !p.inFlight {
		return
	}
	if r.inCongestionRecovery && !p.timeSent.After(r.congestionRecoveryStart) {
		return
	}
	if r.cwnd < r.ssthresh {
		r.cwnd += p.size
	} else {
		r.bytesAcked += p.size
		if r.bytesAcked >= r.cwnd {
			r.bytesAcked -= r.cwnd
			r.cwnd += MinInitialPacketSize
		}
	}
	r.updatePacer()
}

// detectLostPackets implements spec.md §4.6's packet- and time-threshold
// loss rules, draining newly-lost packets into pendingLost.
func (r *lossRecovery) detectLostPackets(space packetSpace, now time.Time) {
	if !r.hasLargestAcked[space] {
		return
	}
	largest := r.largestAcked[space]
	lossDelay := r.lossDelay()
	lostSendTimeThreshold := now.Add(-lossDelay)

	var lost []sentPacket
	kept := r.rtb[space].packets[:0]
	for _, p := range r.rtb[space].packets {
		if p.packetNumber > largest {
			kept = append(kept, p)
			continue
		}
		if largest-p.packetNumber >= packetThreshold || !p.timeSent.After(lostSendTimeThreshold) {
			lost = append(lost, p)
			if p.inFlight {
				r.rtb[space].bytesInFlight -= p.size
			}
			continue
		}
		kept = append(kept, p)
	}
	r.rtb[space].packets = kept
	if len(lost) > 0 {
		r.pendingLost[space] = append(r.pendingLost[space], lost...)
		r.onPacketsLost(lost, now)
	}
}

func (r *lossRecovery) lossDelay() time.Duration {
	rtt := r.smoothedRTT
	if r.latestRTT > rtt {
		rtt = r.latestRTT
	}
	delay := rtt * timeThresholdNum / timeThresholdDen
	if delay < granularity {
		delay = granularity
	}
	return delay
}

// onPacketsLost applies NewReno's multiplicative-decrease response and
// checks for persistent congestion (spec.md §4.7, RFC 9002 §7.5/§7.6).
func (r *lossRecovery) onPacketsLost(lost []sentPacket, now time.Time) {
	var largestLostTime time.Time
	inFlightLost := false
	for _, p := range lost {
		if p.timeSent.After(largestLostTime) {
			largestLostTime = p.timeSent
		}
		if p.inFlight {
			inFlightLost = true
		}
	}
	if !inFlightLost {
		return
	}
	if !r.inCongestionRecovery || largestLostTime.After(r.congestionRecoveryStart) {
		r.inCongestionRecovery = true
		r.congestionRecoveryStart = now
		r.cwnd = int(float64(r.cwnd) * lossReduction)
		if r.cwnd < minimumWindow {
			r.cwnd = minimumWindow
		}
		r.ssthresh = r.cwnd
		r.updatePacer()
	}
	if r.isPersistentCongestion(lost) {
		r.cwnd = minimumWindow
		r.updatePacer()
	}
}

// resetCongestion restores congestion control and RTT estimation to their
// initial state after a path change (spec.md §4.11 "migration"), grounded
// on conn_reset_congestion_state in original_source's ngtcp2_conn.c.
// bytesInFlight is left alone: packets already in flight on the old path
// still occupy the window until acked or lost.
func (r *lossRecovery) resetCongestion() {
	r.cwnd = initialWindow()
	r.ssthresh = int(^uint(0) >> 1)
	r.inCongestionRecovery = false
	r.congestionRecoveryStart = time.Time{}
	r.minRTT = 0
	r.smoothedRTT = initialRTT
	r.rttVar = initialRTT / 2
	r.updatePacer()
}

// isPersistentCongestion reports whether the lost packets span a period
// long enough, with no intervening ack, to indicate the path itself is
// congested rather than a transient loss (RFC 9002 §7.6).
func (r *lossRecovery) isPersistentCongestion(lost []sentPacket) bool {
	if len(lost) < 2 {
		return false
	}
	period := r.smoothedRTT + maxDuration(r.rttVar*4, granularity) + r.maxAckDelay
	period *= persistentCongestionThreshold
	first, last := lost[0].timeSent, lost[0].timeSent
	for _, p := range lost[1:] {
		if p.timeSent.Before(first) {
			first = p.timeSent
		}
		if p.timeSent.After(last) {
			last = p.timeSent
		}
	}
	return last.Sub(first) >= period
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// drainAcked calls fn for every packet newly acknowledged since the last
// drain, in send order, then clears the queue.
func (r *lossRecovery) drainAcked(space packetSpace, fn func(sentPacket)) {
	for _, p := range r.pendingAcked[space] {
		fn(p)
	}
	r.pendingAcked[space] = nil
}

// drainLost calls fn for every packet newly declared lost since the last
// drain, then clears the queue.
func (r *lossRecovery) drainLost(space packetSpace, fn func(sentPacket)) {
	for _, p := range r.pendingLost[space] {
		fn(p)
	}
	r.pendingLost[space] = nil
}

// dropUnackedData discards all in-flight state for a space being torn
// down (spec.md §4.13 Initial/Handshake key discard).
func (r *lossRecovery) dropUnackedData(space packetSpace) {
	r.rtb[space].drainAll()
	r.pendingAcked[space] = nil
	r.pendingLost[space] = nil
	r.haveLastSent[space] = false
}

// probeTimeout computes the current PTO duration (spec.md §4.8, RFC 9002
// §6.2.1): smoothed_rtt + max(4*rttvar, granularity) + max_ack_delay,
// doubled once per consecutive expiry.
func (r *lossRecovery) probeTimeout() time.Duration {
	pto := r.smoothedRTT + maxDuration(4*r.rttVar, granularity) + r.maxAckDelay
	for i := 0; i < r.ptoCount; i++ {
		pto *= 2
	}
	return pto
}

// setLossDetectionTimer arms the next timeout: either the loss-detection
// time-threshold deadline for the oldest unacked ack-eliciting packet, or
// the PTO deadline if nothing is ripe for time-threshold loss yet.
func (r *lossRecovery) setLossDetectionTimer(now time.Time) {
	var earliestSpace packetSpace = -1
	var earliest time.Time
	for space := packetSpace(0); space < packetSpaceCount; space++ {
		t, ok := r.rtb[space].oldestSentTime()
		if !ok {
			continue
		}
		if earliestSpace == -1 || t.Before(earliest) {
			earliest = t
			earliestSpace = space
		}
	}
	if earliestSpace == -1 {
		r.lossDetectionTimer = time.Time{}
		return
	}
	lossTime := earliest.Add(r.lossDelay())
	ptoTime := earliest.Add(r.probeTimeout())
	if lossTime.Before(ptoTime) {
		r.lossDetectionTimer = lossTime
	} else {
		r.lossDetectionTimer = ptoTime
	}
}

// onLossDetectionTimeout fires when lossDetectionTimer elapses: either
// detects time-threshold losses directly, or schedules a PTO probe
// (spec.md §4.8).
func (r *lossRecovery) onLossDetectionTimeout(now time.Time) {
	anyInFlight := false
	for space := packetSpace(0); space < packetSpaceCount; space++ {
		if r.rtb[space].hasInFlight() {
			anyInFlight = true
			r.detectLostPackets(space, now)
		}
	}
	if anyInFlight {
		r.setLossDetectionTimer(now)
		return
	}
	r.ptoCount++
	r.probes = 2
	r.setLossDetectionTimer(now)
}
