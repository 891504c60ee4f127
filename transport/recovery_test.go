package transport

import (
	"testing"
	"time"
)

func TestLossRecoveryInitSetsDefaults(t *testing.T) {
	var r lossRecovery
	r.init(time.Now())
	if r.cwnd != initialWindow() {
		t.Fatalf("cwnd = %d, want %d", r.cwnd, initialWindow())
	}
	if r.smoothedRTT != initialRTT {
		t.Fatalf("smoothedRTT = %v, want %v", r.smoothedRTT, initialRTT)
	}
}

func TestLossRecoveryUpdateRTTFirstSample(t *testing.T) {
	var r lossRecovery
	r.init(time.Now())
	r.updateRTT(100*time.Millisecond, 0, packetSpaceApplication)
	if r.smoothedRTT != 100*time.Millisecond || r.minRTT != 100*time.Millisecond {
		t.Fatalf("first RTT sample should set smoothedRTT/minRTT directly, got smoothed=%v min=%v", r.smoothedRTT, r.minRTT)
	}
}

func TestLossRecoveryBytesInFlightAndAvailableWindow(t *testing.T) {
	var r lossRecovery
	r.init(time.Now())
	now := time.Now()
	r.onPacketSent(sentPacket{packetNumber: 1, space: packetSpaceApplication, size: 100, ackEliciting: true, inFlight: true}, now)
	if r.bytesInFlight() != 100 {
		t.Fatalf("bytesInFlight() = %d, want 100", r.bytesInFlight())
	}
	if r.availableWindow() != r.cwnd-100 {
		t.Fatalf("availableWindow() = %d, want %d", r.availableWindow(), r.cwnd-100)
	}
}

func TestLossRecoveryOnAckReceivedGrowsWindowInSlowStart(t *testing.T) {
	var r lossRecovery
	now := time.Now()
	r.init(now)
	startCwnd := r.cwnd
	r.onPacketSent(sentPacket{packetNumber: 1, space: packetSpaceApplication, size: 1000, timeSent: now, ackEliciting: true, inFlight: true}, now)
	later := now.Add(10 * time.Millisecond)
	if err := r.onAckReceived([]ackRange{{smallest: 1, largest: 1}}, 0, packetSpaceApplication, later); err != nil {
		t.Fatal(err)
	}
	if r.cwnd != startCwnd+1000 {
		t.Fatalf("cwnd after one acked packet in slow start = %d, want %d", r.cwnd, startCwnd+1000)
	}
	if r.bytesInFlight() != 0 {
		t.Fatalf("bytesInFlight() after ack = %d, want 0", r.bytesInFlight())
	}
}

func TestLossRecoveryDetectLostPacketsByPacketThreshold(t *testing.T) {
	var r lossRecovery
	now := time.Now()
	r.init(now)
	for pn := uint64(1); pn <= 5; pn++ {
		r.onPacketSent(sentPacket{packetNumber: pn, space: packetSpaceApplication, size: 100, timeSent: now, ackEliciting: true, inFlight: true}, now)
	}
	// Ack packet 5 only; packets 1 and 2 are at least packetThreshold
	// behind the largest acked and should be declared lost.
	var lost []sentPacket
	r.onAckReceived([]ackRange{{smallest: 5, largest: 5}}, 0, packetSpaceApplication, now)
	r.drainLost(packetSpaceApplication, func(p sentPacket) { lost = append(lost, p) })
	if len(lost) != 2 {
		t.Fatalf("expected 2 packets declared lost by packet threshold, got %d: %v", len(lost), lost)
	}
}

func TestLossRecoveryOnPacketsLostShrinksWindow(t *testing.T) {
	var r lossRecovery
	now := time.Now()
	r.init(now)
	startCwnd := r.cwnd
	r.onPacketsLost([]sentPacket{{packetNumber: 1, size: 100, inFlight: true, timeSent: now}}, now)
	if r.cwnd >= startCwnd {
		t.Fatalf("cwnd after loss = %d, should have shrunk from %d", r.cwnd, startCwnd)
	}
	if !r.inCongestionRecovery {
		t.Fatal("onPacketsLost should enter congestion recovery")
	}
}

func TestLossRecoveryResetCongestionRestoresInitialState(t *testing.T) {
	var r lossRecovery
	now := time.Now()
	r.init(now)
	r.onPacketsLost([]sentPacket{{packetNumber: 1, size: 100, inFlight: true, timeSent: now}}, now)
	r.smoothedRTT = 900 * time.Millisecond
	r.minRTT = 50 * time.Millisecond
	if !r.inCongestionRecovery {
		t.Fatal("setup: expected congestion recovery to be active")
	}
	r.resetCongestion()
	if r.cwnd != initialWindow() {
		t.Fatalf("cwnd after resetCongestion = %d, want %d", r.cwnd, initialWindow())
	}
	if r.inCongestionRecovery {
		t.Fatal("resetCongestion should clear congestion recovery")
	}
	if r.smoothedRTT != initialRTT {
		t.Fatalf("smoothedRTT after resetCongestion = %v, want %v", r.smoothedRTT, initialRTT)
	}
	if r.minRTT != 0 {
		t.Fatalf("minRTT after resetCongestion = %v, want 0", r.minRTT)
	}
}

func TestLossRecoveryProbeTimeoutDoublesWithPTOCount(t *testing.T) {
	var r lossRecovery
	r.init(time.Now())
	r.smoothedRTT = 100 * time.Millisecond
	r.rttVar = 10 * time.Millisecond
	base := r.probeTimeout()
	r.ptoCount = 1
	doubled := r.probeTimeout()
	if doubled != 2*base {
		t.Fatalf("probeTimeout with ptoCount=1 = %v, want %v", doubled, 2*base)
	}
}

func TestLossRecoveryIsPersistentCongestion(t *testing.T) {
	var r lossRecovery
	r.init(time.Now())
	r.smoothedRTT = 10 * time.Millisecond
	r.rttVar = time.Millisecond
	r.maxAckDelay = 25 * time.Millisecond
	now := time.Now()
	short := []sentPacket{{timeSent: now}, {timeSent: now.Add(time.Millisecond)}}
	if r.isPersistentCongestion(short) {
		t.Fatal("a tight loss cluster should not count as persistent congestion")
	}
	long := []sentPacket{{timeSent: now}, {timeSent: now.Add(time.Second)}}
	if !r.isPersistentCongestion(long) {
		t.Fatal("losses spanning well over the congestion period should count as persistent")
	}
}

func TestLossRecoveryDropUnackedDataClearsSpace(t *testing.T) {
	var r lossRecovery
	now := time.Now()
	r.init(now)
	r.onPacketSent(sentPacket{packetNumber: 1, space: packetSpaceInitial, size: 50, inFlight: true}, now)
	r.dropUnackedData(packetSpaceInitial)
	if r.rtb[packetSpaceInitial].bytesInFlight != 0 {
		t.Fatalf("dropUnackedData should zero bytesInFlight, got %d", r.rtb[packetSpaceInitial].bytesInFlight)
	}
}
