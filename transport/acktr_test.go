package transport

import (
	"testing"
	"time"
)

func TestAckTrackerImmediateAfterThreshold(t *testing.T) {
	var s ackTracker
	now := time.Now()
	s.add(1, true, now)
	if s.requireActiveAck(100*time.Millisecond, now) {
		t.Fatal("a single ack-eliciting packet should not force an immediate ack")
	}
	s.add(2, true, now)
	if !s.requireActiveAck(100*time.Millisecond, now) {
		t.Fatal("reaching immediateAckThreshold should force an immediate ack")
	}
}

func TestAckTrackerOutOfOrderForcesImmediate(t *testing.T) {
	var s ackTracker
	now := time.Now()
	s.add(0, false, now)
	s.add(5, true, now)
	if !s.requireActiveAck(time.Second, now) {
		t.Fatal("an arrival that leaves a gap below it should force an immediate ack")
	}
}

func TestAckTrackerNonElicitingDoesNotTrigger(t *testing.T) {
	var s ackTracker
	now := time.Now()
	s.add(0, false, now)
	if s.requireActiveAck(time.Millisecond, now) {
		t.Fatal("a non-ack-eliciting packet should never require an active ack")
	}
}

func TestAckTrackerDelayThreshold(t *testing.T) {
	var s ackTracker
	now := time.Now()
	s.add(0, true, now)
	maxDelay := 80 * time.Millisecond
	if s.requireActiveAck(maxDelay, now) {
		t.Fatal("immediately after receipt, delay threshold should not yet require an ack")
	}
	later := now.Add(maxDelay)
	if !s.requireActiveAck(maxDelay, later) {
		t.Fatal("once maxAckDelay/8 has elapsed, an ack should be required")
	}
}

func TestAckTrackerCommitAckResets(t *testing.T) {
	var s ackTracker
	now := time.Now()
	s.add(0, true, now)
	s.add(1, true, now)
	s.commitAck()
	if s.ackElicitingCount != 0 || s.immediate {
		t.Fatal("commitAck should clear the eliciting count and immediate flag")
	}
}

func TestAckTrackerRemoveUntil(t *testing.T) {
	var s ackTracker
	now := time.Now()
	s.add(0, true, now)
	s.add(1, true, now)
	s.removeUntil(0)
	if s.gaps.isPushed(0) {
		t.Fatal("removeUntil(0) should forget packet 0")
	}
	if !s.gaps.isPushed(1) {
		t.Fatal("removeUntil(0) should not forget packet 1")
	}
}
