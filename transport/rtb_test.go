package transport

import (
	"testing"
	"time"
)

func TestRetransmitBufferAddAndLargestSent(t *testing.T) {
	var r retransmitBuffer
	r.add(sentPacket{packetNumber: 1, size: 10, inFlight: true})
	r.add(sentPacket{packetNumber: 2, size: 20, inFlight: true})
	n, ok := r.largestSent()
	if !ok || n != 2 {
		t.Fatalf("largestSent() = %d, %v, want 2, true", n, ok)
	}
	if r.bytesInFlight != 30 {
		t.Fatalf("bytesInFlight = %d, want 30", r.bytesInFlight)
	}
}

func TestRetransmitBufferOnAcked(t *testing.T) {
	var r retransmitBuffer
	r.add(sentPacket{packetNumber: 1, size: 10, inFlight: true})
	r.add(sentPacket{packetNumber: 2, size: 20, inFlight: true})
	p, ok := r.onAcked(1)
	if !ok || p.packetNumber != 1 {
		t.Fatalf("onAcked(1) = %v, %v", p, ok)
	}
	if r.bytesInFlight != 20 {
		t.Fatalf("bytesInFlight after acking packet 1 = %d, want 20", r.bytesInFlight)
	}
	if _, ok := r.onAcked(99); ok {
		t.Fatal("onAcked for an unknown packet number should fail")
	}
}

func TestRetransmitBufferDrainBelow(t *testing.T) {
	var r retransmitBuffer
	r.add(sentPacket{packetNumber: 1, size: 10, inFlight: true})
	r.add(sentPacket{packetNumber: 2, size: 10, inFlight: true})
	r.add(sentPacket{packetNumber: 3, size: 10, inFlight: true})
	drained := r.drainBelow(3)
	if len(drained) != 2 {
		t.Fatalf("drainBelow(3) drained %d packets, want 2", len(drained))
	}
	if n, _ := r.largestSent(); n != 3 {
		t.Fatalf("largestSent() after drain = %d, want 3", n)
	}
	if r.bytesInFlight != 10 {
		t.Fatalf("bytesInFlight after drain = %d, want 10", r.bytesInFlight)
	}
}

func TestRetransmitBufferDrainAll(t *testing.T) {
	var r retransmitBuffer
	r.add(sentPacket{packetNumber: 1, size: 10, inFlight: true})
	drained := r.drainAll()
	if len(drained) != 1 {
		t.Fatalf("drainAll() returned %d packets, want 1", len(drained))
	}
	if r.bytesInFlight != 0 || r.hasInFlight() {
		t.Fatal("drainAll should clear bytesInFlight and hasInFlight")
	}
}

func TestRetransmitBufferOldestSentTime(t *testing.T) {
	var r retransmitBuffer
	now := time.Now()
	r.add(sentPacket{packetNumber: 1, timeSent: now.Add(time.Second), ackEliciting: true})
	r.add(sentPacket{packetNumber: 2, timeSent: now, ackEliciting: true})
	r.add(sentPacket{packetNumber: 3, timeSent: now.Add(-time.Hour), ackEliciting: false})
	oldest, ok := r.oldestSentTime()
	if !ok || !oldest.Equal(now) {
		t.Fatalf("oldestSentTime() = %v, %v, want %v, true (ignoring non-ack-eliciting packets)", oldest, ok, now)
	}
}
