package transport

import (
	"bytes"
	"testing"
)

func TestIsStreamBidiAndLocal(t *testing.T) {
	if !isStreamBidi(streamClientBidi) || !isStreamBidi(streamServerBidi) {
		t.Fatal("client/server bidi stream ids should report bidi")
	}
	if isStreamBidi(streamClientUni) || isStreamBidi(streamServerUni) {
		t.Fatal("uni stream ids should not report bidi")
	}
	if !isStreamLocal(streamClientBidi, true) {
		t.Fatal("a client-initiated stream id should be local to the client")
	}
	if isStreamLocal(streamServerBidi, true) {
		t.Fatal("a server-initiated stream id should not be local to the client")
	}
}

func TestStreamSendStateWriteAndPopSend(t *testing.T) {
	var s streamSendState
	if err := s.write([]byte("hello"), false); err != nil {
		t.Fatal(err)
	}
	data, offset, fin := s.popSend(100)
	if offset != 0 || fin || !bytes.Equal(data, []byte("hello")) {
		t.Fatalf("popSend() = %q, %d, %v", data, offset, fin)
	}
	if _, _, more := s.popSend(100); more {
		t.Fatal("popSend should return nothing after draining all written data")
	}
}

func TestStreamSendStateFinAfterData(t *testing.T) {
	var s streamSendState
	s.write([]byte("ab"), true)
	data, _, fin := s.popSend(100)
	if !bytes.Equal(data, []byte("ab")) || !fin {
		t.Fatalf("popSend() with fin set should deliver data and fin together, got %q fin=%v", data, fin)
	}
	if s.complete() {
		t.Fatal("complete() should be false until the fin offset is acked")
	}
}

func TestStreamSendStateWriteAfterFinErrors(t *testing.T) {
	var s streamSendState
	s.write([]byte("a"), true)
	if err := s.write([]byte("b"), false); err != errFinalSize {
		t.Fatalf("write after fin should return errFinalSize, got %v", err)
	}
}

func TestStreamSendStateAckCompletesAfterFin(t *testing.T) {
	var s streamSendState
	s.write([]byte("ab"), true)
	s.popSend(100)
	s.ack(0, 2)
	if !s.complete() {
		t.Fatal("complete() should be true once all written bytes including fin are acked")
	}
}

func TestStreamSendStateResendPriority(t *testing.T) {
	var s streamSendState
	s.write([]byte("hello world"), false)
	s.popSend(100) // send everything once
	if err := s.push([]byte("hello"), 0, false); err != nil {
		t.Fatal(err)
	}
	data, offset, _ := s.popSend(100)
	if offset != 0 || !bytes.Equal(data, []byte("hello")) {
		t.Fatalf("popSend should prioritize the resend range, got %q at %d", data, offset)
	}
}

func TestStreamRecvStatePushEnforcesFinalSize(t *testing.T) {
	var s streamRecvState
	s.rob.init(0)
	s.finalSize = -1
	if err := s.push([]byte("abc"), 0, true); err != nil {
		t.Fatal(err)
	}
	if s.finalSize != 3 {
		t.Fatalf("finalSize = %d, want 3", s.finalSize)
	}
	if err := s.push([]byte("d"), 3, false); err != errFinalSize {
		t.Fatalf("push beyond the established final size should error, got %v", err)
	}
}

func TestStreamRecvStateResetChargesUncountedBytes(t *testing.T) {
	var s streamRecvState
	s.rob.init(0)
	s.finalSize = -1
	s.push([]byte("ab"), 0, false)
	charged, err := s.reset(10)
	if err != nil {
		t.Fatal(err)
	}
	if charged != 8 {
		t.Fatalf("reset(10) after delivering 2 bytes should charge 8, got %d", charged)
	}
}

func TestStreamExtendMaxStreamDataSchedulesUpdate(t *testing.T) {
	s := newStream(4, true, 0)
	s.flow.init(100, 0)
	s.ExtendMaxStreamData(200)
	if !s.updateMaxData {
		t.Fatal("ExtendMaxStreamData should set updateMaxData")
	}
	if s.flow.maxRecvNext != 200 {
		t.Fatalf("flow.maxRecvNext = %d, want 200", s.flow.maxRecvNext)
	}
	s.ackMaxData()
	if !s.updateMaxData {
		t.Fatal("ackMaxData is a no-op: updateMaxData and the window are committed at send time, not ack time")
	}
}

func TestStreamMapEffectiveMaxStreamsGrowsAsStreamsFinish(t *testing.T) {
	var m streamMap
	m.init(2, 0)
	if got := m.effectiveMaxStreamsBidi(); got != 2 {
		t.Fatalf("effectiveMaxStreamsBidi() before any stream finishes = %d, want 2", got)
	}
	st, err := m.create(0, false, true)
	if err != nil {
		t.Fatal(err)
	}
	m.remove(st.id, true, false)
	if got := m.effectiveMaxStreamsBidi(); got != 3 {
		t.Fatalf("effectiveMaxStreamsBidi() after one finished stream = %d, want 3", got)
	}
}

func TestStreamMapPendingAndCommitMaxStreamsBidi(t *testing.T) {
	var m streamMap
	m.init(1, 0)
	if _, ok := m.pendingMaxStreamsBidi(); ok {
		t.Fatal("no update should be pending before any stream finishes")
	}
	st, err := m.create(0, false, true)
	if err != nil {
		t.Fatal(err)
	}
	m.remove(st.id, true, false)
	max, ok := m.pendingMaxStreamsBidi()
	if !ok || max != 2 {
		t.Fatalf("pendingMaxStreamsBidi() = %d, %v, want 2, true", max, ok)
	}
	m.commitMaxStreamsBidi(max)
	if _, ok := m.pendingMaxStreamsBidi(); ok {
		t.Fatal("pendingMaxStreamsBidi should report nothing pending right after commit")
	}
}

func TestStreamMapCreateEnforcesEffectiveLimit(t *testing.T) {
	var m streamMap
	m.init(1, 0)
	if _, err := m.create(0, false, true); err != nil {
		t.Fatal(err)
	}
	if _, err := m.create(4, false, true); err == nil {
		t.Fatal("create beyond the effective bidi limit should fail")
	}
}

func TestStreamMapCreateAndGet(t *testing.T) {
	var m streamMap
	m.init(10, 10)
	st, err := m.create(4, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.get(4); got != st {
		t.Fatal("get() should return the same Stream created by create()")
	}
}

func TestStreamWriteAndRead(t *testing.T) {
	s := newStream(4, true, 0)
	if _, err := s.Write([]byte("payload")); err != nil {
		t.Fatal(err)
	}
	data, _, _ := s.popSend(100)
	if !bytes.Equal(data, []byte("payload")) {
		t.Fatalf("Stream.Write should feed popSend, got %q", data)
	}
	if err := s.pushRecv([]byte("reply"), 0, true); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 16)
	n, err := s.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf[:n], []byte("reply")) {
		t.Fatalf("Stream.Read() = %q, want %q", buf[:n], "reply")
	}
}
