package transport

import (
	"bytes"
	"testing"
)

func TestReorderBufferInOrder(t *testing.T) {
	var s reorderBuffer
	if err := s.push(0, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	got := s.popAll()
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("popAll() = %q, want %q", got, "hello")
	}
}

func TestReorderBufferOutOfOrder(t *testing.T) {
	var s reorderBuffer
	if err := s.push(5, []byte("world")); err != nil {
		t.Fatal(err)
	}
	if got := s.popAll(); got != nil {
		t.Fatalf("popAll() before the gap is filled = %q, want nil", got)
	}
	if err := s.push(0, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	got := s.popAll()
	if !bytes.Equal(got, []byte("helloworld")) {
		t.Fatalf("popAll() = %q, want %q", got, "helloworld")
	}
}

func TestReorderBufferOverlappingPushIsIdempotent(t *testing.T) {
	var s reorderBuffer
	s.push(0, []byte("hello"))
	s.push(2, []byte("llo"))
	got := s.popAll()
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("popAll() = %q, want %q", got, "hello")
	}
}

func TestReorderBufferPushBeforeConsumedIsDropped(t *testing.T) {
	var s reorderBuffer
	s.push(0, []byte("abc"))
	s.pop(3)
	if err := s.push(0, []byte("abc")); err != nil {
		t.Fatal(err)
	}
	if got := s.popAll(); got != nil {
		t.Fatalf("popAll() after re-pushing already-consumed bytes = %q, want nil", got)
	}
}

func TestReorderBufferPartialPop(t *testing.T) {
	var s reorderBuffer
	s.push(0, []byte("hello"))
	first := s.pop(2)
	if !bytes.Equal(first, []byte("he")) {
		t.Fatalf("pop(2) = %q, want %q", first, "he")
	}
	rest := s.popAll()
	if !bytes.Equal(rest, []byte("llo")) {
		t.Fatalf("popAll() after partial pop = %q, want %q", rest, "llo")
	}
}

func TestReorderBufferFirstGapOffset(t *testing.T) {
	var s reorderBuffer
	if got := s.firstGapOffset(); got != 0 {
		t.Fatalf("firstGapOffset() on empty buffer = %d, want 0", got)
	}
	s.push(0, []byte("ab"))
	if got := s.firstGapOffset(); got != 2 {
		t.Fatalf("firstGapOffset() after pushing 2 bytes at 0 = %d, want 2", got)
	}
	s.push(10, []byte("z"))
	if got := s.firstGapOffset(); got != 2 {
		t.Fatalf("firstGapOffset() with a later gap = %d, want 2", got)
	}
}

func TestReorderBufferCapExceeded(t *testing.T) {
	var s reorderBuffer
	s.init(4)
	if err := s.push(100, []byte("x")); err == nil {
		t.Fatal("push beyond the reorder window should error")
	}
}
