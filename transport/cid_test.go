package transport

import (
	"testing"
	"time"
)

func TestCidPoolAddLocalAssignsSequence(t *testing.T) {
	var p cidPool
	p.init(2)
	a := p.addLocal([]byte{1}, [16]byte{})
	b := p.addLocal([]byte{2}, [16]byte{})
	if a.seq != 0 || b.seq != 1 {
		t.Fatalf("sequence numbers = %d, %d, want 0, 1", a.seq, b.seq)
	}
}

func TestCidPoolAddRemoteDuplicateIsIdempotent(t *testing.T) {
	var p cidPool
	if _, err := p.addRemote(1, []byte{1}, [16]byte{}, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := p.addRemote(1, []byte{1}, [16]byte{}, 0); err != nil {
		t.Fatal(err)
	}
	if len(p.ids) != 1 {
		t.Fatalf("pool has %d ids, want 1 after duplicate addRemote", len(p.ids))
	}
}

func TestCidPoolAddRemoteRetiresOlder(t *testing.T) {
	var p cidPool
	p.addRemote(0, []byte{0}, [16]byte{}, 0)
	p.addRemote(1, []byte{1}, [16]byte{}, 0)
	retired, err := p.addRemote(2, []byte{2}, [16]byte{}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(retired) != 2 {
		t.Fatalf("retired = %v, want seq 0 and 1 retired", retired)
	}
	if len(p.active()) != 1 {
		t.Fatalf("active() = %v, want only seq 2 active", p.active())
	}
}

func TestCidPoolNeedsMore(t *testing.T) {
	var p cidPool
	p.init(2)
	if !p.needsMore() {
		t.Fatal("empty pool with minPoolSize 2 should need more")
	}
	p.addLocal([]byte{1}, [16]byte{})
	if !p.needsMore() {
		t.Fatal("pool with 1/2 should still need more")
	}
	p.addLocal([]byte{2}, [16]byte{})
	if p.needsMore() {
		t.Fatal("pool with 2/2 should not need more")
	}
}

func TestCidPoolReapDropsExpiredRetiring(t *testing.T) {
	var p cidPool
	p.addLocal([]byte{1}, [16]byte{})
	now := time.Now()
	p.markRetiring(0, now, 0)
	p.reap(now.Add(-time.Second))
	if len(p.ids) != 1 {
		t.Fatalf("reap before grace elapsed removed the CID")
	}
	p.reap(now.Add(10 * time.Hour))
	if len(p.ids) != 0 {
		t.Fatalf("reap after grace elapsed kept the CID")
	}
}

func TestCidPoolByValue(t *testing.T) {
	var p cidPool
	want := p.addLocal([]byte{9, 9, 9}, [16]byte{})
	got, ok := p.byValue([]byte{9, 9, 9})
	if !ok || got.seq != want.seq {
		t.Fatalf("byValue lookup failed: got %v, ok=%v", got, ok)
	}
	if _, ok := p.byValue([]byte{1, 2, 3}); ok {
		t.Fatal("byValue matched an id that was never added")
	}
}

func TestCidPoolMatchStatelessReset(t *testing.T) {
	var p cidPool
	token := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	p.addRemote(0, []byte{1}, token, 0)
	datagram := append(make([]byte, 8), token[:]...)
	c, ok := p.matchStatelessReset(datagram)
	if !ok || c.seq != 0 {
		t.Fatalf("matchStatelessReset failed to find the token: ok=%v c=%v", ok, c)
	}
	if _, ok := p.matchStatelessReset(make([]byte, 4)); ok {
		t.Fatal("matchStatelessReset matched a datagram shorter than a token")
	}
}

func TestGenerateCIDLength(t *testing.T) {
	id, err := generateCID(8)
	if err != nil {
		t.Fatal(err)
	}
	if len(id) != 8 {
		t.Fatalf("generateCID(8) returned %d bytes", len(id))
	}
}
