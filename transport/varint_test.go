package transport

import "testing"

func TestVarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 63, 64, 16383, 16384, 1073741823, 1073741824, maxVarint}
	for _, v := range cases {
		b := make([]byte, 8)
		n := putVarint(b, v)
		if n != varintLen(v) {
			t.Fatalf("putVarint(%d) wrote %d bytes, want %d", v, n, varintLen(v))
		}
		var got uint64
		m := getVarint(b[:n], &got)
		if m != n {
			t.Fatalf("getVarint consumed %d bytes, want %d", m, n)
		}
		if got != v {
			t.Fatalf("roundtrip %d -> %d", v, got)
		}
	}
}

func TestVarintLen(t *testing.T) {
	cases := []struct {
		v    uint64
		want int
	}{
		{0, 1}, {63, 1}, {64, 2}, {16383, 2}, {16384, 4},
		{1073741823, 4}, {1073741824, 8},
	}
	for _, c := range cases {
		if got := varintLen(c.v); got != c.want {
			t.Errorf("varintLen(%d) = %d, want %d", c.v, got, c.want)
		}
	}
}

func TestGetVarintShortBuffer(t *testing.T) {
	var v uint64
	if n := getVarint(nil, &v); n != 0 {
		t.Fatalf("getVarint(nil) = %d, want 0", n)
	}
	b := []byte{0x40}
	if n := getVarint(b, &v); n != 0 {
		t.Fatalf("getVarint(short 2-byte prefix) = %d, want 0", n)
	}
}

func TestPacketNumberLen(t *testing.T) {
	cases := []struct {
		pn, largestAcked uint64
		hasLargestAcked  bool
		want             int
	}{
		{1, 0, false, 1},
		{0xff, 0, false, 2},
		{1000, 0, false, 2},
		{1001, 1000, true, 1},
	}
	for _, c := range cases {
		if got := packetNumberLen(c.pn, c.hasLargestAcked, c.largestAcked); got != c.want {
			t.Errorf("packetNumberLen(%d, %v, %d) = %d, want %d", c.pn, c.hasLargestAcked, c.largestAcked, got, c.want)
		}
	}
}

func TestPacketNumberLenDistinguishesNoAcksFromAckedPacketZero(t *testing.T) {
	// pn=2 with nothing acked yet must reserve enough length for pn+1=3
	// unacked packets; once packet 0 is genuinely the largest acked, only
	// pn-0=2 unacked packets need to be distinguishable.
	noAcksYet := packetNumberLen(2, false, 0)
	packetZeroAcked := packetNumberLen(2, true, 0)
	if packetZeroAcked > noAcksYet {
		t.Fatalf("packetNumberLen with packet 0 genuinely acked (%d) should never need more bytes than the no-acks-yet case (%d)", packetZeroAcked, noAcksYet)
	}
}

func TestPacketNumberRoundTrip(t *testing.T) {
	largest := uint64(0xa82f30ea)
	pn := uint64(0xa82f9b32)
	n := packetNumberLen(pn, true, largest)
	b := make([]byte, 4)
	putPacketNumber(b, pn, n)
	truncated := getTruncatedPacketNumber(b, n)
	got := decodePacketNumber(largest, truncated, n*8)
	if got != pn {
		t.Fatalf("decodePacketNumber = %#x, want %#x", got, pn)
	}
}

func TestDecodePacketNumberWrapsAroundWindow(t *testing.T) {
	// Truncated value smaller than the window's low bits, but the full
	// value should reconstruct near largest+1, not wrap to a much smaller
	// number.
	largest := uint64(200)
	got := decodePacketNumber(largest, 0, 8)
	if got < largest {
		t.Fatalf("decodePacketNumber(%d, 0, 8) = %d, want >= %d", largest, got, largest)
	}
}
