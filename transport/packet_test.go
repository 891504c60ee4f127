package transport

import (
	"bytes"
	"testing"
)

func TestPacketTypeFromSpaceRoundTrip(t *testing.T) {
	cases := []struct {
		space packetSpace
		typ   packetType
	}{
		{packetSpaceInitial, packetTypeInitial},
		{packetSpaceHandshake, packetTypeHandshake},
		{packetSpaceApplication, packetTypeShort},
	}
	for _, c := range cases {
		if got := packetTypeFromSpace(c.space); got != c.typ {
			t.Errorf("packetTypeFromSpace(%v) = %v, want %v", c.space, got, c.typ)
		}
		if c.typ == packetTypeShort {
			continue // short maps back to application regardless of the long-header type it stood in for
		}
		if got := spaceFromPacketType(c.typ); got != c.space {
			t.Errorf("spaceFromPacketType(%v) = %v, want %v", c.typ, got, c.space)
		}
	}
}

func TestPacketEncodeDecodeShortHeader(t *testing.T) {
	dcid := []byte{1, 2, 3, 4}
	p := &packet{
		typ:             packetTypeShort,
		header:          packetHeader{dcid: dcid},
		packetNumber:    7,
		packetNumberLen: 1,
	}
	b := make([]byte, 64)
	n, err := p.encode(b)
	if err != nil {
		t.Fatal(err)
	}

	var got packet
	got.header.dcil = uint8(len(dcid))
	m, err := got.decodeHeader(b[:n])
	if err != nil {
		t.Fatal(err)
	}
	if m != n-p.packetNumberLen {
		t.Fatalf("decodeHeader consumed %d bytes, want %d (short header does not cover the still-protected packet number)", m, n-p.packetNumberLen)
	}
	if got.typ != packetTypeShort {
		t.Fatalf("typ = %v, want short", got.typ)
	}
	if !bytes.Equal(got.header.dcid, dcid) {
		t.Fatalf("dcid = %x, want %x", got.header.dcid, dcid)
	}
}

func TestPacketEncodeDecodeLongHeaderInitial(t *testing.T) {
	dcid := []byte{9, 9, 9, 9}
	scid := []byte{5, 5, 5, 5, 5}
	p := &packet{
		typ: packetTypeInitial,
		header: packetHeader{
			version: quicVersion1,
			dcid:    dcid,
			scid:    scid,
		},
		token:           []byte("tok"),
		packetNumber:    3,
		packetNumberLen: 2,
		payloadLen:      100,
	}
	b := make([]byte, p.encodedLen())
	n, err := p.encode(b)
	if err != nil {
		t.Fatal(err)
	}

	var got packet
	hn, err := got.decodeHeader(b[:n])
	if err != nil {
		t.Fatal(err)
	}
	if got.typ != packetTypeInitial {
		t.Fatalf("typ = %v, want initial", got.typ)
	}
	if got.header.version != quicVersion1 {
		t.Fatalf("version = %x, want %x", got.header.version, quicVersion1)
	}
	if !bytes.Equal(got.header.dcid, dcid) || !bytes.Equal(got.header.scid, scid) {
		t.Fatalf("dcid/scid = %x/%x, want %x/%x", got.header.dcid, got.header.scid, dcid, scid)
	}

	bn, err := got.decodeBody(b[:n])
	if err != nil {
		t.Fatal(err)
	}
	_ = hn
	_ = bn
	if !bytes.Equal(got.token, []byte("tok")) {
		t.Fatalf("token = %q, want %q", got.token, "tok")
	}
}

func TestPacketDecodeHeaderShortTooSmall(t *testing.T) {
	var p packet
	p.header.dcil = 8
	if _, err := p.decodeHeader([]byte{0x00}); err == nil {
		t.Fatal("decodeHeader should error when the buffer is shorter than the declared dcid length")
	}
}

func TestPacketDecodeHeaderVersionNegotiation(t *testing.T) {
	b := []byte{0x80, 0, 0, 0, 0, 4, 1, 2, 3, 4, 4, 5, 6, 7, 8}
	var p packet
	n, err := p.decodeHeader(b)
	if err != nil {
		t.Fatal(err)
	}
	if p.typ != packetTypeVersionNegotiation {
		t.Fatalf("typ = %v, want version_negotiation", p.typ)
	}
	if n != len(b) {
		t.Fatalf("decodeHeader consumed %d bytes, want %d", n, len(b))
	}
}

func TestPacketStringIncludesPacketNumber(t *testing.T) {
	p := &packet{typ: packetTypeShort, packetNumber: 42, header: packetHeader{dcid: []byte{1}}}
	if got := p.String(); !bytes.Contains([]byte(got), []byte("pn=42")) {
		t.Fatalf("String() = %q, want it to mention pn=42", got)
	}
}
