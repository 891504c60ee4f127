package transport

import "testing"

func TestInitialAEADInitDerivesUsableKeys(t *testing.T) {
	var s initialAEAD
	s.init([]byte{0x83, 0x94, 0xc8, 0xf0, 0x3e, 0x51, 0x57, 0x08})
	if !s.client.isSet || !s.server.isSet {
		t.Fatal("init() should derive a usable AEAD for both client and server")
	}
	if len(s.client.ivKey) != 12 || len(s.server.ivKey) != 12 {
		t.Fatalf("iv length = %d/%d, want 12", len(s.client.ivKey), len(s.server.ivKey))
	}
	if string(s.client.hpKey) == string(s.server.hpKey) {
		t.Fatal("client and server header-protection keys should differ")
	}
}

func TestDerivePacketKeysChaCha20KeySize(t *testing.T) {
	secret := make([]byte, 32)
	for i := range secret {
		secret[i] = byte(i)
	}
	k := derivePacketKeys(secret, cipherChaCha20Poly1305)
	if !k.isSet {
		t.Fatal("derivePacketKeys should produce a usable ChaCha20-Poly1305 AEAD")
	}
	if len(k.hpKey) != 32 {
		t.Fatalf("ChaCha20 hp key length = %d, want 32", len(k.hpKey))
	}
}

func TestPacketNumberNonceXORsLowOrderBytes(t *testing.T) {
	iv := make([]byte, 12)
	for i := range iv {
		iv[i] = 0xff
	}
	nonce := packetNumberNonce(iv, 1)
	if nonce[len(nonce)-1] != 0xfe {
		t.Fatalf("last nonce byte = %#x, want %#x", nonce[len(nonce)-1], 0xfe)
	}
	for i := 0; i < len(nonce)-1; i++ {
		if nonce[i] != 0xff {
			t.Fatalf("nonce byte %d = %#x, should be untouched by a small packet number", i, nonce[i])
		}
	}
}

func TestHeaderProtectionMaskAESDeterministic(t *testing.T) {
	hpKey := make([]byte, 16)
	sample := make([]byte, 16)
	for i := range sample {
		sample[i] = byte(i * 7)
	}
	m1, err := headerProtectionMaskAES(hpKey, sample)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := headerProtectionMaskAES(hpKey, sample)
	if err != nil {
		t.Fatal(err)
	}
	if m1 != m2 {
		t.Fatal("headerProtectionMaskAES should be deterministic for the same key and sample")
	}
}

func TestHeaderProtectionMaskAESShortSample(t *testing.T) {
	hpKey := make([]byte, 16)
	if _, err := headerProtectionMaskAES(hpKey, []byte{1, 2, 3}); err == nil {
		t.Fatal("headerProtectionMaskAES should error on a sample shorter than the AES block size")
	}
}

func TestApplyHeaderProtectionRoundTrips(t *testing.T) {
	b := []byte{0x80, 0, 0, 0, 0}
	orig := append([]byte(nil), b...)
	mask := [5]byte{0xaa, 0x11, 0x22, 0x33, 0x44}
	applyHeaderProtection(b, 1, 4, mask, true)
	if b[0] == orig[0] {
		t.Fatal("applyHeaderProtection should flip bits in the first byte")
	}
	applyHeaderProtection(b, 1, 4, mask, true) // XOR with the same mask again undoes it
	for i := range b {
		if b[i] != orig[i] {
			t.Fatalf("byte %d = %#x after double XOR, want %#x", i, b[i], orig[i])
		}
	}
}

func TestApplyHeaderProtectionShortHeaderMasksLowerBits(t *testing.T) {
	b := []byte{0xff, 0, 0}
	mask := [5]byte{0xff, 0, 0, 0, 0}
	applyHeaderProtection(b, 1, 2, mask, false)
	if b[0] != 0xe0 {
		t.Fatalf("short-header first byte = %#x, want %#x (only the low 5 bits masked)", b[0], 0xe0)
	}
}
