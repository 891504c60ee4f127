package transport

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// initialSalt is the version-1 Initial salt used to derive the Initial
// secrets from the client's destination connection id.
// https://quicwg.org/base-drafts/draft-ietf-quic-tls.html#initial-secrets
var initialSalt = []byte{
	0x38, 0x76, 0x2c, 0xf7, 0xf5, 0x59, 0x34, 0xb3,
	0x4d, 0x17, 0x9a, 0xe6, 0xa4, 0xc8, 0x0c, 0xad,
	0xcc, 0xbb, 0x7f, 0x0a,
}

// packetKeys holds the AEAD and header-protection material for one
// direction (tx or rx) of one packet-number space.
type packetKeys struct {
	aead    cipher.AEAD
	hpKey   []byte
	ivKey   []byte
	isSet   bool
}

// initialAEAD derives the client/server Initial keys from a connection id,
// per QUIC-TLS §5.2, using HKDF-SHA256 exactly as ngtcp2's
// ngtcp2_crypto_derive_initial_secrets does.
type initialAEAD struct {
	client packetKeys
	server packetKeys
}

func (s *initialAEAD) init(cid []byte) {
	initialSecret := hkdfExtract(initialSalt, cid)
	clientSecret := hkdfExpandLabel(initialSecret, "client in", 32)
	serverSecret := hkdfExpandLabel(initialSecret, "server in", 32)
	s.client = derivePacketKeys(clientSecret, initialCipherAES)
	s.server = derivePacketKeys(serverSecret, initialCipherAES)
}

// aeadCipher selects the negotiated record-layer AEAD. The TLS callback
// reports which cipher suite was negotiated; the handshake AEAD and the
// 1-RTT AEAD both key off it, while Initial packets always use AES-128-GCM
// as mandated by QUIC-TLS.
type aeadCipher int

const (
	initialCipherAES aeadCipher = iota
	cipherAES128GCM
	cipherChaCha20Poly1305
)

func derivePacketKeys(secret []byte, c aeadCipher) packetKeys {
	var keyLen int
	switch c {
	case cipherChaCha20Poly1305:
		keyLen = chacha20poly1305.KeySize
	default:
		keyLen = 16 // AES-128
	}
	key := hkdfExpandLabel(secret, "quic key", keyLen)
	iv := hkdfExpandLabel(secret, "quic iv", 12)
	hp := hkdfExpandLabel(secret, "quic hp", keyLen)
	var aead cipher.AEAD
	switch c {
	case cipherChaCha20Poly1305:
		aead, _ = chacha20poly1305.New(key)
	default:
		block, err := aes.NewCipher(key)
		if err == nil {
			aead, _ = cipher.NewGCM(block)
		}
	}
	return packetKeys{aead: aead, hpKey: hp, ivKey: iv, isSet: aead != nil}
}

func hkdfExtract(salt, ikm []byte) []byte {
	h := hkdf.Extract(sha256.New, ikm, salt)
	return h
}

// hkdfExpandLabel implements TLS 1.3's HKDF-Expand-Label (RFC 8446 §7.1)
// restricted to the fixed, empty-context QUIC labels this codec needs.
func hkdfExpandLabel(secret []byte, label string, length int) []byte {
	fullLabel := "tls13 " + label
	info := make([]byte, 0, 2+1+len(fullLabel)+1)
	info = append(info, byte(length>>8), byte(length))
	info = append(info, byte(len(fullLabel)))
	info = append(info, fullLabel...)
	info = append(info, 0) // empty context
	out := make([]byte, length)
	r := hkdf.Expand(sha256.New, secret, info)
	_, _ = readFull(r, out)
	return out
}

func readFull(r interface{ Read([]byte) (int, error) }, b []byte) (int, error) {
	n := 0
	for n < len(b) {
		m, err := r.Read(b[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// packetNumberNonce XORs the IV with the packet number, per QUIC-TLS §5.3.
func packetNumberNonce(iv []byte, pn uint64) []byte {
	nonce := make([]byte, len(iv))
	copy(nonce, iv)
	for i := 0; i < 8; i++ {
		nonce[len(nonce)-1-i] ^= byte(pn >> (8 * i))
	}
	return nonce
}

// headerProtectionMaskAES derives the 5-byte mask applied to the first header
// byte and the packet-number bytes, from a sample of the (already AEAD
// protected) payload starting at pnOffset+4, per spec.md §4.3/§6.1.
//
// For AES-based suites this is AES-ECB(hpKey, sample); for ChaCha20 it is
// the first 5 bytes of the ChaCha20 keystream seeded by the sample as a
// nonce. Only the AES construction is implemented here (Initial and
// Handshake always use AES-128), and the packet read and write paths call
// this function for every space; no ChaCha20 mask is computed.
func headerProtectionMaskAES(hpKey, sample []byte) ([5]byte, error) {
	var mask [5]byte
	block, err := aes.NewCipher(hpKey)
	if err != nil {
		return mask, err
	}
	if len(sample) < block.BlockSize() {
		return mask, newError(BufferTooSmall, "hp sample")
	}
	out := make([]byte, block.BlockSize())
	block.Encrypt(out, sample)
	copy(mask[:], out[:5])
	return mask, nil
}

// applyHeaderProtection XORs mask bits into the first byte (0x0f for long
// headers, 0x1f for short) and into the packet-number bytes, in place.
func applyHeaderProtection(b []byte, pnOffset, pnLen int, mask [5]byte, long bool) {
	if long {
		b[0] ^= mask[0] & 0x0f
	} else {
		b[0] ^= mask[0] & 0x1f
	}
	for i := 0; i < pnLen; i++ {
		b[pnOffset+i] ^= mask[1+i]
	}
}
