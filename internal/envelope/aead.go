package envelope

import (
	"encoding/binary"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/poly1305"
)

// This file implements ChaCha20-Poly1305 (RFC 8439) directly from the
// golang.org/x/crypto/chacha20 and golang.org/x/crypto/poly1305
// primitives rather than using the bundled chacha20poly1305 AEAD,
// because the card/flash storage format calls for a 4-byte stored
// authentication tag: there is no room for the standard 16-byte
// tag. The Poly1305 tag is still computed over the full RFC 8439
// construction (ciphertext only, no AAD); only the bytes actually
// persisted are truncated to the first 4.

const (
	keySize   = 32
	nonceSize = 12
	fullTagSize = 16

	// TagSize is the truncated tag width used by the on-card/flash
	// envelope format.
	TagSize = 4
)

func pad16(b []byte) []byte {
	if len(b)%16 == 0 {
		return nil
	}
	return make([]byte, 16-len(b)%16)
}

// polyKeyAndStream derives the one-time Poly1305 key (the first 32
// bytes of the keystream for block counter 0) and returns a cipher
// positioned to encrypt/decrypt starting at block counter 1, per
// RFC 8439 §2.6/§2.8.
func polyKeyAndStream(key [keySize]byte, nonce [nonceSize]byte) ([32]byte, *chacha20.Cipher, error) {
	keyGenCipher, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return [32]byte{}, nil, err
	}
	var block0 [64]byte
	keyGenCipher.XORKeyStream(block0[:], block0[:])

	var polyKey [32]byte
	copy(polyKey[:], block0[:32])

	streamCipher, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return [32]byte{}, nil, err
	}
	streamCipher.SetCounter(1)

	return polyKey, streamCipher, nil
}

// computeTag computes the full 16-byte RFC 8439 Poly1305 tag over
// ciphertext with no associated data.
func computeTag(polyKey [32]byte, ciphertext []byte) [fullTagSize]byte {
	mac := make([]byte, 0, len(ciphertext)+16+8+8)
	mac = append(mac, ciphertext...)
	mac = append(mac, pad16(ciphertext)...)

	var lenAAD, lenCiphertext [8]byte
	binary.LittleEndian.PutUint64(lenAAD[:], 0)
	binary.LittleEndian.PutUint64(lenCiphertext[:], uint64(len(ciphertext)))
	mac = append(mac, lenAAD[:]...)
	mac = append(mac, lenCiphertext[:]...)

	var tag [fullTagSize]byte
	poly1305.Sum(&tag, mac, &polyKey)
	return tag
}

// sealTruncated encrypts plaintext and returns the ciphertext plus the
// leading TagSize bytes of the full Poly1305 tag.
func sealTruncated(key [keySize]byte, nonce [nonceSize]byte, plaintext []byte) ([]byte, [TagSize]byte, error) {
	polyKey, stream, err := polyKeyAndStream(key, nonce)
	if err != nil {
		return nil, [TagSize]byte{}, err
	}

	ciphertext := make([]byte, len(plaintext))
	stream.XORKeyStream(ciphertext, plaintext)

	fullTag := computeTag(polyKey, ciphertext)
	var tag [TagSize]byte
	copy(tag[:], fullTag[:TagSize])
	return ciphertext, tag, nil
}

// openTruncated verifies the stored truncated tag against the
// recomputed tag and, on success, decrypts ciphertext. ok is false on
// tag mismatch.
func openTruncated(key [keySize]byte, nonce [nonceSize]byte, ciphertext []byte, tag [TagSize]byte) (plaintext []byte, ok bool, err error) {
	polyKey, stream, err := polyKeyAndStream(key, nonce)
	if err != nil {
		return nil, false, err
	}

	fullTag := computeTag(polyKey, ciphertext)
	if !constantTimeEqual(fullTag[:TagSize], tag[:]) {
		return nil, false, nil
	}

	plaintext = make([]byte, len(ciphertext))
	stream.XORKeyStream(plaintext, ciphertext)
	return plaintext, true, nil
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
