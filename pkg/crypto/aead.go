package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
)

// NonceSize is the size in bytes of the AEAD nonce used on the wire:
// a 4-byte little-endian sequence counter followed by 8 bytes of
// per-session random salt, giving each message a unique nonce without
// needing to transmit a full random nonce per frame.
const NonceSize = 12

// AEAD wraps a single directional AES-256-GCM key together with the
// monotonic sequence counter used to build unique nonces.
type AEAD struct {
	aead cipher.AEAD
	seq  uint32
	salt [8]byte
}

// NewAEAD creates an AEAD oracle for one direction of traffic. salt
// should be unique per session (derived once, shared with the peer
// via the handshake) so that both directions never reuse a nonce even
// if their sequence counters happen to collide.
func NewAEAD(key []byte, salt [8]byte) (*AEAD, error) {
	if len(key) != SessionKeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AEAD{aead: gcm, salt: salt}, nil
}

// RandomSalt generates a fresh 8-byte nonce salt for a new session.
func RandomSalt() ([8]byte, error) {
	var salt [8]byte
	_, err := rand.Read(salt[:])
	return salt, err
}

func (a *AEAD) nonce(seq uint32) []byte {
	n := make([]byte, NonceSize)
	binary.LittleEndian.PutUint32(n[:4], seq)
	copy(n[4:], a.salt[:])
	return n
}

// Seal encrypts plaintext under the next sequence number, returning
// ciphertext||tag. The additional data is authenticated but not
// encrypted (used to bind the command byte into the AEAD tag).
func (a *AEAD) Seal(plaintext, additionalData []byte) []byte {
	nonce := a.nonce(a.seq)
	a.seq++
	return a.aead.Seal(nil, nonce, plaintext, additionalData)
}

// Open decrypts ciphertext produced by the peer's Seal at the given
// sequence number.
func (a *AEAD) Open(seq uint32, ciphertext, additionalData []byte) ([]byte, error) {
	if len(ciphertext) < a.aead.Overhead() {
		return nil, ErrShortCiphertext
	}
	nonce := a.nonce(seq)
	plaintext, err := a.aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
