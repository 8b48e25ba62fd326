// Package crypto provides the concrete cryptographic primitives
// backing a SecureSessionCrypto implementation: P-256 ECDH key
// exchange, certificate decoding/verification, HKDF-based key
// derivation, and an AEAD read/write oracle. None of this is invoked
// directly by pkg/securesession's state machine — it only ever talks
// to the SecureSessionCrypto interface — but a real mobile client
// needs a real implementation, and this package is it.
package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"sync"
)

// P256KeySize is the size in bytes of an uncompressed P-256 public
// key point (0x04 || X || Y).
const P256KeySize = 65

// KeyPair is a P-256 ECDH key pair. The private half never needs to
// leave process memory here (unlike a mobile Keystore that delegates
// signing), because this core only performs ECDH, not signing, with
// the mobile key.
type KeyPair struct {
	private *ecdh.PrivateKey
}

// GenerateKeyPair creates a new random P-256 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeyPair{private: priv}, nil
}

// PublicKey returns the uncompressed public key point (65 bytes).
func (k *KeyPair) PublicKey() []byte {
	return k.private.PublicKey().Bytes()
}

// ECDH computes the shared secret with a peer's uncompressed public
// key point.
func (k *KeyPair) ECDH(peerPublicKey []byte) ([]byte, error) {
	peer, err := ecdh.P256().NewPublicKey(peerPublicKey)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	return k.private.ECDH(peer)
}

// Keystore models the external keystore capability: it hands out a
// mobile key pair, generating one on first use, and never exposes
// signing directly (out of scope for this core; the core only needs
// ECDH from the mobile side).
type Keystore interface {
	// MobileKeyPair returns the stored key pair, generating and
	// persisting one on first call.
	MobileKeyPair() (*KeyPair, error)
}

// memoryKeystore is a process-lifetime Keystore. Real mobile builds
// back this with platform secure storage; this implementation is what
// pkg/securesession's tests and the lockctl demo wiring use.
type memoryKeystore struct {
	mu   sync.Mutex
	pair *KeyPair
}

// NewMemoryKeystore creates a Keystore that generates its key pair
// lazily and keeps it in memory for the process lifetime.
func NewMemoryKeystore() Keystore {
	return &memoryKeystore{}
}

func (m *memoryKeystore) MobileKeyPair() (*KeyPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pair != nil {
		return m.pair, nil
	}
	pair, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	m.pair = pair
	return pair, nil
}
