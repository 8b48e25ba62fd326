package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// SessionKeySize is the size in bytes of each derived AEAD key.
const SessionKeySize = 32

// SessionKeys holds the two directional AEAD keys and nonce salts
// derived from the ECDH shared secret once the handshake transcript
// is known: one set for client-to-lock traffic, one for
// lock-to-client traffic. Deriving distinct keys per direction
// (rather than reusing one key with a direction bit in the nonce)
// keeps a compromise of one direction's key from exposing the other.
type SessionKeys struct {
	ClientToLock     [SessionKeySize]byte
	LockToClient     [SessionKeySize]byte
	ClientToLockSalt [8]byte
	LockToClientSalt [8]byte
}

// DeriveSessionKeys runs HKDF-SHA256 over the ECDH shared secret,
// salted with the handshake transcript hash, to produce both
// directional keys and their nonce salts in one expansion.
func DeriveSessionKeys(sharedSecret, transcript []byte) (*SessionKeys, error) {
	salt := sha256.Sum256(transcript)
	reader := hkdf.New(sha256.New, sharedSecret, salt[:], []byte("smartlock-session-keys"))

	out := make([]byte, 2*SessionKeySize+2*8)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}

	keys := &SessionKeys{}
	off := 0
	copy(keys.ClientToLock[:], out[off:off+SessionKeySize])
	off += SessionKeySize
	copy(keys.LockToClient[:], out[off:off+SessionKeySize])
	off += SessionKeySize
	copy(keys.ClientToLockSalt[:], out[off:off+8])
	off += 8
	copy(keys.LockToClientSalt[:], out[off:off+8])
	return keys, nil
}

// Zero overwrites both keys with zero bytes.
func (k *SessionKeys) Zero() {
	for i := range k.ClientToLock {
		k.ClientToLock[i] = 0
	}
	for i := range k.LockToClient {
		k.LockToClient[i] = 0
	}
	for i := range k.ClientToLockSalt {
		k.ClientToLockSalt[i] = 0
	}
	for i := range k.LockToClientSalt {
		k.LockToClientSalt[i] = 0
	}
}

// VerifyKey derives a single-purpose HMAC key used to authenticate
// the CLIENT_VERIFY payload before session keys exist, keeping it
// cryptographically separate from the eventual traffic keys even
// though both are derived from the same ECDH shared secret.
func VerifyKey(sharedSecret, transcript []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, sharedSecret, transcript, []byte("smartlock-client-verify"))
	out := make([]byte, 32)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}
