package securesession

import "time"

// AlertCode identifies the reason carried by an ALERT frame. Only
// NoTrustedTime's wire value is pinned by an observable scenario; the
// others are internally consistent but otherwise unpinned (see
// DESIGN.md's Open Question resolution).
type AlertCode uint8

// Alert codes.
const (
	AlertNoTrustedTime AlertCode = 0x02
	AlertTimeout       AlertCode = 0x01
	AlertInvalidCert   AlertCode = 0x03
	AlertNotRegistered AlertCode = 0x04
)

// Crypto is the external key-exchange collaborator SecureSession
// depends on: the exact key-exchange algorithm is opaque to the
// protocol state machine in session.go, which only
// calls these methods in handshake order. DefaultCrypto (in this
// package, built on pkg/crypto) is the concrete production
// implementation; tests substitute a fake.
type Crypto interface {
	// ClientHello returns the client's key-exchange blob for the
	// outbound HELLO frame (handshake step 1).
	ClientHello() ([]byte, error)

	// HandleServerHello parses the server's HELLO blob (step 2) and
	// derives the shared secret. It must be called exactly once,
	// after ClientHello.
	HandleServerHello(serverHello []byte) error

	// ClientTimeVerify returns the 8-byte big-endian millisecond
	// timestamp payload for the client's SERVER_VERIFY frame
	// (handshake step 3).
	ClientTimeVerify(now time.Time) []byte

	// VerifyServerRecord verifies the server's signed SERVER_VERIFY
	// record (step 4) against the device public key from the access
	// certificate. On failure the session must be torn down.
	VerifyServerRecord(record []byte) error

	// ClientVerifyPayload returns the complete CLIENT_VERIFY payload
	// (step 5), before it is split into chunks by the handshake
	// driver.
	ClientVerifyPayload() ([]byte, error)

	// HandleSessionInitialized parses the SESSION_INITIALIZED
	// parameters (step 6), finalizes session key material, and
	// returns the read/write AEAD oracle for the ready session.
	HandleSessionInitialized(params []byte) (Oracle, error)

	// Reset clears any transient key material held before the
	// session became ready (used when tearing down mid-handshake).
	Reset()
}

// Oracle is the AEAD read/write capability a ready session exposes.
type Oracle interface {
	// Encrypt produces the DATA_ENCRYPTED frame body (everything after
	// the kind byte) for the given command and payload; the caller
	// prepends the kind byte.
	Encrypt(command byte, payload []byte) ([]byte, error)

	// Decrypt consumes an inbound DATA_ENCRYPTED frame body
	// (everything after the kind byte) and returns the command and
	// payload. It fails on auth-tag mismatch.
	Decrypt(body []byte) (command byte, payload []byte, err error)

	// Zero securely clears the oracle's key material.
	Zero()
}
