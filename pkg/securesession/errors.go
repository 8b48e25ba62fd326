package securesession

import "errors"

// Errors returned by the securesession package.
var (
	ErrNotReady        = errors.New("securesession: not ready")
	ErrAlreadyReady    = errors.New("securesession: already ready")
	ErrClosed          = errors.New("securesession: closed")
	ErrUnexpectedFrame = errors.New("securesession: unexpected frame kind for current state")
	ErrMalformedHello  = errors.New("securesession: malformed hello blob")
	ErrMalformedRecord = errors.New("securesession: malformed server verify record")
	ErrMalformedAlert  = errors.New("securesession: malformed alert frame")
	ErrHandshakeFailed = errors.New("securesession: handshake failed")
	ErrNoCertificate   = errors.New("securesession: no device certificate configured")
)
