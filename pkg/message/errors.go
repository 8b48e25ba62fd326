package message

import "errors"

// Errors returned by the message package.
var (
	// ErrEmptyFrame is returned when decoding a zero-length frame.
	ErrEmptyFrame = errors.New("message: empty frame")

	// ErrShortPayload is returned when a payload is too short to
	// contain the field being extracted from it.
	ErrShortPayload = errors.New("message: payload too short")
)
