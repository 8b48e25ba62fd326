package commandmux

import "errors"

// Errors returned by the commandmux package.
var (
	ErrTimeout           = errors.New("commandmux: timed out waiting for a response")
	ErrPending           = errors.New("commandmux: a request for this command is already pending")
	ErrClosed            = errors.New("commandmux: closed")
	ErrUnsolicited       = errors.New("commandmux: response received with no pending request")
	ErrNotificationClose = errors.New("commandmux: notification bus closed while waiting")
)
