package transport

import "errors"

// Errors returned by the transport package. Central and Connection
// implementations return these either directly or wrapped with %w;
// RetryPolicy and SessionSupervisor classify a failure with errors.Is
// without depending on a concrete implementation's error type.
var (
	ErrScanTimeout      = errors.New("transport: scan timed out without finding the device")
	ErrScanThrottled    = errors.New("transport: platform is throttling scan requests")
	ErrCharNotFound     = errors.New("transport: required GATT characteristic not found")
	ErrNotConnected     = errors.New("transport: not connected")
	ErrAlreadyConnected = errors.New("transport: already connected")
	ErrConnectFailed    = errors.New("transport: connect failed")
	ErrClosed           = errors.New("transport: closed")
)
