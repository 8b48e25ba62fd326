// Package transport implements the BLE central role that carries raw
// frames between the mobile process and the lock's four GATT
// characteristics: discovery by service UUID and serial suffix,
// connecting, requesting a high-priority connection interval, and
// writing/subscribing to the send, secure-notify, lock-indicate, and
// lock-notify characteristics.
package transport

import "context"

// Characteristic identifies one of the lock's four fixed GATT
// characteristics that this layer reads or writes.
type Characteristic uint8

const (
	// CharSend is written to by the mobile to carry outbound frames.
	CharSend Characteristic = iota
	// CharSecureNotify carries inbound secure-channel frames (HELLO,
	// SERVER_VERIFY, ALERT, SESSION_INITIALIZED, DATA_ENCRYPTED).
	CharSecureNotify
	// CharLockIndicate carries inbound command responses:
	// DATA_NOT_ENCRYPTED in add-lock mode, DATA_ENCRYPTED once a
	// secure session is ready.
	CharLockIndicate
	// CharLockNotify carries inbound lock notifications (status
	// changes, the signed-time acknowledgment), plaintext or
	// encrypted; the lock may also answer commands here.
	CharLockNotify
)

// DeviceHandle identifies a discovered lock peripheral well enough to
// connect to it again without repeating discovery. Its Ref is opaque
// to callers above this package (a BlueZ D-Bus object path on Linux).
type DeviceHandle struct {
	Serial string
	Ref    string
}

// FrameHandler receives one inbound notification/indication payload
// exactly as delivered by the peripheral, including its frame-kind
// header byte. It must not block; long work should be handed off.
type FrameHandler func(Characteristic, []byte)

// Connection is a live link to one lock peripheral. All methods are
// safe for concurrent use except where noted.
type Connection interface {
	// RequestHighPriority asks the platform for the shortest available
	// connection interval, reducing latency for the handshake and
	// command traffic. Failure to negotiate a better interval is not
	// fatal; callers should log and continue.
	RequestHighPriority(ctx context.Context) error

	// SetupNotifications subscribes to the three inbound
	// characteristics and installs handler for delivery. It must be
	// called before Write to avoid a race where the peripheral replies
	// before the subscription is active.
	SetupNotifications(ctx context.Context, handler FrameHandler) error

	// Write sends one frame on the send characteristic.
	Write(ctx context.Context, frame []byte) error

	// Close disconnects and releases the connection's resources. Safe
	// to call more than once.
	Close() error
}

// Central is the BLE central capability this package wraps: scanning
// for a lock by serial and connecting to it. Linux
// production code backs this with BlueZ over D-Bus (see blz_linux.go);
// tests use the in-memory fake in fake.go.
type Central interface {
	// ScanFor discovers the single lock peripheral advertising the
	// given serial suffix, honoring ctx for cancellation/timeout.
	ScanFor(ctx context.Context, serial string) (DeviceHandle, error)

	// Connect establishes a GATT connection to a previously discovered
	// (or previously known) device.
	Connect(ctx context.Context, device DeviceHandle) (Connection, error)
}
