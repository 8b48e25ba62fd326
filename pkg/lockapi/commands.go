package lockapi

// Command bytes. OpenLock (0x51) is pinned by the open-lock end-to-end
// scenario; GetSettings (0x20), RequestSignedSerial (0x74), and the
// NOTIFICATION_SIGNED_SERIAL/NOTIFICATION_SIGNED_DATETIME/
// NOTIFICATION_LOCK_STATUS_CHANGE type bytes below are pinned the same
// way. The remaining command bytes are not pinned by an observable
// scenario; DESIGN.md records the assignment chosen here.
const (
	cmdCloseLock           byte = 0x50
	cmdOpenLock            byte = 0x51
	cmdPullSpring          byte = 0x52
	cmdGetState            byte = 0x53
	cmdGetSettings         byte = 0x20
	cmdGetVersion          byte = 0x21
	cmdRequestSignedSerial byte = 0x74
	cmdRegisterDevice      byte = 0x76

	// CmdSetSignedTime is exported: SessionSupervisor writes this
	// command directly, in plaintext, as part of its signed-time
	// recovery flow, without going through a LockApi instance (which
	// may not exist yet mid-handshake).
	CmdSetSignedTime byte = 0x75
)

// Notification type bytes (the first payload byte of a notification,
// used as its command key in commandmux).
const (
	notifSignedSerial byte = 0x7A

	// NotifSignedDatetime, NotifNeedDateTime, and NotifLockStatusChange
	// are exported for the same reason as CmdSetSignedTime:
	// SessionSupervisor matches on them directly while driving the
	// signed-time recovery flow and forwarding lock status to its
	// ConnectionListener.
	NotifSignedDatetime   byte = 0x7B
	NotifNeedDateTime     byte = 0xBB
	NotifLockStatusChange byte = 0xBA
)

// Lock status byte, the third byte of a NOTIFICATION_LOCK_STATUS_CHANGE
// frame (after the notification type and the state byte).
type LockStatus byte

const (
	LockStatusOK      LockStatus = 0x00
	LockStatusJammed  LockStatus = 0x01
	LockStatusTimeout LockStatus = 0x02
)
