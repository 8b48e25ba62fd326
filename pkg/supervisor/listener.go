package supervisor

import "context"

// State is the supervisor's coarse connection lifecycle.
type State uint8

const (
	StateDisconnected State = iota
	StateScanning
	StateLinking
	StateHandshaking
	StateRefreshingTime
	StateReady
	StateReadyUnsecure
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateScanning:
		return "scanning"
	case StateLinking:
		return "linking"
	case StateHandshaking:
		return "handshaking"
	case StateRefreshingTime:
		return "refreshing_time"
	case StateReady:
		return "ready"
	case StateReadyUnsecure:
		return "ready_unsecure"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SignedTimeProvider fetches a fresh signed-time blob from whatever
// external authority the caller trusts (typically a backend call).
// Supervisor invokes this only in reaction to a NoTrustedTime alert or
// a NOTIFICATION_NEED_DATE_TIME notification; it never polls.
type SignedTimeProvider interface {
	SignedTime(ctx context.Context) ([]byte, error)
}

// ConnectionListener receives lifecycle events for a secure-mode
// connection (a lock the mobile has already registered with).
type ConnectionListener interface {
	// OnConnectionChanged reports connect/disconnect transitions:
	// (true, false) when a connect starts, (false, true) once the
	// handshake has made the session ready, and (false, false) when
	// the attempt fails or Close runs.
	OnConnectionChanged(connecting, connected bool)

	// OnLockStatusChanged reports an unsolicited lock status
	// notification once the session is ready.
	OnLockStatusChanged(state byte, status byte)

	// OnNotification reports any other unsolicited notification not
	// otherwise interpreted by this package.
	OnNotification(command byte, payload []byte)

	// OnError reports a terminal or recoverable failure. err's
	// concrete type indicates severity; nonRetryable errors mean the
	// supervisor has stopped and will not reconnect on its own.
	OnError(err error)
}

// UnsecureConnectionListener is ConnectionListener's counterpart for
// add-lock mode, used before a certificate exists to authenticate the
// secure channel.
type UnsecureConnectionListener interface {
	OnUnsecureConnectionChanged(connecting, connected bool)
	OnError(err error)
}
