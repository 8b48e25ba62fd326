// Package lockapi is the typed operation surface built on CommandMux:
// open/close/pull-spring, state and settings queries, firmware
// version, signed-time delivery, signed-serial retrieval, and device
// registration, each translating the lock's result-code byte into a
// Go error and retrying BUSY transparently.
package lockapi

import (
	"context"
	"time"

	"github.com/lockcore/smartlock-core/pkg/commandmux"
	"github.com/lockcore/smartlock-core/pkg/config"
	"github.com/lockcore/smartlock-core/pkg/message"
)

// Encoder produces the outbound frame bytes for an encrypted command.
// SessionSupervisor supplies the ready SecureSession as the Encoder;
// add-lock mode (no session) never calls the encrypted operations.
type Encoder interface {
	Encode(command byte, payload []byte) ([]byte, error)
}

// Writer transmits one already-framed outbound message.
type Writer interface {
	Write(ctx context.Context, frame []byte) error
}

// StateRefresher opportunistically re-reads lock state after a
// GeneralLockError on open/close/pullSpring. It is satisfied by
// LockApi itself; kept as an interface only to avoid a self-reference
// at construction time.
type StateRefresher interface {
	GetState(ctx context.Context) error
}

// LockApi is the typed operation layer. It holds no connection state
// of its own: SessionSupervisor constructs one per ready session and
// discards it on teardown.
type LockApi struct {
	mux    *commandmux.Mux
	encode Encoder
	write  Writer
	cfg    config.Config
}

// New creates a LockApi over an already-wired CommandMux, encoder, and
// writer.
func New(mux *commandmux.Mux, encoder Encoder, writer Writer, cfg config.Config) *LockApi {
	return &LockApi{mux: mux, encode: encoder, write: writer, cfg: cfg.WithDefaults()}
}

// OpenLock unlocks with the given parameter byte (see config.LockParam).
func (a *LockApi) OpenLock(ctx context.Context, param config.LockParam) error {
	_, err := a.sendWithRetry(ctx, cmdOpenLock, []byte{byte(param)}, func() error { return &GeneralLockError{Code: byte(ResultError)} })
	if err != nil {
		a.refreshStateBestEffort(ctx, err)
	}
	return err
}

// CloseLock locks with the given parameter byte.
func (a *LockApi) CloseLock(ctx context.Context, param config.LockParam) error {
	_, err := a.sendWithRetry(ctx, cmdCloseLock, []byte{byte(param)}, func() error { return &GeneralLockError{Code: byte(ResultError)} })
	if err != nil {
		a.refreshStateBestEffort(ctx, err)
	}
	return err
}

// PullSpring actuates the pull-spring mechanism.
func (a *LockApi) PullSpring(ctx context.Context, param config.LockParam) error {
	_, err := a.sendWithRetry(ctx, cmdPullSpring, []byte{byte(param)}, func() error { return &GeneralLockError{Code: byte(ResultError)} })
	if err != nil {
		a.refreshStateBestEffort(ctx, err)
	}
	return err
}

// GetState requests a fresh lock state snapshot. Its payload is not
// otherwise interpreted here (the caller's state model is out of
// scope for this package); a successful response just confirms the
// lock answered.
func (a *LockApi) GetState(ctx context.Context) error {
	_, err := a.sendWithRetry(ctx, cmdGetState, nil, func() error { return &GeneralLockError{Code: byte(ResultError)} })
	return err
}

// refreshStateBestEffort opportunistically re-reads lock state after a
// GeneralLockError: fired only for that one error class, and
// its own failure is silently discarded.
func (a *LockApi) refreshStateBestEffort(ctx context.Context, cause error) {
	if _, ok := cause.(*GeneralLockError); !ok {
		return
	}
	_ = a.GetState(ctx)
}

// GetSettings retrieves and parses the lock's configured behavior.
func (a *LockApi) GetSettings(ctx context.Context) (DeviceSettings, error) {
	payload, err := a.sendWithRetry(ctx, cmdGetSettings, nil, func() error { return &GeneralLockError{Code: byte(ResultError)} })
	if err != nil {
		return DeviceSettings{}, err
	}
	return parseSettings(payload)
}

// GetVersion retrieves and parses the lock's firmware version.
func (a *LockApi) GetVersion(ctx context.Context) (FirmwareVersion, error) {
	payload, err := a.sendWithRetry(ctx, cmdGetVersion, nil, func() error { return &GeneralLockError{Code: byte(ResultError)} })
	if err != nil {
		return FirmwareVersion{}, err
	}
	return parseVersion(payload)
}

// RegisterDevice submits the mobile's registration payload (add-lock
// mode; sent in plaintext since no session exists yet).
func (a *LockApi) RegisterDevice(ctx context.Context, payload []byte) error {
	_, err := a.sendPlaintextWithRetry(ctx, cmdRegisterDevice, payload, func() error { return ErrRegisterDevice })
	return err
}

// SetSignedTime delivers a signed-time blob to the lock in plaintext
// and waits for the lock's NOTIFICATION_SIGNED_DATETIME acknowledgment
// rather than an ordinary indication, matching the way the lock
// answers this particular command asynchronously.
func (a *LockApi) SetSignedTime(ctx context.Context, signedTime []byte) error {
	notifCh, cancel := a.mux.Subscribe()
	defer cancel()

	frame := message.EncodeOutbound(message.KindDataNotEncrypted, message.EncodePlaintext(CmdSetSignedTime, signedTime))
	if err := a.write.Write(ctx, frame); err != nil {
		return err
	}

	timer := time.NewTimer(a.cfg.CommandTimeout)
	defer timer.Stop()
	for {
		select {
		case n, ok := <-notifCh:
			if !ok {
				return commandmux.ErrNotificationClose
			}
			if n.Command != NotifSignedDatetime || len(n.Payload) < 1 {
				continue
			}
			return mapResult(ResultCode(n.Payload[0]), func() error { return ErrSetSignedTime })
		case <-timer.C:
			return commandmux.ErrTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RequestSignedSerial performs the two-step signature retrieval:
// subscribing to NOTIFICATION_SIGNED_SERIAL before issuing
// REQUEST_SIGNED_SERIAL closes the race where the notification could
// otherwise arrive before a late subscription observes it.
func (a *LockApi) RequestSignedSerial(ctx context.Context) ([]byte, error) {
	notifCh, cancel := a.mux.Subscribe()
	defer cancel()

	if _, err := a.sendWithRetry(ctx, cmdRequestSignedSerial, nil, func() error { return ErrRequestSignature }); err != nil {
		return nil, err
	}

	timer := time.NewTimer(a.cfg.CommandTimeout)
	defer timer.Stop()
	for {
		select {
		case n, ok := <-notifCh:
			if !ok {
				return nil, commandmux.ErrNotificationClose
			}
			if n.Command != notifSignedSerial {
				continue
			}
			return n.Payload, nil
		case <-timer.C:
			return nil, commandmux.ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// WaitForLockStatusChange blocks until a lock status notification
// reports the target state, failing fast on JAMMED or TIMEOUT status
// bytes regardless of which state they were reported against.
func (a *LockApi) WaitForLockStatusChange(ctx context.Context, target byte) error {
	timeout := a.cfg.CommandTimeout
	n, err := a.mux.AwaitNotification(ctx, timeout, func(n commandmux.Notification) bool {
		return n.Command == NotifLockStatusChange && len(n.Payload) >= 2
	})
	if err != nil {
		return err
	}
	state, status := n.Payload[0], LockStatus(n.Payload[1])
	switch status {
	case LockStatusJammed:
		return ErrLockJammed
	case LockStatusTimeout:
		return ErrLockNotResponding
	}
	if state != target {
		return a.WaitForLockStatusChange(ctx, target)
	}
	return nil
}

// sendWithRetry issues an encrypted request, transparently retrying a
// BUSY result with cfg.BusyRetryDelay spacing for at most
// cfg.BusyRetryAttempts attempts in all (the first one included), and
// returns the raw response payload (including its result
// byte) on success.
func (a *LockApi) sendWithRetry(ctx context.Context, command byte, payload []byte, onError opErr) ([]byte, error) {
	return a.retryLoop(ctx, func() (interface{}, error) {
		return a.mux.Request(ctx, command, a.cfg.CommandTimeout, func() error {
			frame, err := a.encode.Encode(command, payload)
			if err != nil {
				return err
			}
			return a.write.Write(ctx, frame)
		}, resultMapFn(onError))
	})
}

func (a *LockApi) sendPlaintextWithRetry(ctx context.Context, command byte, payload []byte, onError opErr) ([]byte, error) {
	return a.retryLoop(ctx, func() (interface{}, error) {
		return a.mux.Request(ctx, command, a.cfg.CommandTimeout, func() error {
			frame := message.EncodeOutbound(message.KindDataNotEncrypted, message.EncodePlaintext(command, payload))
			return a.write.Write(ctx, frame)
		}, resultMapFn(onError))
	})
}

func resultMapFn(onError opErr) commandmux.MapFn {
	return func(r commandmux.Response) (interface{}, error) {
		if len(r.Payload) < 1 {
			return nil, ErrInvalidParam
		}
		if err := mapResult(ResultCode(r.Payload[0]), onError); err != nil {
			return nil, err
		}
		return r.Payload, nil
	}
}

func (a *LockApi) retryLoop(ctx context.Context, attempt func() (interface{}, error)) ([]byte, error) {
	var lastErr error
	for i := 1; i <= a.cfg.BusyRetryAttempts; i++ {
		result, err := attempt()
		if err == nil {
			payload, _ := result.([]byte)
			return payload, nil
		}
		lastErr = err
		if err != ErrBusy || i == a.cfg.BusyRetryAttempts {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.cfg.BusyRetryDelay):
		}
	}
	return nil, lastErr
}
