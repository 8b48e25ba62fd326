package lockapi

// ResultCode is the byte at index 1 of an indication response
// (the byte right after the command byte).
type ResultCode byte

// Result codes returned in the first byte of a command response.
const (
	ResultSuccess                  ResultCode = 0x00
	ResultInvalidParam             ResultCode = 0x01
	ResultError                    ResultCode = 0x02
	ResultBusy                     ResultCode = 0x03
	ResultNotCalibrated            ResultCode = 0x05
	ResultUnlockCalledByAutounlock ResultCode = 0x06
	ResultNoPermission             ResultCode = 0x07
	ResultNotConfigured            ResultCode = 0x08
	ResultDismounted               ResultCode = 0x09
	ResultUnlockCalledByOther      ResultCode = 0x0A
)

// opErr is the ERROR (0x02) mapping for an operation whose meaning is
// op-specific.
type opErr func() error

// mapResult applies the shared portion of the result-code table,
// deferring to onError for the operation-specific 0x02 mapping.
func mapResult(code ResultCode, onError opErr) error {
	switch code {
	case ResultSuccess:
		return nil
	case ResultInvalidParam:
		return ErrInvalidParam
	case ResultError:
		return onError()
	case ResultBusy:
		return ErrBusy
	case ResultNotCalibrated:
		return ErrNotCalibrated
	case ResultUnlockCalledByAutounlock:
		return ErrAutoUnlockAlreadyCalled
	case ResultNoPermission:
		return &DeviceNeedsResetError{FromOldVersion: true}
	case ResultNotConfigured:
		return ErrNotConfigured
	case ResultDismounted:
		return ErrDismounted
	case ResultUnlockCalledByOther:
		return ErrUnlockAlreadyCalled
	default:
		return &GeneralLockError{Code: byte(code)}
	}
}
