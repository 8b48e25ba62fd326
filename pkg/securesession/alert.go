package securesession

import "fmt"

// AlertError wraps an ALERT frame's code so callers can type-switch on
// it (SessionSupervisor branches its recovery behavior per code).
type AlertError struct {
	Code AlertCode
}

func (e *AlertError) Error() string {
	switch e.Code {
	case AlertNoTrustedTime:
		return "securesession: lock reports no trusted time"
	case AlertTimeout:
		return "securesession: handshake timed out"
	case AlertInvalidCert:
		return "securesession: certificate rejected"
	case AlertNotRegistered:
		return "securesession: mobile not registered"
	default:
		return fmt.Sprintf("securesession: alert 0x%02x", uint8(e.Code))
	}
}

func parseAlert(rest []byte) (*AlertError, error) {
	if len(rest) < 1 {
		return nil, ErrMalformedAlert
	}
	return &AlertError{Code: AlertCode(rest[0])}, nil
}
