package lockapi

import "encoding/binary"

// DeviceSettings is the parsed GET_SETTINGS response: a flag byte
// followed by four u16 BE delays and a trailing revision field. This
// byte order was picked to match the worked GET_SETTINGS example
// rather than the prose description of field order, which the two
// disagree on; see DESIGN.md's Open Question resolution.
type DeviceSettings struct {
	Revision uint16

	AutoLockEnabled         bool
	AutoLockImplicitEnabled bool
	PullSpringEnabled       bool
	AutoPullSpringEnabled   bool
	PostponedLockEnabled    bool
	ButtonLockEnabled       bool
	ButtonUnlockEnabled     bool

	AutoLockDelay         uint16
	PullSpringDuration    uint16
	PostponedLockDelay    uint16
	AutoLockImplicitDelay uint16
}

// flag bit positions, numbered 7..1 (bit 0 is unused).
const (
	flagAutoLockEnabled         = 1 << 7
	flagAutoLockImplicitEnabled = 1 << 6
	flagPullSpringEnabled       = 1 << 5
	flagAutoPullSpringEnabled   = 1 << 4
	flagPostponedLockEnabled    = 1 << 3
	flagButtonLockEnabled       = 1 << 2
	flagButtonUnlockEnabled     = 1 << 1
)

// parseSettings decodes a GET_SETTINGS indication payload (everything
// after the command byte: payload[0] is the result code, the 11-byte
// settings body follows).
func parseSettings(payload []byte) (DeviceSettings, error) {
	if len(payload) < 12 {
		return DeviceSettings{}, ErrInvalidParam
	}
	body := payload[1:]
	flags := body[0]
	return DeviceSettings{
		AutoLockEnabled:         flags&flagAutoLockEnabled != 0,
		AutoLockImplicitEnabled: flags&flagAutoLockImplicitEnabled != 0,
		PullSpringEnabled:       flags&flagPullSpringEnabled != 0,
		AutoPullSpringEnabled:   flags&flagAutoPullSpringEnabled != 0,
		PostponedLockEnabled:    flags&flagPostponedLockEnabled != 0,
		ButtonLockEnabled:       flags&flagButtonLockEnabled != 0,
		ButtonUnlockEnabled:     flags&flagButtonUnlockEnabled != 0,
		AutoLockDelay:           binary.BigEndian.Uint16(body[1:3]),
		PullSpringDuration:      binary.BigEndian.Uint16(body[3:5]),
		PostponedLockDelay:      binary.BigEndian.Uint16(body[5:7]),
		AutoLockImplicitDelay:   binary.BigEndian.Uint16(body[7:9]),
		Revision:                binary.BigEndian.Uint16(body[9:11]),
	}, nil
}
