package lockapi

import (
	"encoding/binary"
	"fmt"
)

// FirmwareVersion is the parsed GET_VERSION response.
type FirmwareVersion struct {
	Major    uint8
	Minor    uint8
	Build    uint16
	Revision uint8
}

// String renders the version the way the lock's companion app does:
// major.minor.build, with revision omitted.
func (v FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}

// parseVersion decodes a GET_VERSION indication payload:
// (result, major, minor, build u16 BE, revision).
func parseVersion(payload []byte) (FirmwareVersion, error) {
	if len(payload) < 6 {
		return FirmwareVersion{}, ErrInvalidParam
	}
	return FirmwareVersion{
		Major:    payload[1],
		Minor:    payload[2],
		Build:    binary.BigEndian.Uint16(payload[3:5]),
		Revision: payload[5],
	}, nil
}
