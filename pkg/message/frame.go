// Package message implements the wire framing used between the lock's
// GATT characteristics and the upper protocol layers: stripping and
// inserting the 4-bit protocol header that prefixes every frame, and
// the plaintext/encrypted envelope carried once a session is ready.
package message

import "fmt"

// Kind identifies the low nibble of a frame's first byte. The values
// are opaque on the wire; only their identity matters to this layer.
type Kind uint8

// Frame kinds, per the lock's secure-channel wire format.
const (
	KindHello              Kind = 1
	KindServerVerify       Kind = 2
	KindClientVerify       Kind = 3
	KindClientVerifyEnd    Kind = 4
	KindAlert              Kind = 5
	KindSessionInitialized Kind = 6
	KindDataEncrypted      Kind = 7
	KindDataNotEncrypted   Kind = 8
)

// String renders a Kind for logs.
func (k Kind) String() string {
	switch k {
	case KindHello:
		return "HELLO"
	case KindServerVerify:
		return "SERVER_VERIFY"
	case KindClientVerify:
		return "CLIENT_VERIFY"
	case KindClientVerifyEnd:
		return "CLIENT_VERIFY_END"
	case KindAlert:
		return "ALERT"
	case KindSessionInitialized:
		return "SESSION_INITIALIZED"
	case KindDataEncrypted:
		return "DATA_ENCRYPTED"
	case KindDataNotEncrypted:
		return "DATA_NOT_ENCRYPTED"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Frame is a decoded transport unit: a kind plus everything after the
// header byte. Counter is informational only (used for logging); the
// core does not act on it.
type Frame struct {
	Kind    Kind
	Counter uint8
	Rest    []byte
}

// Decode strips the header byte from a raw frame, splitting it into
// the low-nibble Kind, the high-nibble counter, and the remaining
// bytes. It never mutates raw.
func Decode(raw []byte) (Frame, error) {
	if len(raw) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	header := raw[0]
	rest := make([]byte, len(raw)-1)
	copy(rest, raw[1:])
	return Frame{
		Kind:    Kind(header & 0x0F),
		Counter: header >> 4,
		Rest:    rest,
	}, nil
}

// Rewrite returns the frame body upper layers see: the header byte
// overwritten with the nibble-only kind, followed by Rest. This is
// the clean (kind, rest[]) form the framer produces.
func (f Frame) Rewrite() []byte {
	out := make([]byte, 0, len(f.Rest)+1)
	out = append(out, byte(f.Kind))
	out = append(out, f.Rest...)
	return out
}

// EncodeOutbound builds an outbound wire frame for the given kind and
// body. The Framer does not track or write a counter for outbound
// frames: the lower transport writes the message as given, and
// callers (SecureSession, LockApi, the supervisor) prepend the kind
// byte themselves via this helper.
func EncodeOutbound(kind Kind, body []byte) []byte {
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(kind))
	out = append(out, body...)
	return out
}
