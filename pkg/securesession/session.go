// Package securesession implements the client side of the lock's
// secure-channel handshake and the encrypted request/response envelope
// that rides on top of it once the session is ready. It drives the
// SecureSessionCrypto capability (see crypto.go) through the six
// handshake steps and hands the resulting AEAD oracle to CommandMux.
package securesession

import (
	"sync"
	"time"

	"github.com/lockcore/smartlock-core/pkg/message"
	"github.com/pion/logging"
)

// State is the coarse lifecycle of a SecureSession.
type State uint8

const (
	StateHandshaking State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type handshakeStep uint8

const (
	stepAwaitServerHello handshakeStep = iota
	stepAwaitServerVerify
	stepAwaitSessionInitialized
	stepDone
)

// DefaultChunkSize is the CLIENT_VERIFY payload chunk size used when a
// caller does not have a tighter MTU-derived bound to enforce. The
// payload (a 65-byte public key plus a 32-byte HMAC tag, 97 bytes
// total) is smaller than this size, so with the default it goes out as
// a single CLIENT_VERIFY_END frame; a smaller chunk size splits it
// across several frames.
const DefaultChunkSize = 180

// SecureSession drives one instance of the certificate-authenticated
// ECDH handshake and, once ready, encrypts and decrypts command
// traffic through the resulting Oracle. Its methods serialize on an
// internal mutex, so concurrent calls are safe; inbound frames still
// have to be fed to Advance in arrival order.
type SecureSession struct {
	mu     sync.Mutex
	crypto Crypto
	chunk  int
	now    func() time.Time
	log    logging.LeveledLogger

	state  State
	step   handshakeStep
	oracle Oracle
}

// Option configures a SecureSession at construction time.
type Option func(*SecureSession)

// WithChunkSize overrides DefaultChunkSize for CLIENT_VERIFY
// segmentation.
func WithChunkSize(n int) Option {
	return func(s *SecureSession) { s.chunk = n }
}

// WithClock overrides the time source used for the client's time
// verify contribution (tests substitute a fixed clock).
func WithClock(now func() time.Time) Option {
	return func(s *SecureSession) { s.now = now }
}

// New creates a SecureSession around a Crypto capability. loggerFactory
// may be nil, in which case a disabled logger is used.
func New(crypto Crypto, loggerFactory logging.LoggerFactory, opts ...Option) *SecureSession {
	s := &SecureSession{
		crypto: crypto,
		chunk:  DefaultChunkSize,
		now:    time.Now,
		state:  StateHandshaking,
		step:   stepAwaitServerHello,
	}
	if loggerFactory != nil {
		s.log = loggerFactory.NewLogger("securesession")
	} else {
		s.log = logging.NewDefaultLoggerFactory().NewLogger("securesession")
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports the session's current lifecycle state.
func (s *SecureSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins the handshake, returning the outbound HELLO frame. It
// may be called more than once while still awaiting SERVER_HELLO (a
// resend after a client-side timeout): each call resets the crypto
// capability first, since a resent HELLO must produce the same
// transcript the peer computes from the HELLO it actually received,
// not one with a stale HELLO folded in ahead of it.
func (s *SecureSession) Start() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateHandshaking || s.step != stepAwaitServerHello {
		return nil, ErrAlreadyReady
	}
	s.crypto.Reset()
	hello, err := s.crypto.ClientHello()
	if err != nil {
		return nil, err
	}
	s.log.Debug("sending HELLO")
	return message.EncodeOutbound(message.KindHello, hello), nil
}

// Advance feeds one inbound frame to the handshake (or, once ready, to
// the encrypted envelope) and returns any frames that must be written
// back to the lock in response. A non-nil Oracle is returned exactly
// once, on the frame that completes the handshake.
//
// An *AlertError is returned unwrapped so callers can type-assert it;
// SessionSupervisor treats it as a signal to tear down and restart
// rather than a generic failure.
func (s *SecureSession) Advance(frame message.Frame) ([][]byte, Oracle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil, nil, ErrClosed
	}
	if frame.Kind == message.KindAlert {
		alert, err := parseAlert(frame.Rest)
		if err != nil {
			return nil, nil, err
		}
		s.log.Warnf("received alert: %v", alert)
		return nil, nil, alert
	}

	switch s.step {
	case stepAwaitServerHello:
		return s.handleServerHello(frame)
	case stepAwaitServerVerify:
		return s.handleServerVerify(frame)
	case stepAwaitSessionInitialized:
		return s.handleSessionInitialized(frame)
	default:
		return nil, nil, ErrUnexpectedFrame
	}
}

func (s *SecureSession) handleServerHello(frame message.Frame) ([][]byte, Oracle, error) {
	if frame.Kind != message.KindHello {
		return nil, nil, ErrUnexpectedFrame
	}
	if err := s.crypto.HandleServerHello(frame.Rest); err != nil {
		return nil, nil, err
	}
	timeVerify := s.crypto.ClientTimeVerify(s.now())
	s.step = stepAwaitServerVerify
	s.log.Debug("sending SERVER_VERIFY time contribution")
	return [][]byte{message.EncodeOutbound(message.KindServerVerify, timeVerify)}, nil, nil
}

func (s *SecureSession) handleServerVerify(frame message.Frame) ([][]byte, Oracle, error) {
	if frame.Kind != message.KindServerVerify {
		return nil, nil, ErrUnexpectedFrame
	}
	if err := s.crypto.VerifyServerRecord(frame.Rest); err != nil {
		return nil, nil, err
	}
	payload, err := s.crypto.ClientVerifyPayload()
	if err != nil {
		return nil, nil, err
	}
	s.step = stepAwaitSessionInitialized
	s.log.Debugf("sending CLIENT_VERIFY in %d-byte chunks", s.chunk)
	return chunkClientVerify(payload, s.chunk), nil, nil
}

func (s *SecureSession) handleSessionInitialized(frame message.Frame) ([][]byte, Oracle, error) {
	if frame.Kind != message.KindSessionInitialized {
		return nil, nil, ErrUnexpectedFrame
	}
	oracle, err := s.crypto.HandleSessionInitialized(frame.Rest)
	if err != nil {
		return nil, nil, err
	}
	s.oracle = oracle
	s.state = StateReady
	s.step = stepDone
	s.log.Debug("session ready")
	return nil, oracle, nil
}

// Encrypt wraps a command/payload pair into a complete DATA_ENCRYPTED
// frame (kind byte included) via the session's Oracle. It fails with ErrNotReady before the
// handshake completes.
func (s *SecureSession) Encrypt(command byte, payload []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return nil, ErrNotReady
	}
	body, err := s.oracle.Encrypt(command, payload)
	if err != nil {
		return nil, err
	}
	return message.EncodeOutbound(message.KindDataEncrypted, body), nil
}

// Decrypt unwraps a DATA_ENCRYPTED frame's body into a command and
// payload. It fails with ErrNotReady before the handshake completes.
func (s *SecureSession) Decrypt(body []byte) (byte, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return 0, nil, ErrNotReady
	}
	return s.oracle.Decrypt(body)
}

// Close tears the session down, zeroing any derived key material. It
// is safe to call more than once.
func (s *SecureSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	if s.oracle != nil {
		s.oracle.Zero()
	}
	s.crypto.Reset()
	s.state = StateClosed
}

// chunkClientVerify splits payload into frames no larger than size,
// using KindClientVerify for every chunk but the last and
// KindClientVerifyEnd for the last. A payload that fits in one chunk
// still gets exactly one CLIENT_VERIFY_END frame and no CLIENT_VERIFY
// frames.
func chunkClientVerify(payload []byte, size int) [][]byte {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(payload) == 0 {
		return [][]byte{message.EncodeOutbound(message.KindClientVerifyEnd, nil)}
	}

	var frames [][]byte
	for offset := 0; offset < len(payload); offset += size {
		end := offset + size
		if end >= len(payload) {
			frames = append(frames, message.EncodeOutbound(message.KindClientVerifyEnd, payload[offset:]))
			break
		}
		frames = append(frames, message.EncodeOutbound(message.KindClientVerify, payload[offset:end]))
	}
	return frames
}
