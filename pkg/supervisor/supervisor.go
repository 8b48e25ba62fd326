package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lockcore/smartlock-core/pkg/commandmux"
	"github.com/lockcore/smartlock-core/pkg/config"
	lockcrypto "github.com/lockcore/smartlock-core/pkg/crypto"
	"github.com/lockcore/smartlock-core/pkg/lockapi"
	"github.com/lockcore/smartlock-core/pkg/message"
	"github.com/lockcore/smartlock-core/pkg/securesession"
	"github.com/lockcore/smartlock-core/pkg/transport"
	"github.com/pion/logging"
)

// maxHelloResends bounds how many times the handshake's HELLO timer or
// an explicit Timeout alert will make Supervisor resend HELLO before
// giving up on the current connection attempt.
const maxHelloResends = 2

// inboundFrame is one notification/indication delivered by the
// transport, tagged with the characteristic it arrived on.
type inboundFrame struct {
	ch   transport.Characteristic
	body []byte
}

// sessionEncoder adapts SecureSession's Encrypt method to LockApi's
// Encoder interface.
type sessionEncoder struct{ session *securesession.SecureSession }

func (e sessionEncoder) Encode(command byte, payload []byte) ([]byte, error) {
	return e.session.Encrypt(command, payload)
}

// unsecureEncoder satisfies lockapi.Encoder for add-lock mode, where
// no certificate and no SecureSession exist yet. RegisterDevice and
// the rest of add-lock mode's traffic go out in plaintext through
// LockApi's sendPlaintextWithRetry path, which never calls Encode; a
// call here means a caller reached for an encrypted operation before
// registering, which is a caller bug rather than something to recover
// from at runtime.
type unsecureEncoder struct{}

func (unsecureEncoder) Encode(command byte, payload []byte) ([]byte, error) {
	return nil, ErrNotReady
}

// Supervisor owns one lock connection end to end: scanning, linking,
// the secure handshake, alert-driven recovery, and the ready LockApi
// it hands to its caller. One Supervisor serves one lock; a caller
// managing several locks constructs one Supervisor per lock.
type Supervisor struct {
	central       transport.Central
	keystore      lockcrypto.Keystore
	cert          *lockcrypto.DeviceCertificate
	cfg           config.Config
	timeProvider  SignedTimeProvider
	listener      ConnectionListener
	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger

	mu               sync.Mutex
	unsecureListener UnsecureConnectionListener
	state            State
	conn             transport.Connection
	session          *securesession.SecureSession
	mux              *commandmux.Mux
	api              *lockapi.LockApi

	cancel context.CancelFunc
}

// New creates a Supervisor for one lock. keystore and cert supply the
// certificate-authenticated handshake's key material; timeProvider and
// listener may be nil for callers that never need signed-time recovery
// or lifecycle callbacks, respectively.
func New(central transport.Central, keystore lockcrypto.Keystore, cert *lockcrypto.DeviceCertificate, cfg config.Config, timeProvider SignedTimeProvider, listener ConnectionListener, loggerFactory logging.LoggerFactory) *Supervisor {
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &Supervisor{
		central:       central,
		keystore:      keystore,
		cert:          cert,
		cfg:           cfg.WithDefaults(),
		timeProvider:  timeProvider,
		listener:      listener,
		loggerFactory: loggerFactory,
		log:           loggerFactory.NewLogger("supervisor"),
		state:         StateDisconnected,
	}
}

// State reports the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// API returns the ready, secure-session-backed LockApi, or ErrNotReady
// before the handshake completes.
func (s *Supervisor) API() (*lockapi.LockApi, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || s.api == nil {
		return nil, ErrNotReady
	}
	return s.api, nil
}

// UnsecureAPI returns the plaintext LockApi reached via ConnectUnsecure
// (add-lock mode), or ErrNotReady before that connection is up. Only
// RegisterDevice and SetSignedTime work over it; every other LockApi
// method goes through the encrypted session ConnectUnsecure never
// establishes and fails.
func (s *Supervisor) UnsecureAPI() (*lockapi.LockApi, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReadyUnsecure || s.api == nil {
		return nil, ErrNotReady
	}
	return s.api, nil
}

// Connect scans for the lock by serial, links, and drives the secure
// handshake to completion, retrying under the connection's
// RetryPolicy (bounded to three attempts unless cfg.KeepConnection is
// set) until it succeeds, a non-retryable failure occurs, or ctx is
// done. It blocks until the session is Ready or the attempt is
// abandoned.
func (s *Supervisor) Connect(ctx context.Context, serial string) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.listener != nil {
		s.listener.OnConnectionChanged(true, false)
	}

	policy := transport.NewRetryPolicy(s.cfg.KeepConnection)
	err := transport.Run(runCtx, policy, func(ctx context.Context) error {
		attemptErr := s.connectOnce(ctx, serial)
		if attemptErr != nil && nonRetryable(attemptErr) {
			cancel()
		}
		return attemptErr
	})
	if err != nil {
		// A bounded (non-KeepConnection) budget that ran out on its own,
		// with neither a nonRetryable early exit nor an external
		// cancellation, is the ConnectionDead(cause) case: every attempt
		// failed and there is nothing left to retry.
		if !s.cfg.KeepConnection && !nonRetryable(err) && ctx.Err() == nil {
			err = &ConnectionDeadError{Cause: err}
		}
		s.setState(StateClosed)
		if s.listener != nil {
			s.listener.OnConnectionChanged(false, false)
			s.listener.OnError(err)
		}
		return err
	}

	if s.listener != nil {
		s.listener.OnConnectionChanged(false, true)
	}
	return nil
}

func (s *Supervisor) connectOnce(ctx context.Context, serial string) error {
	// attemptID correlates every log line this attempt emits, since a
	// caller with KeepConnection set may see many attempts against the
	// same serial and needs to tell them apart in a shared log stream.
	attemptID := uuid.New().String()[:8]
	log := s.loggerFactory.NewLogger("supervisor:" + attemptID)
	log.Infof("connecting to %s", serial)

	s.setState(StateScanning)
	device, err := s.central.ScanFor(ctx, serial)
	if err != nil {
		if errors.Is(err, transport.ErrScanTimeout) {
			return ErrDeviceNotFound
		}
		return err
	}

	s.setState(StateLinking)
	conn, err := s.central.Connect(ctx, device)
	if err != nil {
		return err
	}
	_ = conn.RequestHighPriority(ctx)

	frames := make(chan inboundFrame, 16)
	if err := conn.SetupNotifications(ctx, func(ch transport.Characteristic, body []byte) {
		select {
		case frames <- inboundFrame{ch: ch, body: body}:
		default:
			log.Warn("dropping inbound frame: handler backlog full")
		}
	}); err != nil {
		conn.Close()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mux = commandmux.New()
	s.session = securesession.New(securesession.NewDefaultCrypto(s.keystore, s.cert), s.loggerFactory)
	s.mu.Unlock()

	// secureFrames carries only CharSecureNotify traffic (handshake
	// frames, then DATA_ENCRYPTED once ready, if the lock chooses to
	// answer there). routeFrames dispatches everything else
	// (CharLockIndicate/CharLockNotify traffic, plaintext or encrypted)
	// into the mux directly, independent of handshake progress, since
	// the signed-time recovery dance rides the plaintext channel even
	// mid-handshake and command responses ride the encrypted one once
	// ready.
	secureFrames := make(chan inboundFrame, 16)
	go s.routeFrames(ctx, frames, secureFrames)

	s.setState(StateHandshaking)
	hello, err := s.session.Start()
	if err != nil {
		conn.Close()
		return err
	}
	if err := conn.Write(ctx, hello); err != nil {
		conn.Close()
		return err
	}

	if err := s.driveHandshake(ctx, conn, secureFrames); err != nil {
		conn.Close()
		return err
	}

	go s.serveSecureFrames(ctx, secureFrames)
	go s.forwardNotifications(context.Background())
	return nil
}

// ConnectUnsecure scans for and links to a lock in add-lock mode: no
// certificate exists yet, so no secure handshake is driven and every
// operation rides the plaintext channel. It reaches StateReadyUnsecure
// once notifications are subscribed, at which point UnsecureAPI serves
// a LockApi whose only meaningful operation is RegisterDevice. Retry
// behavior mirrors Connect: bounded to three attempts unless
// cfg.KeepConnection is set, and the same ConnectionDeadError wrapping
// applies once that budget is exhausted.
func (s *Supervisor) ConnectUnsecure(ctx context.Context, serial string, listener UnsecureConnectionListener) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Lock()
	s.unsecureListener = listener
	s.mu.Unlock()

	if listener != nil {
		listener.OnUnsecureConnectionChanged(true, false)
	}

	policy := transport.NewRetryPolicy(s.cfg.KeepConnection)
	err := transport.Run(runCtx, policy, func(ctx context.Context) error {
		attemptErr := s.connectOnceUnsecure(ctx, serial)
		if attemptErr != nil && nonRetryable(attemptErr) {
			cancel()
		}
		return attemptErr
	})
	if err != nil {
		if !s.cfg.KeepConnection && !nonRetryable(err) && ctx.Err() == nil {
			err = &ConnectionDeadError{Cause: err}
		}
		s.setState(StateClosed)
		if listener != nil {
			listener.OnUnsecureConnectionChanged(false, false)
			listener.OnError(err)
		}
		return err
	}

	if listener != nil {
		listener.OnUnsecureConnectionChanged(false, true)
	}
	return nil
}

func (s *Supervisor) connectOnceUnsecure(ctx context.Context, serial string) error {
	attemptID := uuid.New().String()[:8]
	log := s.loggerFactory.NewLogger("supervisor:unsecure:" + attemptID)
	log.Infof("connecting to %s (add-lock)", serial)

	s.setState(StateScanning)
	device, err := s.central.ScanFor(ctx, serial)
	if err != nil {
		if errors.Is(err, transport.ErrScanTimeout) {
			return ErrDeviceNotFound
		}
		return err
	}

	s.setState(StateLinking)
	conn, err := s.central.Connect(ctx, device)
	if err != nil {
		return err
	}
	_ = conn.RequestHighPriority(ctx)

	s.mu.Lock()
	s.conn = conn
	mux := commandmux.New()
	s.mux = mux
	s.mu.Unlock()

	// Add-lock traffic is plaintext end to end, so there is no
	// handshake to drive and no secure/lock-notify split to make:
	// every DATA_NOT_ENCRYPTED frame, on any characteristic, decodes
	// straight into the mux from the notification callback itself.
	if err := conn.SetupNotifications(ctx, func(ch transport.Characteristic, body []byte) {
		frame, err := message.Decode(body)
		if err != nil || frame.Kind != message.KindDataNotEncrypted {
			return
		}
		msg, err := message.DecodePlaintext(frame.Rest)
		if err != nil {
			return
		}
		mux.Dispatch(msg.Command, msg.Payload)
	}); err != nil {
		conn.Close()
		return err
	}

	s.mu.Lock()
	s.api = lockapi.New(s.mux, unsecureEncoder{}, conn, s.cfg)
	s.mu.Unlock()
	s.setState(StateReadyUnsecure)
	return nil
}

// routeFrames splits the raw inbound stream: CharSecureNotify frames
// pass through to the handshake/decrypt consumer unchanged, while
// CharLockIndicate/CharLockNotify frames are handled straight here,
// since those keep flowing during the signed-time recovery dance even
// before the session is ready. Once the session is Ready, the lock
// answers commands sent on CharSend with DATA_ENCRYPTED traffic on
// CharLockIndicate or CharLockNotify, not on CharSecureNotify, so this
// path also decrypts and dispatches those frames rather than only the
// plaintext ones.
func (s *Supervisor) routeFrames(ctx context.Context, frames <-chan inboundFrame, secureFrames chan<- inboundFrame) {
	defer close(secureFrames)
	s.mu.Lock()
	session, mux := s.session, s.mux
	s.mu.Unlock()

	for {
		select {
		case in, ok := <-frames:
			if !ok {
				return
			}
			if in.ch == transport.CharSecureNotify {
				select {
				case secureFrames <- in:
				case <-ctx.Done():
					return
				}
				continue
			}
			frame, err := message.Decode(in.body)
			if err != nil {
				continue
			}
			switch frame.Kind {
			case message.KindDataNotEncrypted:
				msg, err := message.DecodePlaintext(frame.Rest)
				if err != nil {
					continue
				}
				mux.Dispatch(msg.Command, msg.Payload)
			case message.KindDataEncrypted:
				command, payload, err := session.Decrypt(frame.Rest)
				if err != nil {
					s.log.Warnf("dropping undecryptable frame: %v", err)
					continue
				}
				mux.Dispatch(command, payload)
			}
		case <-ctx.Done():
			return
		}
	}
}

// serveSecureFrames decrypts DATA_ENCRYPTED traffic once the session
// is ready and dispatches it into the mux, taking over from
// driveHandshake once the handshake completes.
func (s *Supervisor) serveSecureFrames(ctx context.Context, secureFrames <-chan inboundFrame) {
	s.mu.Lock()
	session, mux := s.session, s.mux
	s.mu.Unlock()

	for {
		select {
		case in, ok := <-secureFrames:
			if !ok {
				return
			}
			frame, err := message.Decode(in.body)
			if err != nil || frame.Kind != message.KindDataEncrypted {
				continue
			}
			command, payload, err := session.Decrypt(frame.Rest)
			if err != nil {
				s.log.Warnf("dropping undecryptable frame: %v", err)
				continue
			}
			mux.Dispatch(command, payload)
		case <-ctx.Done():
			return
		}
	}
}

// driveHandshake pumps inbound secure-notify frames through the
// SecureSession state machine until it reports Ready, resending HELLO
// on a client-side timeout or an explicit Timeout alert, and diverting
// into the signed-time recovery flow on a NoTrustedTime alert.
func (s *Supervisor) driveHandshake(ctx context.Context, conn transport.Connection, frames <-chan inboundFrame) error {
	resends := 0
	timer := time.NewTimer(s.cfg.HelloTimeout)
	defer timer.Stop()

	resendHello := func() error {
		resends++
		if resends > maxHelloResends {
			return ErrTimeout
		}
		hello, err := s.session.Start()
		if err != nil {
			return err
		}
		if err := conn.Write(ctx, hello); err != nil {
			return err
		}
		timer.Reset(s.cfg.HelloTimeout)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if err := resendHello(); err != nil {
				return err
			}
		case in, ok := <-frames:
			if !ok {
				return ErrClosed
			}
			if in.ch != transport.CharSecureNotify {
				continue
			}
			frame, err := message.Decode(in.body)
			if err != nil {
				s.log.Warnf("discarding malformed handshake frame: %v", err)
				continue
			}

			outs, oracle, err := s.session.Advance(frame)
			if err != nil {
				var alert *securesession.AlertError
				if errors.As(err, &alert) {
					switch alert.Code {
					case securesession.AlertTimeout:
						if err := resendHello(); err != nil {
							return err
						}
						continue
					case securesession.AlertNoTrustedTime:
						if err := s.refreshSignedTimeDuringHandshake(ctx, conn); err != nil {
							return err
						}
						if err := resendHello(); err != nil {
							return err
						}
						continue
					case securesession.AlertInvalidCert:
						return ErrInvalidCertificate
					case securesession.AlertNotRegistered:
						return ErrDeviceNotInitialized
					}
				}
				return err
			}

			timer.Reset(s.cfg.HelloTimeout)
			for _, out := range outs {
				if err := conn.Write(ctx, out); err != nil {
					return err
				}
			}
			if oracle != nil {
				s.setState(StateReady)
				s.mu.Lock()
				s.api = lockapi.New(s.mux, sessionEncoder{session: s.session}, conn, s.cfg)
				s.mu.Unlock()
				return nil
			}
		}
	}
}

// refreshSignedTimeDuringHandshake implements the mid-handshake branch
// of signed-time recovery: it blocks the handshake until the
// lock accepts a fresh signed-time blob or the retry budget is
// exhausted, since the handshake cannot proceed without trusted time.
func (s *Supervisor) refreshSignedTimeDuringHandshake(ctx context.Context, conn transport.Connection) error {
	s.setState(StateRefreshingTime)
	defer s.setState(StateHandshaking)

	for attempt := 1; attempt <= s.cfg.TimeRefreshTries; attempt++ {
		if err := s.sendSignedTime(ctx, conn); err == nil {
			return nil
		}
		if attempt == s.cfg.TimeRefreshTries {
			return ErrNoSignedTime
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.TimeRefreshDelay):
		}
	}
	return ErrNoSignedTime
}

// refreshSignedTimeBestEffort implements the post-Ready branch: a
// NOTIFICATION_NEED_DATE_TIME arrives on an already-established
// session, and recovery is opportunistic. Exhausting the retry budget
// is not reported anywhere; the lock will ask again later if it still
// needs the time.
func (s *Supervisor) refreshSignedTimeBestEffort(ctx context.Context) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	for attempt := 1; attempt <= s.cfg.TimeRefreshTries; attempt++ {
		if err := s.sendSignedTime(ctx, conn); err == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.TimeRefreshDelay):
		}
	}
	s.log.Warn("signed time refresh exhausted its retry budget, giving up")
}

// sendSignedTime fetches one signed-time blob and writes it in
// plaintext, waiting for the lock's acknowledgment notification.
func (s *Supervisor) sendSignedTime(ctx context.Context, conn transport.Connection) error {
	if s.timeProvider == nil {
		return ErrNotProvidedSignedTime
	}
	blob, err := s.timeProvider.SignedTime(ctx)
	if err != nil || len(blob) == 0 {
		return ErrNotProvidedSignedTime
	}

	s.mu.Lock()
	mux := s.mux
	s.mu.Unlock()

	notifCh, cancel := mux.Subscribe()
	defer cancel()

	frame := message.EncodeOutbound(message.KindDataNotEncrypted, message.EncodePlaintext(lockapi.CmdSetSignedTime, blob))
	if err := conn.Write(ctx, frame); err != nil {
		return err
	}

	timer := time.NewTimer(s.cfg.CommandTimeout)
	defer timer.Stop()
	for {
		select {
		case n, ok := <-notifCh:
			if !ok {
				return ErrSetSignedTimeFailed
			}
			if n.Command != lockapi.NotifSignedDatetime || len(n.Payload) < 1 {
				continue
			}
			if n.Payload[0] != 0x00 {
				return ErrSetSignedTimeFailed
			}
			return nil
		case <-timer.C:
			return ErrTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// forwardNotifications relays unsolicited lock traffic to the
// installed ConnectionListener for the lifetime of the ready session:
// lock status changes, NOTIFICATION_NEED_DATE_TIME (which additionally
// triggers a best-effort signed-time refresh), and anything else via
// the catch-all OnNotification.
func (s *Supervisor) forwardNotifications(ctx context.Context) {
	s.mu.Lock()
	mux := s.mux
	s.mu.Unlock()
	if mux == nil {
		return
	}
	ch, cancel := mux.Subscribe()
	defer cancel()

	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			switch n.Command {
			case lockapi.NotifNeedDateTime:
				go s.refreshSignedTimeBestEffort(context.Background())
				if s.listener != nil {
					s.listener.OnNotification(n.Command, n.Payload)
				}
			case lockapi.NotifLockStatusChange:
				if s.listener != nil && len(n.Payload) >= 2 {
					s.listener.OnLockStatusChanged(n.Payload[0], n.Payload[1])
				}
			default:
				if s.listener != nil {
					s.listener.OnNotification(n.Command, n.Payload)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close tears the connection down: the secure session is zeroed, the
// transport connection is released, and the connection listener sees
// a final disconnect. Safe to call more than once.
func (s *Supervisor) Close() {
	s.mu.Lock()
	session, conn, mux := s.session, s.conn, s.mux
	wasUnsecure := s.state == StateReadyUnsecure
	unsecureListener := s.unsecureListener
	s.session, s.conn, s.api = nil, nil, nil
	closing := s.state != StateClosed
	s.state = StateClosed
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if mux != nil {
		mux.Close()
	}
	if session != nil {
		session.Close()
	}
	if conn != nil {
		conn.Close()
	}
	if !closing {
		return
	}
	if wasUnsecure {
		if unsecureListener != nil {
			unsecureListener.OnUnsecureConnectionChanged(false, false)
		}
		return
	}
	if s.listener != nil {
		s.listener.OnConnectionChanged(false, false)
	}
}
