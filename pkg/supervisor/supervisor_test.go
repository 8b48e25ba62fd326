package supervisor

import (
	"context"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lockcore/smartlock-core/pkg/config"
	lockcrypto "github.com/lockcore/smartlock-core/pkg/crypto"
	"github.com/lockcore/smartlock-core/pkg/lockapi"
	"github.com/lockcore/smartlock-core/pkg/message"
	"github.com/lockcore/smartlock-core/pkg/securesession"
	"github.com/lockcore/smartlock-core/pkg/transport"
)

// lockSim plays the server side of the handshake with real ECDH/ECDSA
// primitives, the same way securesession's own DefaultCrypto test
// does, wired to react synchronously to writes on a FakeConnection so
// Supervisor's full connect path can be exercised end to end.
type lockSim struct {
	mu sync.Mutex

	devicePriv *ecdsa.PrivateKey
	ecdhPriv   *ecdh.PrivateKey
	transcript []byte
	verifyBuf  []byte

	requireTimeRefresh bool
	timeRefreshDone    bool
	dropHellos         int // number of leading HELLO frames to silently ignore
	helloCount         int
	rejectCert         bool // send AlertInvalidCert instead of SERVER_HELLO
	step               int  // 0=await hello, 1=await server-verify, 2=await client-verify, 3=done

	// Post-handshake encrypted traffic, set up once step reaches 3.
	toLock   *lockcrypto.AEAD // decrypts frames the client wrote (client-to-lock key)
	fromLock *lockcrypto.AEAD // encrypts this lock's replies (lock-to-client key)
	recvSeq  uint32
	// replyChar is the characteristic simulated command replies are
	// delivered on; tests default it to CharLockIndicate to match how a
	// real lock answers OpenLock/CloseLock/etc.
	replyChar transport.Characteristic
}

func newLockSim(t *testing.T) *lockSim {
	devicePriv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	ecdhPriv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	return &lockSim{devicePriv: devicePriv, ecdhPriv: ecdhPriv, replyChar: transport.CharLockIndicate}
}

func (l *lockSim) certificate() *lockcrypto.DeviceCertificate {
	rawPub := elliptic.Marshal(elliptic.P256(), l.devicePriv.PublicKey.X, l.devicePriv.PublicKey.Y)
	cert := &lockcrypto.DeviceCertificate{
		CertificateBase64:     base64.StdEncoding.EncodeToString([]byte("dummy-cert")),
		DevicePublicKeyBase64: base64.StdEncoding.EncodeToString(rawPub),
	}
	if err := cert.Decode(); err != nil {
		panic(err)
	}
	return cert
}

func (l *lockSim) onWrite(conn *transport.FakeConnection, frame []byte) {
	f, err := message.Decode(frame)
	if err != nil {
		return
	}

	if f.Kind == message.KindDataNotEncrypted {
		msg, err := message.DecodePlaintext(f.Rest)
		if err == nil && msg.Command == lockapi.CmdSetSignedTime {
			l.mu.Lock()
			l.timeRefreshDone = true
			l.mu.Unlock()
			conn.Deliver(transport.CharLockNotify, message.EncodeOutbound(message.KindDataNotEncrypted, message.EncodePlaintext(lockapi.NotifSignedDatetime, []byte{0x00})))
		}
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.step {
	case 0:
		if f.Kind != message.KindHello {
			return
		}
		l.helloCount++
		if l.rejectCert {
			conn.Deliver(transport.CharSecureNotify, message.EncodeOutbound(message.KindAlert, []byte{byte(securesession.AlertInvalidCert)}))
			return
		}
		if l.dropHellos > 0 {
			l.dropHellos--
			return
		}
		if l.requireTimeRefresh && !l.timeRefreshDone {
			conn.Deliver(transport.CharSecureNotify, message.EncodeOutbound(message.KindAlert, []byte{byte(securesession.AlertNoTrustedTime)}))
			return
		}
		l.transcript = append(l.transcript, f.Rest...)
		pub := l.ecdhPriv.PublicKey().Bytes()
		l.transcript = append(l.transcript, pub...)
		l.step = 1
		conn.Deliver(transport.CharSecureNotify, message.EncodeOutbound(message.KindHello, pub))
	case 1:
		if f.Kind != message.KindServerVerify {
			return
		}
		l.transcript = append(l.transcript, f.Rest...)
		digest := sha256.Sum256(l.transcript)
		r, s, err := ecdsa.Sign(rand.Reader, l.devicePriv, digest[:])
		if err != nil {
			return
		}
		sig := make([]byte, 64)
		rb, sb := r.Bytes(), s.Bytes()
		copy(sig[32-len(rb):32], rb)
		copy(sig[64-len(sb):64], sb)
		l.transcript = append(l.transcript, sig...)
		l.step = 2
		conn.Deliver(transport.CharSecureNotify, message.EncodeOutbound(message.KindServerVerify, sig))
	case 2:
		switch f.Kind {
		case message.KindClientVerify:
			l.verifyBuf = append(l.verifyBuf, f.Rest...)
		case message.KindClientVerifyEnd:
			l.verifyBuf = append(l.verifyBuf, f.Rest...)
			l.transcript = append(l.transcript, l.verifyBuf...)
			mobilePub := l.verifyBuf[:lockcrypto.P256KeySize]
			peer, err := ecdh.P256().NewPublicKey(mobilePub)
			if err != nil {
				return
			}
			secret, err := l.ecdhPriv.ECDH(peer)
			if err != nil {
				return
			}
			sessionParams := []byte("session-init-params")
			l.transcript = append(l.transcript, sessionParams...)
			keys, err := lockcrypto.DeriveSessionKeys(secret, l.transcript)
			if err != nil {
				return
			}
			toLock, err := lockcrypto.NewAEAD(keys.ClientToLock[:], keys.ClientToLockSalt)
			if err != nil {
				return
			}
			fromLock, err := lockcrypto.NewAEAD(keys.LockToClient[:], keys.LockToClientSalt)
			if err != nil {
				return
			}
			l.toLock = toLock
			l.fromLock = fromLock
			l.step = 3
			conn.Deliver(transport.CharSecureNotify, message.EncodeOutbound(message.KindSessionInitialized, sessionParams))
		}
	case 3:
		if f.Kind != message.KindDataEncrypted || len(f.Rest) < 1 {
			return
		}
		command := f.Rest[0]
		plaintext, err := l.toLock.Open(l.recvSeq, f.Rest[1:], []byte{command})
		if err != nil {
			return
		}
		l.recvSeq++
		l.respondToCommand(conn, command, plaintext)
	}
}

// respondToCommand plays the lock's side of one encrypted request: it
// answers with a single-byte SUCCESS result code, encrypted under the
// lock-to-client key and delivered on l.replyChar (CharLockIndicate by
// default), matching how a real lock answers commands sent on
// CharSend rather than echoing them back on CharSecureNotify.
func (l *lockSim) respondToCommand(conn *transport.FakeConnection, command byte, payload []byte) {
	result := []byte{0x00}
	ciphertext := l.fromLock.Seal(result, []byte{command})
	body := append([]byte{command}, ciphertext...)
	conn.Deliver(l.replyChar, message.EncodeOutbound(message.KindDataEncrypted, body))
}

type fakeTimeProvider struct {
	blob []byte
	err  error
}

func (f *fakeTimeProvider) SignedTime(ctx context.Context) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.blob, nil
}

type fakeListener struct {
	mu               sync.Mutex
	connectionEvents [][2]bool
	statusEvents     [][2]byte
	notifications    []byte
	errs             []error
}

func (l *fakeListener) OnConnectionChanged(connecting, connected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connectionEvents = append(l.connectionEvents, [2]bool{connecting, connected})
}

func (l *fakeListener) OnLockStatusChanged(state, status byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statusEvents = append(l.statusEvents, [2]byte{state, status})
}

func (l *fakeListener) OnNotification(command byte, payload []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notifications = append(l.notifications, command)
}

func (l *fakeListener) OnError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func newTestSupervisor(t *testing.T, lock *lockSim, listener *fakeListener, timeProvider SignedTimeProvider) (*Supervisor, *transport.FakeCentral) {
	t.Helper()
	central := transport.NewFakeCentral()
	central.AddDevice(transport.DeviceHandle{Serial: "ABCD", Ref: "ref-1"})
	central.OnConnect = func(device transport.DeviceHandle, conn *transport.FakeConnection) {
		conn.Peer = lock.onWrite
	}
	cert := lock.certificate()
	keystore := lockcrypto.NewMemoryKeystore()
	cfg := config.Config{HelloTimeout: 200 * time.Millisecond, TimeRefreshDelay: 20 * time.Millisecond, TimeRefreshTries: 3}
	sup := New(central, keystore, cert, cfg, timeProvider, listener, nil)
	return sup, central
}

func TestConnectHappyPath(t *testing.T) {
	lock := newLockSim(t)
	listener := &fakeListener{}
	sup, _ := newTestSupervisor(t, lock, listener, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Connect(ctx, "ABCD"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if sup.State() != StateReady {
		t.Fatalf("State() = %v, want ready", sup.State())
	}
	if _, err := sup.API(); err != nil {
		t.Fatalf("API() error = %v", err)
	}

	listener.mu.Lock()
	defer listener.mu.Unlock()
	if len(listener.connectionEvents) == 0 {
		t.Fatal("expected at least one connection event")
	}
	last := listener.connectionEvents[len(listener.connectionEvents)-1]
	if last != ([2]bool{false, true}) {
		t.Errorf("final connection event = %v, want {connecting:false connected:true}", last)
	}
}

func TestConnectDeviceNotFound(t *testing.T) {
	central := transport.NewFakeCentral()
	central.ScanErr = transport.ErrScanTimeout
	sup := New(central, lockcrypto.NewMemoryKeystore(), nil, config.Config{}, nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := sup.Connect(ctx, "ZZZZ")
	if err == nil {
		t.Fatal("Connect() error = nil, want non-nil")
	}
	if sup.State() != StateClosed {
		t.Errorf("State() = %v, want closed", sup.State())
	}
}

// S4: a NoTrustedTime alert during the handshake must trigger the
// signed-time provider, a plaintext SET_SIGNED_TIME write, and a
// handshake restart that reaches Ready once the lock acknowledges.
func TestConnectRecoversFromNoTrustedTime(t *testing.T) {
	lock := newLockSim(t)
	lock.requireTimeRefresh = true
	listener := &fakeListener{}
	timeProvider := &fakeTimeProvider{blob: []byte("signed-time-blob")}
	sup, _ := newTestSupervisor(t, lock, listener, timeProvider)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := sup.Connect(ctx, "ABCD"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if sup.State() != StateReady {
		t.Fatalf("State() = %v, want ready", sup.State())
	}
}

// TestConnectResendsHelloOnTimeout drops the first HELLO on the
// simulated lock's side, forcing driveHandshake's client-side timer to
// fire and resend it. The connection must still reach Ready within
// maxHelloResends, and the lock must observe exactly two HELLOs: the
// original and the one resend.
func TestConnectResendsHelloOnTimeout(t *testing.T) {
	lock := newLockSim(t)
	lock.dropHellos = 1
	listener := &fakeListener{}
	sup, _ := newTestSupervisor(t, lock, listener, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := sup.Connect(ctx, "ABCD"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if sup.State() != StateReady {
		t.Fatalf("State() = %v, want ready", sup.State())
	}

	lock.mu.Lock()
	helloCount := lock.helloCount
	lock.mu.Unlock()
	if helloCount != 2 {
		t.Errorf("helloCount = %d, want 2 (one original, one resend)", helloCount)
	}
}

// TestConnectGivesUpAfterMaxHelloResends drops every HELLO the client
// sends. driveHandshake must give up once it has resent HELLO
// maxHelloResends times rather than retrying forever.
func TestConnectGivesUpAfterMaxHelloResends(t *testing.T) {
	lock := newLockSim(t)
	lock.dropHellos = 1000
	listener := &fakeListener{}
	sup, _ := newTestSupervisor(t, lock, listener, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := sup.Connect(ctx, "ABCD")
	if err == nil {
		t.Fatal("Connect() error = nil, want a timeout error")
	}
	if sup.State() != StateClosed {
		t.Errorf("State() = %v, want closed", sup.State())
	}
}

// TestCloseZeroesSessionAndReleasesConnection exercises Close on a
// Ready supervisor: the state must become Closed, API must refuse, the
// listener must see a final disconnect event, and a second Close must
// be a harmless no-op that reports no second disconnect.
func TestCloseZeroesSessionAndReleasesConnection(t *testing.T) {
	lock := newLockSim(t)
	listener := &fakeListener{}
	sup, _ := newTestSupervisor(t, lock, listener, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Connect(ctx, "ABCD"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	sup.Close()
	sup.Close() // must not panic or double-report a disconnect

	if sup.State() != StateClosed {
		t.Errorf("State() = %v, want closed", sup.State())
	}
	if _, err := sup.API(); err == nil {
		t.Error("API() error = nil after Close(), want ErrNotReady")
	}

	listener.mu.Lock()
	last := listener.connectionEvents[len(listener.connectionEvents)-1]
	disconnects := 0
	for _, ev := range listener.connectionEvents {
		if ev == ([2]bool{false, false}) {
			disconnects++
		}
	}
	listener.mu.Unlock()
	if last != ([2]bool{false, false}) {
		t.Errorf("final connection event after Close() = %v, want {connecting:false connected:false}", last)
	}
	if disconnects != 1 {
		t.Errorf("disconnect events after two Close() calls = %d, want 1", disconnects)
	}
}

// TestRouteFramesServesLockNotifyDuringHandshake exercises the
// frames/secureFrames split directly: plaintext CharLockNotify traffic
// (the signed-time acknowledgment) must reach the mux even while the
// handshake is still consuming secureFrames, since both channels are
// fed from the same routeFrames goroutine concurrently.
func TestRouteFramesServesLockNotifyDuringHandshake(t *testing.T) {
	lock := newLockSim(t)
	lock.requireTimeRefresh = true
	listener := &fakeListener{}
	timeProvider := &fakeTimeProvider{blob: []byte("signed-time-blob")}
	sup, _ := newTestSupervisor(t, lock, listener, timeProvider)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sup.Connect(ctx, "ABCD") }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
	case <-ctx.Done():
		t.Fatal("Connect() did not finish before context deadline")
	}
	if sup.State() != StateReady {
		t.Fatalf("State() = %v, want ready", sup.State())
	}
}

// TestConnectSurfacesConnectionDeadOnExhaustedBudget lets every attempt
// fail with a retryable error (device not found) until the bounded,
// non-KeepConnection retry budget runs out on its own, well within the
// context deadline. Connect must surface a *ConnectionDeadError
// wrapping the last attempt's cause rather than the raw error.
func TestConnectSurfacesConnectionDeadOnExhaustedBudget(t *testing.T) {
	central := transport.NewFakeCentral()
	central.ScanErr = transport.ErrScanTimeout
	sup := New(central, lockcrypto.NewMemoryKeystore(), nil, config.Config{}, nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := sup.Connect(ctx, "ZZZZ")

	var deadErr *ConnectionDeadError
	if !errors.As(err, &deadErr) {
		t.Fatalf("Connect() error = %v (%T), want *ConnectionDeadError", err, err)
	}
	if !errors.Is(deadErr.Cause, ErrDeviceNotFound) {
		t.Errorf("ConnectionDeadError.Cause = %v, want ErrDeviceNotFound", deadErr.Cause)
	}
	if sup.State() != StateClosed {
		t.Errorf("State() = %v, want closed", sup.State())
	}
}

// TestConnectDoesNotWrapNonRetryableFailure checks that a nonRetryable
// early exit (certificate rejection) is surfaced as-is, not wrapped in
// ConnectionDeadError, since the caller needs to type-assert the
// specific cause to know a retry could never have helped.
func TestConnectDoesNotWrapNonRetryableFailure(t *testing.T) {
	lock := newLockSim(t)
	lock.rejectCert = true
	listener := &fakeListener{}
	sup, _ := newTestSupervisor(t, lock, listener, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := sup.Connect(ctx, "ABCD")

	if !errors.Is(err, ErrInvalidCertificate) {
		t.Fatalf("Connect() error = %v, want ErrInvalidCertificate", err)
	}
	var deadErr *ConnectionDeadError
	if errors.As(err, &deadErr) {
		t.Fatalf("Connect() error = %v, want the raw error, not wrapped in ConnectionDeadError", err)
	}
}

// TestOpenLockRoundTripsThroughLockIndicate drives a full encrypted
// OpenLock call after the handshake completes: the request is written
// (and encrypted) through the ready LockApi, and the simulated lock's
// SUCCESS reply is delivered as a DATA_ENCRYPTED frame on
// CharLockIndicate rather than CharSecureNotify, matching how a real
// lock answers commands sent on CharSend. Without decrypting and
// dispatching DATA_ENCRYPTED traffic arriving on CharLockIndicate,
// this call would time out instead of succeeding.
func TestOpenLockRoundTripsThroughLockIndicate(t *testing.T) {
	lock := newLockSim(t)
	lock.replyChar = transport.CharLockIndicate
	listener := &fakeListener{}
	sup, _ := newTestSupervisor(t, lock, listener, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Connect(ctx, "ABCD"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	api, err := sup.API()
	if err != nil {
		t.Fatalf("API() error = %v", err)
	}

	opCtx, opCancel := context.WithTimeout(context.Background(), time.Second)
	defer opCancel()
	if err := api.OpenLock(opCtx, config.ParamAuto); err != nil {
		t.Fatalf("OpenLock() error = %v", err)
	}
}

// TestCloseLockRoundTripsThroughLockNotify is the same round trip via
// CharLockNotify, the other characteristic a command reply is allowed
// to arrive on besides CharLockIndicate.
func TestCloseLockRoundTripsThroughLockNotify(t *testing.T) {
	lock := newLockSim(t)
	lock.replyChar = transport.CharLockNotify
	listener := &fakeListener{}
	sup, _ := newTestSupervisor(t, lock, listener, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Connect(ctx, "ABCD"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	api, err := sup.API()
	if err != nil {
		t.Fatalf("API() error = %v", err)
	}

	opCtx, opCancel := context.WithTimeout(context.Background(), time.Second)
	defer opCancel()
	if err := api.CloseLock(opCtx, config.ParamAuto); err != nil {
		t.Fatalf("CloseLock() error = %v", err)
	}
}

func TestNonRetryableClassification(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{ErrInvalidCertificate, true},
		{ErrDeviceNotInitialized, true},
		{ErrNoSignedTime, true},
		{&NoPermissionsError{Missing: []string{"bluetooth"}}, true},
		{ErrTimeout, false},
		{ErrDeviceNotFound, false},
	}
	for _, c := range cases {
		if got := nonRetryable(c.err); got != c.want {
			t.Errorf("nonRetryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestStateString(t *testing.T) {
	if StateReady.String() != "ready" {
		t.Errorf("String() = %q, want %q", StateReady.String(), "ready")
	}
	if StateReadyUnsecure.String() != "ready_unsecure" {
		t.Errorf("String() = %q, want %q", StateReadyUnsecure.String(), "ready_unsecure")
	}
}

// unsecureLockSim plays add-lock mode's server side: every plaintext
// command it receives on the send characteristic is echoed back with
// a SUCCESS result code on CharLockIndicate, the same way a real lock
// acknowledges REGISTER_DEVICE before any session exists.
type unsecureLockSim struct{}

func (unsecureLockSim) onWrite(conn *transport.FakeConnection, frame []byte) {
	f, err := message.Decode(frame)
	if err != nil || f.Kind != message.KindDataNotEncrypted {
		return
	}
	msg, err := message.DecodePlaintext(f.Rest)
	if err != nil {
		return
	}
	body := message.EncodePlaintext(msg.Command, []byte{0x00})
	conn.Deliver(transport.CharLockIndicate, message.EncodeOutbound(message.KindDataNotEncrypted, body))
}

type fakeUnsecureListener struct {
	mu     sync.Mutex
	events [][2]bool
	errs   []error
}

func (l *fakeUnsecureListener) OnUnsecureConnectionChanged(connecting, connected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, [2]bool{connecting, connected})
}

func (l *fakeUnsecureListener) OnError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func TestConnectUnsecureRegistersDevice(t *testing.T) {
	central := transport.NewFakeCentral()
	central.AddDevice(transport.DeviceHandle{Serial: "NEW1", Ref: "ref-2"})
	var lock unsecureLockSim
	central.OnConnect = func(device transport.DeviceHandle, conn *transport.FakeConnection) {
		conn.Peer = lock.onWrite
	}
	sup := New(central, lockcrypto.NewMemoryKeystore(), nil, config.Config{}, nil, nil, nil)
	listener := &fakeUnsecureListener{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.ConnectUnsecure(ctx, "NEW1", listener); err != nil {
		t.Fatalf("ConnectUnsecure() error = %v", err)
	}
	if sup.State() != StateReadyUnsecure {
		t.Fatalf("State() = %v, want ready_unsecure", sup.State())
	}
	if _, err := sup.API(); err != ErrNotReady {
		t.Errorf("API() error = %v, want ErrNotReady (add-lock mode has no secure session)", err)
	}

	api, err := sup.UnsecureAPI()
	if err != nil {
		t.Fatalf("UnsecureAPI() error = %v", err)
	}

	opCtx, opCancel := context.WithTimeout(context.Background(), time.Second)
	defer opCancel()
	if err := api.RegisterDevice(opCtx, []byte("mobile-payload")); err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}

	sup.Close()

	listener.mu.Lock()
	defer listener.mu.Unlock()
	want := [][2]bool{{true, false}, {false, true}, {false, false}}
	if len(listener.events) != len(want) {
		t.Fatalf("events = %v, want %v", listener.events, want)
	}
	for i, ev := range want {
		if listener.events[i] != ev {
			t.Errorf("events[%d] = %v, want %v", i, listener.events[i], ev)
		}
	}
}
