package securesession

import "time"

// fakeCrypto is a minimal Crypto stand-in that records call order and
// lets tests inject failures at each handshake step, independent of
// pkg/crypto's real algorithms.
type fakeCrypto struct {
	helloErr      error
	serverHello   []byte
	verifyRecErr  error
	clientVerify  []byte
	sessionParams []byte
	sessionErr    error
	oracle        Oracle

	calls []string
}

func (f *fakeCrypto) ClientHello() ([]byte, error) {
	f.calls = append(f.calls, "ClientHello")
	if f.helloErr != nil {
		return nil, f.helloErr
	}
	return []byte("client-hello"), nil
}

func (f *fakeCrypto) HandleServerHello(serverHello []byte) error {
	f.calls = append(f.calls, "HandleServerHello")
	f.serverHello = serverHello
	return nil
}

func (f *fakeCrypto) ClientTimeVerify(now time.Time) []byte {
	f.calls = append(f.calls, "ClientTimeVerify")
	return []byte{0, 0, 0, 0, 0, 0, 0, 1}
}

func (f *fakeCrypto) VerifyServerRecord(record []byte) error {
	f.calls = append(f.calls, "VerifyServerRecord")
	return f.verifyRecErr
}

func (f *fakeCrypto) ClientVerifyPayload() ([]byte, error) {
	f.calls = append(f.calls, "ClientVerifyPayload")
	if f.clientVerify != nil {
		return f.clientVerify, nil
	}
	return []byte("client-verify-payload"), nil
}

func (f *fakeCrypto) HandleSessionInitialized(params []byte) (Oracle, error) {
	f.calls = append(f.calls, "HandleSessionInitialized")
	f.sessionParams = params
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	if f.oracle != nil {
		return f.oracle, nil
	}
	return &fakeOracle{}, nil
}

func (f *fakeCrypto) Reset() {
	f.calls = append(f.calls, "Reset")
}

// fakeOracle is a no-op Oracle for tests that only exercise state
// transitions, not the AEAD envelope itself.
type fakeOracle struct {
	zeroed bool
}

func (o *fakeOracle) Encrypt(command byte, payload []byte) ([]byte, error) {
	out := append([]byte{command}, payload...)
	return out, nil
}

func (o *fakeOracle) Decrypt(body []byte) (byte, []byte, error) {
	if len(body) == 0 {
		return 0, nil, ErrMalformedRecord
	}
	return body[0], body[1:], nil
}

func (o *fakeOracle) Zero() { o.zeroed = true }
