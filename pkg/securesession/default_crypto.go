package securesession

import (
	"encoding/binary"
	"time"

	lockcrypto "github.com/lockcore/smartlock-core/pkg/crypto"
)

// DefaultCrypto is the production Crypto implementation: P-256 ECDH
// for the key exchange, HKDF-SHA256 for key derivation, ECDSA
// signature verification against the access certificate, and
// AES-256-GCM for the traffic AEAD. It is built entirely from
// pkg/crypto's primitives.
type DefaultCrypto struct {
	keystore lockcrypto.Keystore
	cert     *lockcrypto.DeviceCertificate

	mobileKeys   *lockcrypto.KeyPair
	sharedSecret []byte
	transcript   []byte
}

// NewDefaultCrypto creates the default Crypto capability for a
// certificate-authenticated session. cert must already have been
// decoded (see DeviceCertificate.Decode).
func NewDefaultCrypto(keystore lockcrypto.Keystore, cert *lockcrypto.DeviceCertificate) *DefaultCrypto {
	return &DefaultCrypto{keystore: keystore, cert: cert}
}

func (c *DefaultCrypto) ClientHello() ([]byte, error) {
	if c.cert == nil {
		return nil, ErrNoCertificate
	}
	keys, err := c.keystore.MobileKeyPair()
	if err != nil {
		return nil, err
	}
	c.mobileKeys = keys
	blob := keys.PublicKey()
	c.transcript = append(c.transcript, blob...)
	return blob, nil
}

func (c *DefaultCrypto) HandleServerHello(serverHello []byte) error {
	if len(serverHello) != lockcrypto.P256KeySize {
		return ErrMalformedHello
	}
	secret, err := c.mobileKeys.ECDH(serverHello)
	if err != nil {
		return err
	}
	c.sharedSecret = secret
	c.transcript = append(c.transcript, serverHello...)
	return nil
}

func (c *DefaultCrypto) ClientTimeVerify(now time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(now.UnixMilli()))
	c.transcript = append(c.transcript, buf...)
	return buf
}

func (c *DefaultCrypto) VerifyServerRecord(record []byte) error {
	if len(record) < 64 {
		return ErrMalformedRecord
	}
	if err := c.cert.VerifyServerVerify(c.transcript, record); err != nil {
		return ErrHandshakeFailed
	}
	c.transcript = append(c.transcript, record...)
	return nil
}

func (c *DefaultCrypto) ClientVerifyPayload() ([]byte, error) {
	verifyKey, err := lockcrypto.VerifyKey(c.sharedSecret, c.transcript)
	if err != nil {
		return nil, err
	}
	tag := hmacSHA256(verifyKey, c.transcript)
	payload := make([]byte, 0, lockcrypto.P256KeySize+len(tag))
	payload = append(payload, c.mobileKeys.PublicKey()...)
	payload = append(payload, tag...)
	c.transcript = append(c.transcript, payload...)
	return payload, nil
}

func (c *DefaultCrypto) HandleSessionInitialized(params []byte) (Oracle, error) {
	c.transcript = append(c.transcript, params...)
	keys, err := lockcrypto.DeriveSessionKeys(c.sharedSecret, c.transcript)
	if err != nil {
		return nil, err
	}

	write, err := lockcrypto.NewAEAD(keys.ClientToLock[:], keys.ClientToLockSalt)
	if err != nil {
		return nil, err
	}
	read, err := lockcrypto.NewAEAD(keys.LockToClient[:], keys.LockToClientSalt)
	if err != nil {
		return nil, err
	}

	oracle := &defaultOracle{write: write, read: read, keys: keys}
	c.Reset()
	return oracle, nil
}

func (c *DefaultCrypto) Reset() {
	c.mobileKeys = nil
	for i := range c.sharedSecret {
		c.sharedSecret[i] = 0
	}
	c.sharedSecret = nil
	for i := range c.transcript {
		c.transcript[i] = 0
	}
	c.transcript = nil
}
