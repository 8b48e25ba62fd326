package securesession

import lockcrypto "github.com/lockcore/smartlock-core/pkg/crypto"

// defaultOracle is the production Oracle: two directional AES-256-GCM
// streams, one per traffic direction, each with its own monotonic
// sequence counter. The command byte travels in the clear as
// additional authenticated data, since CommandMux needs it to route a
// DATA_ENCRYPTED frame before the payload can be of any use, and
// binding it into the AEAD tag still prevents a tampered command byte
// from being accepted with an unrelated payload.
type defaultOracle struct {
	write *lockcrypto.AEAD
	read  *lockcrypto.AEAD
	keys  *lockcrypto.SessionKeys

	recvSeq uint32
}

func (o *defaultOracle) Encrypt(command byte, payload []byte) ([]byte, error) {
	ad := []byte{command}
	ciphertext := o.write.Seal(payload, ad)
	out := make([]byte, 0, 1+len(ciphertext))
	out = append(out, command)
	out = append(out, ciphertext...)
	return out, nil
}

func (o *defaultOracle) Decrypt(body []byte) (byte, []byte, error) {
	if len(body) < 1 {
		return 0, nil, ErrMalformedRecord
	}
	command := body[0]
	ciphertext := body[1:]
	plaintext, err := o.read.Open(o.recvSeq, ciphertext, []byte{command})
	if err != nil {
		return 0, nil, err
	}
	o.recvSeq++
	return command, plaintext, nil
}

func (o *defaultOracle) Zero() {
	if o.keys != nil {
		o.keys.Zero()
	}
}
