package crypto

import "errors"

// Errors returned by the crypto package.
var (
	ErrInvalidKeySize    = errors.New("crypto: invalid key size")
	ErrInvalidCertBase64 = errors.New("crypto: certificate is not valid base64")
	ErrInvalidPublicKey  = errors.New("crypto: invalid device public key")
	ErrSignatureInvalid  = errors.New("crypto: signature verification failed")
	ErrDecryptFailed     = errors.New("crypto: authenticated decryption failed")
	ErrShortCiphertext   = errors.New("crypto: ciphertext shorter than the authentication tag")
)
