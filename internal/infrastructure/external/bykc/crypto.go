package bykc

import (
	"crypto/aes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrDecode is wrapped by every response-decoding failure. The service
// answers unauthenticated requests with an undecryptable payload, so callers
// treat a decode failure as a session-expiry signal rather than a transport
// fault.
var ErrDecode = errors.New("bykc: response payload failed to decode")

// aesKeySize is the symmetric key length dictated by the wire protocol
// (AES-128).
const aesKeySize = 16

// keyAlphabet is the character set for generated symmetric keys. The service
// expects printable keys; the RSA wrap carries them verbatim.
const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Envelope is one call's wire envelope: the base64 ciphertext travels as the
// request body, the wrapped key, wrapped signature and timestamp as headers.
// The symmetric key behind an envelope is single-use and never leaves the
// process.
type Envelope struct {
	// AK is the RSA-encrypted symmetric key, base64.
	AK string

	// SK is the RSA-encrypted signature of the plaintext body, base64.
	SK string

	// TS is the encoding time in unix milliseconds.
	TS string

	// Payload is the AES-encrypted request body, base64.
	Payload []byte
}

// Codec transforms plaintext request bodies into wire envelopes and decrypts
// responses. The asymmetric public key belongs to the remote service and is
// fixed for the deployment.
type Codec struct {
	pub *rsa.PublicKey
}

// NewCodec parses the service's RSA public key from PEM (PKIX or PKCS#1).
func NewCodec(pemKey string) (*Codec, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, errors.New("bykc: public key is not valid PEM")
	}

	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("bykc: public key is not RSA")
		}
		return &Codec{pub: rsaKey}, nil
	}

	rsaKey, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("bykc: parse public key: %w", err)
	}
	return &Codec{pub: rsaKey}, nil
}

// Encode builds the wire envelope for a plaintext request body and returns it
// together with the freshly generated symmetric key. The key is needed again
// to decrypt the response and must be discarded after the call.
func (c *Codec) Encode(body []byte) (*Envelope, []byte, error) {
	key, err := generateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("bykc: generate symmetric key: %w", err)
	}

	ciphertext, err := aesEncryptECB(body, key)
	if err != nil {
		return nil, nil, fmt.Errorf("bykc: encrypt body: %w", err)
	}

	wrappedKey, err := rsa.EncryptPKCS1v15(rand.Reader, c.pub, key)
	if err != nil {
		return nil, nil, fmt.Errorf("bykc: wrap symmetric key: %w", err)
	}

	digest := sha1.Sum(body)
	signature := hex.EncodeToString(digest[:])
	wrappedSig, err := rsa.EncryptPKCS1v15(rand.Reader, c.pub, []byte(signature))
	if err != nil {
		return nil, nil, fmt.Errorf("bykc: wrap signature: %w", err)
	}

	payload := make([]byte, base64.StdEncoding.EncodedLen(len(ciphertext)))
	base64.StdEncoding.Encode(payload, ciphertext)

	env := &Envelope{
		AK:      base64.StdEncoding.EncodeToString(wrappedKey),
		SK:      base64.StdEncoding.EncodeToString(wrappedSig),
		TS:      strconv.FormatInt(time.Now().UnixMilli(), 10),
		Payload: payload,
	}
	return env, key, nil
}

// Decode decrypts a response ciphertext with the per-call symmetric key.
// Every failure wraps ErrDecode.
func (c *Codec) Decode(ciphertext, key []byte) ([]byte, error) {
	plain, err := aesDecryptECB(ciphertext, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return plain, nil
}

// generateKey draws a fresh printable symmetric key.
func generateKey() ([]byte, error) {
	raw := make([]byte, aesKeySize)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	key := make([]byte, aesKeySize)
	for i, b := range raw {
		key[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}
	return key, nil
}

// The service's protocol mandates AES in ECB mode with PKCS#7 padding. The
// standard library exposes no ECB wrapper, so the block loop lives here.

func aesEncryptECB(plain, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plain, block.BlockSize())
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += block.BlockSize() {
		block.Encrypt(out[i:i+block.BlockSize()], padded[i:i+block.BlockSize()])
	}
	return out, nil
}

func aesDecryptECB(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}

	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += block.BlockSize() {
		block.Decrypt(out[i:i+block.BlockSize()], ciphertext[i:i+block.BlockSize()])
	}
	return pkcs7Unpad(out, block.BlockSize())
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty plaintext")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
