// Package secret encrypts notification channel credentials at rest.
//
// Two formats exist. LegacyCBC is AES-CBC with an all-zero IV: equal plaintexts under one key
// encrypt to equal ciphertexts. It is only kept to read rows written before the sealed format and
// can be re-enabled for writes through configuration. Sealed is AES-GCM with a fresh nonce stored in
// front of the ciphertext, tagged with a "v2:" prefix.
package secret

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

var ErrDecrypt = errors.New("unable to decrypt secret")

const (
	sealedPrefix = "v2:"
	sealedInfo   = "triage-api channel credential"
	keyLength    = 32
)

type Cipher interface {
	Encrypt(key []byte, plaintext string) (string, error)
	Decrypt(key []byte, ciphertext string) (string, error)
}

// DeriveKey builds the per owner key: the first 32 hex characters of sha256(owner + secret + owner).
func DeriveKey(owner, serverSecret string) []byte {
	sum := sha256.Sum256([]byte(owner + serverSecret + owner))
	return []byte(hex.EncodeToString(sum[:])[:keyLength])
}

type LegacyCBC struct{}

var _ Cipher = LegacyCBC{}

func (LegacyCBC) Encrypt(key []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	iv := make([]byte, aes.BlockSize)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

func (LegacyCBC) Decrypt(key []byte, ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", ErrDecrypt
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	out := make([]byte, len(raw))
	iv := make([]byte, aes.BlockSize)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, raw)

	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

type Sealed struct{}

var _ Cipher = Sealed{}

func (Sealed) aead(key []byte) (cipher.AEAD, error) {
	derived := make([]byte, keyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte(sealedInfo)), derived); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (s Sealed) Encrypt(key []byte, plaintext string) (string, error) {
	gcm, err := s.aead(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (s Sealed) Decrypt(key []byte, ciphertext string) (string, error) {
	encoded, ok := strings.CutPrefix(ciphertext, sealedPrefix)
	if !ok {
		return "", ErrDecrypt
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecrypt, err)
	}

	gcm, err := s.aead(key)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", ErrDecrypt
	}

	nonce, body := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	return string(plain), nil
}

// Box binds the server secret and picks the write format. Decryption accepts both formats.
type Box struct {
	serverSecret string
	writer       Cipher
}

func NewBox(serverSecret string, legacyWrites bool) *Box {
	var writer Cipher = Sealed{}
	if legacyWrites {
		writer = LegacyCBC{}
	}
	return &Box{serverSecret: serverSecret, writer: writer}
}

func (b *Box) Seal(owner, plaintext string) (string, error) {
	return b.writer.Encrypt(DeriveKey(owner, b.serverSecret), plaintext)
}

func (b *Box) Open(owner, ciphertext string) (string, error) {
	key := DeriveKey(owner, b.serverSecret)
	if strings.HasPrefix(ciphertext, sealedPrefix) {
		return Sealed{}.Decrypt(key, ciphertext)
	}
	return LegacyCBC{}.Decrypt(key, ciphertext)
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrDecrypt
	}
	if !bytes.Equal(b[len(b)-n:], bytes.Repeat([]byte{byte(n)}, n)) {
		return nil, ErrDecrypt
	}
	return b[:len(b)-n], nil
}
