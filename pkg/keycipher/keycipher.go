// Package keycipher encrypts provider secrets at rest with AES-256-CBC.
//
// Ciphertext and IV travel as hex strings so they can be stored in plain text
// columns. CBC carries no authentication tag: a tampered ciphertext is only
// detected indirectly through padding errors. Callers that need integrity
// should layer a MAC on top; see the design notes before changing the mode,
// since switching to an AEAD invalidates every stored credential.
package keycipher

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	apperr "github.com/aetherflow/engine/pkg/errors"
)

// KeySize is the required symmetric key length in bytes.
const KeySize = 32

// Cipher performs symmetric encryption with one process-wide key.
type Cipher struct {
	key []byte
}

// New builds a Cipher from a 64-character hex key.
func New(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	return &Cipher{key: key}, nil
}

// NewEphemeral builds a Cipher with a random key. Anything encrypted with it
// is unreadable after the process exits, so this is only suitable for
// development and tests.
func NewEphemeral() (*Cipher, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	return &Cipher{key: key}, nil
}

// Encrypt encrypts plaintext and returns hex-encoded ciphertext and IV.
// A fresh random 16-byte IV is drawn on every call.
func (c *Cipher) Encrypt(plaintext string) (cipherHex, ivHex string, err error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", "", apperr.Wrap(err, apperr.CodeInternal, "init cipher failed")
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", "", apperr.Wrap(err, apperr.CodeInternal, "generate iv failed")
	}

	padded := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return hex.EncodeToString(out), hex.EncodeToString(iv), nil
}

// Decrypt reverses Encrypt. It fails with a decrypt_failed error when the
// ciphertext or IV is malformed, or when the key changed since encryption.
func (c *Cipher) Decrypt(cipherHex, ivHex string) (string, error) {
	ct, err := hex.DecodeString(cipherHex)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeDecryptFailed, "ciphertext is not valid hex")
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeDecryptFailed, "iv is not valid hex")
	}
	if len(iv) != aes.BlockSize {
		return "", apperr.New(apperr.CodeDecryptFailed, "iv has wrong length")
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", apperr.New(apperr.CodeDecryptFailed, "ciphertext has wrong length")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeInternal, "init cipher failed")
	}

	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)

	plain, err := unpad(out, aes.BlockSize)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeDecryptFailed, "ciphertext padding invalid")
	}
	return string(plain), nil
}

// pad applies PKCS#7 padding.
func pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips PKCS#7 padding.
func unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(b))
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, fmt.Errorf("invalid padding byte %d", n)
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return b[:len(b)-n], nil
}
