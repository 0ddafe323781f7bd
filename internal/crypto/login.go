package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrCipher is returned when a login ciphertext cannot be decrypted.
var ErrCipher = errors.New("login cipher failure")

// LoginCipher encrypts user logins with AES-256-CBC under a fixed key and IV.
// Equal logins give equal ciphertexts; the users table is keyed on them.
type LoginCipher struct {
	block cipher.Block
	iv    []byte
}

// NewLoginCipher creates a LoginCipher from a 32-byte key and a 16-byte IV.
func NewLoginCipher(key, iv []byte) (*LoginCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("login cipher key must be 32 bytes, got %d", len(key))
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("login cipher IV must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &LoginCipher{block: block, iv: bytes.Clone(iv)}, nil
}

// EncryptLogin returns the hex ciphertext of a login.
func (c *LoginCipher) EncryptLogin(login string) string {
	plaintext := pkcs7Pad([]byte(login), aes.BlockSize)
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, plaintext)
	return hex.EncodeToString(out)
}

// DecryptLogin reverses EncryptLogin.
func (c *LoginCipher) DecryptLogin(ciphertextHex string) (string, error) {
	ciphertext, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCipher, err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: bad ciphertext length %d", ErrCipher, len(ciphertext))
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, ciphertext)
	plaintext, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrCipher)
	}
	if subtle.ConstantTimeCompare(b[len(b)-n:], bytes.Repeat([]byte{byte(n)}, n)) != 1 {
		return nil, fmt.Errorf("%w: bad padding", ErrCipher)
	}
	return b[:len(b)-n], nil
}
