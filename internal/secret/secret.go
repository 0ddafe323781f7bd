package secret

import (
	"crypto/ecdsa"
	"encoding/hex"
	"sync"
)

// Buffer owns a byte slice holding secret material (a derived secret,
// password material, a keystore passphrase). Destroy overwrites the bytes
// and must be deferred by whoever created the buffer.
type Buffer struct {
	mu sync.Mutex
	b  []byte
}

// New allocates a zeroed buffer of n bytes.
func New(n int) *Buffer {
	return &Buffer{b: make([]byte, n)}
}

// FromBytes takes ownership of b. The caller must not keep using b
// after handing it over.
func FromBytes(b []byte) *Buffer {
	return &Buffer{b: b}
}

// FromString copies s into a new buffer. The string itself stays in memory
// until collected, so callers should keep such strings short-lived.
func FromString(s string) *Buffer {
	b := make([]byte, len(s))
	copy(b, s)
	return &Buffer{b: b}
}

// Concat copies all parts into a single new buffer.
func Concat(parts ...[]byte) *Buffer {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return &Buffer{b: out}
}

// Bytes returns the backing slice. It is nil after Destroy.
func (s *Buffer) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b
}

// Len returns the number of secret bytes held.
func (s *Buffer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.b)
}

// Hex returns a new buffer with the hex encoding of the secret.
func (s *Buffer) Hex() *Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, hex.EncodedLen(len(s.b)))
	hex.Encode(out, s.b)
	return &Buffer{b: out}
}

// Destroy zeroes the secret and drops the reference. Safe to call more
// than once and on a nil buffer.
func (s *Buffer) Destroy() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.b)
	s.b = nil
}

// WipeECDSA zeroes the scalar of a private key in place.
func WipeECDSA(key *ecdsa.PrivateKey) {
	if key == nil || key.D == nil {
		return
	}
	b := key.D.Bits()
	clear(b)
	key.D.SetInt64(0)
}
