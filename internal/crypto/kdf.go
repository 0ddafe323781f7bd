package crypto

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/AlexZinkM/custody-wallet/internal/secret"

	"golang.org/x/crypto/scrypt"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	// SaltLen is the length of the per-account salt. Fresh for every account.
	SaltLen = 32
	// SecretLen is the length of a derived secret.
	SecretLen = 32
)

var (
	// ErrKDF is returned when the key derivation function fails.
	ErrKDF = errors.New("key derivation failed")
	// ErrInvalidSalt is returned for salts that are malformed or too short.
	ErrInvalidSalt = errors.New("invalid salt")
)

// Salt is a per-account random scrypt salt. It is not secret and is stored
// next to the keystore.
type Salt []byte

// NewSalt reads SaltLen bytes from crypto/rand.
func NewSalt() (Salt, error) {
	salt := make([]byte, SaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// ParseSalt decodes a hex salt as stored in the database.
func ParseSalt(s string) (Salt, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSalt, err)
	}
	if len(b) < SaltLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSalt, len(b))
	}
	return b, nil
}

// String returns the hex form used for storage.
func (s Salt) String() string {
	return hex.EncodeToString(s)
}

// KDFParams are the scrypt cost parameters.
type KDFParams struct {
	N int
	R int
	P int
}

// Deriver turns a client credential plus a per-account salt into the 32-byte
// secret that protects that account's keystore. The server secret is mixed
// into every derivation.
type Deriver struct {
	params       KDFParams
	serverSecret []byte
	sem          *semaphore.Weighted
	limiter      *rate.Limiter
	observe      func(time.Duration)
}

// DeriverOption configures a Deriver.
type DeriverOption func(*Deriver)

// WithConcurrency bounds how many derivations run at once. scrypt allocates
// 128*N*r bytes per call.
func WithConcurrency(n int64) DeriverOption {
	return func(d *Deriver) {
		if n > 0 {
			d.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithRateLimit caps derivations per second across all requests.
func WithRateLimit(perSecond float64, burst int) DeriverOption {
	return func(d *Deriver) {
		if perSecond > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// WithObserver receives the wall time of every scrypt call.
func WithObserver(fn func(time.Duration)) DeriverOption {
	return func(d *Deriver) {
		d.observe = fn
	}
}

// NewDeriver creates a Deriver. serverSecret is copied, so the caller may
// wipe its own slice once NewDeriver returns.
func NewDeriver(params KDFParams, serverSecret []byte, opts ...DeriverOption) (*Deriver, error) {
	if len(serverSecret) == 0 {
		return nil, errors.New("server secret is empty")
	}
	if params.N <= 1 || params.N&(params.N-1) != 0 {
		return nil, fmt.Errorf("scrypt N must be a power of two greater than 1, got %d", params.N)
	}
	if params.R <= 0 || params.P <= 0 {
		return nil, fmt.Errorf("scrypt r and p must be positive")
	}
	d := &Deriver{params: params, serverSecret: bytes.Clone(serverSecret)}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// DeriveSecret runs scrypt over password||serverSecret with the given salt.
// The returned buffer must be destroyed by the caller. Waiting for a slot
// honours ctx; once scrypt starts it runs to completion.
func (d *Deriver) DeriveSecret(ctx context.Context, password *secret.Buffer, salt Salt) (*secret.Buffer, error) {
	if password == nil || password.Len() == 0 {
		return nil, fmt.Errorf("%w: empty password", ErrKDF)
	}
	if len(salt) < SaltLen {
		return nil, ErrInvalidSalt
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if d.sem != nil {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer d.sem.Release(1)
	}

	material := secret.Concat(password.Bytes(), d.serverSecret)
	defer material.Destroy()

	start := time.Now()
	key, err := scrypt.Key(material.Bytes(), salt, d.params.N, d.params.R, d.params.P, SecretLen)
	if d.observe != nil {
		d.observe(time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKDF, err)
	}
	return secret.FromBytes(key), nil
}
