// Package custody creates and stores encrypted account keys for
// application users and signs and broadcasts transactions with them.
package custody

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/AlexZinkM/custody-wallet/internal/client"
	"github.com/AlexZinkM/custody-wallet/internal/common"
	"github.com/AlexZinkM/custody-wallet/internal/crypto"
	"github.com/AlexZinkM/custody-wallet/internal/metrics"
	"github.com/AlexZinkM/custody-wallet/internal/model"
	"github.com/AlexZinkM/custody-wallet/internal/secret"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	// ErrValidation is returned for missing or malformed parameters.
	ErrValidation = errors.New("invalid params")
	// ErrAuthFailed is returned for an unknown account or a wrong password.
	// The two cases are not distinguished.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrNotFound is returned when a user or transaction does not exist.
	ErrNotFound = errors.New("not found")
)

// Store is the persistence the service needs.
type Store interface {
	UserAdd(ctx context.Context, realm, login string) (model.User, bool, error)
	UserGetByLogin(ctx context.Context, realm, login string) (model.User, bool, error)
	UserGetByAddress(ctx context.Context, address string) (model.User, bool, error)
	AccountAdd(ctx context.Context, a model.Account) (model.Account, bool, error)
	AccountGetList(ctx context.Context, userID string) ([]model.AccountInfo, error)
	KeystoreGet(ctx context.Context, address string) (model.Keystore, bool, error)
	TxAdd(ctx context.Context, tx model.Tx) (model.Tx, bool, error)
	TxGetList(ctx context.Context, q model.TxListQuery) ([]model.Tx, error)
}

// Chain reads balances and transactions from the node.
type Chain interface {
	GetBalance(ctx context.Context, address ethcommon.Address) (*big.Int, error)
	GetTransaction(ctx context.Context, hash ethcommon.Hash) (*model.TxDetails, bool, error)
}

// TxSigner signs and broadcasts transfers.
type TxSigner interface {
	SignTransaction(ctx context.Context, to ethcommon.Address, value *big.Int, key *ecdsa.PrivateKey) ([]byte, error)
	Broadcast(ctx context.Context, raw []byte) (*client.Receipt, error)
}

// Deps are the collaborators of a Service. NewKey defaults to
// client.CreateKeypair and Now to time.Now.
type Deps struct {
	Store   Store
	Chain   Chain
	Signer  TxSigner
	Deriver *crypto.Deriver
	Vault   *crypto.Vault
	Logins  *crypto.LoginCipher
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	NewKey  func() (*ecdsa.PrivateKey, error)
	Now     func() time.Time
}

// Service implements the wallet operations.
type Service struct {
	store   Store
	chain   Chain
	signer  TxSigner
	deriver *crypto.Deriver
	vault   *crypto.Vault
	logins  *crypto.LoginCipher
	metrics *metrics.Metrics
	log     *zap.Logger
	newKey  func() (*ecdsa.PrivateKey, error)
	now     func() time.Time
	decoy   []byte
}

func New(d Deps) *Service {
	s := &Service{
		store:   d.Store,
		chain:   d.Chain,
		signer:  d.Signer,
		deriver: d.Deriver,
		vault:   d.Vault,
		logins:  d.Logins,
		metrics: d.Metrics,
		log:     d.Logger,
		newKey:  d.NewKey,
		now:     d.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.newKey == nil {
		s.newKey = client.CreateKeypair
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.vault != nil {
		decoy, err := newDecoyKeystore(s.vault)
		if err != nil {
			s.log.Warn("failed to build decoy keystore", zap.Error(err))
		}
		s.decoy = decoy
	}
	return s
}

// newDecoyKeystore seals a random key under a random secret. Nothing can
// open it; it only gives failed unlocks a keystore to spend work on.
func newDecoyKeystore(v *crypto.Vault) ([]byte, error) {
	key, err := client.CreateKeypair()
	if err != nil {
		return nil, err
	}
	defer secret.WipeECDSA(key)
	random, err := crypto.NewSalt()
	if err != nil {
		return nil, err
	}
	sealing := secret.FromBytes(random[:crypto.SecretLen])
	defer sealing.Destroy()
	return v.EncryptKey(key, sealing)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func validate(p interface{ Validate() error }) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// parseAddress accepts a hex address with or without 0x.
func parseAddress(field, s string) (ethcommon.Address, error) {
	if !ethcommon.IsHexAddress(s) {
		return ethcommon.Address{}, invalid("%s is not a valid address", field)
	}
	return ethcommon.HexToAddress(s), nil
}

// storeAddress is the stored form of an address: lowercase hex without 0x.
func storeAddress(a ethcommon.Address) string {
	return strings.ToLower(common.StripHexPrefix(a.Hex()))
}

// parseStored parses a stored address.
func parseStored(stored string) ethcommon.Address {
	return ethcommon.HexToAddress(stored)
}

// displayAddress turns a stored address back into its checksummed 0x form.
func displayAddress(stored string) string {
	return ethcommon.HexToAddress(stored).Hex()
}
