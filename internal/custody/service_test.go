package custody

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AlexZinkM/custody-wallet/internal/client"
	"github.com/AlexZinkM/custody-wallet/internal/crypto"
	"github.com/AlexZinkM/custody-wallet/internal/model"
	"github.com/AlexZinkM/custody-wallet/internal/store"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockChain struct {
	mock.Mock
}

func (m *mockChain) GetBalance(ctx context.Context, address ethcommon.Address) (*big.Int, error) {
	args := m.Called(ctx, address)
	v, _ := args.Get(0).(*big.Int)
	return v, args.Error(1)
}

func (m *mockChain) GetTransaction(ctx context.Context, hash ethcommon.Hash) (*model.TxDetails, bool, error) {
	args := m.Called(ctx, hash)
	v, _ := args.Get(0).(*model.TxDetails)
	return v, args.Bool(1), args.Error(2)
}

type mockSigner struct {
	mock.Mock
}

func (m *mockSigner) SignTransaction(ctx context.Context, to ethcommon.Address, value *big.Int, key *ecdsa.PrivateKey) ([]byte, error) {
	args := m.Called(ctx, to, value, key)
	v, _ := args.Get(0).([]byte)
	return v, args.Error(1)
}

func (m *mockSigner) Broadcast(ctx context.Context, raw []byte) (*client.Receipt, error) {
	args := m.Called(ctx, raw)
	v, _ := args.Get(0).(*client.Receipt)
	return v, args.Error(1)
}

type fixture struct {
	svc      *Service
	store    *store.Store
	chain    *mockChain
	signer   *mockSigner
	kdfCalls atomic.Int32
}

func newFixture(t *testing.T, newKey func() (*ecdsa.PrivateKey, error)) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	st, err := store.Open(store.DriverSQLite, fmt.Sprintf("file:custody_%s?mode=memory&cache=shared&_foreign_keys=on", name), 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	f := &fixture{store: st, chain: new(mockChain), signer: new(mockSigner)}
	deriver, err := crypto.NewDeriver(crypto.KDFParams{N: 1 << 10, R: 8, P: 1}, bytes.Repeat([]byte{0x42}, 32),
		crypto.WithObserver(func(time.Duration) { f.kdfCalls.Add(1) }))
	require.NoError(t, err)
	logins, err := crypto.NewLoginCipher(bytes.Repeat([]byte{1}, 32), bytes.Repeat([]byte{2}, 16))
	require.NoError(t, err)

	f.svc = New(Deps{
		Store:   st,
		Chain:   f.chain,
		Signer:  f.signer,
		Deriver: deriver,
		Vault:   crypto.NewVault(2, 1),
		Logins:  logins,
		NewKey:  newKey,
	})
	return f
}

// fixedKey returns a generator yielding fresh copies of one key, so the
// same address is produced even though every returned key gets wiped.
func fixedKey(t *testing.T) (func() (*ecdsa.PrivateKey, error), ethcommon.Address) {
	t.Helper()
	k, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	raw := ethcrypto.FromECDSA(k)
	return func() (*ecdsa.PrivateKey, error) {
		return ethcrypto.ToECDSA(raw)
	}, ethcrypto.PubkeyToAddress(k.PublicKey)
}

func (f *fixture) addUser(t *testing.T, login string) {
	t.Helper()
	res, err := f.svc.AddUser(context.Background(), model.UserParams{Realm: "shop", UserLogin: login})
	require.NoError(t, err)
	require.NotNil(t, res)
}

func (f *fixture) addAccount(t *testing.T, login, password string) string {
	t.Helper()
	res, err := f.svc.AddAccount(context.Background(), model.AccountAddParams{
		Realm:           "shop",
		UserLogin:       login,
		AccountName:     "main",
		AccountPassword: password,
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res.Address
}

func ptr(s string) *string { return &s }

