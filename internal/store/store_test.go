package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/AlexZinkM/custody-wallet/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore opens a migrated in-memory sqlite store.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := Open(DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name), 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func setNow(t *testing.T, ts time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return ts }
	t.Cleanup(func() { now = prev })
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "x", 1)
	assert.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestUserAddAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u, ok, err := s.UserAdd(ctx, "shop", "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, u.ID)

	_, ok, err = s.UserAdd(ctx, "shop", "c1")
	require.NoError(t, err)
	assert.False(t, ok, "duplicate login in the same realm")

	_, ok, err = s.UserAdd(ctx, "bank", "c1")
	require.NoError(t, err)
	assert.True(t, ok, "same login in another realm")

	got, ok, err := s.UserGetByLogin(ctx, "shop", "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, u.ID, got.ID)
	assert.True(t, u.CreatedDate.Equal(got.CreatedDate))

	_, ok, err = s.UserGetByLogin(ctx, "shop", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func addAccount(t *testing.T, s *Store, userID, address string) model.Account {
	t.Helper()
	a, ok, err := s.AccountAdd(context.Background(), model.Account{
		UserID:       userID,
		Address:      address,
		Name:         "main " + address[:4],
		EncryptedKey: `{"version":3}`,
		Salt:         strings.Repeat("ab", 32),
	})
	require.NoError(t, err)
	require.True(t, ok)
	return a
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u, _, err := s.UserAdd(ctx, "shop", "c1")
	require.NoError(t, err)

	setNow(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	addAccount(t, s, u.ID, strings.Repeat("b", 40))
	setNow(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	addAccount(t, s, u.ID, strings.Repeat("a", 40))

	_, ok, err := s.AccountAdd(ctx, model.Account{UserID: u.ID, Address: strings.Repeat("a", 40), Name: "dup", EncryptedKey: "{}", Salt: "00"})
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := s.AccountGetList(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, strings.Repeat("b", 40), list[0].Address)
	assert.Equal(t, strings.Repeat("a", 40), list[1].Address)

	empty, err := s.AccountGetList(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	ks, ok, err := s.KeystoreGet(ctx, strings.Repeat("a", 40))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"version":3}`, ks.EncryptedKey)
	assert.Equal(t, strings.Repeat("ab", 32), ks.Salt)

	_, ok, err = s.KeystoreGet(ctx, strings.Repeat("c", 40))
	require.NoError(t, err)
	assert.False(t, ok)

	owner, ok, err := s.UserGetByAddress(ctx, strings.Repeat("b", 40))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c1", owner.Login)
}

func TestAccountAddRequiresUser(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.AccountAdd(context.Background(), model.Account{UserID: "ghost", Address: strings.Repeat("d", 40), Name: "x", EncryptedKey: "{}", Salt: "00"})
	assert.ErrorIs(t, err, ErrStore)
}

func TestTxGetList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice, _, err := s.UserAdd(ctx, "shop", "alice-c")
	require.NoError(t, err)
	bob, _, err := s.UserAdd(ctx, "shop", "bob-c")
	require.NoError(t, err)

	addrA := strings.Repeat("a", 40)
	addrB := strings.Repeat("b", 40)
	foreign := strings.Repeat("f", 40)
	addAccount(t, s, alice.ID, addrA)
	addAccount(t, s, bob.ID, addrB)

	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	add := func(hash, from, to string, at time.Time) {
		setNow(t, at)
		_, ok, err := s.TxAdd(ctx, model.Tx{Hash: hash, SourceAddress: from, DestAddress: to, WeiValue: "1000"})
		require.NoError(t, err)
		require.True(t, ok)
	}
	add("01", addrA, addrB, base)
	add("02", addrA, foreign, base.Add(time.Hour))
	add("03", addrA, addrB, base.Add(-30*24*time.Hour))
	add("04", addrB, addrA, base.Add(2*time.Hour))

	_, ok, err := s.TxAdd(ctx, model.Tx{Hash: "01", SourceAddress: addrA, DestAddress: addrB, WeiValue: "1"})
	require.NoError(t, err)
	assert.False(t, ok)

	q := model.TxListQuery{
		Direction: model.DirectionOut,
		Address:   addrA,
		From:      base.Add(-24 * time.Hour),
		To:        base.Add(24 * time.Hour),
		Sort:      model.SortAsc,
	}
	txs, err := s.TxGetList(ctx, q)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "01", txs[0].Hash)
	assert.Equal(t, "02", txs[1].Hash)
	require.NotNil(t, txs[0].SourceUserLogin)
	assert.Equal(t, "alice-c", *txs[0].SourceUserLogin)
	require.NotNil(t, txs[0].DestUserLogin)
	assert.Equal(t, "bob-c", *txs[0].DestUserLogin)
	assert.Nil(t, txs[1].DestUserLogin)
	assert.Equal(t, "1000", txs[0].WeiValue)

	q.Sort = model.SortDesc
	txs, err = s.TxGetList(ctx, q)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "02", txs[0].Hash)

	q.Direction = model.DirectionIn
	q.Sort = model.SortNoSort
	txs, err = s.TxGetList(ctx, q)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "04", txs[0].Hash)

	q.Address = foreign
	q.From = base.Add(-365 * 24 * time.Hour)
	txs, err = s.TxGetList(ctx, q)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Nil(t, txs[0].DestUserLogin)
	require.NotNil(t, txs[0].SourceUserLogin)
}
