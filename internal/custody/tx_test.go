package custody

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/AlexZinkM/custody-wallet/internal/client"
	"github.com/AlexZinkM/custody-wallet/internal/crypto"
	"github.com/AlexZinkM/custody-wallet/internal/model"
	"github.com/AlexZinkM/custody-wallet/internal/secret"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const foreign = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"

func keyOf(address string) interface{} {
	return mock.MatchedBy(func(k *ecdsa.PrivateKey) bool {
		return ethcrypto.PubkeyToAddress(k.PublicKey) == ethcommon.HexToAddress(address)
	})
}

func (f *fixture) expectSend(from, to string, wei *big.Int, hash ethcommon.Hash, block uint64) {
	raw := hash.Bytes()
	f.signer.On("SignTransaction", mock.Anything, ethcommon.HexToAddress(to), wei, keyOf(from)).Return(raw, nil).Once()
	f.signer.On("Broadcast", mock.Anything, raw).Return(&client.Receipt{TxHash: hash, BlockNumber: block}, nil).Once()
}

func (f *fixture) send(t *testing.T, from, to, ether, password string) *model.TxSendResult {
	t.Helper()
	res, err := f.svc.SendTransaction(context.Background(), model.TxSendParams{
		AccountAddress:     from,
		DestinationAddress: to,
		EtherValue:         ptr(ether),
		AccountPassword:    password,
	})
	require.NoError(t, err)
	return res
}

func TestSendTransaction(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, "alice")
	from := f.addAccount(t, "alice", "hmac123")

	hash := ethcommon.HexToHash("0xaa01")
	half, _ := new(big.Int).SetString("500000000000000000", 10)
	f.expectSend(from, foreign, half, hash, 12)

	res := f.send(t, strings.ToLower(from), foreign, "0.5", "hmac123")
	assert.Equal(t, hash.Hex(), res.TxHash)
	assert.Equal(t, uint64(12), res.BlockNumber)
	assert.Empty(t, res.ContractAddress)
	f.signer.AssertExpectations(t)

	list, err := f.svc.ListTransactions(context.Background(), model.TxListParams{Direction: model.DirectionOut, AccountAddress: from})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, hash.Hex(), list[0].TxHash)
	assert.Equal(t, from, list[0].SourceAddress)
	assert.Equal(t, foreign, list[0].DestAddress)
	assert.Equal(t, "alice", list[0].SourceUserLogin)
	assert.Empty(t, list[0].DestUserLogin)
	assert.Equal(t, "0.5", list[0].EtherValue)
}

func TestSendTransactionZeroValueByDefault(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, "alice")
	from := f.addAccount(t, "alice", "pw")

	f.expectSend(from, foreign, new(big.Int), ethcommon.HexToHash("0x01"), 1)
	_, err := f.svc.SendTransaction(context.Background(), model.TxSendParams{
		AccountAddress: from, DestinationAddress: foreign, AccountPassword: "pw",
	})
	require.NoError(t, err)
}

func TestSendTransactionUnknownAccount(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.SendTransaction(context.Background(), model.TxSendParams{
		AccountAddress: foreign, DestinationAddress: foreign, EtherValue: ptr("1"), AccountPassword: "pw",
	})
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.EqualValues(t, 1, f.kdfCalls.Load(), "unknown account must pay for a derivation")
	f.signer.AssertNotCalled(t, "SignTransaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendTransactionWrongPassword(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, "alice")
	from := f.addAccount(t, "alice", "right")
	before := f.kdfCalls.Load()

	_, err := f.svc.SendTransaction(context.Background(), model.TxSendParams{
		AccountAddress: from, DestinationAddress: foreign, EtherValue: ptr("1"), AccountPassword: "wrong",
	})
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.EqualValues(t, 1, f.kdfCalls.Load()-before)
	f.signer.AssertNotCalled(t, "SignTransaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDecoyKeystoreRejectsAnySecret(t *testing.T) {
	f := newFixture(t, nil)
	require.NotNil(t, f.svc.decoy)

	derived := secret.FromBytes(bytes.Repeat([]byte{9}, crypto.SecretLen))
	defer derived.Destroy()
	_, err := f.svc.vault.DecryptKey(f.svc.decoy, derived)
	assert.ErrorIs(t, err, crypto.ErrInvalidSecret)
}

func TestSendTransactionValidation(t *testing.T) {
	f := newFixture(t, nil)
	for _, p := range []model.TxSendParams{
		{DestinationAddress: foreign, AccountPassword: "pw"},
		{AccountAddress: "0xnothex", DestinationAddress: foreign, AccountPassword: "pw"},
		{AccountAddress: foreign, DestinationAddress: "0x12", AccountPassword: "pw"},
		{AccountAddress: foreign, DestinationAddress: foreign, AccountPassword: "pw", EtherValue: ptr("-1")},
		{AccountAddress: foreign, DestinationAddress: foreign, AccountPassword: "pw", EtherValue: ptr("0.0000000000000000001")},
	} {
		_, err := f.svc.SendTransaction(context.Background(), p)
		assert.ErrorIs(t, err, ErrValidation)
	}
}

func TestSendTransactionRejectedWritesNoRow(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, "alice")
	from := f.addAccount(t, "alice", "pw")

	hash := ethcommon.HexToHash("0xdead")
	f.signer.On("SignTransaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]byte{1}, nil)
	f.signer.On("Broadcast", mock.Anything, []byte{1}).Return(nil, &client.BroadcastRejectedError{TxHash: hash, BlockNumber: 3})

	_, err := f.svc.SendTransaction(context.Background(), model.TxSendParams{
		AccountAddress: from, DestinationAddress: foreign, EtherValue: ptr("1"), AccountPassword: "pw",
	})
	var rejected *client.BroadcastRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, hash, rejected.TxHash)

	list, err := f.svc.ListTransactions(context.Background(), model.TxListParams{Direction: model.DirectionOut, AccountAddress: from})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSendTransactionPersistFailureStillReturnsReceipt(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, "alice")
	from := f.addAccount(t, "alice", "pw")

	hash := ethcommon.HexToHash("0xfeed")
	f.signer.On("SignTransaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]byte{3}, nil)
	f.signer.On("Broadcast", mock.Anything, []byte{3}).
		Run(func(mock.Arguments) { require.NoError(t, f.store.Close()) }).
		Return(&client.Receipt{TxHash: hash, BlockNumber: 4}, nil)

	res, err := f.svc.SendTransaction(context.Background(), model.TxSendParams{
		AccountAddress: from, DestinationAddress: foreign, EtherValue: ptr("1"), AccountPassword: "pw",
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, hash.Hex(), res.TxHash)
	assert.EqualValues(t, 4, res.BlockNumber)
}

func TestSendTransactionSigningFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, "alice")
	from := f.addAccount(t, "alice", "pw")

	f.signer.On("SignTransaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, client.ErrEstimation)
	_, err := f.svc.SendTransaction(context.Background(), model.TxSendParams{
		AccountAddress: from, DestinationAddress: foreign, EtherValue: ptr("1"), AccountPassword: "pw",
	})
	assert.ErrorIs(t, err, client.ErrEstimation)
	f.signer.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
}

func TestSendTransactionBroadcastSurvivesCancellation(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, "alice")
	from := f.addAccount(t, "alice", "pw")

	ctx, cancel := context.WithCancel(context.Background())
	hash := ethcommon.HexToHash("0xbeef")
	f.signer.On("SignTransaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return([]byte{2}, nil)
	f.signer.On("Broadcast", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }), []byte{2}).
		Return(&client.Receipt{TxHash: hash, BlockNumber: 9}, nil)

	res, err := f.svc.SendTransaction(ctx, model.TxSendParams{
		AccountAddress: from, DestinationAddress: foreign, EtherValue: ptr("1"), AccountPassword: "pw",
	})
	require.NoError(t, err)
	assert.Equal(t, hash.Hex(), res.TxHash)

	list, err := f.svc.ListTransactions(context.Background(), model.TxListParams{Direction: model.DirectionOut, AccountAddress: from})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestListTransactionsOrderAndDirection(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, "alice")
	f.addUser(t, "bob")
	alice := f.addAccount(t, "alice", "pw")
	bob := f.addAccount(t, "bob", "pw")

	one, _ := new(big.Int).SetString("1000000000000000000", 10)
	two, _ := new(big.Int).SetString("2000000000000000000", 10)
	f.expectSend(alice, bob, one, ethcommon.HexToHash("0x01"), 1)
	f.send(t, alice, bob, "1", "pw")
	time.Sleep(2 * time.Millisecond)
	f.expectSend(alice, foreign, two, ethcommon.HexToHash("0x02"), 2)
	f.send(t, alice, foreign, "2", "pw")

	asc, err := f.svc.ListTransactions(context.Background(), model.TxListParams{
		Direction: model.DirectionOut, AccountAddress: alice, SortOrder: model.SortAsc,
	})
	require.NoError(t, err)
	require.Len(t, asc, 2)
	assert.Equal(t, "1", asc[0].EtherValue)
	assert.Equal(t, "bob", asc[0].DestUserLogin)
	assert.Equal(t, "2", asc[1].EtherValue)

	desc, err := f.svc.ListTransactions(context.Background(), model.TxListParams{
		Direction: model.DirectionOut, AccountAddress: alice, SortOrder: model.SortDesc,
	})
	require.NoError(t, err)
	require.Len(t, desc, 2)
	assert.Equal(t, "2", desc[0].EtherValue)

	in, err := f.svc.ListTransactions(context.Background(), model.TxListParams{
		Direction: model.DirectionIn, AccountAddress: bob,
	})
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "alice", in[0].SourceUserLogin)
	assert.Equal(t, "bob", in[0].DestUserLogin)

	old, err := f.svc.ListTransactions(context.Background(), model.TxListParams{
		Direction: model.DirectionOut, AccountAddress: alice,
		DateTo: ptr(time.Now().Add(-24 * time.Hour).UTC().Format(time.RFC3339)),
	})
	require.NoError(t, err)
	assert.Empty(t, old)
}

func TestListTransactionsValidation(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.ListTransactions(context.Background(), model.TxListParams{Direction: "Up", AccountAddress: foreign})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.ListTransactions(context.Background(), model.TxListParams{Direction: model.DirectionIn, AccountAddress: "nope"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetTransaction(t *testing.T) {
	f := newFixture(t, nil)
	f.addUser(t, "alice")
	from := f.addAccount(t, "alice", "pw")

	hash := ethcommon.HexToHash("0x0abc")
	to := foreign
	f.chain.On("GetTransaction", mock.Anything, hash).Return(&model.TxDetails{
		Hash: hash.Hex(), From: from, To: &to, Value: "1",
	}, true, nil)

	details, err := f.svc.GetTransaction(context.Background(), model.TxGetParams{TxHash: hash.Hex()})
	require.NoError(t, err)
	assert.Equal(t, "alice", details.SourceUserLogin)
	assert.Empty(t, details.DestUserLogin)
}

func TestGetTransactionNotFound(t *testing.T) {
	f := newFixture(t, nil)
	f.chain.On("GetTransaction", mock.Anything, mock.Anything).Return(nil, false, nil)

	_, err := f.svc.GetTransaction(context.Background(), model.TxGetParams{TxHash: ethcommon.HexToHash("0x01").Hex()})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.GetTransaction(context.Background(), model.TxGetParams{TxHash: "0x01"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetTransactionNodeError(t *testing.T) {
	f := newFixture(t, nil)
	f.chain.On("GetTransaction", mock.Anything, mock.Anything).Return(nil, false, client.ErrNode)
	_, err := f.svc.GetTransaction(context.Background(), model.TxGetParams{TxHash: ethcommon.HexToHash("0x01").Hex()})
	assert.True(t, errors.Is(err, client.ErrNode))
}
