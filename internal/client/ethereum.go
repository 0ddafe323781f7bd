package client

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/AlexZinkM/custody-wallet/internal/common"
	"github.com/AlexZinkM/custody-wallet/internal/model"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the part of an Ethereum node API the wallet needs.
// *ethclient.Client satisfies it and is safe for concurrent use.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account ethcommon.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash ethcommon.Hash) (tx *types.Transaction, isPending bool, err error)
	BalanceAt(ctx context.Context, account ethcommon.Address, blockNumber *big.Int) (*big.Int, error)
}

// ErrNode is returned when the node cannot answer a read request.
var ErrNode = errors.New("ethereum node unavailable")

// EthClient is a client for working with an Ethereum node over JSON-RPC
// (HTTP, WebSocket or IPC).
type EthClient struct {
	backend Backend
	closer  func()
}

// Dial connects to the node at rawurl.
func Dial(ctx context.Context, rawurl string) (*EthClient, error) {
	c, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ethereum node: %w", err)
	}
	return &EthClient{backend: c, closer: c.Close}, nil
}

// NewEthClient wraps an existing backend.
func NewEthClient(b Backend) *EthClient {
	return &EthClient{backend: b}
}

// Backend returns the underlying node API.
func (c *EthClient) Backend() Backend {
	return c.backend
}

// Close releases the node connection.
func (c *EthClient) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// CreateKeypair generates a new secp256k1 key. The caller owns the key and
// must wipe it.
func CreateKeypair() (*ecdsa.PrivateKey, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// GetBalance returns the latest balance of address in wei.
func (c *EthClient) GetBalance(ctx context.Context, address ethcommon.Address) (*big.Int, error) {
	balance, err := c.backend.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: get balance: %w", ErrNode, err)
	}
	return balance, nil
}

// GetTransaction returns the details of a transaction. found is false when
// the node does not know the hash.
func (c *EthClient) GetTransaction(ctx context.Context, hash ethcommon.Hash) (*model.TxDetails, bool, error) {
	tx, pending, err := c.backend.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get transaction: %w", ErrNode, err)
	}

	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to recover sender: %w", err)
	}

	details := &model.TxDetails{
		Hash:     tx.Hash().Hex(),
		Nonce:    tx.Nonce(),
		From:     from.Hex(),
		Value:    common.WeiToEther(tx.Value()),
		Gas:      tx.Gas(),
		GasPrice: common.WeiToEther(tx.GasPrice()),
		Input:    hexutil.Encode(tx.Data()),
	}
	if to := tx.To(); to != nil {
		s := to.Hex()
		details.To = &s
	}

	if !pending {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case errors.Is(err, ethereum.NotFound):
		case err != nil:
			return nil, false, fmt.Errorf("%w: get receipt: %w", ErrNode, err)
		default:
			blockHash := receipt.BlockHash.Hex()
			details.BlockHash = &blockHash
			if receipt.BlockNumber != nil {
				n := receipt.BlockNumber.Uint64()
				details.BlockNumber = &n
			}
			idx := receipt.TransactionIndex
			details.TransactionIndex = &idx
		}
	}
	return details, true, nil
}
