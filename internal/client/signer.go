package client

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

var (
	ErrEstimation     = errors.New("transaction parameters unavailable")
	ErrSigning        = errors.New("failed to sign transaction")
	ErrBroadcast      = errors.New("failed to broadcast transaction")
	ErrReceiptTimeout = errors.New("timed out waiting for receipt")
)

// BroadcastRejectedError is returned when the transaction was mined but
// reverted (receipt status 0).
type BroadcastRejectedError struct {
	TxHash      ethcommon.Hash
	BlockNumber uint64
	GasUsed     uint64
}

func (e *BroadcastRejectedError) Error() string {
	return fmt.Sprintf("transaction %s rejected in block %d", e.TxHash.Hex(), e.BlockNumber)
}

// ReceiptTimeoutError is returned when the transaction was sent but no
// receipt appeared in time. The transaction may still be mined.
type ReceiptTimeoutError struct {
	TxHash ethcommon.Hash
}

func (e *ReceiptTimeoutError) Error() string {
	return fmt.Sprintf("%s: %s", ErrReceiptTimeout, e.TxHash.Hex())
}

func (e *ReceiptTimeoutError) Unwrap() error { return ErrReceiptTimeout }

// Receipt is the outcome of a successful broadcast.
type Receipt struct {
	TxHash          ethcommon.Hash
	BlockNumber     uint64
	GasUsed         uint64
	ContractAddress *ethcommon.Address
}

// Signer builds, signs and broadcasts value transfers.
type Signer struct {
	backend      Backend
	pollInterval time.Duration
	timeout      time.Duration
	log          *zap.Logger
}

// NewSigner creates a Signer. pollInterval and timeout bound the wait for
// a receipt after broadcast.
func NewSigner(b Backend, pollInterval, timeout time.Duration, log *zap.Logger) *Signer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Signer{backend: b, pollInterval: pollInterval, timeout: timeout, log: log}
}

// SignTransaction builds a legacy transfer of value wei from key's address
// to to, filling gas, nonce, gas price and chain id from the node, and
// returns the signed raw transaction.
func (s *Signer) SignTransaction(ctx context.Context, to ethcommon.Address, value *big.Int, key *ecdsa.PrivateKey) ([]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	from := ethcrypto.PubkeyToAddress(key.PublicKey)

	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value})
	if err != nil {
		return nil, fmt.Errorf("%w: estimate gas: %w", ErrEstimation, err)
	}
	nonce, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %w", ErrEstimation, err)
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: gas price: %w", ErrEstimation, err)
	}
	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id: %w", ErrEstimation, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrSigning, err)
	}
	return raw, nil
}

// Broadcast sends a signed raw transaction and waits for its receipt.
// Once sent, the wait is not cancelled with ctx; it ends on receipt or
// after the signer timeout.
func (s *Signer) Broadcast(ctx context.Context, raw []byte) (*Receipt, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrBroadcast, err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.backend.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBroadcast, err)
	}
	s.log.Debug("transaction sent", zap.String("tx_hash", tx.Hash().Hex()))

	receipt, err := s.waitReceipt(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}
	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, &BroadcastRejectedError{TxHash: tx.Hash(), BlockNumber: block, GasUsed: receipt.GasUsed}
	}

	out := &Receipt{TxHash: tx.Hash(), BlockNumber: block, GasUsed: receipt.GasUsed}
	if receipt.ContractAddress != (ethcommon.Address{}) {
		addr := receipt.ContractAddress
		out.ContractAddress = &addr
	}
	return out, nil
}

func (s *Signer) waitReceipt(ctx context.Context, hash ethcommon.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
		default:
			s.log.Warn("receipt poll failed", zap.String("tx_hash", hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, &ReceiptTimeoutError{TxHash: hash}
		case <-ticker.C:
		}
	}
}
