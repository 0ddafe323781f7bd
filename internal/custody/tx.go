package custody

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/AlexZinkM/custody-wallet/internal/client"
	"github.com/AlexZinkM/custody-wallet/internal/common"
	"github.com/AlexZinkM/custody-wallet/internal/crypto"
	"github.com/AlexZinkM/custody-wallet/internal/metrics"
	"github.com/AlexZinkM/custody-wallet/internal/model"
	"github.com/AlexZinkM/custody-wallet/internal/secret"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var txHashRe = regexp.MustCompile(`^(0x|0X)?[0-9a-fA-F]{64}$`)

// sendStage is the progress of a txSend pipeline.
type sendStage int

const (
	stageStart sendStage = iota
	stageSecretDerived
	stageKeyDecrypted
	stageSigned
	stageBroadcast
	stagePersisted
	stageDone
)

func (s sendStage) String() string {
	switch s {
	case stageStart:
		return "start"
	case stageSecretDerived:
		return "secret_derived"
	case stageKeyDecrypted:
		return "key_decrypted"
	case stageSigned:
		return "signed"
	case stageBroadcast:
		return "broadcast"
	case stagePersisted:
		return "persisted"
	case stageDone:
		return "done"
	default:
		return "unknown"
	}
}

// SendTransaction transfers etherValue from a custodial account. The key
// is decrypted for the duration of the call only; the derived secret, key
// and password copy are scrubbed on every path. Once the transaction is
// sent, cancellation of ctx no longer stops the pipeline.
func (s *Service) SendTransaction(ctx context.Context, p model.TxSendParams) (_ *model.TxSendResult, err error) {
	if err := validate(&p); err != nil {
		return nil, err
	}
	from, err := parseAddress("accountAddress", p.AccountAddress)
	if err != nil {
		return nil, err
	}
	to, err := parseAddress("destinationAddress", p.DestinationAddress)
	if err != nil {
		return nil, err
	}
	value := new(big.Int)
	if p.EtherValue != nil && strings.TrimSpace(*p.EtherValue) != "" {
		if value, err = common.EtherToWei(*p.EtherValue); err != nil {
			return nil, invalid("etherValue: %v", err)
		}
	}

	stage := stageStart
	defer func() {
		if err != nil {
			s.log.Warn("txSend failed",
				zap.String("stage", stage.String()),
				zap.String("from", from.Hex()),
				zap.Error(err))
		}
	}()

	ks, found, err := s.store.KeystoreGet(ctx, storeAddress(from))
	if err != nil {
		return nil, err
	}
	if !found {
		s.unlockDecoy(ctx, p.AccountPassword)
		return nil, ErrAuthFailed
	}
	salt, err := crypto.ParseSalt(ks.Salt)
	if err != nil {
		return nil, err
	}

	password := secret.FromString(p.AccountPassword)
	defer password.Destroy()
	derived, err := s.deriver.DeriveSecret(ctx, password, salt)
	if err != nil {
		return nil, err
	}
	defer derived.Destroy()
	password.Destroy()
	stage = stageSecretDerived

	key, err := s.vault.DecryptKey([]byte(ks.EncryptedKey), derived)
	if errors.Is(err, crypto.ErrInvalidSecret) {
		return nil, ErrAuthFailed
	}
	if err != nil {
		return nil, err
	}
	defer secret.WipeECDSA(key)
	derived.Destroy()
	stage = stageKeyDecrypted

	raw, err := s.signer.SignTransaction(ctx, to, value, key)
	if err != nil {
		return nil, err
	}
	secret.WipeECDSA(key)
	stage = stageSigned

	// irreversible from here
	bctx := context.WithoutCancel(ctx)
	receipt, err := s.signer.Broadcast(bctx, raw)
	s.observeBroadcast(err)
	if err != nil {
		return nil, err
	}
	stage = stageBroadcast

	result := &model.TxSendResult{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber,
	}
	if receipt.ContractAddress != nil {
		result.ContractAddress = receipt.ContractAddress.Hex()
	}

	_, inserted, perr := s.store.TxAdd(bctx, model.Tx{
		Hash:          strings.ToLower(common.StripHexPrefix(receipt.TxHash.Hex())),
		SourceAddress: storeAddress(from),
		DestAddress:   storeAddress(to),
		WeiValue:      value.String(),
	})
	switch {
	case perr != nil:
		// the transfer is on chain, report it anyway
		s.log.Error("failed to record sent transaction",
			zap.String("tx_hash", result.TxHash), zap.Error(perr))
		return result, nil
	case !inserted:
		s.log.Warn("sent transaction already recorded", zap.String("tx_hash", result.TxHash))
	}
	stage = stagePersisted

	s.log.Info("transaction sent",
		zap.String("tx_hash", result.TxHash),
		zap.Uint64("block", result.BlockNumber))
	stage = stageDone
	return result, nil
}

// unlockDecoy does the derivation and keystore work of an unlock against
// a throwaway salt and the decoy keystore, so an unknown account costs the
// same as a wrong password.
func (s *Service) unlockDecoy(ctx context.Context, password string) {
	salt, err := crypto.NewSalt()
	if err != nil {
		return
	}
	pw := secret.FromString(password)
	defer pw.Destroy()
	derived, err := s.deriver.DeriveSecret(ctx, pw, salt)
	if err != nil {
		return
	}
	defer derived.Destroy()
	if s.decoy == nil {
		return
	}
	if key, err := s.vault.DecryptKey(s.decoy, derived); err == nil {
		secret.WipeECDSA(key)
	}
}

func (s *Service) observeBroadcast(err error) {
	var rejected *client.BroadcastRejectedError
	switch {
	case err == nil:
		s.metrics.ObserveBroadcast(metrics.BroadcastMined)
	case errors.As(err, &rejected):
		s.metrics.ObserveBroadcast(metrics.BroadcastRejected)
	case errors.Is(err, client.ErrReceiptTimeout):
		s.metrics.ObserveBroadcast(metrics.BroadcastPending)
	default:
		s.metrics.ObserveBroadcast(metrics.BroadcastFailed)
	}
}

// ListTransactions returns the recorded transactions sent from or to an
// account in the requested window.
func (s *Service) ListTransactions(ctx context.Context, p model.TxListParams) ([]model.TxListItem, error) {
	if err := validate(&p); err != nil {
		return nil, err
	}
	address, err := parseAddress("accountAddress", p.AccountAddress)
	if err != nil {
		return nil, err
	}
	sort := p.SortOrder
	if sort == "" {
		sort = model.SortNoSort
	}
	from, to := p.Window(s.now())

	txs, err := s.store.TxGetList(ctx, model.TxListQuery{
		Direction: p.Direction,
		Address:   storeAddress(address),
		From:      from,
		To:        to,
		Sort:      sort,
	})
	if err != nil {
		return nil, err
	}

	logins := s.newLoginMemo()
	items := make([]model.TxListItem, 0, len(txs))
	for _, tx := range txs {
		src, err := logins.decrypt(tx.SourceUserLogin)
		if err != nil {
			return nil, err
		}
		dst, err := logins.decrypt(tx.DestUserLogin)
		if err != nil {
			return nil, err
		}
		value, err := common.WeiStringToEther(tx.WeiValue)
		if err != nil {
			return nil, err
		}
		items = append(items, model.TxListItem{
			TxHash:          common.AddHexPrefix(tx.Hash),
			SourceAddress:   displayAddress(tx.SourceAddress),
			DestAddress:     displayAddress(tx.DestAddress),
			SourceUserLogin: src,
			DestUserLogin:   dst,
			EtherValue:      value,
			TxCreatedDate:   tx.CreatedDate,
		})
	}
	return items, nil
}

// GetTransaction reads a transaction from the chain and adds the logins
// of custodial counterparties.
func (s *Service) GetTransaction(ctx context.Context, p model.TxGetParams) (*model.TxDetails, error) {
	if err := validate(&p); err != nil {
		return nil, err
	}
	if !txHashRe.MatchString(p.TxHash) {
		return nil, invalid("txHash is not a valid transaction hash")
	}

	details, found, err := s.chain.GetTransaction(ctx, ethcommon.HexToHash(p.TxHash))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: transaction", ErrNotFound)
	}

	logins := s.newLoginMemo()
	if details.SourceUserLogin, err = s.ownerLogin(ctx, logins, details.From); err != nil {
		return nil, err
	}
	if details.To != nil {
		if details.DestUserLogin, err = s.ownerLogin(ctx, logins, *details.To); err != nil {
			return nil, err
		}
	}
	return details, nil
}

// ownerLogin returns the plaintext login owning address, or "" when the
// address is not custodial.
func (s *Service) ownerLogin(ctx context.Context, logins *loginMemo, address string) (string, error) {
	u, found, err := s.store.UserGetByAddress(ctx, storeAddress(ethcommon.HexToAddress(address)))
	if err != nil || !found {
		return "", err
	}
	return logins.decrypt(&u.Login)
}
