package custody

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/AlexZinkM/custody-wallet/internal/common"
	"github.com/AlexZinkM/custody-wallet/internal/crypto"
	"github.com/AlexZinkM/custody-wallet/internal/model"
	"github.com/AlexZinkM/custody-wallet/internal/secret"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	qrSize        = 256
	balanceFanout = 8
)

// AddAccount creates a key pair for a user and stores the key encrypted
// under a secret derived from accountPassword. A nil result without error
// means the address already exists. The returned address is checksummed.
func (s *Service) AddAccount(ctx context.Context, p model.AccountAddParams) (*model.AccountAddResult, error) {
	if err := validate(&p); err != nil {
		return nil, err
	}
	user, err := s.findUser(ctx, model.UserParams{Realm: p.Realm, UserLogin: p.UserLogin})
	if err != nil {
		return nil, err
	}

	key, err := s.newKey()
	if err != nil {
		return nil, err
	}
	defer secret.WipeECDSA(key)
	address := ethcrypto.PubkeyToAddress(key.PublicKey)

	salt, err := crypto.NewSalt()
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

	blob, err := s.vault.EncryptKey(key, derived)
	if err != nil {
		return nil, err
	}

	acc, inserted, err := s.store.AccountAdd(ctx, model.Account{
		UserID:       user.ID,
		Address:      storeAddress(address),
		Name:         p.AccountName,
		EncryptedKey: string(blob),
		Salt:         salt.String(),
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		s.log.Warn("account address already exists", zap.String("address", address.Hex()))
		return nil, nil
	}
	s.log.Info("account created", zap.String("address", address.Hex()), zap.String("realm", p.Realm))
	return &model.AccountAddResult{Address: address.Hex(), CreatedDate: acc.CreatedDate}, nil
}

// ListAccounts returns a user's accounts with their current balance in ether.
func (s *Service) ListAccounts(ctx context.Context, p model.UserParams) ([]model.AccountListItem, error) {
	user, err := s.findUser(ctx, p)
	if err != nil {
		return nil, err
	}
	accounts, err := s.store.AccountGetList(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	items := make([]model.AccountListItem, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(balanceFanout)
	for i, a := range accounts {
		i, a := i, a
		g.Go(func() error {
			address := displayAddress(a.Address)
			balance, err := s.chain.GetBalance(gctx, parseStored(a.Address))
			if err != nil {
				return fmt.Errorf("balance of %s: %w", address, err)
			}
			items[i] = model.AccountListItem{
				AccountAddress: address,
				AccountName:    a.Name,
				Balance:        common.WeiToEther(balance),
				CreatedDate:    a.CreatedDate,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// AccountQR renders a custodial account address as a base64 PNG QR code.
func (s *Service) AccountQR(ctx context.Context, p model.AccountQRParams) (*model.AccountQRResult, error) {
	if err := validate(&p); err != nil {
		return nil, err
	}
	address, err := parseAddress("accountAddress", p.AccountAddress)
	if err != nil {
		return nil, err
	}
	_, found, err := s.store.UserGetByAddress(ctx, storeAddress(address))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: account", ErrNotFound)
	}

	qr, err := qrcode.New(address.Hex(), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}
	png, err := qr.PNG(qrSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate PNG: %w", err)
	}
	return &model.AccountQRResult{
		Address: address.Hex(),
		QR:      base64.StdEncoding.EncodeToString(png),
	}, nil
}
