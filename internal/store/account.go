package store

import (
	"context"
	"fmt"

	"github.com/AlexZinkM/custody-wallet/internal/model"

	"github.com/google/uuid"
)

// AccountAdd inserts an account for a.UserID. ID and CreatedDate are
// assigned here. inserted is false when the address already exists.
func (s *Store) AccountAdd(ctx context.Context, a model.Account) (model.Account, bool, error) {
	a.ID = uuid.NewString()
	a.CreatedDate = now()
	res, err := s.db.NamedExecContext(ctx,
		`INSERT INTO accounts (account_id, user_id, account_address, account_name, encrypted_key, salt, created_date)
		 VALUES (:account_id, :user_id, :account_address, :account_name, :encrypted_key, :salt, :created_date)
		 ON CONFLICT DO NOTHING`, a)
	if err != nil {
		return model.Account{}, false, fmt.Errorf("%w: insert account: %w", ErrStore, err)
	}
	ok, err := inserted(res)
	if err != nil || !ok {
		return model.Account{}, false, err
	}
	return a, true, nil
}

// AccountGetList returns the accounts of a user, oldest first.
func (s *Store) AccountGetList(ctx context.Context, userID string) ([]model.AccountInfo, error) {
	accounts := []model.AccountInfo{}
	err := s.db.SelectContext(ctx, &accounts, s.db.Rebind(
		`SELECT account_address, account_name, created_date
		 FROM accounts WHERE user_id = ?
		 ORDER BY created_date, account_address`), userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list accounts: %w", ErrStore, err)
	}
	return accounts, nil
}

// KeystoreGet returns the encrypted key and salt of an account.
func (s *Store) KeystoreGet(ctx context.Context, address string) (model.Keystore, bool, error) {
	var k model.Keystore
	err := s.db.GetContext(ctx, &k, s.db.Rebind(
		`SELECT encrypted_key, salt FROM accounts WHERE account_address = ?`), address)
	return found(k, err, "get keystore")
}
