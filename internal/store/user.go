package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/AlexZinkM/custody-wallet/internal/model"

	"github.com/google/uuid"
)

// UserAdd inserts a user. inserted is false when (realm, login) exists.
// login is the login ciphertext.
func (s *Store) UserAdd(ctx context.Context, realm, login string) (model.User, bool, error) {
	u := model.User{
		ID:          uuid.NewString(),
		Realm:       realm,
		Login:       login,
		CreatedDate: now(),
	}
	res, err := s.db.NamedExecContext(ctx,
		`INSERT INTO users (user_id, realm, user_login, created_date)
		 VALUES (:user_id, :realm, :user_login, :created_date)
		 ON CONFLICT DO NOTHING`, u)
	if err != nil {
		return model.User{}, false, fmt.Errorf("%w: insert user: %w", ErrStore, err)
	}
	ok, err := inserted(res)
	if err != nil || !ok {
		return model.User{}, false, err
	}
	return u, true, nil
}

// UserGetByLogin looks a user up by realm and login ciphertext.
func (s *Store) UserGetByLogin(ctx context.Context, realm, login string) (model.User, bool, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(
		`SELECT user_id, realm, user_login, created_date
		 FROM users WHERE realm = ? AND user_login = ?`), realm, login)
	return found(u, err, "get user")
}

// UserGetByAddress returns the owner of an account address.
func (s *Store) UserGetByAddress(ctx context.Context, address string) (model.User, bool, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(
		`SELECT u.user_id, u.realm, u.user_login, u.created_date
		 FROM users u JOIN accounts a ON a.user_id = u.user_id
		 WHERE a.account_address = ?`), address)
	return found(u, err, "get user by address")
}

func found[T any](v T, err error, op string) (T, bool, error) {
	var zero T
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("%w: %s: %w", ErrStore, op, err)
	}
	return v, true, nil
}
