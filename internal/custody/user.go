package custody

import (
	"context"
	"fmt"

	"github.com/AlexZinkM/custody-wallet/internal/model"

	"go.uber.org/zap"
)

// AddUser registers a user in a realm. A nil result without error means
// the user already exists.
func (s *Service) AddUser(ctx context.Context, p model.UserParams) (*model.UserResult, error) {
	if err := validate(&p); err != nil {
		return nil, err
	}
	u, inserted, err := s.store.UserAdd(ctx, p.Realm, s.logins.EncryptLogin(p.UserLogin))
	if err != nil {
		return nil, err
	}
	if !inserted {
		s.log.Debug("user already exists", zap.String("realm", p.Realm))
		return nil, nil
	}
	return &model.UserResult{CreatedDate: u.CreatedDate}, nil
}

// GetUser returns the creation date of a user.
func (s *Service) GetUser(ctx context.Context, p model.UserParams) (*model.UserResult, error) {
	u, err := s.findUser(ctx, p)
	if err != nil {
		return nil, err
	}
	return &model.UserResult{CreatedDate: u.CreatedDate}, nil
}

func (s *Service) findUser(ctx context.Context, p model.UserParams) (model.User, error) {
	if err := validate(&p); err != nil {
		return model.User{}, err
	}
	u, found, err := s.store.UserGetByLogin(ctx, p.Realm, s.logins.EncryptLogin(p.UserLogin))
	if err != nil {
		return model.User{}, err
	}
	if !found {
		return model.User{}, fmt.Errorf("%w: user", ErrNotFound)
	}
	return u, nil
}

// loginMemo decrypts login ciphertexts once per request.
type loginMemo struct {
	s     *Service
	plain map[string]string
}

func (s *Service) newLoginMemo() *loginMemo {
	return &loginMemo{s: s, plain: make(map[string]string)}
}

func (m *loginMemo) decrypt(cipherText *string) (string, error) {
	if cipherText == nil {
		return "", nil
	}
	if p, ok := m.plain[*cipherText]; ok {
		return p, nil
	}
	p, err := m.s.logins.DecryptLogin(*cipherText)
	if err != nil {
		return "", err
	}
	m.plain[*cipherText] = p
	return p, nil
}
