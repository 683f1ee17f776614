package service

import (
	"context"
	"fmt"

	"bank-ledger/internal/core/domain"
	"bank-ledger/internal/core/ports"
	"bank-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// UserAdminServiceImpl implements ports.UserAdminService.
type UserAdminServiceImpl struct {
	userRepo ports.UserRepository
	log      zerolog.Logger
}

// NewUserAdminService creates a new UserAdminServiceImpl.
func NewUserAdminService(userRepo ports.UserRepository, log zerolog.Logger) *UserAdminServiceImpl {
	return &UserAdminServiceImpl{userRepo: userRepo, log: log}
}

// ListUsers returns every registered user.
func (s *UserAdminServiceImpl) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list users: %w", err))
	}
	return users, nil
}

// SetBlocked blocks or unblocks a user. Blocked users cannot log in;
// tokens issued earlier stay valid until they expire.
func (s *UserAdminServiceImpl) SetBlocked(ctx context.Context, username string, blocked bool) error {
	found, err := s.userRepo.SetBlocked(ctx, username, blocked)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("set blocked: %w", err))
	}
	if !found {
		return apperror.ErrUserNotFound(username)
	}

	s.log.Info().Str("username", username).Bool("blocked", blocked).Msg("user block state changed")
	return nil
}
