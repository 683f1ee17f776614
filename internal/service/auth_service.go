package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bank-ledger/internal/core/domain"
	"bank-ledger/internal/core/ports"
	"bank-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuthServiceImpl implements ports.AuthService.
type AuthServiceImpl struct {
	userRepo ports.UserRepository
	hashSvc  ports.HashService
	tokenSvc ports.TokenService
	log      zerolog.Logger
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(
	userRepo ports.UserRepository,
	hashSvc ports.HashService,
	tokenSvc ports.TokenService,
	log zerolog.Logger,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		userRepo: userRepo,
		hashSvc:  hashSvc,
		tokenSvc: tokenSvc,
		log:      log,
	}
}

// Register creates a user holding the USER role.
func (s *AuthServiceImpl) Register(ctx context.Context, username, password string) (*domain.User, error) {
	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check username: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrUsernameExists()
	}

	user, err := s.createUser(ctx, username, password, domain.RoleUser)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("username", username).Msg("user registered")
	return user, nil
}

func (s *AuthServiceImpl) createUser(ctx context.Context, username, password string, roles ...domain.Role) (*domain.User, error) {
	passwordHash, err := s.hashSvc.Hash(password)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}

	user := &domain.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		Roles:        roles,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, ports.ErrDuplicateUsername) {
			return nil, apperror.ErrUsernameExists()
		}
		return nil, apperror.InternalError(fmt.Errorf("create user: %w", err))
	}
	return user, nil
}

// Login validates credentials and returns a signed token.
// Unknown users and wrong passwords are indistinguishable.
func (s *AuthServiceImpl) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("find user: %w", err))
	}
	if user == nil {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	valid, err := s.hashSvc.Verify(password, user.PasswordHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !valid {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	if user.Blocked {
		return "", time.Time{}, apperror.ErrUserBlocked()
	}

	token, expiry, err := s.tokenSvc.Generate(user.Actor())
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	return token, expiry, nil
}

// EnsureAdmin creates the administrator with the ADMIN and USER roles unless
// a user with that name already exists. An existing user is left untouched.
func (s *AuthServiceImpl) EnsureAdmin(ctx context.Context, username, password string) error {
	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("find admin: %w", err))
	}
	if existing != nil {
		if !existing.IsAdmin() {
			s.log.Warn().Str("username", username).Msg("configured admin exists without the ADMIN role")
		}
		return nil
	}

	if _, err := s.createUser(ctx, username, password, domain.RoleAdmin, domain.RoleUser); err != nil {
		return err
	}

	s.log.Info().Str("username", username).Msg("admin user created")
	return nil
}

// ChangePassword replaces the caller's password after verifying the current one.
func (s *AuthServiceImpl) ChangePassword(ctx context.Context, username, current, next string) error {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("find user: %w", err))
	}
	if user == nil {
		return apperror.ErrUserNotFound(username)
	}

	valid, err := s.hashSvc.Verify(current, user.PasswordHash)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !valid {
		return apperror.ErrWrongPassword()
	}

	passwordHash, err := s.hashSvc.Hash(next)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}

	found, err := s.userRepo.UpdatePassword(ctx, username, passwordHash)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("update password: %w", err))
	}
	if !found {
		return apperror.ErrUserNotFound(username)
	}

	s.log.Info().Str("username", username).Msg("password changed")
	return nil
}
