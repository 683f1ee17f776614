package postgres

import (
	"context"
	"errors"
	"fmt"

	"bank-ledger/internal/core/domain"
	"bank-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

const userColumns = `id, username, password_hash, roles, blocked, created_at`

// UserRepo implements ports.UserRepository.
type UserRepo struct {
	pool Pool
}

// NewUserRepo creates a new UserRepo.
func NewUserRepo(pool Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func scanUser(row pgx.Row) (*domain.User, error) {
	u := &domain.User{}
	var roles []string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &roles, &u.Blocked, &u.CreatedAt); err != nil {
		return nil, err
	}
	for _, role := range roles {
		u.Roles = append(u.Roles, domain.Role(role))
	}
	return u, nil
}

// Create inserts a new user.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	roles := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		roles = append(roles, string(role))
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Username, u.PasswordHash, roles, u.Blocked, u.CreatedAt,
	)
	if err != nil {
		if constraintViolated(err, "users_username_key") {
			return ports.ErrDuplicateUsername
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByUsername fetches a user by username. Returns nil, nil when absent.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

// List returns all users ordered by username.
func (r *UserRepo) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return users, nil
}

// SetBlocked updates the blocked flag. Returns false when the user does not exist.
func (r *UserRepo) SetBlocked(ctx context.Context, username string, blocked bool) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET blocked = $1 WHERE username = $2`, blocked, username)
	if err != nil {
		return false, fmt.Errorf("set user blocked: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdatePassword replaces the password hash. Returns false when the user does not exist.
func (r *UserRepo) UpdatePassword(ctx context.Context, username, passwordHash string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $1 WHERE username = $2`, passwordHash, username)
	if err != nil {
		return false, fmt.Errorf("update password: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
