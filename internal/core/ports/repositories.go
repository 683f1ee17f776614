package ports

import (
	"context"
	"errors"

	"bank-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Uniqueness violations surfaced by AccountRepository.Create when a concurrent
// writer won the race between the existence check and the insert.
var (
	ErrDuplicateIBAN          = errors.New("duplicate iban")
	ErrDuplicateAccountNumber = errors.New("duplicate account number")
	ErrDuplicateUsername      = errors.New("duplicate username")
)

// AccountRepository defines persistence operations for ledger accounts.
// Every lookup takes a domain.OwnerScope; a row outside the scope is
// reported exactly like a missing row (nil, nil).
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type AccountRepository interface {
	Create(ctx context.Context, tx pgx.Tx, account *domain.Account) error
	ExistsByIBAN(ctx context.Context, tx pgx.Tx, iban string) (bool, error)
	ExistsByAccountNumber(ctx context.Context, tx pgx.Tx, accountNumber string) (bool, error)
	Find(ctx context.Context, iban string, scope domain.OwnerScope) (*domain.Account, error)
	FindForUpdate(ctx context.Context, tx pgx.Tx, iban string, scope domain.OwnerScope) (*domain.Account, error)
	List(ctx context.Context, scope domain.OwnerScope) ([]domain.Account, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, iban string, balance decimal.Decimal) error
	Delete(ctx context.Context, tx pgx.Tx, iban string) error
	// AssignOrphans sets owner on every account that has none and returns how many changed.
	AssignOrphans(ctx context.Context, owner string) (int64, error)
	// Totals returns the number of accounts and the sum of their balances within scope.
	Totals(ctx context.Context, scope domain.OwnerScope) (int64, decimal.Decimal, error)
}

// LedgerRepository defines persistence for the append-only ledger.
type LedgerRepository interface {
	Append(ctx context.Context, tx pgx.Tx, entries ...*domain.LedgerEntry) error
	// ListByIBAN returns entries newest first.
	ListByIBAN(ctx context.Context, iban string) ([]domain.LedgerEntry, error)
	DeleteByIBAN(ctx context.Context, tx pgx.Tx, iban string) (int64, error)
	// Count returns the number of entries on accounts within scope.
	Count(ctx context.Context, scope domain.OwnerScope) (int64, error)
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	SetBlocked(ctx context.Context, username string, blocked bool) (bool, error)
	UpdatePassword(ctx context.Context, username, passwordHash string) (bool, error)
}

// AuditRepository persists audit logs.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
