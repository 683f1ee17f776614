package postgres

import (
	"context"
	"errors"
	"fmt"

	"bank-ledger/internal/core/domain"
	"bank-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, iban, account_number, balance, owner_username, created_at`

// scopeFilter matches every row when the owner argument is NULL.
const scopeFilter = `($%d::text IS NULL OR owner_username = $%d)`

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	a := &domain.Account{}
	err := row.Scan(&a.ID, &a.IBAN, &a.AccountNumber, &a.Balance, &a.Owner, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new account within a transaction.
func (r *AccountRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.Account) error {
	query := `INSERT INTO accounts (` + accountColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.Exec(ctx, query,
		a.ID, a.IBAN, a.AccountNumber, a.Balance.StringFixed(domain.MoneyScale), a.Owner, a.CreatedAt,
	)
	switch {
	case err == nil:
		return nil
	case constraintViolated(err, "accounts_iban_key"):
		return ports.ErrDuplicateIBAN
	case constraintViolated(err, "accounts_account_number_key"):
		return ports.ErrDuplicateAccountNumber
	default:
		return fmt.Errorf("insert account: %w", err)
	}
}

// ExistsByIBAN reports whether any account, regardless of owner, uses iban.
func (r *AccountRepo) ExistsByIBAN(ctx context.Context, tx pgx.Tx, iban string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE iban = $1)`, iban).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check iban exists: %w", err)
	}
	return exists, nil
}

// ExistsByAccountNumber reports whether any account uses accountNumber.
func (r *AccountRepo) ExistsByAccountNumber(ctx context.Context, tx pgx.Tx, accountNumber string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE account_number = $1)`, accountNumber).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check account number exists: %w", err)
	}
	return exists, nil
}

// Find fetches an account by IBAN within scope (non-locking read).
func (r *AccountRepo) Find(ctx context.Context, iban string, scope domain.OwnerScope) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE iban = $1 AND ` + fmt.Sprintf(scopeFilter, 2, 2)

	a, err := scanAccount(r.pool.QueryRow(ctx, query, iban, scope.Arg()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return a, nil
}

// FindForUpdate fetches an account by IBAN within scope and locks its row.
// This MUST be called within a transaction; the lock is held until commit or rollback.
func (r *AccountRepo) FindForUpdate(ctx context.Context, tx pgx.Tx, iban string, scope domain.OwnerScope) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE iban = $1 AND ` + fmt.Sprintf(scopeFilter, 2, 2) + ` FOR UPDATE`

	a, err := scanAccount(tx.QueryRow(ctx, query, iban, scope.Arg()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find account for update: %w", err)
	}
	return a, nil
}

// List returns every account within scope.
func (r *AccountRepo) List(ctx context.Context, scope domain.OwnerScope) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + fmt.Sprintf(scopeFilter, 1, 1) + ` ORDER BY created_at, iban`

	rows, err := r.pool.Query(ctx, query, scope.Arg())
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}
	return accounts, nil
}

// UpdateBalance persists a new balance within a transaction.
func (r *AccountRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, iban string, balance decimal.Decimal) error {
	tag, err := tx.Exec(ctx, `UPDATE accounts SET balance = $1 WHERE iban = $2`,
		balance.StringFixed(domain.MoneyScale), iban)
	if err != nil {
		return fmt.Errorf("update account balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account not found: %s", iban)
	}
	return nil
}

// Delete removes the account row. Ledger entries must be removed first.
func (r *AccountRepo) Delete(ctx context.Context, tx pgx.Tx, iban string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM accounts WHERE iban = $1`, iban); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// AssignOrphans gives every owner-less account to owner.
func (r *AccountRepo) AssignOrphans(ctx context.Context, owner string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET owner_username = $1 WHERE owner_username IS NULL`, owner)
	if err != nil {
		return 0, fmt.Errorf("assign orphan accounts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Totals counts accounts within scope and sums their balances.
func (r *AccountRepo) Totals(ctx context.Context, scope domain.OwnerScope) (int64, decimal.Decimal, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(balance), 0) FROM accounts WHERE ` + fmt.Sprintf(scopeFilter, 1, 1)

	var (
		count int64
		total decimal.Decimal
	)
	if err := r.pool.QueryRow(ctx, query, scope.Arg()).Scan(&count, &total); err != nil {
		return 0, decimal.Zero, fmt.Errorf("account totals: %w", err)
	}
	return count, total, nil
}
