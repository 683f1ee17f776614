package postgres

import (
	"context"
	"fmt"

	"bank-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const ledgerColumns = `id, account_iban, kind, amount, counterparty_iban, balance_after, created_at`

// LedgerRepo implements ports.LedgerRepository. Entries are insert-only.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Append inserts entries within the caller's transaction.
func (r *LedgerRepo) Append(ctx context.Context, tx pgx.Tx, entries ...*domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (` + ledgerColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, e := range entries {
		_, err := tx.Exec(ctx, query,
			e.ID, e.AccountIBAN, string(e.Kind), e.Amount.StringFixed(domain.MoneyScale),
			e.CounterpartyIBAN, e.BalanceAfter.StringFixed(domain.MoneyScale), e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
	}
	return nil
}

// ListByIBAN returns the account's entries, newest first.
func (r *LedgerRepo) ListByIBAN(ctx context.Context, iban string) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE account_iban = $1 ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, iban)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.LedgerEntry{}
	for rows.Next() {
		e := domain.LedgerEntry{}
		err := rows.Scan(
			&e.ID, &e.AccountIBAN, &e.Kind, &e.Amount,
			&e.CounterpartyIBAN, &e.BalanceAfter, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entry rows: %w", err)
	}
	return entries, nil
}

// DeleteByIBAN purges all entries of an account being deleted.
func (r *LedgerRepo) DeleteByIBAN(ctx context.Context, tx pgx.Tx, iban string) (int64, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM ledger_entries WHERE account_iban = $1`, iban)
	if err != nil {
		return 0, fmt.Errorf("delete ledger entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of entries on accounts within scope.
func (r *LedgerRepo) Count(ctx context.Context, scope domain.OwnerScope) (int64, error) {
	query := `SELECT COUNT(*) FROM ledger_entries e
		JOIN accounts a ON a.iban = e.account_iban
		WHERE ($1::text IS NULL OR a.owner_username = $1)`

	var count int64
	if err := r.pool.QueryRow(ctx, query, scope.Arg()).Scan(&count); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return count, nil
}
