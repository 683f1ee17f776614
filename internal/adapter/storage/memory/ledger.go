package memory

import (
	"context"
	"sort"

	"bank-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.LedgerRepository over a Store.
type LedgerRepo struct {
	store *Store
}

// NewLedgerRepo creates a LedgerRepo.
func NewLedgerRepo(store *Store) *LedgerRepo {
	return &LedgerRepo{store: store}
}

// Append buffers the entries; they become visible together on commit.
func (r *LedgerRepo) Append(_ context.Context, tx pgx.Tx, entries ...*domain.LedgerEntry) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	rows := make([]domain.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, *e)
	}
	return t.buffer(func(s *Store, u *undoLog) error {
		for _, e := range rows {
			u.saveEntries(s, e.AccountIBAN)
			s.entries[e.AccountIBAN] = append(s.entries[e.AccountIBAN], e)
		}
		return nil
	})
}

// ListByIBAN returns committed entries, newest first.
func (r *LedgerRepo) ListByIBAN(_ context.Context, iban string) ([]domain.LedgerEntry, error) {
	r.store.mu.RLock()
	entries := append([]domain.LedgerEntry{}, r.store.entries[iban]...)
	r.store.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

// DeleteByIBAN buffers removal of every entry on the account.
func (r *LedgerRepo) DeleteByIBAN(_ context.Context, tx pgx.Tx, iban string) (int64, error) {
	t, err := asTx(tx)
	if err != nil {
		return 0, err
	}

	r.store.mu.RLock()
	n := int64(len(r.store.entries[iban]))
	r.store.mu.RUnlock()

	return n, t.buffer(func(s *Store, u *undoLog) error {
		u.saveEntries(s, iban)
		delete(s.entries, iban)
		return nil
	})
}

// Count returns the number of entries on accounts within scope.
func (r *LedgerRepo) Count(_ context.Context, scope domain.OwnerScope) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var n int64
	for iban, entries := range r.store.entries {
		if a, ok := r.store.accounts[iban]; ok && scope.Allows(a) {
			n += int64(len(entries))
		}
	}
	return n, nil
}
