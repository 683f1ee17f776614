package memory

import (
	"context"
	"fmt"
	"sort"

	"bank-ledger/internal/core/domain"
	"bank-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AccountRepo implements ports.AccountRepository over a Store.
type AccountRepo struct {
	store *Store
}

// NewAccountRepo creates an AccountRepo.
func NewAccountRepo(store *Store) *AccountRepo {
	return &AccountRepo{store: store}
}

func ibanKey(iban string) string { return "iban:" + iban }
func accountNumberKey(number string) string { return "number:" + number }

// Create buffers the insert. Uniqueness is rechecked at commit.
func (r *AccountRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.Account) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if err := t.lock(ctx, ibanKey(a.IBAN)); err != nil {
		return err
	}
	if err := t.lock(ctx, accountNumberKey(a.AccountNumber)); err != nil {
		return err
	}

	row := copyAccount(a)
	return t.buffer(func(s *Store, u *undoLog) error {
		if _, ok := s.accounts[row.IBAN]; ok {
			return ports.ErrDuplicateIBAN
		}
		for _, existing := range s.accounts {
			if existing.AccountNumber == row.AccountNumber {
				return ports.ErrDuplicateAccountNumber
			}
		}
		u.saveAccount(s, row.IBAN)
		s.accounts[row.IBAN] = row
		return nil
	})
}

// ExistsByIBAN locks the IBAN key so a concurrent Create of the same IBAN
// waits for this transaction to finish.
func (r *AccountRepo) ExistsByIBAN(ctx context.Context, tx pgx.Tx, iban string) (bool, error) {
	t, err := asTx(tx)
	if err != nil {
		return false, err
	}
	if err := t.lock(ctx, ibanKey(iban)); err != nil {
		return false, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	_, ok := r.store.accounts[iban]
	return ok, nil
}

// ExistsByAccountNumber locks the account-number key like ExistsByIBAN.
func (r *AccountRepo) ExistsByAccountNumber(ctx context.Context, tx pgx.Tx, accountNumber string) (bool, error) {
	t, err := asTx(tx)
	if err != nil {
		return false, err
	}
	if err := t.lock(ctx, accountNumberKey(accountNumber)); err != nil {
		return false, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, a := range r.store.accounts {
		if a.AccountNumber == accountNumber {
			return true, nil
		}
	}
	return false, nil
}

func (r *AccountRepo) find(iban string, scope domain.OwnerScope) *domain.Account {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	a, ok := r.store.accounts[iban]
	if !ok || !scope.Allows(a) {
		return nil
	}
	return copyAccount(a)
}

// Find returns a copy of the committed row, or nil when absent or out of scope.
func (r *AccountRepo) Find(_ context.Context, iban string, scope domain.OwnerScope) (*domain.Account, error) {
	return r.find(iban, scope), nil
}

// FindForUpdate locks the IBAN for the life of tx before reading.
func (r *AccountRepo) FindForUpdate(ctx context.Context, tx pgx.Tx, iban string, scope domain.OwnerScope) (*domain.Account, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	if err := t.lock(ctx, ibanKey(iban)); err != nil {
		return nil, err
	}
	return r.find(iban, scope), nil
}

// List returns committed rows within scope ordered by creation time.
func (r *AccountRepo) List(_ context.Context, scope domain.OwnerScope) ([]domain.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	accounts := []domain.Account{}
	for _, a := range r.store.accounts {
		if scope.Allows(a) {
			accounts = append(accounts, *copyAccount(a))
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].IBAN < accounts[j].IBAN
		}
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

// UpdateBalance buffers the new balance. The caller holds the row lock.
func (r *AccountRepo) UpdateBalance(_ context.Context, tx pgx.Tx, iban string, balance decimal.Decimal) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if !t.holds(ibanKey(iban)) {
		return fmt.Errorf("update balance of %s without holding its lock", iban)
	}
	if balance.IsNegative() {
		return fmt.Errorf("balance of %s would become negative", iban)
	}

	return t.buffer(func(s *Store, u *undoLog) error {
		a, ok := s.accounts[iban]
		if !ok {
			return fmt.Errorf("account not found: %s", iban)
		}
		u.saveAccount(s, iban)
		a.Balance = domain.RoundMoney(balance)
		return nil
	})
}

// Delete buffers removal of the account row.
func (r *AccountRepo) Delete(ctx context.Context, tx pgx.Tx, iban string) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if err := t.lock(ctx, ibanKey(iban)); err != nil {
		return err
	}

	return t.buffer(func(s *Store, u *undoLog) error {
		if len(s.entries[iban]) > 0 {
			return fmt.Errorf("account %s still has ledger entries", iban)
		}
		u.saveAccount(s, iban)
		delete(s.accounts, iban)
		return nil
	})
}

// AssignOrphans gives every owner-less account to owner.
func (r *AccountRepo) AssignOrphans(_ context.Context, owner string) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var n int64
	for _, a := range r.store.accounts {
		if !a.HasOwner() {
			o := owner
			a.Owner = &o
			n++
		}
	}
	return n, nil
}

// Totals counts accounts within scope and sums their balances.
func (r *AccountRepo) Totals(_ context.Context, scope domain.OwnerScope) (int64, decimal.Decimal, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var count int64
	total := decimal.Zero
	for _, a := range r.store.accounts {
		if scope.Allows(a) {
			count++
			total = total.Add(a.Balance)
		}
	}
	return count, total, nil
}
