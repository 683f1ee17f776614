package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bank-ledger/internal/core/domain"
	"bank-ledger/internal/core/ports"
	"bank-ledger/pkg/apperror"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// LedgerServiceImpl implements ports.LedgerService.
// Every mutation runs in one unit of work holding exclusive row locks on the
// accounts it touches; reads are non-locking.
type LedgerServiceImpl struct {
	accounts   ports.AccountRepository
	ledger     ports.LedgerRepository
	users      ports.UserRepository
	transactor ports.DBTransactor
	ids        *snowflake.Node
	clock      func() time.Time
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl. ids generates ledger entry ids.
func NewLedgerService(
	accounts ports.AccountRepository,
	ledger ports.LedgerRepository,
	users ports.UserRepository,
	transactor ports.DBTransactor,
	ids *snowflake.Node,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		accounts:   accounts,
		ledger:     ledger,
		users:      users,
		transactor: transactor,
		ids:        ids,
		clock:      func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		log:        log,
	}
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperror.ErrNegativeAmount()
	}
	if !domain.IsCentPrecise(amount) {
		return apperror.ErrAmountPrecision()
	}
	if !domain.WithinMoneyLimit(amount) {
		return apperror.ErrAmountTooLarge()
	}
	return nil
}

// canonicalOrder returns the two IBANs in lock order: lexicographically smaller first.
func canonicalOrder(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// inTx runs fn in a unit of work, committing only if fn succeeds.
func (s *LedgerServiceImpl) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := fn(dbTx); err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// lockAccount resolves iban under scope and holds its row lock until the unit of work ends.
func (s *LedgerServiceImpl) lockAccount(ctx context.Context, tx pgx.Tx, iban string, scope domain.OwnerScope) (*domain.Account, error) {
	acc, err := s.accounts.FindForUpdate(ctx, tx, iban, scope)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock account %s: %w", iban, err))
	}
	if acc == nil {
		return nil, apperror.ErrAccountNotFound(iban)
	}
	return acc, nil
}

// findAccount resolves iban under scope without locking.
func (s *LedgerServiceImpl) findAccount(ctx context.Context, iban string, scope domain.OwnerScope) (*domain.Account, error) {
	acc, err := s.accounts.Find(ctx, iban, scope)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find account %s: %w", iban, err))
	}
	if acc == nil {
		return nil, apperror.ErrAccountNotFound(iban)
	}
	return acc, nil
}

func (s *LedgerServiceImpl) newEntry(iban string, kind domain.EntryKind, amount, balanceAfter decimal.Decimal, counterparty *string, at time.Time) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID:               s.ids.Generate().Int64(),
		AccountIBAN:      iban,
		Kind:             kind,
		Amount:           domain.RoundMoney(amount),
		CounterpartyIBAN: counterparty,
		BalanceAfter:     balanceAfter,
		CreatedAt:        at,
	}
}

// CreateAccount opens an account owned by req.OwnerUsername.
// IBAN uniqueness is checked before account-number uniqueness.
func (s *LedgerServiceImpl) CreateAccount(ctx context.Context, req ports.CreateAccountRequest) (*domain.AccountView, error) {
	if req.InitialBalance.IsNegative() {
		return nil, apperror.ErrNegativeAmount()
	}
	if !domain.IsCentPrecise(req.InitialBalance) {
		return nil, apperror.ErrAmountPrecision()
	}
	if !domain.WithinMoneyLimit(req.InitialBalance) {
		return nil, apperror.ErrAmountTooLarge()
	}

	owner, err := s.users.GetByUsername(ctx, req.OwnerUsername)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find owner: %w", err))
	}
	if owner == nil {
		return nil, apperror.InternalError(fmt.Errorf("owner %q does not exist", req.OwnerUsername))
	}

	account := &domain.Account{
		ID:            uuid.New(),
		IBAN:          req.IBAN,
		AccountNumber: req.AccountNumber,
		Balance:       domain.RoundMoney(req.InitialBalance),
		Owner:         &owner.Username,
		CreatedAt:     s.clock(),
	}

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		exists, err := s.accounts.ExistsByIBAN(ctx, tx, req.IBAN)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("check iban: %w", err))
		}
		if exists {
			return apperror.ErrAccountAlreadyExists(req.IBAN)
		}

		exists, err = s.accounts.ExistsByAccountNumber(ctx, tx, req.AccountNumber)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("check account number: %w", err))
		}
		if exists {
			return apperror.ErrAccountNumberAlreadyExists(req.AccountNumber)
		}

		switch err := s.accounts.Create(ctx, tx, account); {
		case errors.Is(err, ports.ErrDuplicateIBAN):
			return apperror.ErrAccountAlreadyExists(req.IBAN)
		case errors.Is(err, ports.ErrDuplicateAccountNumber):
			return apperror.ErrAccountNumberAlreadyExists(req.AccountNumber)
		case err != nil:
			return apperror.InternalError(fmt.Errorf("create account: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("iban", account.IBAN).
		Str("owner", owner.Username).
		Str("balance", account.Balance.StringFixed(domain.MoneyScale)).
		Msg("account created")

	view := account.View()
	return &view, nil
}

// Deposit credits amount to the account.
func (s *LedgerServiceImpl) Deposit(ctx context.Context, actor domain.Actor, iban string, amount decimal.Decimal) error {
	if err := validateAmount(amount); err != nil {
		return err
	}

	var entry *domain.LedgerEntry
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		acc, err := s.lockAccount(ctx, tx, iban, actor.Scope())
		if err != nil {
			return err
		}
		if !acc.CanCredit(amount) {
			return apperror.ErrBalanceLimit(acc.IBAN)
		}

		balance := acc.Credit(amount)
		if err := s.accounts.UpdateBalance(ctx, tx, acc.IBAN, balance); err != nil {
			return apperror.InternalError(fmt.Errorf("update balance: %w", err))
		}

		entry = s.newEntry(acc.IBAN, domain.EntryDeposit, amount, balance, nil, s.clock())
		if err := s.ledger.Append(ctx, tx, entry); err != nil {
			return apperror.InternalError(fmt.Errorf("append ledger entry: %w", err))
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logEntry(actor, entry)
	return nil
}

// Withdraw debits amount from the account if the balance covers it.
func (s *LedgerServiceImpl) Withdraw(ctx context.Context, actor domain.Actor, iban string, amount decimal.Decimal) error {
	if err := validateAmount(amount); err != nil {
		return err
	}

	var entry *domain.LedgerEntry
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		acc, err := s.lockAccount(ctx, tx, iban, actor.Scope())
		if err != nil {
			return err
		}
		if !acc.CanDebit(amount) {
			return apperror.ErrInsufficientBalance(acc.Balance)
		}

		balance := acc.Debit(amount)
		if err := s.accounts.UpdateBalance(ctx, tx, acc.IBAN, balance); err != nil {
			return apperror.InternalError(fmt.Errorf("update balance: %w", err))
		}

		entry = s.newEntry(acc.IBAN, domain.EntryWithdraw, amount, balance, nil, s.clock())
		if err := s.ledger.Append(ctx, tx, entry); err != nil {
			return apperror.InternalError(fmt.Errorf("append ledger entry: %w", err))
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logEntry(actor, entry)
	return nil
}

// Transfer moves amount between two accounts of the same owner.
// Checks run in order: amount, self-transfer, lookup of both legs in lock
// order, same owner, sufficient balance, destination balance limit.
func (s *LedgerServiceImpl) Transfer(ctx context.Context, actor domain.Actor, fromIBAN, toIBAN string, amount decimal.Decimal) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if fromIBAN == toIBAN {
		return apperror.ErrInvalidTransfer("cannot transfer to the same account")
	}

	var out, in *domain.LedgerEntry
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		scope := actor.Scope()
		firstIBAN, secondIBAN := canonicalOrder(fromIBAN, toIBAN)

		first, err := s.lockAccount(ctx, tx, firstIBAN, scope)
		if err != nil {
			return err
		}
		second, err := s.lockAccount(ctx, tx, secondIBAN, scope)
		if err != nil {
			return err
		}

		from, to := first, second
		if fromIBAN != firstIBAN {
			from, to = second, first
		}

		if !from.SameOwner(to) {
			return apperror.ErrInvalidTransfer("cannot transfer to an account of another user")
		}
		if !from.CanDebit(amount) {
			return apperror.ErrInsufficientBalance(from.Balance)
		}
		if !to.CanCredit(amount) {
			return apperror.ErrBalanceLimit(to.IBAN)
		}

		fromBalance := from.Debit(amount)
		toBalance := to.Credit(amount)

		if err := s.accounts.UpdateBalance(ctx, tx, from.IBAN, fromBalance); err != nil {
			return apperror.InternalError(fmt.Errorf("update source balance: %w", err))
		}
		if err := s.accounts.UpdateBalance(ctx, tx, to.IBAN, toBalance); err != nil {
			return apperror.InternalError(fmt.Errorf("update destination balance: %w", err))
		}

		now := s.clock()
		out = s.newEntry(from.IBAN, domain.EntryTransferOut, amount, fromBalance, &to.IBAN, now)
		in = s.newEntry(to.IBAN, domain.EntryTransferIn, amount, toBalance, &from.IBAN, now)
		if err := s.ledger.Append(ctx, tx, out, in); err != nil {
			return apperror.InternalError(fmt.Errorf("append transfer entries: %w", err))
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logEntry(actor, out)
	s.logEntry(actor, in)
	return nil
}

func (s *LedgerServiceImpl) logEntry(actor domain.Actor, e *domain.LedgerEntry) {
	event := s.log.Info().
		Int64("entry_id", e.ID).
		Str("iban", e.AccountIBAN).
		Str("kind", string(e.Kind)).
		Str("amount", e.Amount.StringFixed(domain.MoneyScale)).
		Str("balance_after", e.BalanceAfter.StringFixed(domain.MoneyScale)).
		Str("actor", actor.Username).
		Bool("admin", actor.Admin)
	if e.CounterpartyIBAN != nil {
		event = event.Str("counterparty", *e.CounterpartyIBAN)
	}
	event.Msg("ledger entry committed")
}

// GetBalance returns the account balance.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, actor domain.Actor, iban string) (decimal.Decimal, error) {
	acc, err := s.findAccount(ctx, iban, actor.Scope())
	if err != nil {
		return decimal.Zero, err
	}
	return domain.RoundMoney(acc.Balance), nil
}

// GetAllAccounts lists every account visible to the actor.
func (s *LedgerServiceImpl) GetAllAccounts(ctx context.Context, actor domain.Actor) ([]domain.AccountView, error) {
	accounts, err := s.accounts.List(ctx, actor.Scope())
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list accounts: %w", err))
	}

	views := make([]domain.AccountView, 0, len(accounts))
	for i := range accounts {
		views = append(views, accounts[i].View())
	}
	return views, nil
}

// GetAccountByIBAN returns one account visible to the actor.
func (s *LedgerServiceImpl) GetAccountByIBAN(ctx context.Context, actor domain.Actor, iban string) (*domain.AccountView, error) {
	acc, err := s.findAccount(ctx, iban, actor.Scope())
	if err != nil {
		return nil, err
	}
	view := acc.View()
	return &view, nil
}

// GetTransactionHistory returns the account's entries, newest first.
func (s *LedgerServiceImpl) GetTransactionHistory(ctx context.Context, actor domain.Actor, iban string) ([]domain.LedgerEntry, error) {
	if _, err := s.findAccount(ctx, iban, actor.Scope()); err != nil {
		return nil, err
	}

	entries, err := s.ledger.ListByIBAN(ctx, iban)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list ledger entries: %w", err))
	}
	return entries, nil
}

// DeleteAccount removes the account and all of its ledger entries.
// A positive balance does not prevent deletion.
func (s *LedgerServiceImpl) DeleteAccount(ctx context.Context, actor domain.Actor, iban string) error {
	var (
		purged  int64
		balance decimal.Decimal
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		acc, err := s.lockAccount(ctx, tx, iban, actor.Scope())
		if err != nil {
			return err
		}
		balance = acc.Balance

		purged, err = s.ledger.DeleteByIBAN(ctx, tx, acc.IBAN)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("delete ledger entries: %w", err))
		}
		if err := s.accounts.Delete(ctx, tx, acc.IBAN); err != nil {
			return apperror.InternalError(fmt.Errorf("delete account: %w", err))
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("iban", iban).
		Int64("entries_purged", purged).
		Str("balance", balance.StringFixed(domain.MoneyScale)).
		Str("actor", actor.Username).
		Msg("account deleted")
	return nil
}

// ReconcileOrphans assigns every owner-less account to the admin user.
func (s *LedgerServiceImpl) ReconcileOrphans(ctx context.Context, adminUsername string) (int64, error) {
	n, err := s.accounts.AssignOrphans(ctx, adminUsername)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("assign orphan accounts: %w", err))
	}
	if n > 0 {
		s.log.Info().Int64("accounts", n).Str("owner", adminUsername).Msg("orphan accounts reassigned")
	}
	return n, nil
}
