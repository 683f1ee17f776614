// Package seed loads YAML fixtures of users and accounts into a ledger.
// Accounts without an owner are written directly through the account
// repository; they are picked up by orphan reconciliation on the next start.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"bank-ledger/internal/adapter/http/dto"
	"bank-ledger/internal/core/domain"
	"bank-ledger/internal/core/ports"
	"bank-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Fixture is the document read by the seeder.
type Fixture struct {
	Users    []UserFixture    `yaml:"users"`
	Accounts []AccountFixture `yaml:"accounts"`
}

type UserFixture struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Admin    bool   `yaml:"admin"`
}

type AccountFixture struct {
	IBAN          string `yaml:"iban"`
	AccountNumber string `yaml:"account_number"`
	Balance       string `yaml:"balance"`
	Owner         string `yaml:"owner"` // empty = system-seeded, no owner
}

// Parse decodes and validates a fixture.
func Parse(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding fixture: %w", err)
	}

	for i, u := range f.Users {
		if u.Username == "" || u.Password == "" {
			return nil, fmt.Errorf("users[%d]: username and password are required", i)
		}
	}
	for i, a := range f.Accounts {
		if !dto.ValidIBAN(a.IBAN) {
			return nil, fmt.Errorf("accounts[%d]: invalid iban %q", i, a.IBAN)
		}
		if !dto.ValidAccountNumber(a.AccountNumber) {
			return nil, fmt.Errorf("accounts[%d]: invalid account number %q", i, a.AccountNumber)
		}
		if _, err := a.balance(); err != nil {
			return nil, fmt.Errorf("accounts[%d]: %w", i, err)
		}
	}
	return &f, nil
}

func (a AccountFixture) balance() (decimal.Decimal, error) {
	if a.Balance == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(a.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid balance %q: %w", a.Balance, err)
	}
	if d.IsNegative() || !domain.IsCentPrecise(d) {
		return decimal.Zero, fmt.Errorf("balance %q must be >= 0 with at most two decimals", a.Balance)
	}
	if !domain.WithinMoneyLimit(d) {
		return decimal.Zero, fmt.Errorf("balance %q exceeds %s", a.Balance, domain.MaxMoney.StringFixed(domain.MoneyScale))
	}
	return d, nil
}

// Result counts what Apply wrote and what already existed.
type Result struct {
	Users    int
	Accounts int
	Skipped  int
}

// Seeder writes fixtures through the same services the API uses.
type Seeder struct {
	auth       ports.AuthService
	ledger     ports.LedgerService
	accounts   ports.AccountRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewSeeder creates a new Seeder.
func NewSeeder(
	auth ports.AuthService,
	ledger ports.LedgerService,
	accounts ports.AccountRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *Seeder {
	return &Seeder{auth: auth, ledger: ledger, accounts: accounts, transactor: transactor, log: log}
}

// Apply seeds users first, then accounts. Existing users and accounts are
// skipped, so a fixture can be applied repeatedly.
func (s *Seeder) Apply(ctx context.Context, f *Fixture) (Result, error) {
	var res Result

	for _, u := range f.Users {
		var err error
		if u.Admin {
			err = s.auth.EnsureAdmin(ctx, u.Username, u.Password)
		} else {
			_, err = s.auth.Register(ctx, u.Username, u.Password)
		}
		switch {
		case apperror.IsKind(err, apperror.KindDuplicate):
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("seeding user %s: %w", u.Username, err)
		default:
			res.Users++
		}
	}

	for _, a := range f.Accounts {
		balance, _ := a.balance()

		var err error
		if a.Owner == "" {
			err = s.createOrphan(ctx, a, balance)
		} else {
			_, err = s.ledger.CreateAccount(ctx, ports.CreateAccountRequest{
				IBAN:           a.IBAN,
				AccountNumber:  a.AccountNumber,
				InitialBalance: balance,
				OwnerUsername:  a.Owner,
			})
		}
		switch {
		case apperror.IsKind(err, apperror.KindDuplicate):
			s.log.Debug().Str("iban", a.IBAN).Msg("account exists, skipping")
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("seeding account %s: %w", a.IBAN, err)
		default:
			res.Accounts++
		}
	}

	return res, nil
}

func (s *Seeder) createOrphan(ctx context.Context, a AccountFixture, balance decimal.Decimal) error {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.checkFree(ctx, tx, a); err != nil {
		return err
	}

	err = s.accounts.Create(ctx, tx, &domain.Account{
		ID:            uuid.New(),
		IBAN:          a.IBAN,
		AccountNumber: a.AccountNumber,
		Balance:       balance,
		CreatedAt:     time.Now().UTC(),
	})
	switch {
	case errors.Is(err, ports.ErrDuplicateIBAN):
		return apperror.ErrAccountAlreadyExists(a.IBAN)
	case errors.Is(err, ports.ErrDuplicateAccountNumber):
		return apperror.ErrAccountNumberAlreadyExists(a.AccountNumber)
	case err != nil:
		return err
	}
	return tx.Commit(ctx)
}

func (s *Seeder) checkFree(ctx context.Context, tx pgx.Tx, a AccountFixture) error {
	exists, err := s.accounts.ExistsByIBAN(ctx, tx, a.IBAN)
	if err != nil {
		return err
	}
	if exists {
		return apperror.ErrAccountAlreadyExists(a.IBAN)
	}

	exists, err = s.accounts.ExistsByAccountNumber(ctx, tx, a.AccountNumber)
	if err != nil {
		return err
	}
	if exists {
		return apperror.ErrAccountNumberAlreadyExists(a.AccountNumber)
	}
	return nil
}
