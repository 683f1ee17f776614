package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits carried by every amount and balance.
const MoneyScale = 2

// MaxMoney is the largest amount or balance a NUMERIC(19,2) column can hold.
var MaxMoney = decimal.RequireFromString("99999999999999999.99")

// Account is a ledger account keyed by IBAN.
// Balance is mutated only by the ledger engine and is never negative.
type Account struct {
	ID            uuid.UUID       `json:"id"`
	IBAN          string          `json:"iban"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
	Owner         *string         `json:"owner,omitempty"` // nil only for seeded accounts awaiting reconciliation
	CreatedAt     time.Time       `json:"created_at"`
}

// AccountView is the read-only projection handed to callers.
type AccountView struct {
	ID            uuid.UUID       `json:"id"`
	IBAN          string          `json:"iban"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
}

// View projects the account for callers.
func (a *Account) View() AccountView {
	return AccountView{
		ID:            a.ID,
		IBAN:          a.IBAN,
		AccountNumber: a.AccountNumber,
		Balance:       RoundMoney(a.Balance),
	}
}

// HasOwner reports whether the account is assigned to a user.
func (a *Account) HasOwner() bool {
	return a.Owner != nil && *a.Owner != ""
}

// SameOwner reports whether both accounts have an owner and it is the same user.
func (a *Account) SameOwner(other *Account) bool {
	return a.HasOwner() && other.HasOwner() && *a.Owner == *other.Owner
}

// CanDebit reports whether amount can be withdrawn without going negative.
func (a *Account) CanDebit(amount decimal.Decimal) bool {
	return amount.LessThanOrEqual(a.Balance)
}

// CanCredit reports whether amount can be added without exceeding MaxMoney.
func (a *Account) CanCredit(amount decimal.Decimal) bool {
	return WithinMoneyLimit(a.Balance.Add(amount))
}

// Credit adds amount to the balance and returns the new balance.
func (a *Account) Credit(amount decimal.Decimal) decimal.Decimal {
	a.Balance = RoundMoney(a.Balance.Add(amount))
	return a.Balance
}

// Debit subtracts amount from the balance and returns the new balance.
// Callers check CanDebit first.
func (a *Account) Debit(amount decimal.Decimal) decimal.Decimal {
	a.Balance = RoundMoney(a.Balance.Sub(amount))
	return a.Balance
}

// RoundMoney normalizes d to MoneyScale.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// IsCentPrecise reports whether d carries no more than MoneyScale fractional digits.
func IsCentPrecise(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

// WithinMoneyLimit reports whether d does not exceed MaxMoney.
func WithinMoneyLimit(d decimal.Decimal) bool {
	return d.LessThanOrEqual(MaxMoney)
}

// AccountSummary aggregates balances over a scoped set of accounts.
type AccountSummary struct {
	Accounts     int64           `json:"accounts"`
	TotalBalance decimal.Decimal `json:"total_balance"`
	Entries      int64           `json:"entries"`
}
