package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind is the balance-affecting event recorded by a ledger entry.
type EntryKind string

const (
	EntryDeposit     EntryKind = "DEPOSIT"
	EntryWithdraw    EntryKind = "WITHDRAW"
	EntryTransferOut EntryKind = "TRANSFER_OUT"
	EntryTransferIn  EntryKind = "TRANSFER_IN"
)

// IsCredit reports whether the entry increases the owning account's balance.
func (k EntryKind) IsCredit() bool {
	return k == EntryDeposit || k == EntryTransferIn
}

// IsTransfer reports whether the entry is one leg of a transfer.
func (k EntryKind) IsTransfer() bool {
	return k == EntryTransferOut || k == EntryTransferIn
}

// LedgerEntry is one immutable record of a single-account balance change.
type LedgerEntry struct {
	ID               int64           `json:"id,string"`
	AccountIBAN      string          `json:"account_iban"`
	Kind             EntryKind       `json:"kind"`
	Amount           decimal.Decimal `json:"amount"`
	CounterpartyIBAN *string         `json:"counterparty_iban,omitempty"`
	BalanceAfter     decimal.Decimal `json:"balance_after"`
	CreatedAt        time.Time       `json:"created_at"`
}

// SignedAmount returns the amount with the sign of its effect on the owning account.
func (e *LedgerEntry) SignedAmount() decimal.Decimal {
	if e.Kind.IsCredit() {
		return e.Amount
	}
	return e.Amount.Neg()
}
