package dto

import (
	"strconv"
	"time"

	"bank-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
)

// RegisterRequest is the request body for user registration.
type RegisterRequest struct {
	Username        string `json:"username" binding:"required,min=3,max=64,safe_id"`
	Password        string `json:"password" binding:"required,min=6,max=72" sanitize:"-"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=Password" sanitize:"-"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required" sanitize:"-"`
}

// ChangePasswordRequest is the request body for changing the caller's password.
type ChangePasswordRequest struct {
	CurrentPassword    string `json:"current_password" binding:"required" sanitize:"-"`
	NewPassword        string `json:"new_password" binding:"required,min=6,max=72" sanitize:"-"`
	ConfirmNewPassword string `json:"confirm_new_password" binding:"required,eqfield=NewPassword" sanitize:"-"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	Username  string   `json:"username"`
	Roles     []string `json:"roles"`
	Blocked   bool     `json:"blocked"`
	CreatedAt string   `json:"created_at"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// CreateAccountRequest is the request body for opening an account.
type CreateAccountRequest struct {
	IBAN           string           `json:"iban" binding:"required,iban"`
	AccountNumber  string           `json:"account_number" binding:"required,account_number"`
	InitialBalance *decimal.Decimal `json:"initial_balance" binding:"required"`
}

// AmountRequest is the request body for deposits and withdrawals.
type AmountRequest struct {
	Amount *decimal.Decimal `json:"amount" binding:"required"`
}

// TransferRequest is the request body for a transfer from the path account.
type TransferRequest struct {
	ToIBAN string           `json:"to_iban" binding:"required,iban"`
	Amount *decimal.Decimal `json:"amount" binding:"required"`
}

// AccountResponse is the public view of an account. Money is rendered with two decimals.
type AccountResponse struct {
	ID            string `json:"id"`
	IBAN          string `json:"iban"`
	AccountNumber string `json:"account_number"`
	Balance       string `json:"balance"`
}

// BalanceResponse is the response for a balance query.
type BalanceResponse struct {
	IBAN    string `json:"iban"`
	Balance string `json:"balance"`
}

// EntryResponse is one ledger entry in an account history.
type EntryResponse struct {
	ID               string  `json:"id"`
	Kind             string  `json:"kind"`
	Amount           string  `json:"amount"`
	CounterpartyIBAN *string `json:"counterparty_iban,omitempty"`
	BalanceAfter     string  `json:"balance_after"`
	CreatedAt        string  `json:"created_at"`
}

// SummaryResponse is the response for the admin summary.
type SummaryResponse struct {
	Accounts     int64  `json:"accounts"`
	TotalBalance string `json:"total_balance"`
	Entries      int64  `json:"entries"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(domain.MoneyScale)
}

// NewAccountResponse converts an account view.
func NewAccountResponse(v domain.AccountView) AccountResponse {
	return AccountResponse{
		ID:            v.ID.String(),
		IBAN:          v.IBAN,
		AccountNumber: v.AccountNumber,
		Balance:       money(v.Balance),
	}
}

// NewAccountResponses converts a slice of account views.
func NewAccountResponses(views []domain.AccountView) []AccountResponse {
	out := make([]AccountResponse, 0, len(views))
	for _, v := range views {
		out = append(out, NewAccountResponse(v))
	}
	return out
}

// NewBalanceResponse renders a balance.
func NewBalanceResponse(iban string, balance decimal.Decimal) BalanceResponse {
	return BalanceResponse{IBAN: iban, Balance: money(balance)}
}

// NewEntryResponses converts ledger entries, preserving order.
func NewEntryResponses(entries []domain.LedgerEntry) []EntryResponse {
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryResponse{
			ID:               strconv.FormatInt(e.ID, 10),
			Kind:             string(e.Kind),
			Amount:           money(e.Amount),
			CounterpartyIBAN: e.CounterpartyIBAN,
			BalanceAfter:     money(e.BalanceAfter),
			CreatedAt:        e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return out
}

// NewSummaryResponse converts an account summary.
func NewSummaryResponse(s *domain.AccountSummary) SummaryResponse {
	return SummaryResponse{
		Accounts:     s.Accounts,
		TotalBalance: money(s.TotalBalance),
		Entries:      s.Entries,
	}
}

// NewUserResponse converts a user, omitting the password hash.
func NewUserResponse(u domain.User) UserResponse {
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, string(r))
	}
	return UserResponse{
		Username:  u.Username,
		Roles:     roles,
		Blocked:   u.Blocked,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}
