package dto

import (
	"testing"
	"time"

	"bank-ledger/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsAndEscapes(t *testing.T) {
	req := CreateAccountRequest{IBAN: "  GR<b>1</b>  ", AccountNumber: " 0123456789 "}
	SanitizeStruct(&req)

	assert.Equal(t, "GR&lt;b&gt;1&lt;/b&gt;", req.IBAN)
	assert.Equal(t, "0123456789", req.AccountNumber)
}

func TestSanitizeStruct_SkipsOptedOutFields(t *testing.T) {
	req := RegisterRequest{Username: "  alice  ", Password: " p<ss> ", ConfirmPassword: " p<ss> "}
	SanitizeStruct(&req)

	assert.Equal(t, "alice", req.Username)
	assert.Equal(t, " p<ss> ", req.Password)
	assert.Equal(t, " p<ss> ", req.ConfirmPassword)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	s := "hello"
	SanitizeStruct(s)
}

// --- Custom validator tests ---

func TestValidIBAN(t *testing.T) {
	valid := []string{"GR123456789012345", "GR000000000000000"}
	invalid := []string{"", "GR12345678901234", "GR1234567890123456", "gr123456789012345", "DE123456789012345", "GR12345678901234X"}

	for _, s := range valid {
		assert.True(t, ValidIBAN(s), s)
	}
	for _, s := range invalid {
		assert.False(t, ValidIBAN(s), s)
	}
}

func TestValidAccountNumber(t *testing.T) {
	assert.True(t, ValidAccountNumber("0123456789"))
	for _, s := range []string{"", "012345678", "01234567890", "01234x6789", " 0123456789"} {
		assert.False(t, ValidAccountNumber(s), s)
	}
}

func TestSafeID(t *testing.T) {
	for _, s := range []string{"alice", "bob_1", "a.b-c"} {
		assert.True(t, safeStringRe.MatchString(s), s)
	}
	for _, s := range []string{"", "a b", "a<b>", "a;b", "a\nb"} {
		assert.False(t, safeStringRe.MatchString(s), s)
	}
}

func TestBinding_CreateAccountRequest(t *testing.T) {
	zero := decimal.Zero
	tests := []struct {
		name  string
		req   CreateAccountRequest
		valid bool
	}{
		{"valid", CreateAccountRequest{IBAN: "GR123456789012345", AccountNumber: "0123456789", InitialBalance: &zero}, true},
		{"bad iban", CreateAccountRequest{IBAN: "GR123", AccountNumber: "0123456789", InitialBalance: &zero}, false},
		{"bad number", CreateAccountRequest{IBAN: "GR123456789012345", AccountNumber: "12345", InitialBalance: &zero}, false},
		{"missing balance", CreateAccountRequest{IBAN: "GR123456789012345", AccountNumber: "0123456789"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(&tt.req)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestBinding_RegisterRequest(t *testing.T) {
	ok := RegisterRequest{Username: "alice", Password: "secret1", ConfirmPassword: "secret1"}
	require.NoError(t, binding.Validator.ValidateStruct(&ok))

	mismatch := RegisterRequest{Username: "alice", Password: "secret1", ConfirmPassword: "secret2"}
	assert.Error(t, binding.Validator.ValidateStruct(&mismatch))

	short := RegisterRequest{Username: "al", Password: "secret1", ConfirmPassword: "secret1"}
	assert.Error(t, binding.Validator.ValidateStruct(&short))
}

// --- Response conversion ---

func TestNewEntryResponses(t *testing.T) {
	cp := "GR000000000000002"
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	out := NewEntryResponses([]domain.LedgerEntry{{
		ID:               1234567890123,
		Kind:             domain.EntryTransferOut,
		Amount:           decimal.RequireFromString("5"),
		CounterpartyIBAN: &cp,
		BalanceAfter:     decimal.RequireFromString("10.5"),
		CreatedAt:        at,
	}})

	require.Len(t, out, 1)
	assert.Equal(t, "1234567890123", out[0].ID)
	assert.Equal(t, "TRANSFER_OUT", out[0].Kind)
	assert.Equal(t, "5.00", out[0].Amount)
	assert.Equal(t, "10.50", out[0].BalanceAfter)
	assert.Equal(t, &cp, out[0].CounterpartyIBAN)
	assert.Equal(t, "2026-01-02T03:04:05Z", out[0].CreatedAt)
}

func TestNewAccountResponse(t *testing.T) {
	id := uuid.New()
	out := NewAccountResponse(domain.AccountView{ID: id, IBAN: "GR1", AccountNumber: "1", Balance: decimal.NewFromInt(7)})
	assert.Equal(t, id.String(), out.ID)
	assert.Equal(t, "7.00", out.Balance)
}

func TestNewUserResponse(t *testing.T) {
	out := NewUserResponse(domain.User{Username: "admin", PasswordHash: "secret", Roles: []domain.Role{domain.RoleAdmin, domain.RoleUser}})
	assert.Equal(t, []string{"ADMIN", "USER"}, out.Roles)
}
