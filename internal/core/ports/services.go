package ports

import (
	"context"
	"time"

	"bank-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
)

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(actor domain.Actor) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Username string
	Admin    bool
}

// Actor returns the engine identity carried by the token.
func (c *TokenClaims) Actor() domain.Actor {
	return domain.Actor{Username: c.Username, Admin: c.Admin}
}

// IdempotencyCache stores replayable responses for mutating requests.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) // false if another request holds key
	Release(ctx context.Context, key string) error
}

// RateLimitStore counts requests per client in a fixed window.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// --- Service Ports (Business Logic) ---

// LedgerService is the account ledger and transfer engine.
type LedgerService interface {
	CreateAccount(ctx context.Context, req CreateAccountRequest) (*domain.AccountView, error)
	Deposit(ctx context.Context, actor domain.Actor, iban string, amount decimal.Decimal) error
	Withdraw(ctx context.Context, actor domain.Actor, iban string, amount decimal.Decimal) error
	Transfer(ctx context.Context, actor domain.Actor, fromIBAN, toIBAN string, amount decimal.Decimal) error
	GetBalance(ctx context.Context, actor domain.Actor, iban string) (decimal.Decimal, error)
	GetAllAccounts(ctx context.Context, actor domain.Actor) ([]domain.AccountView, error)
	GetAccountByIBAN(ctx context.Context, actor domain.Actor, iban string) (*domain.AccountView, error)
	GetTransactionHistory(ctx context.Context, actor domain.Actor, iban string) ([]domain.LedgerEntry, error)
	DeleteAccount(ctx context.Context, actor domain.Actor, iban string) error
	ReconcileOrphans(ctx context.Context, adminUsername string) (int64, error)
}

// CreateAccountRequest holds validated input for opening an account.
type CreateAccountRequest struct {
	IBAN           string
	AccountNumber  string
	InitialBalance decimal.Decimal
	OwnerUsername  string
}

// AuthService defines authentication business logic.
type AuthService interface {
	Register(ctx context.Context, username, password string) (*domain.User, error)
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
	EnsureAdmin(ctx context.Context, username, password string) error
	ChangePassword(ctx context.Context, username, current, next string) error
}

// UserAdminService lets administrators manage users.
type UserAdminService interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	SetBlocked(ctx context.Context, username string, blocked bool) error
}

// ReportingService aggregates balances for the caller's scope.
type ReportingService interface {
	Summary(ctx context.Context, actor domain.Actor) (*domain.AccountSummary, error)
}

// AuditService records audited actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
