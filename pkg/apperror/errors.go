package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// Kind classifies an AppError independently of its code.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindDuplicate         Kind = "DUPLICATE"
	KindInvalidAmount     Kind = "INVALID_AMOUNT"
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	KindInvalidOperation  Kind = "INVALID_OPERATION"
	KindValidation        Kind = "VALIDATION"
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindForbidden         Kind = "FORBIDDEN"
	KindRateLimited       Kind = "RATE_LIMITED"
	KindInternal          Kind = "INTERNAL"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string           `json:"error_code"`
	Kind       Kind             `json:"-"`
	Message    string           `json:"message"`
	HTTPStatus int              `json:"-"`
	Available  *decimal.Decimal `json:"available,omitempty"` // set for insufficient funds
	Err        error            `json:"-"`                   // wrapped internal error, never exposed
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, kind Kind, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Kind:       kind,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, kind Kind, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Kind:       kind,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// KindOf returns the kind of the first AppError in err's chain, or
// KindInternal when err carries none.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ---- Accounts (ACC) ----

func ErrAccountNotFound(iban string) *AppError {
	return New("ACC_001", KindNotFound, fmt.Sprintf("account with IBAN %s not found", iban), http.StatusNotFound)
}

func ErrAccountAlreadyExists(iban string) *AppError {
	return New("ACC_002", KindDuplicate, fmt.Sprintf("account with IBAN %s already exists", iban), http.StatusConflict)
}

func ErrAccountNumberAlreadyExists(accountNumber string) *AppError {
	return New("ACC_003", KindDuplicate, fmt.Sprintf("account with number %s already exists", accountNumber), http.StatusConflict)
}

// ---- Ledger (LED) ----

func ErrNegativeAmount() *AppError {
	return New("LED_001", KindInvalidAmount, "amount must be positive", http.StatusBadRequest)
}

// ErrAmountPrecision rejects amounts finer than one cent.
func ErrAmountPrecision() *AppError {
	return New("LED_001", KindInvalidAmount, "amount must have at most two decimal places", http.StatusBadRequest)
}

// ErrAmountTooLarge rejects amounts above the largest storable balance.
func ErrAmountTooLarge() *AppError {
	return New("LED_001", KindInvalidAmount, "amount must not exceed 99999999999999999.99", http.StatusBadRequest)
}

// ErrBalanceLimit rejects a credit that would push the balance past the largest storable value.
func ErrBalanceLimit(iban string) *AppError {
	return New("LED_001", KindInvalidAmount, fmt.Sprintf("balance of %s would exceed 99999999999999999.99", iban), http.StatusBadRequest)
}

func ErrInsufficientBalance(available decimal.Decimal) *AppError {
	e := New("LED_002", KindInsufficientFunds,
		fmt.Sprintf("insufficient balance, available: %s", available.StringFixed(2)),
		http.StatusUnprocessableEntity)
	e.Available = &available
	return e
}

func ErrInvalidTransfer(reason string) *AppError {
	return New("LED_003", KindInvalidOperation, reason, http.StatusBadRequest)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", KindUnauthorized, "Invalid credentials", http.StatusUnauthorized)
}

func ErrUsernameExists() *AppError {
	return New("AUTH_002", KindDuplicate, "Username already exists", http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", KindUnauthorized, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrUserBlocked() *AppError {
	return New("AUTH_004", KindForbidden, "User is blocked", http.StatusForbidden)
}

func ErrAdminRequired() *AppError {
	return New("AUTH_005", KindForbidden, "Administrator role required", http.StatusForbidden)
}

func ErrWrongPassword() *AppError {
	return New("AUTH_007", KindValidation, "Current password is incorrect", http.StatusBadRequest)
}

func ErrUserNotFound(username string) *AppError {
	return New("AUTH_006", KindNotFound, fmt.Sprintf("User %s not found", username), http.StatusNotFound)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", KindRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
}

func ErrServerBusy() *AppError {
	return New("RATE_002", KindRateLimited, "Server is busy, retry later", http.StatusServiceUnavailable)
}

// ---- Idempotency (IDEM) ----

func ErrRequestInProgress() *AppError {
	return New("IDEM_001", KindDuplicate, "A request with this Idempotency-Key is already in progress", http.StatusConflict)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps a defect-class failure. It never maps to a business kind.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", KindInternal, "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New("VAL_001", KindValidation, message, http.StatusBadRequest)
}

// ErrBodyTooLarge is returned when a request body exceeds the configured limit.
func ErrBodyTooLarge() *AppError {
	return New("VAL_002", KindValidation, "Request body too large", http.StatusRequestEntityTooLarge)
}
