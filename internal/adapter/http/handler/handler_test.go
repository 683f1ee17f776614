package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bank-ledger/internal/core/domain"
	"bank-ledger/internal/core/ports"
	"bank-ledger/internal/core/ports/mocks"
	"bank-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	ibanA     = "GR000000000000001"
	ibanB     = "GR000000000000002"
	userToken = "user-token"
	adminTok  = "admin-token"
)

var (
	alice = domain.Actor{Username: "alice"}
	root  = domain.Actor{Username: "admin", Admin: true}
)

type testEnv struct {
	router    *gin.Engine
	auth      *mocks.MockAuthService
	ledger    *mocks.MockLedgerService
	reporting *mocks.MockReportingService
	users     *mocks.MockUserAdminService
}

func newTestEnv(t *testing.T) *testEnv {
	ctrl := gomock.NewController(t)
	env := &testEnv{
		auth:      mocks.NewMockAuthService(ctrl),
		ledger:    mocks.NewMockLedgerService(ctrl),
		reporting: mocks.NewMockReportingService(ctrl),
		users:     mocks.NewMockUserAdminService(ctrl),
	}

	tokens := mocks.NewMockTokenService(ctrl)
	tokens.EXPECT().Validate(userToken).Return(&ports.TokenClaims{Username: alice.Username}, nil).AnyTimes()
	tokens.EXPECT().Validate(adminTok).Return(&ports.TokenClaims{Username: root.Username, Admin: true}, nil).AnyTimes()
	tokens.EXPECT().Validate(gomock.Any()).Return(nil, errors.New("bad token")).AnyTimes()

	env.router = SetupRouter(RouterDeps{
		AuthSvc:      env.auth,
		LedgerSvc:    env.ledger,
		ReportingSvc: env.reporting,
		UserAdminSvc: env.users,
		TokenSvc:     tokens,
		Logger:       zerolog.Nop(),
	})
	return env
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func dataOf(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "body: %s", w.Body.String())
	return data
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	code, _ := resp["error_code"].(string)
	return code
}

type decimalMatcher struct{ want decimal.Decimal }

func (m decimalMatcher) Matches(x any) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m decimalMatcher) String() string { return "equals " + m.want.String() }

func amount(s string) gomock.Matcher {
	return decimalMatcher{want: decimal.RequireFromString(s)}
}

// --- Auth ---

func TestRegister_Success(t *testing.T) {
	env := newTestEnv(t)

	env.auth.EXPECT().Register(gomock.Any(), "alice", "secret1").Return(&domain.User{
		ID:        uuid.New(),
		Username:  "alice",
		Roles:     []domain.Role{domain.RoleUser},
		CreatedAt: time.Now(),
	}, nil)

	w := env.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "alice", "password": "secret1", "confirm_password": "secret1",
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, "alice", data["username"])
	assert.Equal(t, []interface{}{"USER"}, data["roles"])
	assert.NotContains(t, w.Body.String(), "password")
}

func TestRegister_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"empty", map[string]string{}},
		{"short password", map[string]string{"username": "alice", "password": "abc", "confirm_password": "abc"}},
		{"mismatched confirmation", map[string]string{"username": "alice", "password": "secret1", "confirm_password": "secret2"}},
		{"unsafe username", map[string]string{"username": "<alice>", "password": "secret1", "confirm_password": "secret1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/v1/auth/register", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VAL_001", errorCode(t, w))
		})
	}
}

func TestRegister_UsernameTaken(t *testing.T) {
	env := newTestEnv(t)
	env.auth.EXPECT().Register(gomock.Any(), "taken", gomock.Any()).Return(nil, apperror.ErrUsernameExists())

	w := env.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "taken", "password": "secret1", "confirm_password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	expiry := time.Now().Add(time.Hour)
	env.auth.EXPECT().Login(gomock.Any(), "alice", "secret1").Return("jwt-token", expiry, nil)

	w := env.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice", "password": "secret1"})

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, "jwt-token", data["token"])
	assert.Equal(t, float64(expiry.Unix()), data["expiry"])
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv(t)
	env.auth.EXPECT().Login(gomock.Any(), "alice", "wrong").Return("", time.Time{}, apperror.ErrInvalidCredentials())
	env.auth.EXPECT().Login(gomock.Any(), "bob", "secret1").Return("", time.Time{}, apperror.ErrUserBlocked())

	w := env.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "bob", "password": "secret1"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	env.auth.EXPECT().ChangePassword(gomock.Any(), "alice", "old-pass", "new-pass").Return(nil)

	w := env.do(http.MethodPost, "/api/v1/auth/password", userToken, map[string]string{
		"current_password": "old-pass", "new_password": "new-pass", "confirm_new_password": "new-pass",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodPost, "/api/v1/auth/password", userToken, map[string]string{
		"current_password": "old-pass", "new_password": "new-pass", "confirm_new_password": "other",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/v1/auth/password", "", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// --- Accounts ---

func TestAccounts_RequireToken(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/v1/accounts", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/v1/accounts", "forged", nil).Code)
}

func TestListAccounts(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.EXPECT().GetAllAccounts(gomock.Any(), alice).Return([]domain.AccountView{
		{ID: uuid.New(), IBAN: ibanA, AccountNumber: "0000000001", Balance: decimal.NewFromInt(1000)},
	}, nil)

	w := env.do(http.MethodGet, "/api/v1/accounts", userToken, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, ibanA, resp.Data[0]["iban"])
	assert.Equal(t, "1000.00", resp.Data[0]["balance"])
}

func TestCreateAccount_OwnerIsCaller(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.EXPECT().CreateAccount(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ any, req ports.CreateAccountRequest) (*domain.AccountView, error) {
			assert.Equal(t, "alice", req.OwnerUsername)
			assert.Equal(t, ibanA, req.IBAN)
			assert.True(t, req.InitialBalance.Equal(decimal.RequireFromString("100.5")))
			return &domain.AccountView{ID: uuid.New(), IBAN: req.IBAN, AccountNumber: req.AccountNumber, Balance: req.InitialBalance}, nil
		})

	w := env.do(http.MethodPost, "/api/v1/accounts", userToken, map[string]string{
		"iban": ibanA, "account_number": "0000000001", "initial_balance": "100.5",
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "100.50", dataOf(t, w)["balance"])
}

func TestCreateAccount_RejectsMalformedInput(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"bad iban", map[string]string{"iban": "DE000000000000001", "account_number": "0000000001", "initial_balance": "1"}},
		{"short iban", map[string]string{"iban": "GR123", "account_number": "0000000001", "initial_balance": "1"}},
		{"bad account number", map[string]string{"iban": ibanA, "account_number": "12ab", "initial_balance": "1"}},
		{"missing balance", map[string]string{"iban": ibanA, "account_number": "0000000001"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/v1/accounts", userToken, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestCreateAccount_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.EXPECT().CreateAccount(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrAccountAlreadyExists(ibanA))

	w := env.do(http.MethodPost, "/api/v1/accounts", userToken, map[string]string{
		"iban": ibanA, "account_number": "0000000001", "initial_balance": "0",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ACC_002", errorCode(t, w))
}

func TestGetAccount_NotFoundHidesOwnership(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.EXPECT().GetAccountByIBAN(gomock.Any(), alice, ibanB).Return(nil, apperror.ErrAccountNotFound(ibanB))

	w := env.do(http.MethodGet, "/api/v1/accounts/"+ibanB, userToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetBalance(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.EXPECT().GetBalance(gomock.Any(), alice, ibanA).Return(decimal.RequireFromString("12.3"), nil)

	w := env.do(http.MethodGet, "/api/v1/accounts/"+ibanA+"/balance", userToken, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, ibanA, data["iban"])
	assert.Equal(t, "12.30", data["balance"])
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	counterparty := ibanB
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	env.ledger.EXPECT().GetTransactionHistory(gomock.Any(), alice, ibanA).Return([]domain.LedgerEntry{
		{ID: 2, AccountIBAN: ibanA, Kind: domain.EntryTransferOut, Amount: decimal.NewFromInt(150), CounterpartyIBAN: &counterparty, BalanceAfter: decimal.NewFromInt(650), CreatedAt: now},
		{ID: 1, AccountIBAN: ibanA, Kind: domain.EntryWithdraw, Amount: decimal.NewFromInt(200), BalanceAfter: decimal.NewFromInt(800), CreatedAt: now},
	}, nil)

	w := env.do(http.MethodGet, "/api/v1/accounts/"+ibanA+"/transactions", userToken, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "2", resp.Data[0]["id"])
	assert.Equal(t, "TRANSFER_OUT", resp.Data[0]["kind"])
	assert.Equal(t, ibanB, resp.Data[0]["counterparty_iban"])
	assert.Equal(t, "650.00", resp.Data[0]["balance_after"])
	assert.NotContains(t, resp.Data[1], "counterparty_iban")
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.EXPECT().DeleteAccount(gomock.Any(), alice, ibanA).Return(nil)

	w := env.do(http.MethodDelete, "/api/v1/accounts/"+ibanA, userToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDeposit_ReturnsNewBalance(t *testing.T) {
	env := newTestEnv(t)
	gomock.InOrder(
		env.ledger.EXPECT().Deposit(gomock.Any(), alice, ibanA, amount("25.50")).Return(nil),
		env.ledger.EXPECT().GetBalance(gomock.Any(), alice, ibanA).Return(decimal.RequireFromString("125.50"), nil),
	)

	w := env.do(http.MethodPost, "/api/v1/accounts/"+ibanA+"/deposit", userToken, map[string]string{"amount": "25.50"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "125.50", dataOf(t, w)["balance"])
}

func TestDeposit_MissingAmount(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/accounts/"+ibanA+"/deposit", userToken, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWithdraw_InsufficientBalanceExposesAvailable(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.EXPECT().Withdraw(gomock.Any(), alice, ibanA, amount("500")).
		Return(apperror.ErrInsufficientBalance(decimal.NewFromInt(40)))

	w := env.do(http.MethodPost, "/api/v1/accounts/"+ibanA+"/withdraw", userToken, map[string]string{"amount": "500"})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "LED_002", resp["error_code"])
	assert.Equal(t, "40", resp["available"])
}

func TestTransfer(t *testing.T) {
	env := newTestEnv(t)
	gomock.InOrder(
		env.ledger.EXPECT().Transfer(gomock.Any(), alice, ibanA, ibanB, amount("150")).Return(nil),
		env.ledger.EXPECT().GetBalance(gomock.Any(), alice, ibanA).Return(decimal.NewFromInt(650), nil),
	)

	w := env.do(http.MethodPost, "/api/v1/accounts/"+ibanA+"/transfer", userToken, map[string]string{"to_iban": ibanB, "amount": "150"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "650.00", dataOf(t, w)["balance"])
}

func TestTransfer_EngineErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperror.ErrInvalidTransfer("self"), http.StatusBadRequest},
		{apperror.ErrNegativeAmount(), http.StatusBadRequest},
		{apperror.ErrAccountNotFound(ibanB), http.StatusNotFound},
		{apperror.InternalError(errors.New("db down")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			env := newTestEnv(t)
			env.ledger.EXPECT().Transfer(gomock.Any(), alice, ibanA, ibanB, gomock.Any()).Return(tt.err)

			w := env.do(http.MethodPost, "/api/v1/accounts/"+ibanA+"/transfer", userToken, map[string]string{"to_iban": ibanB, "amount": "1"})
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestTransfer_InvalidTargetIBAN(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/accounts/"+ibanA+"/transfer", userToken, map[string]string{"to_iban": "nope", "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Admin ---

func TestAdmin_RequiresAdminRole(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/admin/summary", userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "AUTH_005", errorCode(t, w))
}

func TestAdmin_Summary(t *testing.T) {
	env := newTestEnv(t)
	env.reporting.EXPECT().Summary(gomock.Any(), root).Return(&domain.AccountSummary{
		Accounts: 2, TotalBalance: decimal.NewFromInt(1200), Entries: 5,
	}, nil)

	w := env.do(http.MethodGet, "/api/v1/admin/summary", adminTok, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, float64(2), data["accounts"])
	assert.Equal(t, "1200.00", data["total_balance"])
	assert.Equal(t, float64(5), data["entries"])
}

func TestAdmin_ListUsers(t *testing.T) {
	env := newTestEnv(t)
	env.users.EXPECT().ListUsers(gomock.Any()).Return([]domain.User{
		{Username: "admin", Roles: []domain.Role{domain.RoleAdmin, domain.RoleUser}},
		{Username: "alice", Roles: []domain.Role{domain.RoleUser}, Blocked: true},
	}, nil)

	w := env.do(http.MethodGet, "/api/v1/admin/users", adminTok, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, true, resp.Data[1]["blocked"])
}

func TestAdmin_BlockAndUnblock(t *testing.T) {
	env := newTestEnv(t)
	env.users.EXPECT().SetBlocked(gomock.Any(), "alice", true).Return(nil)
	env.users.EXPECT().SetBlocked(gomock.Any(), "alice", false).Return(nil)
	env.users.EXPECT().SetBlocked(gomock.Any(), "ghost", true).Return(apperror.ErrUserNotFound("ghost"))

	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/v1/admin/users/alice/block", adminTok, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/v1/admin/users/alice/unblock", adminTok, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/api/v1/admin/users/ghost/block", adminTok, nil).Code)
}

// --- Health & docs ---

func TestHealthCheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	healthy := mocks.NewMockHealthChecker(ctrl)
	healthy.EXPECT().Name().Return("postgresql").AnyTimes()
	healthy.EXPECT().Ping(gomock.Any()).Return(nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck(healthy)(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	ctrl := gomock.NewController(t)
	redis := mocks.NewMockHealthChecker(ctrl)
	redis.EXPECT().Name().Return("redis").AnyTimes()
	redis.EXPECT().Ping(gomock.Any()).Return(errors.New("connection refused"))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck(redis)(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestSwaggerUI(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/swagger", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "/swagger/spec")
}

func TestSwaggerSpec_Embedded(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/swagger/spec", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")
	assert.Contains(t, w.Body.String(), "/accounts/{iban}/transfer")
}
