package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"bank-ledger/internal/core/domain"
	"bank-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccount(owner string) *domain.Account {
	return &domain.Account{
		ID:            uuid.New(),
		IBAN:          "GR123456789012345",
		AccountNumber: "1234567890",
		Balance:       decimal.RequireFromString("1000.00"),
		Owner:         &owner,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

func accountCols() []string {
	return []string{"id", "iban", "account_number", "balance", "owner_username", "created_at"}
}

func accountRow(rows *pgxmock.Rows, a *domain.Account) *pgxmock.Rows {
	return rows.AddRow(a.ID, a.IBAN, a.AccountNumber, a.Balance.StringFixed(2), a.Owner, a.CreatedAt)
}

func TestAccountRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)
	a := newTestAccount("alice")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(a.ID, a.IBAN, a.AccountNumber, "1000.00", a.Owner, a.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Create(context.Background(), tx, a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_Create_UniqueViolations(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{"accounts_iban_key", ports.ErrDuplicateIBAN},
		{"accounts_account_number_key", ports.ErrDuplicateAccountNumber},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			repo := NewAccountRepo(mock)
			a := newTestAccount("alice")

			mock.ExpectBegin()
			mock.ExpectExec("INSERT INTO accounts").
				WithArgs(a.ID, a.IBAN, a.AccountNumber, "1000.00", a.Owner, a.CreatedAt).
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: tt.constraint})

			tx, err := mock.Begin(context.Background())
			require.NoError(t, err)

			err = repo.Create(context.Background(), tx, a)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAccountRepo_ExistsByIBAN(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("GR123456789012345").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("1234567890").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	exists, err := repo.ExistsByIBAN(context.Background(), tx, "GR123456789012345")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByAccountNumber(context.Background(), tx, "1234567890")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_Find_Scoped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)
	a := newTestAccount("alice")

	mock.ExpectQuery("SELECT .+ FROM accounts WHERE iban = .+ IS NULL OR owner_username").
		WithArgs(a.IBAN, "alice").
		WillReturnRows(accountRow(pgxmock.NewRows(accountCols()), a))

	result, err := repo.Find(context.Background(), a.IBAN, domain.OwnedBy("alice"))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, a.ID, result.ID)
	assert.True(t, result.Balance.Equal(a.Balance))
	assert.Equal(t, "alice", *result.Owner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_Find_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM accounts WHERE iban").
		WithArgs("GR000000000000000", "bob").
		WillReturnRows(pgxmock.NewRows(accountCols()))

	result, err := repo.Find(context.Background(), "GR000000000000000", domain.OwnedBy("bob"))
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_FindForUpdate_Unscoped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)
	a := newTestAccount("alice")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM accounts WHERE iban .+ FOR UPDATE").
		WithArgs(a.IBAN, nil).
		WillReturnRows(accountRow(pgxmock.NewRows(accountCols()), a))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.FindForUpdate(context.Background(), tx, a.IBAN, domain.Unscoped())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, a.IBAN, result.IBAN)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_FindForUpdate_DBError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs("GR123456789012345", nil).
		WillReturnError(errors.New("connection reset"))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.FindForUpdate(context.Background(), tx, "GR123456789012345", domain.Unscoped())
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestAccountRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)
	a := newTestAccount("alice")
	b := newTestAccount("alice")
	b.IBAN = "GR123456789012346"

	rows := pgxmock.NewRows(accountCols())
	accountRow(rows, a)
	accountRow(rows, b)

	mock.ExpectQuery("SELECT .+ FROM accounts WHERE .+ ORDER BY").
		WithArgs("alice").
		WillReturnRows(rows)

	result, err := repo.List(context.Background(), domain.OwnedBy("alice"))
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, b.IBAN, result[1].IBAN)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_UpdateBalance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts SET balance").
		WithArgs("1200.00", "GR123456789012345").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE accounts SET balance").
		WithArgs("5.50", "GR000000000000000").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.UpdateBalance(context.Background(), tx, "GR123456789012345", decimal.RequireFromString("1200")))
	assert.Error(t, repo.UpdateBalance(context.Background(), tx, "GR000000000000000", decimal.RequireFromString("5.5")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_AssignOrphans(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)

	mock.ExpectExec("UPDATE accounts SET owner_username .+ WHERE owner_username IS NULL").
		WithArgs("admin").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := repo.AssignOrphans(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_Totals(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)

	mock.ExpectQuery("SELECT COUNT.+ COALESCE.+SUM.+balance").
		WithArgs(nil).
		WillReturnRows(pgxmock.NewRows([]string{"count", "sum"}).AddRow(int64(2), "1500.00"))

	count, total, err := repo.Totals(context.Background(), domain.Unscoped())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.True(t, total.Equal(decimal.RequireFromString("1500")))
	assert.NoError(t, mock.ExpectationsWereMet())
}
