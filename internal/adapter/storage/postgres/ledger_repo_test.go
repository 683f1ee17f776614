package postgres

import (
	"context"
	"testing"
	"time"

	"bank-ledger/internal/core/domain"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledgerCols() []string {
	return []string{"id", "account_iban", "kind", "amount", "counterparty_iban", "balance_after", "created_at"}
}

func TestLedgerRepo_Append_TransferPair(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	now := time.Now().UTC().Truncate(time.Microsecond)
	x, y := "GR000000000000001", "GR000000000000002"

	out := &domain.LedgerEntry{ID: 1, AccountIBAN: x, Kind: domain.EntryTransferOut,
		Amount: decimal.RequireFromString("150"), CounterpartyIBAN: &y,
		BalanceAfter: decimal.RequireFromString("1050"), CreatedAt: now}
	in := &domain.LedgerEntry{ID: 2, AccountIBAN: y, Kind: domain.EntryTransferIn,
		Amount: decimal.RequireFromString("150"), CounterpartyIBAN: &x,
		BalanceAfter: decimal.RequireFromString("650"), CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(int64(1), x, "TRANSFER_OUT", "150.00", &y, "1050.00", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(int64(2), y, "TRANSFER_IN", "150.00", &x, "650.00", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Append(context.Background(), tx, out, in))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_ListByIBAN_NewestFirst(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	iban := "GR000000000000001"
	later := time.Now().UTC().Truncate(time.Microsecond)
	earlier := later.Add(-time.Minute)

	var noCounterparty *string
	rows := pgxmock.NewRows(ledgerCols()).
		AddRow(int64(2), iban, domain.EntryWithdraw, "50.00", noCounterparty, "1150.00", later).
		AddRow(int64(1), iban, domain.EntryDeposit, "200.00", noCounterparty, "1200.00", earlier)

	mock.ExpectQuery("SELECT .+ FROM ledger_entries .+ORDER BY created_at DESC, id DESC").
		WithArgs(iban).
		WillReturnRows(rows)

	entries, err := repo.ListByIBAN(context.Background(), iban)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.EntryWithdraw, entries[0].Kind)
	assert.True(t, entries[1].BalanceAfter.Equal(decimal.RequireFromString("1200")))
	assert.Nil(t, entries[0].CounterpartyIBAN)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_DeleteByIBAN(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM ledger_entries WHERE account_iban").
		WithArgs("GR000000000000001").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	n, err := repo.DeleteByIBAN(context.Background(), tx, "GR000000000000001")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_Count(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)

	mock.ExpectQuery("SELECT COUNT.+ FROM ledger_entries e\\s+JOIN accounts").
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	n, err := repo.Count(context.Background(), domain.OwnedBy("alice"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
