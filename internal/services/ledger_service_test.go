package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/ruralpay/ledger/internal/events"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLedgerService_ApplyEntry(t *testing.T) {
	_, sqlMock, deps, publisher := newTestDeps(t)
	service := NewLedgerService(deps)
	fixClock(&service.base)
	ctx := context.Background()

	t.Run("debit within balance", func(t *testing.T) {
		expectTx(sqlMock)
		expectLockAccount(sqlMock, walletID, "user-1", "wallet", "100.00", 3)
		expectEntryInsert(sqlMock, walletID, "debit", "30.00", "70.00", "admin_debit", "admin", "admin-9")
		expectBalanceUpdate(sqlMock, walletID, "70.00", 3)
		sqlMock.ExpectCommit()

		publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e events.Event) bool {
			return e.Type == events.TypeLedgerEntry && e.AccountID == walletID && e.BalanceAfter.Equal(decimal.NewFromInt(70))
		})).Return(nil).Once()

		entry, err := service.ApplyEntry(ctx, EntryRequest{
			AccountID:   walletID,
			Direction:   models.DirectionDebit,
			Amount:      decimal.RequireFromString("30.00"),
			Reason:      models.ReasonAdminDebit,
			RelatedType: models.RelatedAdmin,
			RelatedID:   "admin-9",
		})
		require.NoError(t, err)
		assert.Equal(t, models.DirectionDebit, entry.Direction)
		assert.True(t, entry.BalanceAfter.Equal(decimal.RequireFromString("70.00")))
		assert.Equal(t, fixedNow, entry.CreatedAt)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
		publisher.AssertExpectations(t)
	})

	t.Run("overdraft is rejected without writes", func(t *testing.T) {
		expectTx(sqlMock)
		expectLockAccount(sqlMock, walletID, "user-1", "wallet", "70.00", 4)
		sqlMock.ExpectRollback()

		entry, err := service.ApplyEntry(ctx, EntryRequest{
			AccountID: walletID,
			Direction: models.DirectionDebit,
			Amount:    decimal.RequireFromString("80.00"),
			Reason:    models.ReasonAdminDebit,
		})
		assert.Nil(t, entry)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.False(t, IsRetryable(err))
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("debit of the exact balance leaves zero", func(t *testing.T) {
		allowPublish(publisher)
		expectTx(sqlMock)
		expectLockAccount(sqlMock, walletID, "user-1", "wallet", "70.00", 4)
		expectEntryInsert(sqlMock, walletID, "debit", "70", "0", "purchase", nil, nil)
		expectBalanceUpdate(sqlMock, walletID, "0", 4)
		sqlMock.ExpectCommit()

		entry, err := service.ApplyEntry(ctx, EntryRequest{
			AccountID: walletID,
			Direction: models.DirectionDebit,
			Amount:    decimal.NewFromInt(70),
			Reason:    models.ReasonPurchase,
		})
		require.NoError(t, err)
		assert.True(t, entry.BalanceAfter.IsZero())
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("non-positive amount is invalid", func(t *testing.T) {
		for _, amount := range []string{"0", "-5.00"} {
			_, err := service.ApplyEntry(ctx, EntryRequest{
				AccountID: walletID,
				Direction: models.DirectionCredit,
				Amount:    decimal.RequireFromString(amount),
				Reason:    models.ReasonDeposit,
			})
			assert.True(t, errors.Is(err, ErrInvalidRequest), "amount %s", amount)
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		expectTx(sqlMock)
		sqlMock.ExpectQuery(`SELECT (.+) FROM accounts WHERE id = \$1 FOR UPDATE`).
			WithArgs(cashbackID).
			WillReturnError(sql.ErrNoRows)
		sqlMock.ExpectRollback()

		_, err := service.ApplyEntry(ctx, EntryRequest{
			AccountID: cashbackID,
			Direction: models.DirectionCredit,
			Amount:    decimal.NewFromInt(10),
			Reason:    models.ReasonDeposit,
		})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("lock wait timeout is retryable", func(t *testing.T) {
		expectTx(sqlMock)
		sqlMock.ExpectQuery(`SELECT (.+) FROM accounts WHERE id = \$1 FOR UPDATE`).
			WithArgs(walletID).
			WillReturnError(&pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"})
		sqlMock.ExpectRollback()

		_, err := service.ApplyEntry(ctx, EntryRequest{
			AccountID: walletID,
			Direction: models.DirectionCredit,
			Amount:    decimal.NewFromInt(10),
			Reason:    models.ReasonDeposit,
		})
		assert.ErrorIs(t, err, ErrLockTimeout)
		assert.True(t, IsRetryable(err))
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("amounts finer than cents never reach the store", func(t *testing.T) {
		for _, amount := range []string{"10.005", "0.004"} {
			_, err := service.ApplyEntry(ctx, EntryRequest{
				AccountID: walletID,
				Direction: models.DirectionDebit,
				Amount:    dec(amount),
				Reason:    models.ReasonAdminDebit,
			})
			assert.ErrorIs(t, err, ErrInvalidRequest, amount)
		}
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("failed balance write aborts the entry", func(t *testing.T) {
		expectTx(sqlMock)
		expectLockAccount(sqlMock, walletID, "user-1", "wallet", "10.00", 7)
		expectEntryInsert(sqlMock, walletID, "credit", "5", "15", "deposit", nil, nil)
		sqlMock.ExpectExec("UPDATE accounts SET balance").
			WillReturnResult(sqlmock.NewResult(0, 0))
		sqlMock.ExpectRollback()

		_, err := service.ApplyEntry(ctx, EntryRequest{
			AccountID: walletID,
			Direction: models.DirectionCredit,
			Amount:    decimal.NewFromInt(5),
			Reason:    models.ReasonDeposit,
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "changed while locked")
		assert.False(t, IsBusinessRejection(err))
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})
}

func TestLedgerService_BalanceInvariantAcrossSequence(t *testing.T) {
	_, sqlMock, deps, publisher := newTestDeps(t)
	service := NewLedgerService(deps)
	fixClock(&service.base)
	allowPublish(publisher)

	steps := []struct {
		direction models.Direction
		amount    string
		rejected  bool
	}{
		{models.DirectionCredit, "100.00", false},
		{models.DirectionDebit, "30.00", false},
		{models.DirectionDebit, "80.00", true},
		{models.DirectionCredit, "12.50", false},
		{models.DirectionDebit, "82.50", false},
	}

	balance := decimal.Zero
	var version int64
	sum := decimal.Zero
	for _, step := range steps {
		amount := decimal.RequireFromString(step.amount)
		expectTx(sqlMock)
		expectLockAccount(sqlMock, walletID, "user-1", "wallet", balance.StringFixed(2), version)

		next := balance.Add(amount)
		if step.direction == models.DirectionDebit {
			next = balance.Sub(amount)
		}
		if step.rejected {
			sqlMock.ExpectRollback()
		} else {
			expectEntryInsert(sqlMock, walletID, string(step.direction), step.amount, next.String(), "deposit", nil, nil)
			expectBalanceUpdate(sqlMock, walletID, next.String(), version)
			sqlMock.ExpectCommit()
		}

		entry, err := service.ApplyEntry(context.Background(), EntryRequest{
			AccountID: walletID,
			Direction: step.direction,
			Amount:    amount,
			Reason:    models.ReasonDeposit,
		})
		if step.rejected {
			require.ErrorIs(t, err, ErrInsufficientFunds)
			continue
		}
		require.NoError(t, err)
		sum = sum.Add(entry.Signed())
		balance = entry.BalanceAfter
		version++
		assert.True(t, balance.Equal(sum), "balance %s != ledger sum %s", balance, sum)
	}

	assert.True(t, balance.IsZero())
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestLedgerService_EnsureAccount(t *testing.T) {
	_, sqlMock, deps, _ := newTestDeps(t)
	service := NewLedgerService(deps)
	fixClock(&service.base)

	expectTx(sqlMock)
	sqlMock.ExpectExec(`INSERT INTO accounts (.+) ON CONFLICT \(owner_id, kind\) DO NOTHING`).
		WithArgs(sqlmock.AnyArg(), "user-1", "cashback", "NGN", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	sqlMock.ExpectQuery(`SELECT (.+) FROM accounts WHERE owner_id = \$1 AND kind = \$2 FOR UPDATE`).
		WithArgs("user-1", "cashback").
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow(cashbackID, "user-1", "cashback", "0", "NGN", 0, fixedNow, fixedNow))
	sqlMock.ExpectCommit()

	account, err := service.EnsureAccount(context.Background(), "user-1", models.AccountKindCashback, "")
	require.NoError(t, err)
	assert.Equal(t, cashbackID, account.ID)
	assert.Equal(t, models.AccountKindCashback, account.Kind)
	assert.True(t, account.Balance.IsZero())
	assert.NoError(t, sqlMock.ExpectationsWereMet())

	_, err = service.EnsureAccount(context.Background(), "user-1", models.AccountKind("savings"), "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestLedgerService_Reconcile(t *testing.T) {
	_, sqlMock, deps, _ := newTestDeps(t)
	service := NewLedgerService(deps)

	t.Run("consistent", func(t *testing.T) {
		sqlMock.ExpectQuery(`SELECT a.balance, (.+) FROM accounts a LEFT JOIN ledger_entries e`).
			WithArgs(walletID).
			WillReturnRows(sqlmock.NewRows([]string{"balance", "sum", "count"}).AddRow("70.00", "70", 2))

		rec, err := service.Reconcile(context.Background(), walletID)
		require.NoError(t, err)
		assert.True(t, rec.Consistent)
		assert.Equal(t, int64(2), rec.EntryCount)
	})

	t.Run("drift is reported", func(t *testing.T) {
		sqlMock.ExpectQuery(`SELECT a.balance, (.+) FROM accounts a LEFT JOIN ledger_entries e`).
			WithArgs(walletID).
			WillReturnRows(sqlmock.NewRows([]string{"balance", "sum", "count"}).AddRow("75.00", "70.00", 2))

		rec, err := service.Reconcile(context.Background(), walletID)
		require.NoError(t, err)
		assert.False(t, rec.Consistent)
	})

	t.Run("malformed id is not found", func(t *testing.T) {
		_, err := service.Reconcile(context.Background(), "not-a-uuid")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestLedgerService_ListEntries(t *testing.T) {
	_, sqlMock, deps, _ := newTestDeps(t)
	service := NewLedgerService(deps)
	before := fixedNow.Add(-time.Hour)

	sqlMock.ExpectQuery(`SELECT (.+) FROM accounts WHERE id = \$1`).
		WithArgs(walletID).
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow(walletID, "user-1", "wallet", "70.00", "NGN", 2, fixedNow, fixedNow))
	sqlMock.ExpectQuery(`SELECT (.+) FROM ledger_entries WHERE account_id = \$1 AND created_at < \$2 ORDER BY created_at DESC LIMIT \$3`).
		WithArgs(walletID, before, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "direction", "amount", "balance_after", "reason", "related_type", "related_id", "metadata", "created_at"}).
			AddRow("e2", walletID, "debit", "30.00", "70.00", "admin_debit", "admin", "admin-9", []byte(`{"note":"fee"}`), fixedNow.Add(-2*time.Hour)).
			AddRow("e1", walletID, "credit", "100.00", "100.00", "deposit", "", "", nil, fixedNow.Add(-3*time.Hour)))

	entries, err := service.ListEntries(context.Background(), walletID, 0, &before)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.DirectionDebit, entries[0].Direction)
	assert.Equal(t, "fee", entries[0].Metadata["note"])
	assert.Nil(t, entries[1].Metadata)
	assert.True(t, entries[1].Signed().Equal(decimal.NewFromInt(100)))
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestLedgerService_lockAccountsOrdered(t *testing.T) {
	db, sqlMock, deps, _ := newTestDeps(t)
	service := NewLedgerService(deps)

	sqlMock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	// cashbackID sorts after walletID, so the wallet row is locked first.
	expectLockAccount(sqlMock, walletID, "user-1", "wallet", "5.00", 1)
	expectLockAccount(sqlMock, cashbackID, "user-1", "cashback", "9.00", 1)

	accounts, err := service.lockAccountsOrdered(context.Background(), tx, cashbackID, walletID)
	require.NoError(t, err)
	assert.Equal(t, cashbackID, accounts[0].ID)
	assert.Equal(t, walletID, accounts[1].ID)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}
