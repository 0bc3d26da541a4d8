package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCashbackService(t *testing.T) (*CashbackService, sqlmock.Sqlmock, *MockPublisher) {
	t.Helper()
	_, sqlMock, deps, publisher := newTestDeps(t)
	ledger := NewLedgerService(deps)
	fixClock(&ledger.base)
	service := NewCashbackService(deps, ledger)
	fixClock(&service.base)
	return service, sqlMock, publisher
}

func expectAccountLookup(mock sqlmock.Sqlmock, owner, kind, id string) {
	rows := sqlmock.NewRows([]string{"id"})
	if id != "" {
		rows.AddRow(id)
	}
	mock.ExpectQuery(`SELECT id FROM accounts WHERE owner_id = \$1 AND kind = \$2`).
		WithArgs(owner, kind).
		WillReturnRows(rows)
}

func TestCashbackService_Redeem(t *testing.T) {
	ctx := context.Background()

	t.Run("moves cashback into the wallet", func(t *testing.T) {
		service, sqlMock, publisher := newCashbackService(t)
		allowPublish(publisher)

		expectTx(sqlMock)
		expectAccountLookup(sqlMock, "user-1", "cashback", cashbackID)
		expectAccountLookup(sqlMock, "user-1", "wallet", walletID)
		expectLockAccount(sqlMock, walletID, "user-1", "wallet", "70.00", 5)
		expectLockAccount(sqlMock, cashbackID, "user-1", "cashback", "25.00", 2)
		expectEntryInsert(sqlMock, cashbackID, "debit", "20", "5", "cashback_redeemed", models.RelatedLedgerEntry, sqlmock.AnyArg())
		expectBalanceUpdate(sqlMock, cashbackID, "5", 2)
		expectEntryInsert(sqlMock, walletID, "credit", "20", "90", "cashback_redeemed", models.RelatedLedgerEntry, sqlmock.AnyArg())
		expectBalanceUpdate(sqlMock, walletID, "90", 5)
		sqlMock.ExpectCommit()

		out, err := service.Redeem(ctx, "user-1", dec("20"))
		require.NoError(t, err)
		assert.True(t, out.CashbackEntry.BalanceAfter.Equal(dec("5")))
		assert.True(t, out.WalletEntry.BalanceAfter.Equal(dec("90")))
		assert.Equal(t, out.CashbackEntry.ID, out.WalletEntry.RelatedID)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
		publisher.AssertNumberOfCalls(t, "Publish", 2)
	})

	t.Run("cannot spend more cashback than earned", func(t *testing.T) {
		service, sqlMock, _ := newCashbackService(t)

		expectTx(sqlMock)
		expectAccountLookup(sqlMock, "user-1", "cashback", cashbackID)
		expectAccountLookup(sqlMock, "user-1", "wallet", walletID)
		expectLockAccount(sqlMock, walletID, "user-1", "wallet", "70.00", 5)
		expectLockAccount(sqlMock, cashbackID, "user-1", "cashback", "25.00", 2)
		sqlMock.ExpectRollback()

		_, err := service.Redeem(ctx, "user-1", dec("30"))
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("no cashback account", func(t *testing.T) {
		service, sqlMock, _ := newCashbackService(t)

		expectTx(sqlMock)
		expectAccountLookup(sqlMock, "user-2", "cashback", "")
		sqlMock.ExpectRollback()

		_, err := service.Redeem(ctx, "user-2", dec("1"))
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		service, _, _ := newCashbackService(t)
		_, err := service.Redeem(ctx, "user-1", dec("0"))
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("rejects fractions of a cent", func(t *testing.T) {
		service, sqlMock, _ := newCashbackService(t)
		_, err := service.Redeem(ctx, "user-1", dec("1.001"))
		assert.ErrorIs(t, err, ErrInvalidRequest)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})
}
