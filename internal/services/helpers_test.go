package services

import (
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	walletID   = "11111111-1111-1111-1111-111111111111"
	cashbackID = "22222222-2222-2222-2222-222222222222"
	offerID    = "33333333-3333-3333-3333-333333333333"
)

var fixedNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

var accountCols = []string{"id", "owner_id", "kind", "balance", "currency", "version", "created_at", "updated_at"}

// decimalArg matches a numeric SQL argument by value, so "70" matches "70.00".
type decimalArg string

func (d decimalArg) Match(v driver.Value) bool {
	want := decimal.RequireFromString(string(d))
	var raw string
	switch x := v.(type) {
	case string:
		raw = x
	case []byte:
		raw = string(x)
	default:
		return false
	}
	got, err := decimal.NewFromString(raw)
	return err == nil && got.Equal(want)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestDeps(t *testing.T) (*sql.DB, sqlmock.Sqlmock, Deps, *MockPublisher) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log, _ := test.NewNullLogger()
	publisher := &MockPublisher{}
	return db, mock, Deps{
		DB:          db,
		Log:         log,
		Publisher:   publisher,
		LockTimeout: 5 * time.Second,
		Currency:    "NGN",
	}, publisher
}

func fixClock(b *base) {
	b.now = func() time.Time { return fixedNow }
}

func expectTx(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout = '5000ms'").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectLockAccount(mock sqlmock.Sqlmock, id, owner, kind, balance string, version int64) {
	mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow(id, owner, kind, balance, "NGN", version, fixedNow, fixedNow))
}

func expectEntryInsert(mock sqlmock.Sqlmock, accountID, direction, amount, balanceAfter, reason string, relatedType, relatedID any) {
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(sqlmock.AnyArg(), accountID, direction, decimalArg(amount), decimalArg(balanceAfter), reason,
			relatedType, relatedID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func expectBalanceUpdate(mock sqlmock.Sqlmock, accountID, balance string, version int64) {
	mock.ExpectExec(`UPDATE accounts SET balance = \$1, version = version \+ 1, updated_at = \$2 WHERE id = \$3 AND version = \$4`).
		WithArgs(decimalArg(balance), sqlmock.AnyArg(), accountID, version).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func allowPublish(p *MockPublisher) {
	p.On("Publish", mock.Anything, mock.Anything).Return(nil)
}
