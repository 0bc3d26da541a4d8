package audit

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LogEntry(t *testing.T) {
	log, hook := test.NewNullLogger()
	a := NewLogger(log)

	a.LogEntry("entry-1", "acct-1", "debit", "admin_debit", decimal.RequireFromString("30"), decimal.RequireFromString("70"))

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, EventLedgerEntry, entry.Data["event_type"])
	assert.Equal(t, "acct-1", entry.Data["account_id"])
	assert.Equal(t, "30.00", entry.Data["amount"])
	assert.Equal(t, "70.00", entry.Data["balance_after"])
}

func TestLogger_LogPaymentEvent(t *testing.T) {
	log, hook := test.NewNullLogger()
	a := NewLogger(log)

	a.LogPaymentEvent("evt-1", "paystack", "ref-9", "", decimal.NewFromInt(500), true)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "DUPLICATE", entry.Data["status"])
	assert.Equal(t, "ref-9", entry.Data["reference"])
	assert.NotContains(t, entry.Data, "account_id")
}

func TestLogger_LevelsByEventType(t *testing.T) {
	log, hook := test.NewNullLogger()
	a := NewLogger(log)

	a.LogRejected("req-1", "acct-1", decimal.NewFromInt(80), errors.New("insufficient funds"))
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "insufficient funds", hook.LastEntry().Data["reason"])

	a.LogError("req-2", "acct-1", errors.New("connection reset"))
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}
