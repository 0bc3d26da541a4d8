package audit

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	EventLedgerEntry = "LEDGER_ENTRY"
	EventPayment     = "PAYMENT_EVENT"
	EventRedemption  = "OFFER_REDEMPTION"
	EventRejected    = "REJECTED"
	EventError       = "ERROR"
)

type Event struct {
	Timestamp time.Time
	EventType string
	Reference string
	AccountID string
	Amount    decimal.Decimal
	Status    string
	Details   map[string]any
}

// Logger writes one structured line per money movement, redemption or rejection.
type Logger struct {
	log *logrus.Logger
}

func NewLogger(log *logrus.Logger) *Logger {
	return &Logger{log: log}
}

func (a *Logger) LogEntry(entryID, accountID, direction, reason string, amount, balanceAfter decimal.Decimal) {
	a.write(Event{
		Timestamp: time.Now().UTC(),
		EventType: EventLedgerEntry,
		Reference: entryID,
		AccountID: accountID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details: map[string]any{
			"direction":     direction,
			"reason":        reason,
			"balance_after": balanceAfter.StringFixed(2),
		},
	})
}

func (a *Logger) LogPaymentEvent(eventID, provider, reference, linkedAccountID string, amount decimal.Decimal, duplicate bool) {
	status := "RECORDED"
	if duplicate {
		status = "DUPLICATE"
	}
	a.write(Event{
		Timestamp: time.Now().UTC(),
		EventType: EventPayment,
		Reference: eventID,
		AccountID: linkedAccountID,
		Amount:    amount,
		Status:    status,
		Details: map[string]any{
			"provider":  provider,
			"reference": reference,
		},
	})
}

func (a *Logger) LogRedemption(redemptionID, offerID, actorID string, pricePaid decimal.Decimal) {
	a.write(Event{
		Timestamp: time.Now().UTC(),
		EventType: EventRedemption,
		Reference: redemptionID,
		Amount:    pricePaid,
		Status:    "SUCCESS",
		Details: map[string]any{
			"offer_id": offerID,
			"actor_id": actorID,
		},
	})
}

// LogRejected records a business-rule rejection, which is not a system fault.
func (a *Logger) LogRejected(reference, accountID string, amount decimal.Decimal, err error) {
	a.write(Event{
		Timestamp: time.Now().UTC(),
		EventType: EventRejected,
		Reference: reference,
		AccountID: accountID,
		Amount:    amount,
		Status:    "REJECTED",
		Details:   map[string]any{"reason": err.Error()},
	})
}

func (a *Logger) LogError(reference, accountID string, err error) {
	a.write(Event{
		Timestamp: time.Now().UTC(),
		EventType: EventError,
		Reference: reference,
		AccountID: accountID,
		Status:    "FAILED",
		Details:   map[string]any{"error": err.Error()},
	})
}

func (a *Logger) write(event Event) {
	fields := logrus.Fields{
		"audit":      true,
		"event_type": event.EventType,
		"reference":  event.Reference,
		"status":     event.Status,
		"at":         event.Timestamp.Format(time.RFC3339Nano),
	}
	if event.AccountID != "" {
		fields["account_id"] = event.AccountID
	}
	if !event.Amount.IsZero() {
		fields["amount"] = event.Amount.StringFixed(2)
	}
	for k, v := range event.Details {
		fields[k] = v
	}

	entry := a.log.WithFields(fields)
	switch event.EventType {
	case EventError:
		entry.Error("AUDIT")
	case EventRejected:
		entry.Warn("AUDIT")
	default:
		entry.Info("AUDIT")
	}
}
