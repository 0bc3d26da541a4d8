package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/events"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/sirupsen/logrus"
)

// Deps carries what every ledger service shares.
type Deps struct {
	DB          *sql.DB
	Log         *logrus.Logger
	Publisher   events.Publisher
	LockTimeout time.Duration
	Currency    string
}

type base struct {
	tx        *TxRunner
	db        *sql.DB
	log       *logrus.Logger
	audit     *audit.Logger
	publisher events.Publisher
	currency  string
	now       func() time.Time
}

func newBase(d Deps) base {
	log := d.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	publisher := d.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	currency := d.Currency
	if currency == "" {
		currency = "NGN"
	}
	return base{
		tx:        NewTxRunner(d.DB, d.LockTimeout),
		db:        d.DB,
		log:       log,
		audit:     audit.NewLogger(log),
		publisher: publisher,
		currency:  currency,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// publish runs after commit. A failed publish never undoes committed state.
func (b *base) publish(ctx context.Context, event events.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = b.now()
	}
	if err := b.publisher.Publish(ctx, event); err != nil {
		b.log.WithError(err).WithFields(logrus.Fields{
			"event_id":   event.ID,
			"event_type": event.Type,
		}).Error("failed to publish event")
	}
}

func (b *base) publishEntry(ctx context.Context, entry *models.LedgerEntry) {
	b.audit.LogEntry(entry.ID, entry.AccountID, string(entry.Direction), string(entry.Reason), entry.Amount, entry.BalanceAfter)
	b.publish(ctx, events.Event{
		Type:         events.TypeLedgerEntry,
		AccountID:    entry.AccountID,
		EntryID:      entry.ID,
		Direction:    string(entry.Direction),
		Reason:       string(entry.Reason),
		Amount:       entry.Amount,
		BalanceAfter: entry.BalanceAfter,
		Reference:    entry.RelatedID,
		OccurredAt:   entry.CreatedAt,
	})
}
