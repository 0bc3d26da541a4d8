package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeLedgerEntry       = "ledger.entry.created"
	TypePaymentUnlinked   = "payment.unlinked"
	TypeOfferRedeemed     = "offer.redeemed"
	TypeOfferStatusChange = "offer.status_changed"
)

// Event is published after the transaction that produced it has committed.
type Event struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	AccountID    string          `json:"account_id,omitempty"`
	EntryID      string          `json:"entry_id,omitempty"`
	Direction    string          `json:"direction,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	OfferID      string          `json:"offer_id,omitempty"`
	ActorID      string          `json:"actor_id,omitempty"`
	RedemptionID string          `json:"redemption_id,omitempty"`
	Status       string          `json:"status,omitempty"`
	Provider     string          `json:"provider,omitempty"`
	Reference    string          `json:"reference,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
