package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ExternalPaymentEvent is a provider notification. (Provider, ProviderReference)
// is unique and is the only guard against double-crediting a redelivered webhook.
type ExternalPaymentEvent struct {
	ID                string          `json:"id" db:"id"`
	Provider          string          `json:"provider" db:"provider"`
	ProviderReference string          `json:"provider_reference" db:"provider_reference"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	Currency          string          `json:"currency" db:"currency"`
	Destination       string          `json:"destination" db:"destination"`
	RawPayload        json.RawMessage `json:"raw_payload,omitempty" db:"raw_payload"`
	ReceivedAt        time.Time       `json:"received_at" db:"received_at"`
	LinkedAccountID   *string         `json:"linked_account_id,omitempty" db:"linked_account_id"`
	LedgerEntryID     *string         `json:"ledger_entry_id,omitempty" db:"ledger_entry_id"`
}
