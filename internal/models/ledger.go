package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountKind string

const (
	AccountKindWallet   AccountKind = "wallet"
	AccountKindCashback AccountKind = "cashback"
)

func (k AccountKind) Valid() bool {
	return k == AccountKindWallet || k == AccountKindCashback
}

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

func (d Direction) Valid() bool {
	return d == DirectionCredit || d == DirectionDebit
}

// Reason records why money moved.
type Reason string

const (
	ReasonDeposit          Reason = "deposit"
	ReasonAdminCredit      Reason = "admin_credit"
	ReasonAdminDebit       Reason = "admin_debit"
	ReasonPurchase         Reason = "purchase"
	ReasonReversal         Reason = "reversal"
	ReasonOfferRedemption  Reason = "offer_redemption"
	ReasonCashbackEarned   Reason = "cashback_earned"
	ReasonCashbackRedeemed Reason = "cashback_redeemed"
)

// Related types for LedgerEntry.RelatedType.
const (
	RelatedPaymentEvent    = "external_payment_event"
	RelatedAdmin           = "admin"
	RelatedPayment         = "payment"
	RelatedOfferRedemption = "offer_redemption"
	RelatedLedgerEntry     = "ledger_entry"
)

// Account is a wallet or cashback pool. Balance always equals the sum of its
// ledger entries and never goes negative.
type Account struct {
	ID        string          `json:"id" db:"id"`
	OwnerID   string          `json:"owner_id" db:"owner_id"`
	Kind      AccountKind     `json:"kind" db:"kind"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Currency  string          `json:"currency" db:"currency"`
	Version   int64           `json:"version" db:"version"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// LedgerEntry is immutable once written.
type LedgerEntry struct {
	ID           string          `json:"id" db:"id"`
	AccountID    string          `json:"account_id" db:"account_id"`
	Direction    Direction       `json:"direction" db:"direction"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after" db:"balance_after"`
	Reason       Reason          `json:"reason" db:"reason"`
	RelatedType  string          `json:"related_type,omitempty" db:"related_type"`
	RelatedID    string          `json:"related_id,omitempty" db:"related_id"`
	Metadata     Metadata        `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// Signed returns the entry amount as it affects the balance.
func (e LedgerEntry) Signed() decimal.Decimal {
	if e.Direction == DirectionDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

type Reconciliation struct {
	AccountID  string          `json:"account_id"`
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	EntryCount int64           `json:"entry_count"`
	Consistent bool            `json:"consistent"`
}
