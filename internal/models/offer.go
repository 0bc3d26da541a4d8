package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OfferStatus string

const (
	OfferStatusDraft     OfferStatus = "draft"
	OfferStatusActive    OfferStatus = "active"
	OfferStatusPaused    OfferStatus = "paused"
	OfferStatusExpired   OfferStatus = "expired"
	OfferStatusCancelled OfferStatus = "cancelled"
)

func (s OfferStatus) Valid() bool {
	switch s {
	case OfferStatusDraft, OfferStatusActive, OfferStatusPaused, OfferStatusExpired, OfferStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions or redemptions are allowed.
func (s OfferStatus) Terminal() bool {
	return s == OfferStatusExpired || s == OfferStatusCancelled
}

// CanTransition reports whether an offer may move from s to next.
func (s OfferStatus) CanTransition(next OfferStatus) bool {
	if s.Terminal() || !next.Valid() || s == next {
		return false
	}
	switch next {
	case OfferStatusActive:
		return s == OfferStatusDraft || s == OfferStatusPaused
	case OfferStatusPaused:
		return s == OfferStatusActive
	case OfferStatusExpired, OfferStatusCancelled:
		return true
	}
	return false
}

// Offer is a capped promotional resource. UsageCount is the authoritative
// counter and is only changed by successful redemptions. A nil limit means
// unlimited.
type Offer struct {
	ID             string          `json:"id" db:"id"`
	Title          string          `json:"title" db:"title"`
	Status         OfferStatus     `json:"status" db:"status"`
	PerUserLimit   *int            `json:"per_user_limit,omitempty" db:"per_user_limit"`
	GlobalLimit    *int            `json:"global_limit,omitempty" db:"global_limit"`
	UsageCount     int             `json:"usage_count" db:"usage_count"`
	CashbackAmount decimal.Decimal `json:"cashback_amount" db:"cashback_amount"`
	Currency       string          `json:"currency" db:"currency"`
	StartsAt       time.Time       `json:"starts_at" db:"starts_at"`
	EndsAt         time.Time       `json:"ends_at" db:"ends_at"`
	CreatedBy      string          `json:"created_by" db:"created_by"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// InWindow reports whether t falls within [StartsAt, EndsAt].
func (o Offer) InWindow(t time.Time) bool {
	return !t.Before(o.StartsAt) && !t.After(o.EndsAt)
}

// OfferRedemption is one consumption of an offer. The number of rows per
// (OfferID, ActorID) is what the per-user limit counts.
type OfferRedemption struct {
	ID                string          `json:"id" db:"id"`
	OfferID           string          `json:"offer_id" db:"offer_id"`
	ActorID           string          `json:"actor_id" db:"actor_id"`
	PricePaid         decimal.Decimal `json:"price_paid" db:"price_paid"`
	Discount          decimal.Decimal `json:"discount" db:"discount"`
	OperatorProductID *string         `json:"operator_product_id,omitempty" db:"operator_product_id"`
	SupplierMappingID *string         `json:"supplier_mapping_id,omitempty" db:"supplier_mapping_id"`
	CashbackEntryID   *string         `json:"cashback_entry_id,omitempty" db:"cashback_entry_id"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}
