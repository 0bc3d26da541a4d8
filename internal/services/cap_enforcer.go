package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/shopspring/decimal"
)

const offerColumns = `id, title, status, per_user_limit, global_limit, usage_count, cashback_amount,
	currency, starts_at, ends_at, created_by, created_at, updated_at`

// ConsumeRequest is one attempt to use up a unit of an offer.
type ConsumeRequest struct {
	OfferID           string
	ActorID           string
	PricePaid         decimal.Decimal
	Discount          decimal.Decimal
	OperatorProductID string
	SupplierMappingID string
}

// CapEnforcer is the only writer of offers.usage_count. Every attempt against
// one offer is serialized on that offer's row lock.
type CapEnforcer struct {
	base
}

func NewCapEnforcer(d Deps) *CapEnforcer {
	return &CapEnforcer{base: newBase(d)}
}

// TryConsume runs TryConsumeTx in its own transaction.
func (c *CapEnforcer) TryConsume(ctx context.Context, req ConsumeRequest) (*models.OfferRedemption, *models.Offer, error) {
	var (
		redemption *models.OfferRedemption
		offer      *models.Offer
	)
	err := c.tx.Run(ctx, func(tx *sql.Tx) error {
		var err error
		redemption, offer, err = c.TryConsumeTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return redemption, offer, nil
}

// TryConsumeTx locks the offer, re-checks status, window and both limits, then
// increments the counter and records the redemption. Nothing is written when
// any check fails.
func (c *CapEnforcer) TryConsumeTx(ctx context.Context, tx *sql.Tx, req ConsumeRequest) (*models.OfferRedemption, *models.Offer, error) {
	if req.ActorID == "" {
		return nil, nil, invalidf("actor id is required")
	}

	offer, err := lockOffer(ctx, tx, req.OfferID)
	if err != nil {
		return nil, nil, err
	}

	now := c.now()
	if offer.Status != models.OfferStatusActive || !offer.InWindow(now) {
		return nil, nil, fmt.Errorf("%w: offer %s is %s", ErrResourceInactive, offer.ID, offer.Status)
	}

	if offer.PerUserLimit != nil {
		var used int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM offer_redemptions WHERE offer_id = $1 AND actor_id = $2`,
			offer.ID, req.ActorID).Scan(&used)
		if err != nil {
			return nil, nil, fmt.Errorf("count redemptions: %w", err)
		}
		if used >= *offer.PerUserLimit {
			return nil, nil, fmt.Errorf("%w: %d of %d used", ErrPerActorLimitReached, used, *offer.PerUserLimit)
		}
	}

	if offer.GlobalLimit != nil && offer.UsageCount >= *offer.GlobalLimit {
		return nil, nil, fmt.Errorf("%w: %d of %d used", ErrGlobalLimitReached, offer.UsageCount, *offer.GlobalLimit)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE offers
		SET usage_count = usage_count + 1, updated_at = $2
		WHERE id = $1 AND (global_limit IS NULL OR usage_count < global_limit)`,
		offer.ID, now)
	if err != nil {
		return nil, nil, fmt.Errorf("increment usage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, nil, err
	}
	if affected == 0 {
		return nil, nil, fmt.Errorf("%w: offer %s", ErrGlobalLimitReached, offer.ID)
	}
	offer.UsageCount++
	offer.UpdatedAt = now

	redemption := &models.OfferRedemption{
		ID:                uuid.NewString(),
		OfferID:           offer.ID,
		ActorID:           req.ActorID,
		PricePaid:         req.PricePaid,
		Discount:          req.Discount,
		OperatorProductID: optional(req.OperatorProductID),
		SupplierMappingID: optional(req.SupplierMappingID),
		CreatedAt:         now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO offer_redemptions
		(id, offer_id, actor_id, price_paid, discount, operator_product_id, supplier_mapping_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		redemption.ID, redemption.OfferID, redemption.ActorID, redemption.PricePaid, redemption.Discount,
		redemption.OperatorProductID, redemption.SupplierMappingID, redemption.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("insert redemption: %w", err)
	}
	return redemption, offer, nil
}

func lockOffer(ctx context.Context, tx *sql.Tx, offerID string) (*models.Offer, error) {
	if _, err := uuid.Parse(offerID); err != nil {
		return nil, fmt.Errorf("%w: offer %s", ErrNotFound, offerID)
	}
	offer, err := scanOffer(tx.QueryRowContext(ctx, `
		SELECT `+offerColumns+`
		FROM offers
		WHERE id = $1
		FOR UPDATE`, offerID))
	if err != nil {
		return nil, notFoundOr(err, "offer", offerID)
	}
	return offer, nil
}

func scanOffer(row rowScanner) (*models.Offer, error) {
	var (
		o                         models.Offer
		perUserLimit, globalLimit sql.NullInt64
	)
	err := row.Scan(&o.ID, &o.Title, &o.Status, &perUserLimit, &globalLimit, &o.UsageCount, &o.CashbackAmount,
		&o.Currency, &o.StartsAt, &o.EndsAt, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if perUserLimit.Valid {
		n := int(perUserLimit.Int64)
		o.PerUserLimit = &n
	}
	if globalLimit.Valid {
		n := int(globalLimit.Int64)
		o.GlobalLimit = &n
	}
	return &o, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
