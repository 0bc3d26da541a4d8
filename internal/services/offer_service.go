package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/events"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type CreateOfferRequest struct {
	Title          string
	PerUserLimit   *int
	GlobalLimit    *int
	CashbackAmount decimal.Decimal
	Currency       string
	StartsAt       time.Time
	EndsAt         time.Time
	Activate       bool
	CreatedBy      string
}

// OfferService manages the offer lifecycle. It never touches usage_count.
type OfferService struct {
	base
}

func NewOfferService(d Deps) *OfferService {
	return &OfferService{base: newBase(d)}
}

func (s *OfferService) CreateOffer(ctx context.Context, req CreateOfferRequest) (*models.Offer, error) {
	if err := validateOffer(req); err != nil {
		return nil, err
	}

	now := s.now()
	offer := &models.Offer{
		ID:             uuid.NewString(),
		Title:          strings.TrimSpace(req.Title),
		Status:         models.OfferStatusDraft,
		PerUserLimit:   req.PerUserLimit,
		GlobalLimit:    req.GlobalLimit,
		CashbackAmount: req.CashbackAmount,
		Currency:       strings.ToUpper(req.Currency),
		StartsAt:       req.StartsAt.UTC(),
		EndsAt:         req.EndsAt.UTC(),
		CreatedBy:      req.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if offer.Currency == "" {
		offer.Currency = s.currency
	}
	if req.Activate {
		offer.Status = models.OfferStatusActive
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO offers
		(id, title, status, per_user_limit, global_limit, usage_count, cashback_amount,
		 currency, starts_at, ends_at, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $9, $10, $11, $11)`,
		offer.ID, offer.Title, string(offer.Status), offer.PerUserLimit, offer.GlobalLimit, offer.CashbackAmount,
		offer.Currency, offer.StartsAt, offer.EndsAt, offer.CreatedBy, now)
	if err != nil {
		return nil, fmt.Errorf("insert offer: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"offer_id":   offer.ID,
		"status":     offer.Status,
		"created_by": offer.CreatedBy,
	}).Info("offer created")
	return offer, nil
}

func (s *OfferService) GetOffer(ctx context.Context, offerID string) (*models.Offer, error) {
	if _, err := uuid.Parse(offerID); err != nil {
		return nil, fmt.Errorf("%w: offer %s", ErrNotFound, offerID)
	}
	offer, err := scanOffer(s.db.QueryRowContext(ctx, `
		SELECT `+offerColumns+`
		FROM offers
		WHERE id = $1`, offerID))
	if err != nil {
		return nil, notFoundOr(err, "offer", offerID)
	}
	return offer, nil
}

// SetStatus moves an offer through its lifecycle under the same row lock
// redemptions take, so a redemption never sees a half-applied change.
func (s *OfferService) SetStatus(ctx context.Context, offerID string, status models.OfferStatus) (*models.Offer, error) {
	if !status.Valid() {
		return nil, invalidf("unknown offer status %q", status)
	}

	var offer *models.Offer
	err := s.tx.Run(ctx, func(tx *sql.Tx) error {
		var err error
		offer, err = lockOffer(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if !offer.Status.CanTransition(status) {
			return invalidf("offer %s cannot move from %s to %s", offer.ID, offer.Status, status)
		}

		now := s.now()
		_, err = tx.ExecContext(ctx, `
			UPDATE offers SET status = $1, updated_at = $2 WHERE id = $3`,
			string(status), now, offer.ID)
		if err != nil {
			return fmt.Errorf("update offer status: %w", err)
		}
		offer.Status = status
		offer.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:    events.TypeOfferStatusChange,
		OfferID: offer.ID,
		Status:  string(offer.Status),
	})
	return offer, nil
}

// ExpireDue marks active and paused offers whose window has closed as expired.
func (s *OfferService) ExpireDue(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE offers
		SET status = 'expired', updated_at = $1
		WHERE status IN ('active', 'paused') AND ends_at < $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire offers: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.WithField("count", n).Info("expired offers past their window")
	}
	return n, nil
}

// RunExpiry calls ExpireDue every interval until ctx is done.
func (s *OfferService) RunExpiry(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireDue(ctx); err != nil {
				s.log.WithError(err).Error("offer expiry sweep failed")
			}
		}
	}
}

func validateOffer(req CreateOfferRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return invalidf("title is required")
	}
	if strings.TrimSpace(req.CreatedBy) == "" {
		return invalidf("created_by is required")
	}
	if req.PerUserLimit != nil && *req.PerUserLimit <= 0 {
		return invalidf("per_user_limit must be positive")
	}
	if req.GlobalLimit != nil && *req.GlobalLimit <= 0 {
		return invalidf("global_limit must be positive")
	}
	if req.CashbackAmount.IsNegative() {
		return invalidf("cashback_amount must not be negative")
	}
	if !fitsMoneyScale(req.CashbackAmount) {
		return invalidf("cashback_amount %s has more than %d decimal places", req.CashbackAmount, moneyScale)
	}
	if req.Currency != "" && len(req.Currency) != 3 {
		return invalidf("currency must be a 3-letter code")
	}
	if !req.EndsAt.After(req.StartsAt) {
		return invalidf("ends_at must be after starts_at")
	}
	return nil
}
