package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/events"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type RedeemRequest struct {
	OfferID           string
	ActorID           string
	PricePaid         decimal.Decimal
	Discount          decimal.Decimal
	OperatorProductID string
	SupplierMappingID string
}

type RedemptionResult struct {
	Redemption    *models.OfferRedemption
	UsageCount    int
	CashbackEntry *models.LedgerEntry
}

// RedemptionService redeems offers: eligibility first, then the capped
// consumption and any cashback accrual in a single transaction.
type RedemptionService struct {
	base
	caps        *CapEnforcer
	ledger      *LedgerService
	eligibility EligibilityChecker
}

func NewRedemptionService(d Deps, caps *CapEnforcer, ledger *LedgerService, eligibility EligibilityChecker) *RedemptionService {
	if eligibility == nil {
		eligibility = AllowAll{}
	}
	return &RedemptionService{
		base:        newBase(d),
		caps:        caps,
		ledger:      ledger,
		eligibility: eligibility,
	}
}

func (s *RedemptionService) Redeem(ctx context.Context, req RedeemRequest) (*RedemptionResult, error) {
	if err := validateRedeem(req); err != nil {
		return nil, err
	}

	eligible, err := s.eligibility.IsEligible(ctx, req.OfferID, req.ActorID)
	if err != nil {
		s.audit.LogError(req.OfferID, req.ActorID, err)
		return nil, fmt.Errorf("check eligibility: %w", err)
	}
	if !eligible {
		err := fmt.Errorf("%w: actor %s, offer %s", ErrNotEligible, req.ActorID, req.OfferID)
		s.audit.LogRejected(req.OfferID, req.ActorID, req.PricePaid, err)
		return nil, err
	}

	result := &RedemptionResult{}
	err = s.tx.Run(ctx, func(tx *sql.Tx) error {
		redemption, offer, err := s.caps.TryConsumeTx(ctx, tx, ConsumeRequest{
			OfferID:           req.OfferID,
			ActorID:           req.ActorID,
			PricePaid:         req.PricePaid,
			Discount:          req.Discount,
			OperatorProductID: req.OperatorProductID,
			SupplierMappingID: req.SupplierMappingID,
		})
		if err != nil {
			return err
		}
		result.Redemption = redemption
		result.UsageCount = offer.UsageCount

		if !offer.CashbackAmount.IsPositive() {
			return nil
		}
		entry, err := s.accrueCashbackTx(ctx, tx, offer, redemption)
		if err != nil {
			return err
		}
		result.CashbackEntry = entry
		redemption.CashbackEntryID = &entry.ID
		return nil
	})
	if err != nil {
		if IsBusinessRejection(err) {
			s.audit.LogRejected(req.OfferID, req.ActorID, req.PricePaid, err)
		} else {
			s.audit.LogError(req.OfferID, req.ActorID, err)
		}
		return nil, err
	}

	r := result.Redemption
	s.audit.LogRedemption(r.ID, r.OfferID, r.ActorID, r.PricePaid)
	s.log.WithFields(logrus.Fields{
		"offer_id":      r.OfferID,
		"actor_id":      r.ActorID,
		"redemption_id": r.ID,
		"usage_count":   result.UsageCount,
	}).Info("offer redeemed")

	s.publish(ctx, events.Event{
		Type:         events.TypeOfferRedeemed,
		OfferID:      r.OfferID,
		ActorID:      r.ActorID,
		RedemptionID: r.ID,
		Amount:       r.PricePaid,
		OccurredAt:   r.CreatedAt,
	})
	if result.CashbackEntry != nil {
		s.publishEntry(ctx, result.CashbackEntry)
	}
	return result, nil
}

// accrueCashbackTx credits the actor's cashback account, creating it on first use.
func (s *RedemptionService) accrueCashbackTx(ctx context.Context, tx *sql.Tx, offer *models.Offer, redemption *models.OfferRedemption) (*models.LedgerEntry, error) {
	account, err := s.ledger.EnsureAccountTx(ctx, tx, redemption.ActorID, models.AccountKindCashback, offer.Currency)
	if err != nil {
		return nil, err
	}

	entry, err := s.ledger.applyToLocked(ctx, tx, account, EntryRequest{
		AccountID:   account.ID,
		Direction:   models.DirectionCredit,
		Amount:      offer.CashbackAmount,
		Reason:      models.ReasonCashbackEarned,
		RelatedType: models.RelatedOfferRedemption,
		RelatedID:   redemption.ID,
		Metadata:    models.Metadata{"offer_id": offer.ID},
	})
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE offer_redemptions SET cashback_entry_id = $1 WHERE id = $2`,
		entry.ID, redemption.ID)
	if err != nil {
		return nil, fmt.Errorf("link cashback entry: %w", err)
	}
	return entry, nil
}

func validateRedeem(req RedeemRequest) error {
	if strings.TrimSpace(req.ActorID) == "" {
		return invalidf("actor id is required")
	}
	if strings.TrimSpace(req.OfferID) == "" {
		return invalidf("offer id is required")
	}
	if _, err := uuid.Parse(req.OfferID); err != nil {
		return fmt.Errorf("%w: offer %s", ErrNotFound, req.OfferID)
	}
	hasProduct := strings.TrimSpace(req.OperatorProductID) != ""
	hasMapping := strings.TrimSpace(req.SupplierMappingID) != ""
	if hasProduct == hasMapping {
		return invalidf("exactly one of operator_product_id or supplier_mapping_id is required")
	}
	if req.PricePaid.IsNegative() || req.Discount.IsNegative() {
		return invalidf("price and discount must not be negative")
	}
	if !fitsMoneyScale(req.PricePaid) || !fitsMoneyScale(req.Discount) {
		return invalidf("price and discount take at most %d decimal places", moneyScale)
	}
	return nil
}
