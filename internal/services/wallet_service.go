package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ruralpay/ledger/internal/events"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PaymentNotification is an inbound provider webhook after transport decoding.
type PaymentNotification struct {
	Provider    string
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	Destination string
	Timestamp   time.Time
	RawPayload  json.RawMessage
}

type PaymentResult struct {
	EventID         string
	Duplicate       bool
	LinkedAccountID *string
	Entry           *models.LedgerEntry
}

type AdminAdjustment struct {
	AccountID string
	Amount    decimal.Decimal
	Direction models.Direction
	AdminID   string
	Note      string
}

// WalletService moves money in and out of wallets: provider payments, admin
// adjustments, optimistic purchase debits and their refunds.
type WalletService struct {
	base
	ledger *LedgerService
	guard  *IdempotencyGuard
}

func NewWalletService(d Deps, ledger *LedgerService, guard *IdempotencyGuard) *WalletService {
	return &WalletService{
		base:   newBase(d),
		ledger: ledger,
		guard:  guard,
	}
}

// CreditFromPayment records the event and credits the matching wallet at most
// once per (provider, reference). Redeliveries succeed with Duplicate set.
// An event with no matching wallet is kept unlinked for manual reconciliation.
func (s *WalletService) CreditFromPayment(ctx context.Context, n PaymentNotification) (*PaymentResult, error) {
	if err := validateNotification(n); err != nil {
		return nil, err
	}

	event := &models.ExternalPaymentEvent{
		Provider:          n.Provider,
		ProviderReference: n.Reference,
		Amount:            n.Amount,
		Currency:          strings.ToUpper(n.Currency),
		Destination:       strings.TrimSpace(n.Destination),
		RawPayload:        n.RawPayload,
		ReceivedAt:        s.now(),
	}

	result := &PaymentResult{}
	err := s.tx.Run(ctx, func(tx *sql.Tx) error {
		accountID, err := s.resolveDestinationTx(ctx, tx, event)
		if err != nil {
			return err
		}
		event.LinkedAccountID = accountID

		ingest, err := s.guard.IngestTx(ctx, tx, event)
		if err != nil {
			return err
		}
		result.EventID = ingest.EventID
		result.LinkedAccountID = ingest.LinkedAccountID
		if !ingest.IsNew {
			result.Duplicate = true
			return nil
		}
		if ingest.LinkedAccountID == nil {
			return nil
		}

		entry, err := s.ledger.ApplyEntryTx(ctx, tx, EntryRequest{
			AccountID:   *ingest.LinkedAccountID,
			Direction:   models.DirectionCredit,
			Amount:      event.Amount,
			Reason:      models.ReasonDeposit,
			RelatedType: models.RelatedPaymentEvent,
			RelatedID:   ingest.EventID,
			Metadata: models.Metadata{
				"provider":  event.Provider,
				"reference": event.ProviderReference,
			},
		})
		if err != nil {
			return err
		}
		result.Entry = entry
		return s.guard.LinkEntryTx(ctx, tx, ingest.EventID, entry.ID)
	})
	if err != nil {
		s.audit.LogError(n.Reference, n.Destination, err)
		return nil, err
	}

	linked := ""
	if result.LinkedAccountID != nil {
		linked = *result.LinkedAccountID
	}
	s.audit.LogPaymentEvent(result.EventID, event.Provider, event.ProviderReference, linked, event.Amount, result.Duplicate)

	switch {
	case result.Duplicate:
		s.log.WithFields(logrus.Fields{
			"provider":  event.Provider,
			"reference": event.ProviderReference,
			"event_id":  result.EventID,
		}).Info("duplicate payment notification ignored")
	case result.Entry != nil:
		s.publishEntry(ctx, result.Entry)
	default:
		s.log.WithFields(logrus.Fields{
			"provider":    event.Provider,
			"reference":   event.ProviderReference,
			"destination": event.Destination,
		}).Warn("payment event has no matching wallet, kept for reconciliation")
		s.publish(ctx, events.Event{
			Type:      events.TypePaymentUnlinked,
			Amount:    event.Amount,
			Provider:  event.Provider,
			Reference: event.ProviderReference,
		})
	}
	return result, nil
}

// AdminAdjust credits or debits an account on behalf of an administrator.
func (s *WalletService) AdminAdjust(ctx context.Context, adj AdminAdjustment) (*models.LedgerEntry, error) {
	if strings.TrimSpace(adj.AdminID) == "" {
		return nil, invalidf("admin id is required")
	}

	reason := models.ReasonAdminCredit
	switch adj.Direction {
	case models.DirectionCredit:
	case models.DirectionDebit:
		reason = models.ReasonAdminDebit
	default:
		return nil, invalidf("unknown direction %q", adj.Direction)
	}

	var metadata models.Metadata
	if adj.Note != "" {
		metadata = models.Metadata{"note": adj.Note}
	}

	return s.ledger.ApplyEntry(ctx, EntryRequest{
		AccountID:   adj.AccountID,
		Direction:   adj.Direction,
		Amount:      adj.Amount,
		Reason:      reason,
		RelatedType: models.RelatedAdmin,
		RelatedID:   adj.AdminID,
		Metadata:    metadata,
	})
}

// Debit takes payment up front for a fulfillment that may still fail. Refund
// reverses it.
func (s *WalletService) Debit(ctx context.Context, accountID string, amount decimal.Decimal, paymentID string) (*models.LedgerEntry, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, invalidf("payment id is required")
	}
	return s.ledger.ApplyEntry(ctx, EntryRequest{
		AccountID:   accountID,
		Direction:   models.DirectionDebit,
		Amount:      amount,
		Reason:      models.ReasonPurchase,
		RelatedType: models.RelatedPayment,
		RelatedID:   paymentID,
	})
}

// Refund credits back part or all of a purchase debit. Refunds for one payment
// never exceed what was debited for it.
func (s *WalletService) Refund(ctx context.Context, accountID string, amount decimal.Decimal, paymentID string) (*models.LedgerEntry, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, invalidf("payment id is required")
	}
	req := EntryRequest{
		AccountID:   accountID,
		Direction:   models.DirectionCredit,
		Amount:      amount,
		Reason:      models.ReasonReversal,
		RelatedType: models.RelatedPayment,
		RelatedID:   paymentID,
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	var entry *models.LedgerEntry
	err := s.tx.Run(ctx, func(tx *sql.Tx) error {
		account, err := s.ledger.lockAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}

		var debited, refunded decimal.Decimal
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(amount) FILTER (WHERE direction = 'debit' AND reason = 'purchase'), 0),
			       COALESCE(SUM(amount) FILTER (WHERE direction = 'credit' AND reason = 'reversal'), 0)
			FROM ledger_entries
			WHERE account_id = $1 AND related_type = $2 AND related_id = $3`,
			accountID, models.RelatedPayment, paymentID).Scan(&debited, &refunded)
		if err != nil {
			return fmt.Errorf("load payment totals: %w", err)
		}

		if !debited.IsPositive() {
			return invalidf("no debit found for payment %s", paymentID)
		}
		if refunded.Add(amount).GreaterThan(debited) {
			return invalidf("refund of %s exceeds remaining %s for payment %s",
				amount.StringFixed(2), debited.Sub(refunded).StringFixed(2), paymentID)
		}

		entry, err = s.ledger.applyToLocked(ctx, tx, account, req)
		return err
	})
	if err != nil {
		s.ledger.logFailure(req, err)
		return nil, err
	}

	s.publishEntry(ctx, entry)
	return entry, nil
}

// resolveDestinationTx matches the event's destination to a wallet by account id
// or owner id. It returns nil when there is no usable match.
func (s *WalletService) resolveDestinationTx(ctx context.Context, tx *sql.Tx, event *models.ExternalPaymentEvent) (*string, error) {
	if event.Destination == "" {
		return nil, nil
	}

	var id, currency string
	err := tx.QueryRowContext(ctx, `
		SELECT id, currency
		FROM accounts
		WHERE kind = 'wallet' AND (id::text = $1 OR owner_id = $1)
		LIMIT 1`, event.Destination).Scan(&id, &currency)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve destination: %w", err)
	}

	if !strings.EqualFold(currency, event.Currency) {
		s.log.WithFields(logrus.Fields{
			"account_id":     id,
			"account_ccy":    currency,
			"event_currency": event.Currency,
		}).Warn("payment currency does not match wallet, leaving unlinked")
		return nil, nil
	}
	return &id, nil
}

func validateNotification(n PaymentNotification) error {
	if strings.TrimSpace(n.Provider) == "" || strings.TrimSpace(n.Reference) == "" {
		return invalidf("provider and reference are required")
	}
	if !n.Amount.IsPositive() {
		return invalidf("amount must be greater than zero")
	}
	if !fitsMoneyScale(n.Amount) {
		return invalidf("amount %s has more than %d decimal places", n.Amount, moneyScale)
	}
	if len(strings.TrimSpace(n.Currency)) != 3 {
		return invalidf("currency must be a 3-letter code")
	}
	return nil
}
