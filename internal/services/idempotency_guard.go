package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/models"
)

// IngestResult reports whether a payment event was seen for the first time.
type IngestResult struct {
	IsNew           bool
	EventID         string
	LinkedAccountID *string
	LedgerEntryID   *string
}

// IdempotencyGuard deduplicates provider notifications on (provider, reference).
// The unique constraint is the only mechanism; there is no pre-check.
type IdempotencyGuard struct{}

func NewIdempotencyGuard() *IdempotencyGuard {
	return &IdempotencyGuard{}
}

// IngestTx inserts the event inside tx. A concurrent insert of the same key
// waits for the first transaction and then reports a duplicate.
func (g *IdempotencyGuard) IngestTx(ctx context.Context, tx *sql.Tx, event *models.ExternalPaymentEvent) (*IngestResult, error) {
	event.Provider = normalizeProvider(event.Provider)
	event.ProviderReference = strings.TrimSpace(event.ProviderReference)
	if event.Provider == "" || event.ProviderReference == "" {
		return nil, invalidf("provider and reference are required")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	var payload any
	if len(event.RawPayload) > 0 {
		payload = string(event.RawPayload)
	}

	var insertedID string
	err := tx.QueryRowContext(ctx, `
		INSERT INTO external_payment_events
		(id, provider, provider_reference, amount, currency, destination, raw_payload, received_at, linked_account_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (provider, provider_reference) DO NOTHING
		RETURNING id`,
		event.ID, event.Provider, event.ProviderReference, event.Amount, event.Currency,
		event.Destination, payload, event.ReceivedAt, event.LinkedAccountID,
	).Scan(&insertedID)

	switch {
	case err == nil:
		return &IngestResult{IsNew: true, EventID: insertedID, LinkedAccountID: event.LinkedAccountID}, nil
	case isNoRows(err):
		return g.existing(ctx, tx, event.Provider, event.ProviderReference)
	default:
		return nil, fmt.Errorf("insert payment event: %w", err)
	}
}

// LinkEntryTx records which ledger entry the event produced.
func (g *IdempotencyGuard) LinkEntryTx(ctx context.Context, tx *sql.Tx, eventID, entryID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE external_payment_events SET ledger_entry_id = $1 WHERE id = $2`,
		entryID, eventID)
	if err != nil {
		return fmt.Errorf("link payment event: %w", err)
	}
	return nil
}

func (g *IdempotencyGuard) existing(ctx context.Context, tx *sql.Tx, provider, reference string) (*IngestResult, error) {
	res := &IngestResult{}
	var linked, entry sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT id, linked_account_id, ledger_entry_id
		FROM external_payment_events
		WHERE provider = $1 AND provider_reference = $2`,
		provider, reference).Scan(&res.EventID, &linked, &entry)
	if err != nil {
		return nil, fmt.Errorf("load existing payment event: %w", err)
	}
	if linked.Valid {
		res.LinkedAccountID = &linked.String
	}
	if entry.Valid {
		res.LedgerEntryID = &entry.String
	}
	return res, nil
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
