package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1_048_576

type PaymentCrediter interface {
	CreditFromPayment(ctx context.Context, n services.PaymentNotification) (*services.PaymentResult, error)
}

type WalletAdjuster interface {
	AdminAdjust(ctx context.Context, adj services.AdminAdjustment) (*models.LedgerEntry, error)
}

type OfferRedeemer interface {
	Redeem(ctx context.Context, req services.RedeemRequest) (*services.RedemptionResult, error)
}

type OfferManager interface {
	CreateOffer(ctx context.Context, req services.CreateOfferRequest) (*models.Offer, error)
	SetStatus(ctx context.Context, offerID string, status models.OfferStatus) (*models.Offer, error)
	GetOffer(ctx context.Context, offerID string) (*models.Offer, error)
}

type CashbackRedeemer interface {
	Redeem(ctx context.Context, ownerID string, amount decimal.Decimal) (*services.CashbackRedemption, error)
}

type AccountReader interface {
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	ListEntries(ctx context.Context, accountID string, limit int, before *time.Time) ([]models.LedgerEntry, error)
	Reconcile(ctx context.Context, accountID string) (*models.Reconciliation, error)
}

// decodeJSON reads exactly one JSON object from the body into dst and
// validates it. It writes the error response itself and reports false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v *services.ValidationHelper, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := v.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
