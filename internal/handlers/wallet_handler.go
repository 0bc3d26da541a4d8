package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruralpay/ledger/internal/middleware"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/shopspring/decimal"
)

type WalletHandler struct {
	wallets   WalletAdjuster
	validator *services.ValidationHelper
}

func NewWalletHandler(wallets WalletAdjuster) *WalletHandler {
	return &WalletHandler{
		wallets:   wallets,
		validator: services.NewValidationHelper(),
	}
}

type adjustRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Direction string          `json:"direction" validate:"required,oneof=credit debit"`
	Note      string          `json:"note" validate:"max=256"`
}

// AdminAdjust credits or debits a wallet on behalf of the calling admin.
func (h *WalletHandler) AdminAdjust(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.UserID(r.Context())
	if adminID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req adjustRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	entry, err := h.wallets.AdminAdjust(r.Context(), services.AdminAdjustment{
		AccountID: chi.URLParam(r, "accountId"),
		Amount:    req.Amount,
		Direction: models.Direction(req.Direction),
		AdminID:   adminID,
		Note:      req.Note,
	})
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"entry":   entry,
		"balance": entry.BalanceAfter,
	})
}
