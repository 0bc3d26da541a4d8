package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruralpay/ledger/internal/middleware"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/shopspring/decimal"
)

// AccountHandler serves balances, statements and cashback redemption. Users
// only see their own accounts; admins see all.
type AccountHandler struct {
	accounts  AccountReader
	cashback  CashbackRedeemer
	validator *services.ValidationHelper
}

func NewAccountHandler(accounts AccountReader, cashback CashbackRedeemer) *AccountHandler {
	return &AccountHandler{
		accounts:  accounts,
		cashback:  cashback,
		validator: services.NewValidationHelper(),
	}
}

type cashbackRedeemRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := h.visibleAccount(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// ListEntries returns a page of entries, newest first. ?before takes the
// createdAt of the last entry of the previous page.
func (h *AccountHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	account, ok := h.visibleAccount(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			services.SendErrorResponse(w, "limit must be a positive integer", http.StatusBadRequest, nil)
			return
		}
		limit = n
	}

	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			services.SendErrorResponse(w, "before must be an RFC 3339 timestamp", http.StatusBadRequest, nil)
			return
		}
		before = &t
	}

	entries, err := h.accounts.ListEntries(r.Context(), account.ID, limit, before)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accountId": account.ID,
		"entries":   entries,
	})
}

func (h *AccountHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rec, err := h.accounts.Reconcile(r.Context(), chi.URLParam(r, "accountId"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// RedeemCashback moves the caller's cashback into their wallet.
func (h *AccountHandler) RedeemCashback(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.UserID(r.Context())
	if ownerID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req cashbackRedeemRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	out, err := h.cashback.Redeem(r.Context(), ownerID, req.Amount)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"cashbackBalance": out.CashbackEntry.BalanceAfter,
		"walletBalance":   out.WalletEntry.BalanceAfter,
	})
}

// visibleAccount loads the path account and hides other users' accounts as not found.
func (h *AccountHandler) visibleAccount(w http.ResponseWriter, r *http.Request) (*models.Account, bool) {
	accountID := chi.URLParam(r, "accountId")
	account, err := h.accounts.GetAccount(r.Context(), accountID)
	if err != nil {
		services.SendServiceError(w, err)
		return nil, false
	}

	ctx := r.Context()
	if middleware.Role(ctx) != middleware.RoleAdmin && account.OwnerID != middleware.UserID(ctx) {
		services.SendServiceError(w, fmt.Errorf("%w: account %s", services.ErrNotFound, accountID))
		return nil, false
	}
	return account, true
}
