package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruralpay/ledger/internal/middleware"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/shopspring/decimal"
)

type OfferHandler struct {
	offers    OfferManager
	redeemer  OfferRedeemer
	validator *services.ValidationHelper
}

func NewOfferHandler(offers OfferManager, redeemer OfferRedeemer) *OfferHandler {
	return &OfferHandler{
		offers:    offers,
		redeemer:  redeemer,
		validator: services.NewValidationHelper(),
	}
}

type createOfferRequest struct {
	Title          string          `json:"title" validate:"required,max=200"`
	PerUserLimit   *int            `json:"perUserLimit" validate:"omitempty,gt=0"`
	GlobalLimit    *int            `json:"globalLimit" validate:"omitempty,gt=0"`
	CashbackAmount decimal.Decimal `json:"cashbackAmount"`
	Currency       string          `json:"currency" validate:"omitempty,len=3"`
	StartsAt       time.Time       `json:"startsAt" validate:"required"`
	EndsAt         time.Time       `json:"endsAt" validate:"required"`
	Activate       bool            `json:"activate"`
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft active paused expired cancelled"`
}

type redeemRequest struct {
	Price             decimal.Decimal `json:"price"`
	Discount          decimal.Decimal `json:"discount"`
	OperatorProductID string          `json:"operatorProductId" validate:"required_without=SupplierMappingID,excluded_with=SupplierMappingID"`
	SupplierMappingID string          `json:"supplierMappingId" validate:"required_without=OperatorProductID,excluded_with=OperatorProductID"`
}

func (h *OfferHandler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var req createOfferRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	offer, err := h.offers.CreateOffer(r.Context(), services.CreateOfferRequest{
		Title:          req.Title,
		PerUserLimit:   req.PerUserLimit,
		GlobalLimit:    req.GlobalLimit,
		CashbackAmount: req.CashbackAmount,
		Currency:       req.Currency,
		StartsAt:       req.StartsAt,
		EndsAt:         req.EndsAt,
		Activate:       req.Activate,
		CreatedBy:      middleware.UserID(r.Context()),
	})
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, offer)
}

func (h *OfferHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	offer, err := h.offers.SetStatus(r.Context(), chi.URLParam(r, "offerId"), models.OfferStatus(req.Status))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

func (h *OfferHandler) GetOffer(w http.ResponseWriter, r *http.Request) {
	offer, err := h.offers.GetOffer(r.Context(), chi.URLParam(r, "offerId"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

// Redeem consumes one unit of the offer for the calling user.
func (h *OfferHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.UserID(r.Context())
	if actorID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req redeemRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.redeemer.Redeem(r.Context(), services.RedeemRequest{
		OfferID:           chi.URLParam(r, "offerId"),
		ActorID:           actorID,
		PricePaid:         req.Price,
		Discount:          req.Discount,
		OperatorProductID: req.OperatorProductID,
		SupplierMappingID: req.SupplierMappingID,
	})
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":       true,
		"redemption":    result.Redemption,
		"usageCount":    result.UsageCount,
		"cashbackEntry": result.CashbackEntry,
	})
}
