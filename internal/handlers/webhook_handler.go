package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const signatureHeader = "X-Signature"

// WebhookHandler accepts payment notifications from providers. Redelivered
// notifications get the same 200 response as the first delivery.
//
// Providers without a signing secret are rejected unless allowUnsigned is set,
// which is meant for local development only.
type WebhookHandler struct {
	payments      PaymentCrediter
	secret        func(provider string) string
	allowUnsigned bool
	validator     *services.ValidationHelper
	log           *logrus.Logger
}

func NewWebhookHandler(payments PaymentCrediter, secret func(provider string) string, allowUnsigned bool, log *logrus.Logger) *WebhookHandler {
	if secret == nil {
		secret = func(string) string { return "" }
	}
	return &WebhookHandler{
		payments:      payments,
		secret:        secret,
		allowUnsigned: allowUnsigned,
		validator:     services.NewValidationHelper(),
		log:           log,
	}
}

type paymentWebhook struct {
	Reference   string          `json:"reference" validate:"required,max=128"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" validate:"required,len=3"`
	Destination string          `json:"destination" validate:"required,max=128"`
	Timestamp   time.Time       `json:"timestamp"`
}

func (h *WebhookHandler) HandlePayment(w http.ResponseWriter, r *http.Request) {
	provider := strings.ToLower(chi.URLParam(r, "provider"))

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	switch secret := h.secret(provider); {
	case secret != "":
		if !validSignature(body, r.Header.Get(signatureHeader), secret) {
			h.log.WithField("provider", provider).Warn("webhook signature mismatch")
			services.SendErrorResponse(w, "Invalid signature", http.StatusUnauthorized, nil)
			return
		}
	case !h.allowUnsigned:
		h.log.WithField("provider", provider).Warn("webhook from provider without a signing secret")
		services.SendErrorResponse(w, "Unknown payment provider", http.StatusNotFound, nil)
		return
	}

	// Providers add fields over time, so unknown fields are accepted here.
	var req paymentWebhook
	if err := json.Unmarshal(body, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.payments.CreditFromPayment(r.Context(), services.PaymentNotification{
		Provider:    provider,
		Reference:   req.Reference,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Destination: req.Destination,
		Timestamp:   req.Timestamp,
		RawPayload:  json.RawMessage(body),
	})
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	message := "payment recorded"
	switch {
	case result.Duplicate:
		message = "payment already processed"
	case result.LinkedAccountID == nil:
		message = "payment recorded, no matching wallet"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"message":         message,
		"eventId":         result.EventID,
		"duplicate":       result.Duplicate,
		"linkedAccountId": result.LinkedAccountID,
	})
}

// Sign returns the hex HMAC-SHA256 of body, as providers send in X-Signature.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(body []byte, signature, secret string) bool {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return false
	}
	want, _ := hex.DecodeString(Sign(body, secret))
	return hmac.Equal(got, want)
}
