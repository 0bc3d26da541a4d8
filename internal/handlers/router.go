package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mW "github.com/ruralpay/ledger/internal/middleware"
)

type RouterConfig struct {
	Webhooks       *WebhookHandler
	Wallets        *WalletHandler
	Offers         *OfferHandler
	Accounts       *AccountHandler
	JWTSecret      string
	RequestTimeout time.Duration
	DB             *sql.DB
	// AllowedOrigins lists the CORS origins. Empty allows any origin; requests
	// authenticate with bearer tokens, so cookies are never shared.
	AllowedOrigins []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chiMiddleware.Timeout(cfg.RequestTimeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Signature"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.DB != nil {
			if err := cfg.DB.PingContext(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Providers authenticate with X-Signature, not a user token.
		r.Post("/webhooks/payments/{provider}", cfg.Webhooks.HandlePayment)

		r.Group(func(r chi.Router) {
			r.Use(mW.Auth(cfg.JWTSecret))

			r.Get("/offers/{offerId}", cfg.Offers.GetOffer)
			r.Post("/offers/{offerId}/redeem", cfg.Offers.Redeem)
			r.Post("/cashback/redeem", cfg.Accounts.RedeemCashback)

			r.Get("/accounts/{accountId}", cfg.Accounts.GetAccount)
			r.Get("/accounts/{accountId}/entries", cfg.Accounts.ListEntries)
			r.With(mW.RequireRole(mW.RoleAdmin)).Get("/accounts/{accountId}/reconcile", cfg.Accounts.Reconcile)

			r.Route("/admin", func(r chi.Router) {
				r.Use(mW.RequireRole(mW.RoleAdmin))

				r.Post("/wallets/{accountId}/adjust", cfg.Wallets.AdminAdjust)
				r.Post("/offers", cfg.Offers.CreateOffer)
				r.Put("/offers/{offerId}/status", cfg.Offers.SetStatus)
			})
		})
	})

	return r
}
