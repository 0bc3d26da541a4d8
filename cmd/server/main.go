package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/database"
	"github.com/ruralpay/ledger/internal/events"
	"github.com/ruralpay/ledger/internal/handlers"
	"github.com/ruralpay/ledger/internal/logger"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/sirupsen/logrus"
)

const offerExpiryInterval = time.Minute

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(ctx, cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer db.Close()

	if err := database.EnsureSchema(ctx, db); err != nil {
		log.WithError(err).Fatal("failed to apply schema")
	}

	if cfg.Webhook.AllowUnsigned {
		log.Warn("unsigned payment webhooks are accepted, do not run this in production")
	}

	publisher, closePublisher := newPublisher(ctx, cfg, log)
	defer closePublisher()

	deps := services.Deps{
		DB:          db,
		Log:         log,
		Publisher:   publisher,
		LockTimeout: cfg.Ledger.LockTimeout,
		Currency:    cfg.Ledger.Currency,
	}

	ledgerService := services.NewLedgerService(deps)
	walletService := services.NewWalletService(deps, ledgerService, services.NewIdempotencyGuard())
	capEnforcer := services.NewCapEnforcer(deps)
	redemptionService := services.NewRedemptionService(deps, capEnforcer, ledgerService, services.NewSQLEligibility(db))
	offerService := services.NewOfferService(deps)
	cashbackService := services.NewCashbackService(deps, ledgerService)

	go offerService.RunExpiry(ctx, offerExpiryInterval)

	router := handlers.NewRouter(handlers.RouterConfig{
		Webhooks:       handlers.NewWebhookHandler(walletService, cfg.Webhook.Secret, cfg.Webhook.AllowUnsigned, log),
		Wallets:        handlers.NewWalletHandler(walletService),
		Offers:         handlers.NewOfferHandler(offerService, redemptionService),
		Accounts:       handlers.NewAccountHandler(ledgerService, cashbackService),
		JWTSecret:      cfg.JWT.SecretKey,
		RequestTimeout: cfg.Server.RequestTimeout,
		DB:             db,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.WithField("port", cfg.Server.Port).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()

	log.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
		os.Exit(1)
	}
	log.Info("server stopped")
}

// newPublisher picks the event sink from config. An unreachable broker falls
// back to dropping events; committed ledger state never depends on it.
func newPublisher(ctx context.Context, cfg *config.Config, log *logrus.Logger) (events.Publisher, func()) {
	switch cfg.Events.Driver {
	case "redis":
		client := database.InitRedis(ctx, cfg.Redis, log)
		if client == nil {
			break
		}
		return events.NewRedisPublisher(client, cfg.Events.RedisKey), func() { client.Close() }
	case "amqp":
		p, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		if err != nil {
			log.WithError(err).Warn("rabbitmq unavailable, events will be dropped")
			break
		}
		return p, func() { p.Close() }
	case "none", "":
	default:
		log.WithField("driver", cfg.Events.Driver).Warn("unknown events driver, events will be dropped")
	}
	return events.NopPublisher{}, func() {}
}
