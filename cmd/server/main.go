package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/workshop-booking/internal/config"
	"github.com/iliyamo/workshop-booking/internal/database"
	"github.com/iliyamo/workshop-booking/internal/handler"
	"github.com/iliyamo/workshop-booking/internal/middleware"
	"github.com/iliyamo/workshop-booking/internal/payment"
	"github.com/iliyamo/workshop-booking/internal/queue"
	"github.com/iliyamo/workshop-booking/internal/repository"
	"github.com/iliyamo/workshop-booking/internal/router"
	"github.com/iliyamo/workshop-booking/internal/service"
	"github.com/iliyamo/workshop-booking/internal/worker"
)

func main() {
	cfg := config.Load()
	config.ConfigureLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logrus.WithError(err).Fatal("open database")
	}
	defer db.Close()
	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := database.Migrate(migrateCtx, db); err != nil {
		cancel()
		logrus.WithError(err).Fatal("migrate database")
	}
	cancel()

	// nil when Redis is unreachable; rate limit, cache and dedup switch off
	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	workshops := repository.NewWorkshopRepo(db)
	sessions := repository.NewSessionRepo(db)
	purchases := repository.NewPurchaseRepo(db)
	intents := repository.NewCheckoutIntentRepo(db)

	base := strings.TrimRight(cfg.BaseURL, "/")
	stripe := payment.NewStripe(payment.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		SuccessURL:    base + "/home/upcoming?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     base + "/home",
	})
	publisher := queue.NewPublisher(cfg.RabbitURL)

	registration := service.NewRegistrationService(service.RegistrationDeps{
		DB:          db,
		Sessions:    sessions,
		Workshops:   workshops,
		Purchases:   purchases,
		Intents:     intents,
		Users:       users,
		Gateway:     stripe,
		Publisher:   publisher,
		Currency:    cfg.Currency,
		CheckoutTTL: cfg.CheckoutTTL,
	})
	deps := service.SettlementDeps{
		DB:        db,
		Verifier:  stripe,
		Sessions:  sessions,
		Purchases: purchases,
		Intents:   intents,
		Publisher: publisher,
	}
	// a typed nil *Deduper must not become a non-nil interface
	if d := payment.NewDeduper(rdb, cfg.WebhookDedupTTL); d != nil {
		deps.Dedup = d
	}
	settlement := service.NewSettlementService(deps)

	go func() {
		if err := queue.NewConsumer(cfg.RabbitURL, "").Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logrus.WithError(err).Error("registration consumer stopped")
		}
	}()
	go worker.NewReconciler(intents, purchases, cfg.ReconcileInterval, cfg.ReconcileGrace).Start(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLogger())
	e.Use(echomw.Recover())

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterBooking(e,
		handler.NewRegistrationHandler(registration),
		handler.NewMeHandler(sessions, purchases),
		cfg.JWTSecret, config.LoadRateLimitConfig(), rdb)
	router.RegisterWebhook(e, handler.NewWebhookHandler(settlement))
	router.RegisterCatalog(e, handler.NewCatalogHandler(workshops, sessions), config.LoadCacheConfig(), rdb)
	router.RegisterAdmin(e, handler.NewAdminHandler(workshops, sessions), cfg.JWTSecret)

	go func() {
		addr := ":" + cfg.Port
		logrus.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("graceful shutdown failed")
	}
}
