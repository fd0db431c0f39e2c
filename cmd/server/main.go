package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iliyamo/museum-checkout/internal/config"
	"github.com/iliyamo/museum-checkout/internal/database"
	"github.com/iliyamo/museum-checkout/internal/handler"
	"github.com/iliyamo/museum-checkout/internal/metrics"
	"github.com/iliyamo/museum-checkout/internal/queue"
	"github.com/iliyamo/museum-checkout/internal/repository"
	"github.com/iliyamo/museum-checkout/internal/router"
	"github.com/iliyamo/museum-checkout/internal/service"
)

func main() {
	// .env is optional; real deployments set the variables directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("env: %v", err)
	}
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	txm := database.NewTxManager(db)

	rdb := config.NewRedisClient() // nil when unreachable
	if rdb != nil {
		defer rdb.Close()
	}

	ledger := repository.NewLedgerRepo(db)
	catalog := repository.NewCatalogRepo(db)
	orders := repository.NewOrderRepo(db)
	donations := repository.NewDonationRepo(db)
	memberships := repository.NewMembershipRepo(db)
	users := repository.NewUserRepo(db)
	notifications := repository.NewNotificationRepo(db)
	rsvps := repository.NewRSVPRepo(db)

	m := metrics.New(prometheus.DefaultRegisterer)
	pub := queue.NewPublisher(cfg.Checkout.RabbitURL)
	notifier := service.NewNotifier(ledger, notifications, pub, cfg.Checkout.LowStockThreshold, m)

	coord := service.NewCoordinator(txm, ledger, orders, donations, notifier, pub, m)
	checkoutSvc := service.NewCheckoutService(coord, catalog, memberships, users, donations,
		cfg.Checkout.TaxRate, cfg.BcryptCost)
	rsvpSvc := service.NewRSVPService(txm, ledger, catalog, memberships, rsvps, m)
	adminSvc := service.NewAdminService(txm, ledger, notifier, notifications)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(m.Middleware())

	router.Register(e, router.Deps{
		JWTSecret: cfg.JWTSecret,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Redis:     rdb,
		DB:        db,
		Checkout:  handler.NewCheckoutHandler(checkoutSvc, cfg.Checkout.Timeout),
		Events:    handler.NewEventHandler(rsvpSvc),
		Admin:     handler.NewAdminHandler(adminSvc),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Checkout.ConsumerEnabled {
		consumer := queue.NewConsumer(cfg.Checkout.RabbitURL, cfg.Checkout.NotificationLog)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("notify-consumer: stopped: %v", err)
			}
		}()
	}

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
