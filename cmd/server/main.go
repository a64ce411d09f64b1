package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/cinema-booking/internal/clock"
	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/logging"
	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/observability"
	"github.com/iliyamo/cinema-booking/internal/payment"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/router"
	"github.com/iliyamo/cinema-booking/internal/service"
)

const serviceName = "cinema-booking"

func main() {
	_ = godotenv.Load() // a missing .env is fine, the environment may be set already
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp := observability.ConfigureTraceProvider(serviceName)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	db, err := database.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("open database")
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		logrus.WithError(err).Fatal("migrate database")
	}

	rdb := config.NewRedisClient() // nil when Redis is unreachable
	if rdb != nil {
		defer rdb.Close()
	}

	events, err := queue.NewPublisher(queue.Options{
		Broker:       cfg.Events.Broker,
		AMQPURL:      cfg.Events.AMQPURL,
		Queue:        cfg.Events.Queue,
		KafkaBrokers: cfg.Events.KafkaBrokers,
		TopicPrefix:  cfg.Events.TopicPrefix,
	})
	if err != nil {
		logrus.WithError(err).Fatal("create event publisher")
	}
	defer events.Close()

	clk := clock.Real{}
	gw := payment.New(payment.Config{
		Provider:   cfg.Gateway.Provider,
		BaseURL:    cfg.Gateway.BaseURL,
		MerchantID: cfg.Gateway.MerchantID,
		Secret:     cfg.Gateway.Secret,
		ReturnURL:  cfg.Gateway.ReturnURL,
	})
	var locker service.Locker
	if rdb != nil {
		locker = service.NewRedisLocker(rdb)
	}

	ledger := service.NewLedger(db, clk, cfg.Booking.HoldTTL)
	booking := service.NewBookingService(db, ledger, gw, events, clk, service.BookingOptions{
		Horizon:    cfg.Booking.Horizon,
		PointValue: cfg.Booking.PointValue,
	})
	reconciler := service.NewReconciler(db, ledger, gw, events, clk, []byte(cfg.Booking.FingerprintSecret))
	sweeper := service.NewSweeper(db, ledger, events, locker, clk, cfg.Booking.SweepInterval)
	loyalty := service.NewLoyaltyService(db, clk)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(serviceName))
	e.Use(middleware.RequestLog())
	router.RegisterRoutes(e, router.Handlers{
		DB:          db,
		Reservation: handler.NewReservationHandler(ledger, clk),
		Order:       handler.NewOrderHandler(booking),
		Payment:     handler.NewPaymentHandler(reconciler),
		Loyalty:     handler.NewLoyaltyHandler(loyalty),
		Admin:       handler.NewAdminHandler(reconciler, sweeper, loyalty),
	}, router.Options{
		JWTSecret: cfg.JWTSecret,
		RateLimit: cfg.RateLimit,
		Cache:     cfg.Cache,
		Redis:     rdb,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logrus.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "db": cfg.DB.Driver}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(ctx)
	})
	if cfg.Events.ConsumerEnabled {
		g.Go(func() error {
			return queue.NewAuditConsumer(cfg.Events.AMQPURL, cfg.Events.Queue, cfg.Events.AuditLogPath).Run(ctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logrus.WithError(err).Fatal("server stopped")
	}
	logrus.Info("shut down cleanly")
}
