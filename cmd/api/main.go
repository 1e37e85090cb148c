package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/logx"
	"github.com/ariefcatur/go-storefront-orders/internal/metrics"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/payment"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logx.Setup(cfg.LogLevel, cfg.LogPretty, cfg.ServiceName)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// DB
	if cfg.AutoMigrate {
		if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: cfg.DBMaxConns})
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	cache := &redisx.Store{RDB: rdb}

	// Kafka producer; loop berhenti lewat Close, bukan ctx, supaya sisa event ter-flush
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(context.Background())

	// Services
	m := metrics.NewServerMetrics(prometheus.DefaultRegisterer, cfg.ServiceName)
	svc := orders.NewService(&orders.Repo{DB: db}, prod, cfg.ServiceName)
	pay := &payment.Service{
		Orders:   svc,
		Gateway:  payment.NewRazorpay(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, cfg.Razorpay.BaseURL),
		Secret:   cfg.Razorpay.KeySecret,
		Currency: cfg.Currency,
		Idem:     cache,
		Intents:  cache,
	}

	router := httpx.NewRouter(m, prometheus.DefaultGatherer)
	(&httpx.OrdersHandler{Orders: svc, Payments: pay, Cache: cache, Metrics: m, KeyID: cfg.Razorpay.KeyID}).Register(router)
	(&httpx.AdminHandler{Orders: svc, Cache: cache, Token: cfg.AdminToken}).Register(router)
	if cfg.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN empty, admin routes disabled")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		prod.Close()      // tutup inbox -> flush & close writer
		prod.WaitClosed() // drain
		return err
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("api stopped")
		return
	}
	log.Info().Msg("api stopped")
}
