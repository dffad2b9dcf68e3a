package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/helmet-storefront/internal/appstate"
	"github.com/fjod/helmet-storefront/internal/backend"
	"github.com/fjod/helmet-storefront/internal/checkout"
	"github.com/fjod/helmet-storefront/internal/config"
	"github.com/fjod/helmet-storefront/internal/coupon"
	httpapi "github.com/fjod/helmet-storefront/internal/http"
	"github.com/fjod/helmet-storefront/internal/journal"
	"github.com/fjod/helmet-storefront/internal/order"
	"github.com/fjod/helmet-storefront/internal/payment"
	"github.com/fjod/helmet-storefront/internal/publisher"
	"github.com/fjod/helmet-storefront/pkg/logger"
	"github.com/fjod/helmet-storefront/pkg/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger.Init(os.Stdout, cfg.LogLevel, cfg.ServiceName)
	log := logger.L()
	log.Info().Msg("storefront starting...")

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to flush traces")
		}
	}()

	// Cart cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// the cache is optional; carts are read through from the backend
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, cart cache degraded")
	}

	// Checkout journal
	repo, err := journal.NewRepository(ctx, &journal.Config{
		Host:          cfg.DBHost,
		Port:          cfg.DBPort,
		User:          cfg.DBUser,
		Password:      cfg.DBPassword,
		DBName:        cfg.DBName,
		SSLMode:       cfg.DBSSLMode,
		AppName:       cfg.ServiceName,
		MigrationsDir: cfg.MigrationsDirPath,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to journal database")
	}
	defer repo.Close()
	if err := repo.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate journal schema")
	}

	client := backend.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout)
	carts := appstate.NewCartStore(client, appstate.NewRedisCache(redisClient))
	bridge := payment.NewHostedBridge(cfg.PaymentKeyID, cfg.PaymentWindow)
	if cfg.PaymentKeyID == "" {
		log.Warn().Msg("PAYMENT_KEY_ID is empty, online payments will fail to open")
	}

	registry := checkout.NewRegistry(carts, checkout.Deps{
		Coupons:   coupon.NewValidator(client),
		Orders:    order.NewCreator(client),
		Addresses: client,
		Bridge:    bridge,
		Verifier:  payment.NewVerifier(client),
		Observer:  journal.NewRecorder(repo, cfg.JournalTimeout),
		Currency:  cfg.PaymentCurrency,
	})
	go registry.Run(ctx, cfg.SweepInterval, cfg.CheckoutIdleTimeout)

	poller := publisher.NewOutboxPoller(repo, cfg.KafkaTopic, cfg.JournalRetention, cfg.KafkaBrokers...)
	defer poller.Close()
	go poller.Run(ctx)

	limiter := httpapi.NewCouponLimiter(cfg.CouponAttemptsPerMinute)
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Prune()
			}
		}
	}()

	handler := httpapi.NewRouter(httpapi.RouterConfig{
		ServiceName:    cfg.ServiceName,
		RequestTimeout: cfg.RequestTimeout,
		Auth:           httpapi.NewAuthenticator(cfg.JWTSecret, cfg.LoginPath),
		Limiter:        limiter,
		Checkout:       httpapi.NewCheckoutHandler(registry, bridge, cfg.RequestTimeout),
		Orders:         httpapi.NewOrdersHandler(client, repo, registry, cfg.RequestTimeout),
		Cart:           httpapi.NewCartHandler(carts, cfg.RequestTimeout),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("storefront listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	stop()

	log.Info().Msg("server exited")
}
