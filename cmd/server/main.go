package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeynil/agri-invest-service/internal/api"
	"github.com/honeynil/agri-invest-service/internal/config"
	"github.com/honeynil/agri-invest-service/internal/handler"
	"github.com/honeynil/agri-invest-service/internal/infrastructure/auth"
	"github.com/honeynil/agri-invest-service/internal/infrastructure/kafka"
	"github.com/honeynil/agri-invest-service/internal/infrastructure/paystack"
	"github.com/honeynil/agri-invest-service/internal/infrastructure/redis"
	"github.com/honeynil/agri-invest-service/internal/observability"
	"github.com/honeynil/agri-invest-service/internal/repository"
	"github.com/honeynil/agri-invest-service/internal/repository/memory"
	"github.com/honeynil/agri-invest-service/internal/repository/postgres"
	service "github.com/honeynil/agri-invest-service/internal/services"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	shutdownTracing := observability.Setup("agri-invest-service", cfg.OTLPEndpoint, cfg.LogLevel)
	defer shutdownTracing(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	redisClient, err := redis.NewClient(cfg.RedisAddr)
	if err != nil {
		os.Exit(1)
	}
	defer redisClient.Close()

	g, ctx := errgroup.WithContext(ctx)

	var notifier service.Notifier = service.NewStoreNotifier(store.Notifications())
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers)
		defer producer.Close()
		notifier = kafka.NewNotificationPublisher(producer)

		consumer := kafka.NewConsumer(cfg.KafkaBrokers, "agri-invest-notifications", store.Notifications())
		defer consumer.Close()
		g.Go(func() error {
			consumer.Consume(ctx)
			return nil
		})
	}

	var gateway service.PaymentGateway
	if cfg.PaystackSecretKey != "" {
		gateway = paystack.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey)
	} else {
		slog.Warn("PAYSTACK_SECRET_KEY not set, payment initialization disabled")
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	payments := service.NewPaymentService(store, gateway, redisClient, notifier, cfg.PaystackSecretKey, cfg.PaymentCallbackURL)
	storage := service.NewStorageService(store, payments, notifier)

	h := handler.NewHandler(handler.Services{
		Auth:        service.NewAuthService(store, redisClient, tokens, cfg.DefaultCommissionRate),
		Packages:    service.NewPackageService(store),
		Investments: service.NewInvestmentService(store, notifier),
		Payments:    payments,
		Storage:     storage,
		Commerce:    service.NewCommerceService(store, payments, notifier),
		Referrals:   service.NewReferralService(store, notifier),
		Withdrawals: service.NewWithdrawalService(store, gateway, redisClient, notifier),
		Admin:       service.NewAdminService(store),
	})

	sweeper := service.NewSweeper(payments, storage, cfg.StalePaymentTTL)
	if err := sweeper.Start(cfg.SweepSchedule); err != nil {
		slog.Error("failed to start sweeper", "schedule", cfg.SweepSchedule, "error", err)
		os.Exit(1)
	}
	defer sweeper.Stop()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.SetupRouter(h, redisClient, tokens),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		slog.Info("starting server", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server stopped with error", "error", err)
		return
	}
	slog.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	if cfg.StoreBackend == "memory" {
		slog.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return postgres.NewStore(db), func() { db.Close() }, nil
}
