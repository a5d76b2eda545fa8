package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/myanjobs/payments/internal/config"
	"github.com/myanjobs/payments/internal/domain"
	"github.com/myanjobs/payments/internal/handler"
	"github.com/myanjobs/payments/internal/logging"
	"github.com/myanjobs/payments/internal/middleware"
	"github.com/myanjobs/payments/internal/provider"
	"github.com/myanjobs/payments/internal/provider/sandbox"
	"github.com/myanjobs/payments/internal/repository"
	"github.com/myanjobs/payments/internal/service/payments"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("payments-api", cfg.LogLevel, cfg.AppEnv)

	db, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	registry := provider.NewRegistry()
	if err := registerProviders(registry, cfg); err != nil {
		slog.Error("failed to register providers", "error", err)
		os.Exit(1)
	}
	slog.Info("providers registered", "providers", registry.Names())

	svc := payments.NewService(
		repository.NewTransactionRepository(db),
		repository.NewPayoutMethodRepository(db),
		registry,
		cfg,
	)

	paymentHandler := handler.NewPaymentHandler(svc)
	webhookHandler := handler.NewWebhookHandler(svc)
	reconcileHandler := handler.NewReconcileHandler(svc)
	healthHandler := handler.NewHealthHandler(db)

	authMW := middleware.Auth(cfg.JWTSecret)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)

	mux.Handle("POST /api/v1/deposits", authMW(http.HandlerFunc(paymentHandler.CreateDeposit)))
	mux.Handle("POST /api/v1/withdrawals", authMW(http.HandlerFunc(paymentHandler.CreateWithdrawal)))
	mux.Handle("GET /api/v1/transactions/{id}", authMW(http.HandlerFunc(paymentHandler.GetTransaction)))
	mux.Handle("POST /api/v1/transactions/{id}/check", authMW(http.HandlerFunc(paymentHandler.CheckStatus)))
	mux.Handle("POST /api/v1/transactions/{id}/refunds", authMW(http.HandlerFunc(paymentHandler.CreateRefund)))
	mux.Handle("POST /api/v1/qr", authMW(http.HandlerFunc(paymentHandler.GenerateQR)))
	mux.Handle("GET /api/v1/statistics", authMW(http.HandlerFunc(paymentHandler.GetStatistics)))
	mux.Handle("GET /api/v1/providers", authMW(http.HandlerFunc(paymentHandler.ListProviders)))
	mux.Handle("GET /api/v1/providers/health", authMW(http.HandlerFunc(paymentHandler.ProviderHealth)))

	// provider callbacks authenticate by signature, not JWT
	mux.HandleFunc("POST /api/v1/webhooks/{provider}", webhookHandler.Receive)

	mux.HandleFunc("POST /internal/reconcile", reconcileHandler.Run)

	root := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func registerProviders(registry *provider.Registry, cfg *config.Config) error {
	if cfg.SandboxEnabled {
		adapter := sandbox.New(cfg.SandboxBaseURL, cfg.SandboxWebhookSecret, cfg.ProviderTimeout())
		err := registry.Register(adapter, domain.ProviderCapability{
			DisplayName: "Sandbox Wallet",
			Operations: []domain.Operation{
				domain.OperationDeposit,
				domain.OperationWithdrawal,
				domain.OperationRefund,
				domain.OperationQRCode,
			},
			Currencies: []string{"MMK"},
			NetworkID:  "mm.sandbox.wallet",
			MerchantID: "SANDBOX-0001",
			NetworkTag: "01",
		})
		if err != nil {
			return fmt.Errorf("registerProviders: %w", err)
		}
	}
	return nil
}

func connectDB(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connectDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeS) * time.Second)
	db.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTimeS) * time.Second)

	for i := range 30 {
		if err = db.Ping(); err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}

	db.Close()
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}
