// The reconciler runs one reconciliation sweep and exits. It is meant
// to run on a schedule (cron, a Kubernetes CronJob) next to the API.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/myanjobs/payments/internal/config"
	"github.com/myanjobs/payments/internal/domain"
	"github.com/myanjobs/payments/internal/logging"
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

	logger := logging.Init("payments-reconciler", cfg.LogLevel, cfg.AppEnv)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	registry := provider.NewRegistry()
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
		})
		if err != nil {
			slog.Error("failed to register sandbox provider", "error", err)
			os.Exit(1)
		}
	}

	svc := payments.NewService(
		repository.NewTransactionRepository(db),
		repository.NewPayoutMethodRepository(db),
		registry,
		cfg,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logging.WithLogger(ctx, logger)

	res, err := svc.ReconcileTransactions(ctx, payments.ReconcileOptions{})
	if err != nil {
		slog.Error("reconcile sweep failed", "error", err)
		os.Exit(1)
	}

	for _, e := range res.Errors {
		slog.Warn("transaction could not be reconciled",
			"transaction_id", e.TransactionID,
			"order_id", e.OrderID,
			"error", e.Err,
		)
	}
	fmt.Printf("checked=%d updated=%d failed=%d\n", res.Checked, res.Updated, res.Failed)
	if res.Failed > 0 {
		os.Exit(2)
	}
}
