// Package payments is the provider-agnostic payment orchestrator. It
// composes the transaction store, the provider adapter registry, and
// the MMQR codec to drive the deposit/withdrawal lifecycle, refunds,
// webhook ingestion, reconciliation, and provider health.
package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/myanjobs/payments/internal/config"
	"github.com/myanjobs/payments/internal/domain"
	"github.com/myanjobs/payments/internal/provider"
)

type transactionStore interface {
	Create(ctx context.Context, t *domain.PaymentTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentTransaction, error)
	GetByOrderID(ctx context.Context, orderID string) (*domain.PaymentTransaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentTransaction, error)
	MarkInitiated(ctx context.Context, id uuid.UUID, status domain.TransactionStatus, providerOrderID string, qr *domain.QRCode) (bool, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, change domain.StatusChange) (bool, error)
	AppendRefund(ctx context.Context, refund *domain.Refund) error
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.PaymentTransaction, error)
	Stats(ctx context.Context, from, to *time.Time) (*domain.Statistics, error)
}

type payoutMethodStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PayoutMethod, error)
}

type providerRegistry interface {
	Get(name string) (provider.Adapter, error)
	Names() []string
	Capabilities() []domain.ProviderCapability
	SetHealth(name string, healthy bool, at time.Time)
	Supports(name string, op domain.Operation) bool
}

type Service struct {
	store     transactionStore
	payouts   payoutMethodStore
	providers providerRegistry
	config    *config.Config
}

func NewService(store transactionStore, payouts payoutMethodStore, providers providerRegistry, cfg *config.Config) *Service {
	return &Service{
		store:     store,
		payouts:   payouts,
		providers: providers,
		config:    cfg,
	}
}

func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.PaymentTransaction, error) {
	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	return t, nil
}

func (s *Service) GetStatistics(ctx context.Context, from, to *time.Time) (*domain.Statistics, error) {
	stats, err := s.store.Stats(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("GetStatistics: %w", err)
	}
	return stats, nil
}

func (s *Service) Capabilities() []domain.ProviderCapability {
	return s.providers.Capabilities()
}

// providerCtx bounds every adapter call; a timeout is treated like any
// other provider failure by the callers.
func (s *Service) providerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.ProviderTimeout())
}

func newTransactionNumber(now time.Time) string {
	return fmt.Sprintf("TXN-%s-%s", now.Format("20060102"), randomHex(4))
}

func newOrderID(t domain.TransactionType) string {
	prefix := "DEP"
	if t == domain.TransactionTypeWithdrawal {
		prefix = "WDR"
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), randomHex(3))
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}

// providerFailure persists failure context onto the transaction, then
// surfaces the error to the caller: audit trail plus immediate error.
func providerFailure(op string, err error) error {
	return fmt.Errorf("%s: %s: %w", op, err, domain.ErrProviderOperation)
}

func terminalTimestamps(status domain.TransactionStatus, now time.Time) (completedAt, failedAt *time.Time) {
	switch status {
	case domain.TransactionStatusCompleted:
		completedAt = &now
	case domain.TransactionStatusFailed, domain.TransactionStatusCancelled:
		failedAt = &now
	}
	return
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
