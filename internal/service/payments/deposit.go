package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/myanjobs/payments/internal/domain"
	"github.com/myanjobs/payments/internal/logging"
	"github.com/myanjobs/payments/internal/mmqr"
	"github.com/myanjobs/payments/internal/provider"
)

type DepositParams struct {
	UserID         uuid.UUID
	Provider       string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
	Description    string
}

type DepositResult struct {
	Transaction *domain.PaymentTransaction
	IsDuplicate bool
}

// CreateDeposit persists a pending transaction, then hands it to the
// provider. A replayed idempotency key returns the original
// transaction and makes no provider call.
func (s *Service) CreateDeposit(ctx context.Context, p DepositParams) (*DepositResult, error) {
	log := logging.FromContext(ctx)

	if err := s.validatePayment(p.Amount, p.Currency); err != nil {
		return nil, fmt.Errorf("CreateDeposit: %w", err)
	}

	adapter, err := s.providers.Get(p.Provider)
	if err != nil {
		return nil, fmt.Errorf("CreateDeposit: %w", err)
	}
	if !s.providers.Supports(p.Provider, domain.OperationDeposit) {
		return nil, fmt.Errorf("CreateDeposit: %w", domain.ErrUnsupportedOperation)
	}

	if existing, err := s.replayIdempotencyKey(ctx, p.IdempotencyKey); err != nil {
		return nil, fmt.Errorf("CreateDeposit: %w", err)
	} else if existing != nil {
		log.Info("idempotent replay", "transaction_id", existing.ID, "idempotency_key", p.IdempotencyKey)
		return &DepositResult{Transaction: existing, IsDuplicate: true}, nil
	}

	now := time.Now().UTC()
	txn := &domain.PaymentTransaction{
		ID:                uuid.New(),
		TransactionNumber: newTransactionNumber(now),
		OrderID:           newOrderID(domain.TransactionTypeDeposit),
		IdempotencyKey:    strPtr(p.IdempotencyKey),
		Type:              domain.TransactionTypeDeposit,
		Provider:          adapter.Name(),
		Status:            domain.TransactionStatusPending,
		Amount:            p.Amount,
		Currency:          p.Currency,
		UserID:            p.UserID,
		InitiatedAt:       now,
		UpdatedAt:         now,
	}

	if err := s.store.Create(ctx, txn); err != nil {
		if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
			// lost the race against a concurrent request with the same key
			existing, replayErr := s.replayIdempotencyKey(ctx, p.IdempotencyKey)
			if replayErr != nil {
				return nil, fmt.Errorf("CreateDeposit: %w", replayErr)
			}
			if existing != nil {
				log.Info("idempotent replay (race)", "transaction_id", existing.ID)
				return &DepositResult{Transaction: existing, IsDuplicate: true}, nil
			}
		}
		return nil, fmt.Errorf("CreateDeposit: %w", err)
	}

	cctx, cancel := s.providerCtx(ctx)
	res, err := adapter.CreateDeposit(cctx, provider.DepositRequest{
		OrderID:     txn.OrderID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		UserID:      p.UserID.String(),
		Description: p.Description,
	})
	cancel()
	if err != nil {
		s.recordProviderFailure(ctx, txn.ID, err)
		return nil, providerFailure("CreateDeposit", err)
	}

	qr := depositQR(res)
	if _, err := s.store.MarkInitiated(ctx, txn.ID, domain.TransactionStatusInitiated, res.ProviderOrderID, qr); err != nil {
		return nil, fmt.Errorf("CreateDeposit: %w", err)
	}

	created, err := s.store.GetByID(ctx, txn.ID)
	if err != nil {
		return nil, fmt.Errorf("CreateDeposit: %w", err)
	}

	log.Info("deposit created",
		"transaction_id", created.ID,
		"order_id", created.OrderID,
		"provider", created.Provider,
		"amount", p.Amount.StringFixed(2),
		"currency", p.Currency,
	)
	return &DepositResult{Transaction: created}, nil
}

func (s *Service) validatePayment(amount decimal.Decimal, currency string) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if _, ok := mmqr.NumericCurrencyCode(currency); !ok {
		return domain.ErrInvalidCurrency
	}
	return nil
}

// replayIdempotencyKey returns the transaction already bound to the
// key, or nil when the key is empty or unused.
func (s *Service) replayIdempotencyKey(ctx context.Context, key string) (*domain.PaymentTransaction, error) {
	if key == "" {
		return nil, nil
	}
	existing, err := s.store.GetByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("replayIdempotencyKey: %w", err)
	}
	return existing, nil
}

// recordProviderFailure persists failure context before the error is
// re-thrown. Best-effort: a second failure here is logged, not
// surfaced, so the provider error stays the caller-visible one.
func (s *Service) recordProviderFailure(ctx context.Context, id uuid.UUID, provErr error) {
	now := time.Now().UTC()
	_, err := s.store.TransitionStatus(ctx, id, domain.StatusChange{
		Status:       domain.TransactionStatusFailed,
		ErrorMessage: strPtr(provErr.Error()),
		ErrorCode:    strPtr(provider.ErrorCode(provErr)),
		FailedAt:     &now,
	})
	if err != nil {
		logging.FromContext(ctx).Error("failed to persist provider failure",
			"transaction_id", id, "error", err)
	}
}

func depositQR(res *provider.DepositResult) *domain.QRCode {
	if res.QRData == "" && res.PaymentURL == "" {
		return nil
	}
	qr := &domain.QRCode{Data: res.QRData, ExpiresAt: res.ExpiresAt}
	if res.PaymentURL != "" {
		qr.ImageURL = &res.PaymentURL
	}
	return qr
}
