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
	"github.com/myanjobs/payments/internal/provider"
)

type WithdrawalParams struct {
	UserID         uuid.UUID
	Provider       string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string

	// Either an inline recipient or a stored, verified payout method.
	Recipient      *domain.RecipientInfo
	PayoutMethodID *uuid.UUID
}

type WithdrawalResult struct {
	Transaction *domain.PaymentTransaction
	IsDuplicate bool
}

// CreateWithdrawal mirrors CreateDeposit; a successful provider
// handoff moves the transaction to processing. A referenced payout
// method must be verified before any provider call happens.
func (s *Service) CreateWithdrawal(ctx context.Context, p WithdrawalParams) (*WithdrawalResult, error) {
	log := logging.FromContext(ctx)

	if err := s.validatePayment(p.Amount, p.Currency); err != nil {
		return nil, fmt.Errorf("CreateWithdrawal: %w", err)
	}

	adapter, err := s.providers.Get(p.Provider)
	if err != nil {
		return nil, fmt.Errorf("CreateWithdrawal: %w", err)
	}
	if !s.providers.Supports(p.Provider, domain.OperationWithdrawal) {
		return nil, fmt.Errorf("CreateWithdrawal: %w", domain.ErrUnsupportedOperation)
	}

	recipient, err := s.resolveRecipient(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("CreateWithdrawal: %w", err)
	}

	if existing, err := s.replayIdempotencyKey(ctx, p.IdempotencyKey); err != nil {
		return nil, fmt.Errorf("CreateWithdrawal: %w", err)
	} else if existing != nil {
		log.Info("idempotent replay", "transaction_id", existing.ID, "idempotency_key", p.IdempotencyKey)
		return &WithdrawalResult{Transaction: existing, IsDuplicate: true}, nil
	}

	now := time.Now().UTC()
	txn := &domain.PaymentTransaction{
		ID:                uuid.New(),
		TransactionNumber: newTransactionNumber(now),
		OrderID:           newOrderID(domain.TransactionTypeWithdrawal),
		IdempotencyKey:    strPtr(p.IdempotencyKey),
		Type:              domain.TransactionTypeWithdrawal,
		Provider:          adapter.Name(),
		Status:            domain.TransactionStatusPending,
		Amount:            p.Amount,
		Currency:          p.Currency,
		UserID:            p.UserID,
		Recipient:         recipient,
		PayoutMethodID:    p.PayoutMethodID,
		InitiatedAt:       now,
		UpdatedAt:         now,
	}

	if err := s.store.Create(ctx, txn); err != nil {
		if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
			existing, replayErr := s.replayIdempotencyKey(ctx, p.IdempotencyKey)
			if replayErr != nil {
				return nil, fmt.Errorf("CreateWithdrawal: %w", replayErr)
			}
			if existing != nil {
				log.Info("idempotent replay (race)", "transaction_id", existing.ID)
				return &WithdrawalResult{Transaction: existing, IsDuplicate: true}, nil
			}
		}
		return nil, fmt.Errorf("CreateWithdrawal: %w", err)
	}

	cctx, cancel := s.providerCtx(ctx)
	res, err := adapter.CreateWithdrawal(cctx, provider.WithdrawalRequest{
		OrderID:        txn.OrderID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		RecipientPhone: recipient.Phone,
		RecipientName:  recipient.Name,
	})
	cancel()
	if err != nil {
		s.recordProviderFailure(ctx, txn.ID, err)
		return nil, providerFailure("CreateWithdrawal", err)
	}

	if _, err := s.store.MarkInitiated(ctx, txn.ID, domain.TransactionStatusProcessing, res.ProviderOrderID, nil); err != nil {
		return nil, fmt.Errorf("CreateWithdrawal: %w", err)
	}

	created, err := s.store.GetByID(ctx, txn.ID)
	if err != nil {
		return nil, fmt.Errorf("CreateWithdrawal: %w", err)
	}

	log.Info("withdrawal created",
		"transaction_id", created.ID,
		"order_id", created.OrderID,
		"provider", created.Provider,
		"amount", p.Amount.StringFixed(2),
	)
	return &WithdrawalResult{Transaction: created}, nil
}

func (s *Service) resolveRecipient(ctx context.Context, p WithdrawalParams) (*domain.RecipientInfo, error) {
	if p.PayoutMethodID != nil {
		method, err := s.payouts.GetByID(ctx, *p.PayoutMethodID)
		if err != nil {
			return nil, fmt.Errorf("resolveRecipient: %w", err)
		}
		if method.Status != domain.PayoutMethodStatusVerified {
			return nil, fmt.Errorf("resolveRecipient: %w", domain.ErrPayoutMethodNotVerified)
		}
		return &domain.RecipientInfo{Phone: method.Phone, Name: method.Name}, nil
	}

	if p.Recipient == nil || p.Recipient.Phone == "" {
		return nil, fmt.Errorf("resolveRecipient: recipient required: %w", domain.ErrInvalidRequest)
	}
	return p.Recipient, nil
}
