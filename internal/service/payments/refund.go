package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/myanjobs/payments/internal/domain"
	"github.com/myanjobs/payments/internal/logging"
	"github.com/myanjobs/payments/internal/provider"
)

type RefundParams struct {
	TransactionID uuid.UUID
	Amount        decimal.Decimal
	Reason        string
	ProcessedBy   string
}

// ProcessRefund appends a refund to a completed deposit. The bound
// check runs before the provider call and again inside the store's
// append, so concurrent refunds can never exceed the original amount.
func (s *Service) ProcessRefund(ctx context.Context, p RefundParams) (*domain.Refund, error) {
	log := logging.FromContext(ctx)

	txn, err := s.store.GetByID(ctx, p.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("ProcessRefund: %w", err)
	}

	if txn.Type != domain.TransactionTypeDeposit || txn.Status != domain.TransactionStatusCompleted {
		return nil, fmt.Errorf("ProcessRefund: %w", domain.ErrRefundNotAllowed)
	}
	if !p.Amount.IsPositive() {
		return nil, fmt.Errorf("ProcessRefund: %w", domain.ErrInvalidAmount)
	}
	if p.Amount.GreaterThan(txn.RemainingRefundable()) {
		return nil, fmt.Errorf("ProcessRefund: %w", domain.ErrRefundExceedsRemaining)
	}

	adapter, err := s.providers.Get(txn.Provider)
	if err != nil {
		return nil, fmt.Errorf("ProcessRefund: %w", err)
	}

	cctx, cancel := s.providerCtx(ctx)
	res, err := adapter.Cancel(cctx, provider.CancelRequest{
		OrderID:         txn.OrderID,
		ProviderOrderID: deref(txn.ProviderOrderID),
		Amount:          p.Amount,
		Reason:          p.Reason,
	})
	cancel()
	if err != nil {
		return nil, providerFailure("ProcessRefund", err)
	}

	// appended whether the provider reports immediate or pending
	// completion; the record reflects what the provider said
	refund := &domain.Refund{
		ID:               uuid.New(),
		TransactionID:    txn.ID,
		Amount:           p.Amount,
		Reason:           p.Reason,
		Status:           res.Status,
		ProviderRefundID: strPtr(res.ProviderRefundID),
		ProcessedBy:      p.ProcessedBy,
		ProcessedAt:      time.Now().UTC(),
	}
	if err := s.store.AppendRefund(ctx, refund); err != nil {
		return nil, fmt.Errorf("ProcessRefund: %w", err)
	}

	log.Info("refund processed",
		"transaction_id", txn.ID,
		"refund_id", refund.ID,
		"amount", p.Amount.StringFixed(2),
		"status", refund.Status,
		"processed_by", p.ProcessedBy,
	)
	return refund, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
