package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/myanjobs/payments/internal/domain"
	"github.com/myanjobs/payments/internal/logging"
	"github.com/myanjobs/payments/internal/provider"
)

// CheckStatus re-queries the provider's authoritative status and
// persists the transition when it differs. Terminal transactions are
// returned as stored, without a provider call.
func (s *Service) CheckStatus(ctx context.Context, id uuid.UUID) (*domain.PaymentTransaction, error) {
	txn, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("CheckStatus: %w", err)
	}
	if txn.Status.Terminal() {
		return txn, nil
	}

	adapter, err := s.providers.Get(txn.Provider)
	if err != nil {
		return nil, fmt.Errorf("CheckStatus: %w", err)
	}

	cctx, cancel := s.providerCtx(ctx)
	res, err := adapter.CheckStatus(cctx, provider.StatusRequest{
		OrderID:         txn.OrderID,
		ProviderOrderID: deref(txn.ProviderOrderID),
	})
	cancel()
	if err != nil {
		return nil, providerFailure("CheckStatus", err)
	}

	if res.Status == txn.Status {
		return txn, nil
	}

	applied, err := s.applyStatus(ctx, txn.ID, res.Status, res.ProviderTransactionID, res.FailureReason, res.FailureCode)
	if err != nil {
		return nil, fmt.Errorf("CheckStatus: %w", err)
	}
	if applied {
		logging.FromContext(ctx).Info("status reconciled",
			"transaction_id", txn.ID,
			"from", txn.Status,
			"to", res.Status,
		)
	}

	updated, err := s.store.GetByID(ctx, txn.ID)
	if err != nil {
		return nil, fmt.Errorf("CheckStatus: %w", err)
	}
	return updated, nil
}

// applyStatus persists one provider-reported transition through the
// guarded store update. False means the row was already terminal.
func (s *Service) applyStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus, providerTxnID, failReason, failCode string) (bool, error) {
	now := time.Now().UTC()
	completedAt, failedAt := terminalTimestamps(status, now)

	change := domain.StatusChange{
		Status:                status,
		ProviderTransactionID: strPtr(providerTxnID),
		CompletedAt:           completedAt,
		FailedAt:              failedAt,
	}
	if status == domain.TransactionStatusFailed {
		change.ErrorMessage = strPtr(failReason)
		change.ErrorCode = strPtr(failCode)
	}

	return s.store.TransitionStatus(ctx, id, change)
}
