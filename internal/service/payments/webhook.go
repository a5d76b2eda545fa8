package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/myanjobs/payments/internal/domain"
	"github.com/myanjobs/payments/internal/logging"
	"github.com/myanjobs/payments/internal/provider"
)

type WebhookResult struct {
	Provider      string
	OrderID       string
	TransactionID *uuid.UUID
	// Found is false when the webhook referenced an unknown or stale
	// order; such deliveries are acknowledged without error so the
	// provider's retry policy is not triggered.
	Found bool
	// Applied is false when the stored status already matched or the
	// transaction was terminal.
	Applied bool
	Status  domain.TransactionStatus
}

// HandleWebhook verifies, parses, and applies one provider callback.
// Signature failures reject the delivery outright with no state
// mutation.
func (s *Service) HandleWebhook(ctx context.Context, providerName string, payload []byte, headers map[string]string) (*WebhookResult, error) {
	log := logging.FromContext(ctx)

	adapter, err := s.providers.Get(providerName)
	if err != nil {
		return nil, fmt.Errorf("HandleWebhook: %w", err)
	}

	signature, ok := provider.ExtractSignature(headers, payload)
	if !ok {
		return nil, fmt.Errorf("HandleWebhook: no signature present: %w", domain.ErrInvalidSignature)
	}
	if err := adapter.VerifyWebhook(payload, signature); err != nil {
		return nil, fmt.Errorf("HandleWebhook: %w", err)
	}

	event, err := adapter.ParseWebhook(payload)
	if err != nil {
		return nil, fmt.Errorf("HandleWebhook: %w", err)
	}

	result := &WebhookResult{
		Provider: adapter.Name(),
		OrderID:  event.OrderID,
		Status:   event.Status,
	}

	txn, err := s.store.GetByOrderID(ctx, event.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// stale or foreign order; acknowledge so retries stop
			log.Warn("webhook for unknown order",
				"provider", adapter.Name(),
				"order_id", event.OrderID,
			)
			return result, nil
		}
		return nil, fmt.Errorf("HandleWebhook: %w", err)
	}

	result.Found = true
	result.TransactionID = &txn.ID

	if event.Status == txn.Status || txn.Status.Terminal() {
		log.Info("webhook caused no transition",
			"transaction_id", txn.ID,
			"stored_status", txn.Status,
			"reported_status", event.Status,
		)
		return result, nil
	}

	applied, err := s.applyStatus(ctx, txn.ID, event.Status, event.ProviderTransactionID, event.FailureReason, event.FailureCode)
	if err != nil {
		return nil, fmt.Errorf("HandleWebhook: %w", err)
	}
	result.Applied = applied

	if applied {
		log.Info("webhook applied",
			"transaction_id", txn.ID,
			"from", txn.Status,
			"to", event.Status,
		)
	}
	return result, nil
}
