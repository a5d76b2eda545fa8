package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/myanjobs/payments/internal/logging"
)

type ReconcileOptions struct {
	// MaxAge selects non-terminal transactions untouched for at least
	// this long. Zero falls back to the configured default.
	MaxAge time.Duration
	// Limit caps one sweep. Zero falls back to the configured batch
	// size.
	Limit int
}

type ReconcileError struct {
	TransactionID uuid.UUID
	OrderID       string
	Err           string
}

type ReconcileResult struct {
	Checked int
	Updated int
	Failed  int
	Errors  []ReconcileError
}

// ReconcileTransactions sweeps stale non-terminal transactions and
// re-checks each against its provider. One failing item never aborts
// the sweep; its error is collected and the next item proceeds.
func (s *Service) ReconcileTransactions(ctx context.Context, opts ReconcileOptions) (*ReconcileResult, error) {
	log := logging.FromContext(ctx)

	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = s.config.ReconcileMaxAge()
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = s.config.ReconcileBatchSize
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	stale, err := s.store.ListStale(ctx, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("ReconcileTransactions: %w", err)
	}

	result := &ReconcileResult{}
	for i := range stale {
		txn := &stale[i]
		result.Checked++

		updated, err := s.CheckStatus(ctx, txn.ID)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ReconcileError{
				TransactionID: txn.ID,
				OrderID:       txn.OrderID,
				Err:           err.Error(),
			})
			log.Warn("reconcile item failed",
				"transaction_id", txn.ID,
				"order_id", txn.OrderID,
				"error", err,
			)
			continue
		}
		if updated.Status != txn.Status {
			result.Updated++
		}
	}

	log.Info("reconcile sweep finished",
		"checked", result.Checked,
		"updated", result.Updated,
		"failed", result.Failed,
	)
	return result, nil
}
