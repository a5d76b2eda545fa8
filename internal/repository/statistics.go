package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/myanjobs/payments/internal/domain"
)

// Stats aggregates the store. A nil bound leaves that side of the
// window open.
func (r *TransactionRepository) Stats(ctx context.Context, from, to *time.Time) (*domain.Statistics, error) {
	stats := &domain.Statistics{
		ByStatus:   map[domain.TransactionStatus]int64{},
		ByProvider: map[string]int64{},
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT status, provider, type, COUNT(*), COALESCE(SUM(amount), 0)
		 FROM payment_transactions
		 WHERE ($1::timestamptz IS NULL OR initiated_at >= $1)
		   AND ($2::timestamptz IS NULL OR initiated_at < $2)
		 GROUP BY status, provider, type`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}
	defer rows.Close()

	var completed, terminal int64
	for rows.Next() {
		var status domain.TransactionStatus
		var provider string
		var txnType domain.TransactionType
		var count int64
		var volume decimal.Decimal
		if err := rows.Scan(&status, &provider, &txnType, &count, &volume); err != nil {
			return nil, fmt.Errorf("Stats: %w", err)
		}

		stats.TotalTransactions += count
		stats.ByStatus[status] += count
		stats.ByProvider[provider] += count

		if status == domain.TransactionStatusCompleted {
			completed += count
			switch txnType {
			case domain.TransactionTypeDeposit:
				stats.DepositVolume = stats.DepositVolume.Add(volume)
			case domain.TransactionTypeWithdrawal:
				stats.WithdrawalVolume = stats.WithdrawalVolume.Add(volume)
			}
		}
		if status.Terminal() {
			terminal += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(r.amount), 0)
		 FROM payment_refunds r
		 JOIN payment_transactions t ON t.id = r.transaction_id
		 WHERE ($1::timestamptz IS NULL OR t.initiated_at >= $1)
		   AND ($2::timestamptz IS NULL OR t.initiated_at < $2)`,
		from, to,
	).Scan(&stats.RefundVolume)
	if err != nil {
		return nil, fmt.Errorf("Stats: refunds: %w", err)
	}

	if terminal > 0 {
		stats.SuccessRate = float64(completed) / float64(terminal)
	}
	return stats, nil
}
