package domain

import "github.com/shopspring/decimal"

// Statistics is an aggregate snapshot over the transaction store,
// optionally windowed by initiation time.
type Statistics struct {
	TotalTransactions int64
	ByStatus          map[TransactionStatus]int64
	ByProvider        map[string]int64

	DepositVolume    decimal.Decimal
	WithdrawalVolume decimal.Decimal
	RefundVolume     decimal.Decimal

	// SuccessRate is completed over all terminal transactions, 0..1.
	SuccessRate float64
}
