// Package provider defines the capability contract each external
// mobile-wallet network implements, and the closed registry the
// orchestrator resolves adapters from.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/myanjobs/payments/internal/domain"
)

type DepositRequest struct {
	OrderID     string
	Amount      decimal.Decimal
	Currency    string
	UserID      string
	Description string
}

type DepositResult struct {
	ProviderOrderID string
	PaymentURL      string
	QRData          string
	ExpiresAt       *time.Time
}

type WithdrawalRequest struct {
	OrderID        string
	Amount         decimal.Decimal
	Currency       string
	RecipientPhone string
	RecipientName  string
}

type WithdrawalResult struct {
	ProviderOrderID string
}

type StatusRequest struct {
	OrderID         string
	ProviderOrderID string
}

// StatusResult reports the provider's authoritative view, already
// mapped to the internal status vocabulary by the adapter.
type StatusResult struct {
	Status                domain.TransactionStatus
	ProviderTransactionID string
	FailureReason         string
	FailureCode           string
}

type CancelRequest struct {
	OrderID         string
	ProviderOrderID string
	Amount          decimal.Decimal
	Reason          string
}

type CancelResult struct {
	ProviderRefundID string
	Status           domain.RefundStatus
}

type QRRequest struct {
	OrderID  string
	Amount   decimal.Decimal
	Currency string
}

type QRResult struct {
	Data      string
	ImageURL  string
	ExpiresAt *time.Time
}

// WebhookEvent is a parsed provider callback, mapped to the internal
// vocabulary by the adapter.
type WebhookEvent struct {
	OrderID               string
	ProviderTransactionID string
	Status                domain.TransactionStatus
	FailureReason         string
	FailureCode           string
	OccurredAt            *time.Time
}

// Adapter is the contract one payment network implements. Every
// operation may fail; the orchestrator treats a timeout at this
// boundary like any other provider failure.
type Adapter interface {
	Name() string
	CreateDeposit(ctx context.Context, req DepositRequest) (*DepositResult, error)
	CreateWithdrawal(ctx context.Context, req WithdrawalRequest) (*WithdrawalResult, error)
	CheckStatus(ctx context.Context, req StatusRequest) (*StatusResult, error)
	Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error)
	VerifyWebhook(payload []byte, signature string) error
	ParseWebhook(payload []byte) (*WebhookEvent, error)
	GenerateQRCode(ctx context.Context, req QRRequest) (*QRResult, error)
	HealthCheck(ctx context.Context) error
}

// Coder is implemented by adapter errors that carry a provider-side
// error code worth persisting on the failed transaction.
type Coder interface {
	Code() string
}

// ErrorCode extracts a provider error code, falling back to a generic
// marker for untyped failures.
func ErrorCode(err error) string {
	var c Coder
	if errors.As(err, &c) && c.Code() != "" {
		return c.Code()
	}
	return "provider_error"
}
