package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
)

type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusInitiated  TransactionStatus = "initiated"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusCancelled  TransactionStatus = "cancelled"
)

// Terminal reports whether the status may never be overwritten again.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled:
		return true
	}
	return false
}

type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusCompleted RefundStatus = "completed"
)

type Refund struct {
	ID               uuid.UUID
	TransactionID    uuid.UUID
	Amount           decimal.Decimal
	Reason           string
	Status           RefundStatus
	ProviderRefundID *string
	ProcessedBy      string
	ProcessedAt      time.Time
}

type QRCode struct {
	Data      string
	ImageURL  *string
	ExpiresAt *time.Time
}

type RecipientInfo struct {
	Phone string
	Name  string
}

// PaymentTransaction is the persisted record of one deposit or
// withdrawal. Records are never deleted; they form the audit trail.
type PaymentTransaction struct {
	ID                uuid.UUID
	TransactionNumber string
	OrderID           string
	IdempotencyKey    *string

	Type     TransactionType
	Provider string
	Status   TransactionStatus

	Amount   decimal.Decimal
	Currency string

	// Refunds is ordered and append-only; RefundedAmount is derived
	// from it and never stored directly.
	Refunds        []Refund
	RefundedAmount decimal.Decimal

	ProviderOrderID       *string
	ProviderTransactionID *string

	QRCode *QRCode

	UserID         uuid.UUID
	Recipient      *RecipientInfo
	PayoutMethodID *uuid.UUID

	ErrorMessage *string
	ErrorCode    *string

	InitiatedAt time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time
	UpdatedAt   time.Time
}

// RemainingRefundable is the amount still eligible for refund.
func (t *PaymentTransaction) RemainingRefundable() decimal.Decimal {
	return t.Amount.Sub(t.RefundedAmount)
}

func (t *PaymentTransaction) FullyRefunded() bool {
	return t.RefundedAmount.GreaterThanOrEqual(t.Amount) && !t.Amount.IsZero()
}

// StatusChange carries the mutable fields of one status transition.
// Nil pointers leave the stored value untouched.
type StatusChange struct {
	Status                TransactionStatus
	ProviderOrderID       *string
	ProviderTransactionID *string
	ErrorMessage          *string
	ErrorCode             *string
	CompletedAt           *time.Time
	FailedAt              *time.Time
}
