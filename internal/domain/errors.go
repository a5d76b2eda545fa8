package domain

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidAmount           = errors.New("amount must be greater than zero")
	ErrInvalidCurrency         = errors.New("invalid currency")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrProviderNotConfigured   = errors.New("provider not configured")
	ErrProviderOperation       = errors.New("provider operation failed")
	ErrUnsupportedOperation    = errors.New("operation not supported by provider")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrDuplicateOrderID        = errors.New("duplicate order id")
	ErrInvalidSignature        = errors.New("webhook signature verification failed")
	ErrRefundNotAllowed        = errors.New("refund only allowed for completed deposits")
	ErrRefundExceedsRemaining  = errors.New("refund exceeds remaining refundable amount")
	ErrPayoutMethodNotVerified = errors.New("payout method not verified")
)
