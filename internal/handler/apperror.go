package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount          = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrInvalidCurrency        = &AppError{http.StatusBadRequest, "INVALID_CURRENCY", "Invalid currency"}
	ErrProviderNotConfigured  = &AppError{http.StatusUnprocessableEntity, "PROVIDER_NOT_CONFIGURED", "Payment provider is not configured"}
	ErrProviderUnavailable    = &AppError{http.StatusBadGateway, "PROVIDER_UNAVAILABLE", "Payment provider request failed"}
	ErrUnsupportedOperation   = &AppError{http.StatusUnprocessableEntity, "UNSUPPORTED_OPERATION", "Operation not supported by this provider"}
	ErrDuplicatePayment       = &AppError{http.StatusConflict, "DUPLICATE_PAYMENT", "Duplicate payment"}
	ErrInvalidSignature       = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature verification failed"}
	ErrRefundNotAllowed       = &AppError{http.StatusUnprocessableEntity, "REFUND_NOT_ALLOWED", "Refund only allowed for completed deposits"}
	ErrRefundExceedsRemaining = &AppError{http.StatusUnprocessableEntity, "REFUND_EXCEEDS_REMAINING", "Refund exceeds remaining refundable amount"}
	ErrPayoutNotVerified      = &AppError{http.StatusUnprocessableEntity, "PAYOUT_METHOD_NOT_VERIFIED", "Payout method has not been verified"}
)
