package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/myanjobs/payments/internal/auth"
	"github.com/myanjobs/payments/internal/domain"
	"github.com/myanjobs/payments/internal/logging"
	"github.com/myanjobs/payments/internal/mmqr"
	"github.com/myanjobs/payments/internal/service/payments"
)

type paymentService interface {
	CreateDeposit(ctx context.Context, p payments.DepositParams) (*payments.DepositResult, error)
	CreateWithdrawal(ctx context.Context, p payments.WithdrawalParams) (*payments.WithdrawalResult, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.PaymentTransaction, error)
	CheckStatus(ctx context.Context, id uuid.UUID) (*domain.PaymentTransaction, error)
	ProcessRefund(ctx context.Context, p payments.RefundParams) (*domain.Refund, error)
	GenerateQRCode(ctx context.Context, p payments.QRParams) (*payments.QRCodeResult, error)
	GetStatistics(ctx context.Context, from, to *time.Time) (*domain.Statistics, error)
	GetProviderHealth(ctx context.Context) []domain.ProviderHealth
	Capabilities() []domain.ProviderCapability
}

type PaymentHandler struct {
	payments paymentService
}

func NewPaymentHandler(svc paymentService) *PaymentHandler {
	return &PaymentHandler{payments: svc}
}

type createDepositRequest struct {
	Provider    string `json:"provider"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

func (r createDepositRequest) Validate() ([]FieldError, decimal.Decimal) {
	var errs []FieldError

	if r.Provider == "" {
		errs = append(errs, FieldError{Field: "provider", Message: "required"})
	}

	amount := decimal.Zero
	if r.Amount == "" {
		errs = append(errs, FieldError{Field: "amount", Message: "required"})
	} else {
		parsed, err := decimal.NewFromString(r.Amount)
		if err != nil {
			errs = append(errs, FieldError{Field: "amount", Message: "must be a decimal number"})
		} else if !parsed.IsPositive() {
			errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
		} else {
			amount = parsed
		}
	}

	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if _, ok := mmqr.NumericCurrencyCode(r.Currency); !ok {
		errs = append(errs, FieldError{Field: "currency", Message: "unsupported currency"})
	}

	return errs, amount
}

type createWithdrawalRequest struct {
	Provider       string `json:"provider"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	PayoutMethodID string `json:"payout_method_id,omitempty"`
	Recipient      *struct {
		Phone string `json:"phone"`
		Name  string `json:"name"`
	} `json:"recipient,omitempty"`
}

func (r createWithdrawalRequest) Validate() ([]FieldError, decimal.Decimal) {
	errs, amount := createDepositRequest{
		Provider: r.Provider,
		Amount:   r.Amount,
		Currency: r.Currency,
	}.Validate()

	if r.PayoutMethodID == "" && r.Recipient == nil {
		errs = append(errs, FieldError{Field: "recipient", Message: "recipient or payout_method_id required"})
	}
	if r.PayoutMethodID != "" {
		if _, err := uuid.Parse(r.PayoutMethodID); err != nil {
			errs = append(errs, FieldError{Field: "payout_method_id", Message: "must be a valid UUID"})
		}
	}
	if r.Recipient != nil && r.Recipient.Phone == "" {
		errs = append(errs, FieldError{Field: "recipient.phone", Message: "required"})
	}

	return errs, amount
}

type refundRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

type qrRequest struct {
	Provider string `json:"provider,omitempty"`
	Amount   string `json:"amount,omitempty"`
	Currency string `json:"currency,omitempty"`
	OrderID  string `json:"order_id"`
	Purpose  string `json:"purpose,omitempty"`
}

type refundDTO struct {
	ID               uuid.UUID       `json:"id"`
	Amount           decimal.Decimal `json:"amount"`
	Reason           string          `json:"reason,omitempty"`
	Status           string          `json:"status"`
	ProviderRefundID *string         `json:"provider_refund_id,omitempty"`
	ProcessedBy      string          `json:"processed_by,omitempty"`
	ProcessedAt      time.Time       `json:"processed_at"`
}

type qrDTO struct {
	Data      string     `json:"data,omitempty"`
	ImageURL  *string    `json:"image_url,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type transactionDTO struct {
	ID                    uuid.UUID             `json:"id"`
	TransactionNumber     string                `json:"transaction_number"`
	OrderID               string                `json:"order_id"`
	Type                  string                `json:"type"`
	Provider              string                `json:"provider"`
	Status                string                `json:"status"`
	Amount                decimal.Decimal       `json:"amount"`
	Currency              string                `json:"currency"`
	RefundedAmount        decimal.Decimal       `json:"refunded_amount"`
	Refunds               []refundDTO           `json:"refunds,omitempty"`
	ProviderOrderID       *string               `json:"provider_order_id,omitempty"`
	ProviderTransactionID *string               `json:"provider_transaction_id,omitempty"`
	QRCode                *qrDTO                `json:"qr_code,omitempty"`
	Recipient             *domain.RecipientInfo `json:"recipient,omitempty"`
	ErrorMessage          *string               `json:"error_message,omitempty"`
	ErrorCode             *string               `json:"error_code,omitempty"`
	InitiatedAt           time.Time             `json:"initiated_at"`
	CompletedAt           *time.Time            `json:"completed_at,omitempty"`
	FailedAt              *time.Time            `json:"failed_at,omitempty"`
}

func toTransactionDTO(t *domain.PaymentTransaction) transactionDTO {
	dto := transactionDTO{
		ID:                    t.ID,
		TransactionNumber:     t.TransactionNumber,
		OrderID:               t.OrderID,
		Type:                  string(t.Type),
		Provider:              t.Provider,
		Status:                string(t.Status),
		Amount:                t.Amount,
		Currency:              t.Currency,
		RefundedAmount:        t.RefundedAmount,
		ProviderOrderID:       t.ProviderOrderID,
		ProviderTransactionID: t.ProviderTransactionID,
		Recipient:             t.Recipient,
		ErrorMessage:          t.ErrorMessage,
		ErrorCode:             t.ErrorCode,
		InitiatedAt:           t.InitiatedAt,
		CompletedAt:           t.CompletedAt,
		FailedAt:              t.FailedAt,
	}
	for _, r := range t.Refunds {
		dto.Refunds = append(dto.Refunds, toRefundDTO(&r))
	}
	if t.QRCode != nil {
		dto.QRCode = &qrDTO{
			Data:      t.QRCode.Data,
			ImageURL:  t.QRCode.ImageURL,
			ExpiresAt: t.QRCode.ExpiresAt,
		}
	}
	return dto
}

func toRefundDTO(r *domain.Refund) refundDTO {
	return refundDTO{
		ID:               r.ID,
		Amount:           r.Amount,
		Reason:           r.Reason,
		Status:           string(r.Status),
		ProviderRefundID: r.ProviderRefundID,
		ProcessedBy:      r.ProcessedBy,
		ProcessedAt:      r.ProcessedAt,
	}
}

func (h *PaymentHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req createDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	fields, amount := req.Validate()
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	res, err := h.payments.CreateDeposit(r.Context(), payments.DepositParams{
		UserID:         userID,
		Provider:       req.Provider,
		Amount:         amount,
		Currency:       req.Currency,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Description:    req.Description,
	})
	if err != nil {
		log.Warn("deposit creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if res.IsDuplicate {
		status = http.StatusOK
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%s", res.Transaction.ID))
	RespondSuccess(w, status, toTransactionDTO(res.Transaction))
}

func (h *PaymentHandler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req createWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	fields, amount := req.Validate()
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	params := payments.WithdrawalParams{
		UserID:         userID,
		Provider:       req.Provider,
		Amount:         amount,
		Currency:       req.Currency,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	if req.PayoutMethodID != "" {
		id, _ := uuid.Parse(req.PayoutMethodID)
		params.PayoutMethodID = &id
	}
	if req.Recipient != nil {
		params.Recipient = &domain.RecipientInfo{Phone: req.Recipient.Phone, Name: req.Recipient.Name}
	}

	res, err := h.payments.CreateWithdrawal(r.Context(), params)
	if err != nil {
		log.Warn("withdrawal creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if res.IsDuplicate {
		status = http.StatusOK
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%s", res.Transaction.ID))
	RespondSuccess(w, status, toTransactionDTO(res.Transaction))
}

func (h *PaymentHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	txn, err := h.payments.GetTransaction(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toTransactionDTO(txn))
}

func (h *PaymentHandler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	txn, err := h.payments.CheckStatus(r.Context(), id)
	if err != nil {
		log.Warn("status check failed", "transaction_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toTransactionDTO(txn))
}

func (h *PaymentHandler) CreateRefund(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		RespondValidationError(w, []FieldError{{Field: "amount", Message: "must be a decimal number greater than 0"}})
		return
	}

	refund, err := h.payments.ProcessRefund(r.Context(), payments.RefundParams{
		TransactionID: id,
		Amount:        amount,
		Reason:        req.Reason,
		ProcessedBy:   userID.String(),
	})
	if err != nil {
		log.Warn("refund failed", "transaction_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusCreated, toRefundDTO(refund))
}

func (h *PaymentHandler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req qrRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if req.OrderID == "" {
		RespondValidationError(w, []FieldError{{Field: "order_id", Message: "required"}})
		return
	}

	amount := decimal.Zero
	if req.Amount != "" {
		parsed, err := decimal.NewFromString(req.Amount)
		if err != nil || parsed.IsNegative() {
			RespondValidationError(w, []FieldError{{Field: "amount", Message: "must be a non-negative decimal number"}})
			return
		}
		amount = parsed
	}

	res, err := h.payments.GenerateQRCode(r.Context(), payments.QRParams{
		Provider: req.Provider,
		Amount:   amount,
		Currency: req.Currency,
		OrderID:  req.OrderID,
		Purpose:  req.Purpose,
	})
	if err != nil {
		log.Warn("qr generation failed", "order_id", req.OrderID, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]any{
		"data":           res.Data,
		"image_data_url": res.ImageDataURL,
		"image_url":      res.ImageURL,
		"expires_at":     res.ExpiresAt,
	})
}

func (h *PaymentHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	from, ok := parseTimeParam(w, r, "from")
	if !ok {
		return
	}
	to, ok := parseTimeParam(w, r, "to")
	if !ok {
		return
	}

	stats, err := h.payments.GetStatistics(r.Context(), from, to)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, stats)
}

func (h *PaymentHandler) ProviderHealth(w http.ResponseWriter, r *http.Request) {
	reports := h.payments.GetProviderHealth(r.Context())
	RespondSuccess(w, http.StatusOK, reports)
}

func (h *PaymentHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	RespondSuccess(w, http.StatusOK, h.payments.Capabilities())
}

func parseTimeParam(w http.ResponseWriter, r *http.Request, name string) (*time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: name, Message: "must be RFC3339"}})
		return nil, false
	}
	return &t, true
}
