package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myanjobs/payments/internal/auth"
	"github.com/myanjobs/payments/internal/domain"
	"github.com/myanjobs/payments/internal/service/payments"
)

type mockPaymentService struct {
	depositParams    *payments.DepositParams
	depositResult    *payments.DepositResult
	withdrawalResult *payments.WithdrawalResult
	transaction      *domain.PaymentTransaction
	refund           *domain.Refund
	qr               *payments.QRCodeResult
	err              error
}

func (m *mockPaymentService) CreateDeposit(_ context.Context, p payments.DepositParams) (*payments.DepositResult, error) {
	m.depositParams = &p
	return m.depositResult, m.err
}

func (m *mockPaymentService) CreateWithdrawal(_ context.Context, _ payments.WithdrawalParams) (*payments.WithdrawalResult, error) {
	return m.withdrawalResult, m.err
}

func (m *mockPaymentService) GetTransaction(_ context.Context, _ uuid.UUID) (*domain.PaymentTransaction, error) {
	return m.transaction, m.err
}

func (m *mockPaymentService) CheckStatus(_ context.Context, _ uuid.UUID) (*domain.PaymentTransaction, error) {
	return m.transaction, m.err
}

func (m *mockPaymentService) ProcessRefund(_ context.Context, _ payments.RefundParams) (*domain.Refund, error) {
	return m.refund, m.err
}

func (m *mockPaymentService) GenerateQRCode(_ context.Context, _ payments.QRParams) (*payments.QRCodeResult, error) {
	return m.qr, m.err
}

func (m *mockPaymentService) GetStatistics(_ context.Context, _, _ *time.Time) (*domain.Statistics, error) {
	return &domain.Statistics{}, m.err
}

func (m *mockPaymentService) GetProviderHealth(_ context.Context) []domain.ProviderHealth {
	return []domain.ProviderHealth{{Provider: "sandbox", Healthy: true}}
}

func (m *mockPaymentService) Capabilities() []domain.ProviderCapability {
	return []domain.ProviderCapability{{Name: "sandbox"}}
}

func sampleTransaction() *domain.PaymentTransaction {
	return &domain.PaymentTransaction{
		ID:                uuid.New(),
		TransactionNumber: "TXN-20260831-deadbeef",
		OrderID:           "DEP-1756600000000-abc123",
		Type:              domain.TransactionTypeDeposit,
		Provider:          "sandbox",
		Status:            domain.TransactionStatusInitiated,
		Amount:            decimal.NewFromInt(1500),
		Currency:          "MMK",
		UserID:            uuid.New(),
		InitiatedAt:       time.Now().UTC(),
	}
}

func authedRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := auth.ContextWithUserID(req.Context(), uuid.New())
	return req.WithContext(ctx)
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestCreateDepositHandler(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		txn := sampleTransaction()
		svc := &mockPaymentService{depositResult: &payments.DepositResult{Transaction: txn}}
		h := NewPaymentHandler(svc)

		req := authedRequest(http.MethodPost, "/api/v1/deposits",
			`{"provider":"sandbox","amount":"1500","currency":"MMK"}`)
		req.Header.Set("Idempotency-Key", "idem-42")
		rec := httptest.NewRecorder()
		h.CreateDeposit(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, fmt.Sprintf("/api/v1/transactions/%s", txn.ID), rec.Header().Get("Location"))

		resp := decodeResponse(t, rec)
		assert.True(t, resp.Success)

		require.NotNil(t, svc.depositParams)
		assert.Equal(t, "idem-42", svc.depositParams.IdempotencyKey)
		assert.True(t, svc.depositParams.Amount.Equal(decimal.NewFromInt(1500)))
	})

	t.Run("idempotent replay answers 200", func(t *testing.T) {
		txn := sampleTransaction()
		svc := &mockPaymentService{depositResult: &payments.DepositResult{Transaction: txn, IsDuplicate: true}}
		h := NewPaymentHandler(svc)

		rec := httptest.NewRecorder()
		h.CreateDeposit(rec, authedRequest(http.MethodPost, "/api/v1/deposits",
			`{"provider":"sandbox","amount":"1500","currency":"MMK"}`))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{"missing provider", `{"amount":"100","currency":"MMK"}`},
			{"non-numeric amount", `{"provider":"sandbox","amount":"abc","currency":"MMK"}`},
			{"zero amount", `{"provider":"sandbox","amount":"0","currency":"MMK"}`},
			{"unsupported currency", `{"provider":"sandbox","amount":"100","currency":"ZZZ"}`},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				h := NewPaymentHandler(&mockPaymentService{})
				rec := httptest.NewRecorder()
				h.CreateDeposit(rec, authedRequest(http.MethodPost, "/api/v1/deposits", tc.body))

				assert.Equal(t, http.StatusBadRequest, rec.Code)
				resp := decodeResponse(t, rec)
				require.NotNil(t, resp.Error)
				assert.Equal(t, "VALIDATION_FAILED", resp.Error.Code)
			})
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		h := NewPaymentHandler(&mockPaymentService{})
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/deposits",
			strings.NewReader(`{"provider":"sandbox","amount":"100","currency":"MMK"}`))
		h.CreateDeposit(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("domain errors map to status codes", func(t *testing.T) {
		tests := []struct {
			err      error
			status   int
			wantCode string
		}{
			{domain.ErrProviderNotConfigured, http.StatusUnprocessableEntity, "PROVIDER_NOT_CONFIGURED"},
			{domain.ErrProviderOperation, http.StatusBadGateway, "PROVIDER_UNAVAILABLE"},
			{domain.ErrUnsupportedOperation, http.StatusUnprocessableEntity, "UNSUPPORTED_OPERATION"},
			{domain.ErrDuplicateIdempotencyKey, http.StatusConflict, "DUPLICATE_PAYMENT"},
		}
		for _, tc := range tests {
			t.Run(tc.wantCode, func(t *testing.T) {
				h := NewPaymentHandler(&mockPaymentService{err: fmt.Errorf("CreateDeposit: %w", tc.err)})
				rec := httptest.NewRecorder()
				h.CreateDeposit(rec, authedRequest(http.MethodPost, "/api/v1/deposits",
					`{"provider":"sandbox","amount":"100","currency":"MMK"}`))

				assert.Equal(t, tc.status, rec.Code)
				resp := decodeResponse(t, rec)
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
			})
		}
	})
}

func TestCreateWithdrawalHandler(t *testing.T) {
	t.Run("requires a destination", func(t *testing.T) {
		h := NewPaymentHandler(&mockPaymentService{})
		rec := httptest.NewRecorder()
		h.CreateWithdrawal(rec, authedRequest(http.MethodPost, "/api/v1/withdrawals",
			`{"provider":"sandbox","amount":"100","currency":"MMK"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("created with inline recipient", func(t *testing.T) {
		txn := sampleTransaction()
		txn.Type = domain.TransactionTypeWithdrawal
		txn.Status = domain.TransactionStatusProcessing
		svc := &mockPaymentService{withdrawalResult: &payments.WithdrawalResult{Transaction: txn}}
		h := NewPaymentHandler(svc)

		rec := httptest.NewRecorder()
		h.CreateWithdrawal(rec, authedRequest(http.MethodPost, "/api/v1/withdrawals",
			`{"provider":"sandbox","amount":"100","currency":"MMK","recipient":{"phone":"+959777","name":"Mya"}}`))
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("unverified payout method", func(t *testing.T) {
		h := NewPaymentHandler(&mockPaymentService{err: domain.ErrPayoutMethodNotVerified})
		rec := httptest.NewRecorder()
		h.CreateWithdrawal(rec, authedRequest(http.MethodPost, "/api/v1/withdrawals",
			fmt.Sprintf(`{"provider":"sandbox","amount":"100","currency":"MMK","payout_method_id":"%s"}`, uuid.New())))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		resp := decodeResponse(t, rec)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "PAYOUT_METHOD_NOT_VERIFIED", resp.Error.Code)
	})
}

func TestGetTransactionHandler(t *testing.T) {
	t.Run("invalid id", func(t *testing.T) {
		h := NewPaymentHandler(&mockPaymentService{})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/not-a-uuid", nil)
		req.SetPathValue("id", "not-a-uuid")
		rec := httptest.NewRecorder()
		h.GetTransaction(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		h := NewPaymentHandler(&mockPaymentService{err: domain.ErrNotFound})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/"+uuid.NewString(), nil)
		req.SetPathValue("id", uuid.NewString())
		rec := httptest.NewRecorder()
		h.GetTransaction(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("found", func(t *testing.T) {
		txn := sampleTransaction()
		h := NewPaymentHandler(&mockPaymentService{transaction: txn})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/"+txn.ID.String(), nil)
		req.SetPathValue("id", txn.ID.String())
		rec := httptest.NewRecorder()
		h.GetTransaction(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		resp := decodeResponse(t, rec)
		assert.True(t, resp.Success)
	})
}

func TestCreateRefundHandler(t *testing.T) {
	txnID := uuid.New()

	t.Run("refund bound exceeded", func(t *testing.T) {
		h := NewPaymentHandler(&mockPaymentService{err: domain.ErrRefundExceedsRemaining})
		req := authedRequest(http.MethodPost, "/api/v1/transactions/"+txnID.String()+"/refunds",
			`{"amount":"4000","reason":"over"}`)
		req.SetPathValue("id", txnID.String())
		rec := httptest.NewRecorder()
		h.CreateRefund(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		resp := decodeResponse(t, rec)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "REFUND_EXCEEDS_REMAINING", resp.Error.Code)
	})

	t.Run("created", func(t *testing.T) {
		refund := &domain.Refund{
			ID:            uuid.New(),
			TransactionID: txnID,
			Amount:        decimal.NewFromInt(500),
			Status:        domain.RefundStatusCompleted,
			ProcessedAt:   time.Now().UTC(),
		}
		h := NewPaymentHandler(&mockPaymentService{refund: refund})
		req := authedRequest(http.MethodPost, "/api/v1/transactions/"+txnID.String()+"/refunds",
			`{"amount":"500","reason":"customer request"}`)
		req.SetPathValue("id", txnID.String())
		rec := httptest.NewRecorder()
		h.CreateRefund(rec, req)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})
}

func TestGenerateQRHandler(t *testing.T) {
	t.Run("order id required", func(t *testing.T) {
		h := NewPaymentHandler(&mockPaymentService{})
		rec := httptest.NewRecorder()
		h.GenerateQR(rec, authedRequest(http.MethodPost, "/api/v1/qr", `{"amount":"100"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ok", func(t *testing.T) {
		h := NewPaymentHandler(&mockPaymentService{qr: &payments.QRCodeResult{
			Data:         "00020101021226...",
			ImageDataURL: "data:image/png;base64,xxx",
			ExpiresAt:    time.Now().UTC().Add(15 * time.Minute),
		}})
		rec := httptest.NewRecorder()
		h.GenerateQR(rec, authedRequest(http.MethodPost, "/api/v1/qr",
			`{"order_id":"ORD-1","amount":"100","currency":"MMK"}`))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
