// Package sandbox is the wallet adapter used in development and tests.
// It speaks the simulator protocol served by cmd/mock-provider: plain
// JSON over HTTP, with webhook callbacks signed
// "v1=" + hex(HMAC-SHA256(secret, timestamp + "." + payload)).
package sandbox

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/myanjobs/payments/internal/domain"
	"github.com/myanjobs/payments/internal/logging"
	"github.com/myanjobs/payments/internal/provider"
)

const Name = "sandbox"

type Adapter struct {
	baseURL       string
	webhookSecret string
	httpClient    *http.Client
}

func New(baseURL, webhookSecret string, timeout time.Duration) *Adapter {
	return &Adapter{
		baseURL:       strings.TrimRight(baseURL, "/"),
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

func (a *Adapter) Name() string { return Name }

type apiError struct {
	ErrCode string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string { return fmt.Sprintf("%s: %s", e.ErrCode, e.Message) }
func (e *apiError) Code() string  { return e.ErrCode }

type createResponse struct {
	ProviderOrderID string  `json:"provider_order_id"`
	PaymentURL      string  `json:"payment_url,omitempty"`
	QRData          string  `json:"qr_data,omitempty"`
	ExpiresAt       *string `json:"expires_at,omitempty"`
}

func (a *Adapter) CreateDeposit(ctx context.Context, req provider.DepositRequest) (*provider.DepositResult, error) {
	body := map[string]any{
		"order_id":    req.OrderID,
		"amount":      req.Amount.StringFixed(2),
		"currency":    req.Currency,
		"user_ref":    req.UserID,
		"description": req.Description,
	}

	var resp createResponse
	if err := a.post(ctx, "/v1/deposits", body, &resp); err != nil {
		return nil, fmt.Errorf("CreateDeposit: %w", err)
	}

	return &provider.DepositResult{
		ProviderOrderID: resp.ProviderOrderID,
		PaymentURL:      resp.PaymentURL,
		QRData:          resp.QRData,
		ExpiresAt:       parseTime(resp.ExpiresAt),
	}, nil
}

func (a *Adapter) CreateWithdrawal(ctx context.Context, req provider.WithdrawalRequest) (*provider.WithdrawalResult, error) {
	body := map[string]any{
		"order_id":        req.OrderID,
		"amount":          req.Amount.StringFixed(2),
		"currency":        req.Currency,
		"recipient_phone": req.RecipientPhone,
		"recipient_name":  req.RecipientName,
	}

	var resp createResponse
	if err := a.post(ctx, "/v1/withdrawals", body, &resp); err != nil {
		return nil, fmt.Errorf("CreateWithdrawal: %w", err)
	}

	return &provider.WithdrawalResult{ProviderOrderID: resp.ProviderOrderID}, nil
}

type statusResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	FailureReason string `json:"failure_reason,omitempty"`
	FailureCode   string `json:"failure_code,omitempty"`
}

func (a *Adapter) CheckStatus(ctx context.Context, req provider.StatusRequest) (*provider.StatusResult, error) {
	path := "/v1/orders/" + req.ProviderOrderID
	if req.ProviderOrderID == "" {
		path = "/v1/orders/by-ref/" + req.OrderID
	}

	var resp statusResponse
	if err := a.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("CheckStatus: %w", err)
	}

	return &provider.StatusResult{
		Status:                mapStatus(resp.Status),
		ProviderTransactionID: resp.TransactionID,
		FailureReason:         resp.FailureReason,
		FailureCode:           resp.FailureCode,
	}, nil
}

type cancelResponse struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
}

func (a *Adapter) Cancel(ctx context.Context, req provider.CancelRequest) (*provider.CancelResult, error) {
	body := map[string]any{
		"order_id": req.OrderID,
		"amount":   req.Amount.StringFixed(2),
		"reason":   req.Reason,
	}

	var resp cancelResponse
	if err := a.post(ctx, "/v1/orders/"+req.ProviderOrderID+"/cancel", body, &resp); err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}

	status := domain.RefundStatusPending
	if resp.Status == "completed" {
		status = domain.RefundStatusCompleted
	}
	return &provider.CancelResult{ProviderRefundID: resp.RefundID, Status: status}, nil
}

// VerifyWebhook checks the "v1=<hex>" signature over
// "<timestamp>.<payload>". The timestamp travels inside the payload so
// retried deliveries verify identically.
func (a *Adapter) VerifyWebhook(payload []byte, signature string) error {
	if signature == "" {
		return fmt.Errorf("VerifyWebhook: empty signature: %w", domain.ErrInvalidSignature)
	}

	provided := signature
	if i := strings.IndexByte(signature, '='); i >= 0 {
		provided = signature[i+1:]
	}

	var envelope struct {
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.Timestamp == "" {
		return fmt.Errorf("VerifyWebhook: missing timestamp: %w", domain.ErrInvalidSignature)
	}

	expected := Sign(a.webhookSecret, envelope.Timestamp, payload)
	if !hmac.Equal([]byte(provided), []byte(expected)) {
		return fmt.Errorf("VerifyWebhook: %w", domain.ErrInvalidSignature)
	}
	return nil
}

// Sign computes the hex HMAC the simulator attaches to callbacks, sans
// the "v1=" prefix.
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type webhookPayload struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
	FailureCode   string `json:"failure_code,omitempty"`
	Timestamp     string `json:"timestamp"`
}

func (a *Adapter) ParseWebhook(payload []byte) (*provider.WebhookEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("ParseWebhook: %v: %w", err, domain.ErrInvalidRequest)
	}
	if p.OrderID == "" {
		return nil, fmt.Errorf("ParseWebhook: missing order_id: %w", domain.ErrInvalidRequest)
	}

	return &provider.WebhookEvent{
		OrderID:               p.OrderID,
		ProviderTransactionID: p.TransactionID,
		Status:                mapStatus(p.Status),
		FailureReason:         p.FailureReason,
		FailureCode:           p.FailureCode,
		OccurredAt:            parseTime(&p.Timestamp),
	}, nil
}

func (a *Adapter) GenerateQRCode(ctx context.Context, req provider.QRRequest) (*provider.QRResult, error) {
	body := map[string]any{
		"order_id": req.OrderID,
		"amount":   req.Amount.StringFixed(2),
		"currency": req.Currency,
	}

	var resp struct {
		QRData    string  `json:"qr_data"`
		ImageURL  string  `json:"image_url"`
		ExpiresAt *string `json:"expires_at"`
	}
	if err := a.post(ctx, "/v1/qr", body, &resp); err != nil {
		return nil, fmt.Errorf("GenerateQRCode: %w", err)
	}

	return &provider.QRResult{
		Data:      resp.QRData,
		ImageURL:  resp.ImageURL,
		ExpiresAt: parseTime(resp.ExpiresAt),
	}, nil
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := a.get(ctx, "/health", &resp); err != nil {
		return fmt.Errorf("HealthCheck: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("HealthCheck: simulator reports %q", resp.Status)
	}
	return nil
}

func (a *Adapter) post(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("post: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("post: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, out)
}

func (a *Adapter) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("get: build request: %w", err)
	}
	return a.do(req, out)
}

func (a *Adapter) do(req *http.Request, out any) error {
	log := logging.FromContext(req.Context())

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do: send: %w", err)
	}
	defer resp.Body.Close()

	log.Debug("sandbox provider call",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("do: read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.ErrCode != "" {
			return &apiErr
		}
		return fmt.Errorf("do: unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("do: decode: %w", err)
		}
	}
	return nil
}

func mapStatus(s string) domain.TransactionStatus {
	switch s {
	case "created", "awaiting_payment":
		return domain.TransactionStatusInitiated
	case "processing":
		return domain.TransactionStatusProcessing
	case "success", "completed":
		return domain.TransactionStatusCompleted
	case "failed", "expired":
		return domain.TransactionStatusFailed
	case "cancelled":
		return domain.TransactionStatusCancelled
	default:
		return domain.TransactionStatusPending
	}
}

func parseTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	return &t
}
