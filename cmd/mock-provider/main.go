// The mock provider is a wallet simulator for local development. It
// serves the sandbox adapter protocol, auto-advances orders, and
// delivers signed webhooks back to the API the way a real wallet
// network would.
//
// Orders whose amount ends in ".99" fail instead of completing, which
// gives the failure path something to exercise without a real outage.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/google/uuid"

	"github.com/myanjobs/payments/internal/logging"
	"github.com/myanjobs/payments/internal/provider/sandbox"
)

type simulatorConfig struct {
	Port          int           `env:"PORT" envDefault:"8081"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv        string        `env:"APP_ENV" envDefault:"development"`
	WebhookURL    string        `env:"WEBHOOK_URL" envDefault:"http://api:8080/api/v1/webhooks/sandbox"`
	WebhookSecret string        `env:"SANDBOX_WEBHOOK_SECRET"`
	SettleAfter   time.Duration `env:"SETTLE_AFTER" envDefault:"3s"`
}

type order struct {
	ProviderOrderID string
	OrderRef        string
	Amount          string
	Status          string
	TransactionID   string
	FailureReason   string
	FailureCode     string
}

type simulator struct {
	cfg simulatorConfig

	mu     sync.Mutex
	orders map[string]*order // keyed by provider order id
	byRef  map[string]string
}

func main() {
	cfg, err := env.ParseAs[simulatorConfig]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("mock-provider", cfg.LogLevel, cfg.AppEnv)

	sim := &simulator{
		cfg:    cfg,
		orders: map[string]*order{},
		byRef:  map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", sim.health)
	mux.HandleFunc("POST /v1/deposits", sim.createDeposit)
	mux.HandleFunc("POST /v1/withdrawals", sim.createWithdrawal)
	mux.HandleFunc("GET /v1/orders/{id}", sim.orderStatus)
	mux.HandleFunc("GET /v1/orders/by-ref/{ref}", sim.orderStatusByRef)
	mux.HandleFunc("POST /v1/orders/{id}/cancel", sim.cancelOrder)
	mux.HandleFunc("POST /v1/qr", sim.generateQR)

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("mock provider started", "addr", addr, "settle_after", cfg.SettleAfter)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func (s *simulator) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createOrderRequest struct {
	OrderID string `json:"order_id"`
	Amount  string `json:"amount"`
}

func (s *simulator) createDeposit(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "order_id is required")
		return
	}

	o := s.newOrder(req, "awaiting_payment")
	expires := time.Now().UTC().Add(15 * time.Minute).Format(time.RFC3339)
	go s.settleLater(o)

	writeJSON(w, http.StatusCreated, map[string]any{
		"provider_order_id": o.ProviderOrderID,
		"payment_url":       "http://wallet.sandbox.local/pay/" + o.ProviderOrderID,
		"qr_data":           "SANDBOX-QR-" + o.ProviderOrderID,
		"expires_at":        expires,
	})
}

func (s *simulator) createWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "order_id is required")
		return
	}

	o := s.newOrder(req, "processing")
	go s.settleLater(o)

	writeJSON(w, http.StatusCreated, map[string]any{
		"provider_order_id": o.ProviderOrderID,
	})
}

func (s *simulator) orderStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	o, ok := s.orders[r.PathValue("id")]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "order_not_found", "no such order")
		return
	}
	writeJSON(w, http.StatusOK, statusBody(o))
}

func (s *simulator) orderStatusByRef(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	id, ok := s.byRef[r.PathValue("ref")]
	var o *order
	if ok {
		o = s.orders[id]
	}
	s.mu.Unlock()
	if o == nil {
		writeError(w, http.StatusNotFound, "order_not_found", "no such order")
		return
	}
	writeJSON(w, http.StatusOK, statusBody(o))
}

func (s *simulator) cancelOrder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	o, ok := s.orders[r.PathValue("id")]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "order_not_found", "no such order")
		return
	}
	if o.Status != "success" {
		writeError(w, http.StatusConflict, "not_refundable", "order has not settled")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"refund_id": "RF-" + uuid.NewString()[:8],
		"status":    "completed",
	})
}

func (s *simulator) generateQR(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "order_id is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"qr_data":    "SANDBOX-QR-" + req.OrderID,
		"image_url":  "http://wallet.sandbox.local/qr/" + req.OrderID + ".png",
		"expires_at": time.Now().UTC().Add(15 * time.Minute).Format(time.RFC3339),
	})
}

func (s *simulator) newOrder(req createOrderRequest, status string) *order {
	o := &order{
		ProviderOrderID: "SBX-" + uuid.NewString()[:13],
		OrderRef:        req.OrderID,
		Amount:          req.Amount,
		Status:          status,
	}
	s.mu.Lock()
	s.orders[o.ProviderOrderID] = o
	s.byRef[o.OrderRef] = o.ProviderOrderID
	s.mu.Unlock()
	return o
}

// settleLater moves the order to its final state after the configured
// delay and delivers the webhook.
func (s *simulator) settleLater(o *order) {
	time.Sleep(s.cfg.SettleAfter)

	s.mu.Lock()
	if strings.HasSuffix(o.Amount, ".99") {
		o.Status = "failed"
		o.FailureReason = "insufficient wallet balance"
		o.FailureCode = "E1001"
	} else {
		o.Status = "success"
		o.TransactionID = "WTX-" + uuid.NewString()[:8]
	}
	payload := map[string]any{
		"order_id":       o.OrderRef,
		"transaction_id": o.TransactionID,
		"status":         o.Status,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
	if o.Status == "failed" {
		payload["failure_reason"] = o.FailureReason
		payload["failure_code"] = o.FailureCode
	}
	s.mu.Unlock()

	s.deliverWebhook(payload)
}

func (s *simulator) deliverWebhook(payload map[string]any) {
	if s.cfg.WebhookURL == "" {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal webhook", "error", err)
		return
	}
	timestamp, _ := payload["timestamp"].(string)
	signature := "v1=" + sandbox.Sign(s.cfg.WebhookSecret, timestamp, body)

	req, err := http.NewRequest(http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		slog.Error("failed to build webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Wallet-Signature", signature)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Warn("webhook delivery failed", "order_id", payload["order_id"], "error", err)
		return
	}
	resp.Body.Close()
	slog.Info("webhook delivered",
		"order_id", payload["order_id"],
		"status", payload["status"],
		"response_code", resp.StatusCode,
	)
}

func statusBody(o *order) map[string]any {
	body := map[string]any{
		"status":         o.Status,
		"transaction_id": o.TransactionID,
	}
	if o.FailureReason != "" {
		body["failure_reason"] = o.FailureReason
		body["failure_code"] = o.FailureCode
	}
	return body
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
