package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/myanjobs/payments/internal/domain"
	"github.com/myanjobs/payments/internal/logging"
	"github.com/myanjobs/payments/internal/service/payments"
)

type webhookService interface {
	HandleWebhook(ctx context.Context, provider string, payload []byte, headers map[string]string) (*payments.WebhookResult, error)
}

type WebhookHandler struct {
	webhooks webhookService
}

func NewWebhookHandler(webhooks webhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Receive accepts one provider callback. A 2xx tells the provider to
// stop retrying, so unknown orders are acknowledged; only signature,
// parse, and internal failures are surfaced as errors.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	providerName := r.PathValue("provider")
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	headers := map[string]string{}
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}

	res, err := h.webhooks.HandleWebhook(r.Context(), providerName, body, headers)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSignature):
			log.Warn("webhook signature rejected", "provider", providerName)
			RespondAppError(w, ErrInvalidSignature, nil)
		case errors.Is(err, domain.ErrProviderNotConfigured):
			RespondAppError(w, ErrResourceNotFound, nil)
		case errors.Is(err, domain.ErrInvalidRequest):
			log.Warn("webhook payload rejected", "provider", providerName, "error", err)
			RespondAppError(w, ErrInvalidRequest, nil)
		default:
			// transient failure; a 5xx keeps the provider retrying the
			// delivery instead of discarding it
			log.Error("webhook processing failed", "provider", providerName, "error", err)
			RespondAppError(w, ErrInternalError, nil)
		}
		return
	}

	status := "ignored"
	if res.Applied {
		status = "processed"
	}
	RespondSuccess(w, http.StatusOK, map[string]any{
		"status":   status,
		"order_id": res.OrderID,
		"found":    res.Found,
	})
}
