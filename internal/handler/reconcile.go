package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/myanjobs/payments/internal/logging"
	"github.com/myanjobs/payments/internal/service/payments"
)

type reconcileService interface {
	ReconcileTransactions(ctx context.Context, opts payments.ReconcileOptions) (*payments.ReconcileResult, error)
}

// ReconcileHandler exposes the reconciliation sweep on an internal
// endpoint, for schedulers that prefer HTTP over running the
// reconciler binary.
type ReconcileHandler struct {
	reconciler reconcileService
}

func NewReconcileHandler(reconciler reconcileService) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler}
}

type reconcileRequest struct {
	MaxAgeSeconds int `json:"max_age_seconds,omitempty"`
	Limit         int `json:"limit,omitempty"`
}

func (h *ReconcileHandler) Run(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req reconcileRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondAppError(w, ErrInvalidRequest, nil)
			return
		}
	}

	res, err := h.reconciler.ReconcileTransactions(r.Context(), payments.ReconcileOptions{
		MaxAge: time.Duration(req.MaxAgeSeconds) * time.Second,
		Limit:  req.Limit,
	})
	if err != nil {
		log.Error("reconcile run failed", "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, res)
}
