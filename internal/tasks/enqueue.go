package tasks

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/arvel-dev/backend-pricing/internal/common"
)

// EnqueueHandler exposes on-demand enqueueing of the background jobs, so
// operators can trigger a sweep or an order recalculation without waiting for
// the worker's schedule.
type EnqueueHandler struct {
	Client Enqueuer
}

// Sweep queues one promotion sweep run.
func (h *EnqueueHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	if h.Client == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "task client not configured", nil)
		return
	}
	info, err := h.Client.EnqueueContext(r.Context(), NewPromotionSweepTask())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "enqueue sweep", nil)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"data": map[string]any{
		"taskId": info.ID,
		"queue":  info.Queue,
	}})
}

// Recalculate queues a recalculation for one order.
func (h *EnqueueHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	if h.Client == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "task client not configured", nil)
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	task, err := NewOrderRecalculateTask(orderID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "build recalculate task", nil)
		return
	}
	info, err := h.Client.EnqueueContext(r.Context(), task)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "enqueue recalculate", nil)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"data": map[string]any{
		"taskId": info.ID,
		"queue":  info.Queue,
	}})
}
