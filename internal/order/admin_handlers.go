package order

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/arvel-dev/backend-pricing/internal/common"
)

// AdminStore loads and saves orders for administrative transitions.
type AdminStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	SaveOrder(ctx context.Context, o *Order) error
}

// AdminHandler provides administrative order lifecycle endpoints.
type AdminHandler struct {
	Store    AdminStore
	NotFound error
}

type patchStateRequest struct {
	State string `json:"state"`
}

var allowedTransitions = map[State][]State{
	StateDraft:  {StatePlaced, StateCanceled},
	StatePlaced: {StateCompleted, StateCanceled},
}

func transitionAllowed(from, to State) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PatchState moves an order through its lifecycle with state-machine
// validation: draft to placed or canceled, placed to completed or canceled.
func (h *AdminHandler) PatchState(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	var req patchStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	target := State(req.State)
	switch target {
	case StateDraft, StatePlaced, StateCompleted, StateCanceled:
	default:
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unsupported state", nil)
		return
	}

	o, err := h.Store.GetOrder(r.Context(), id)
	if err != nil {
		if h.NotFound != nil && errors.Is(err, h.NotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	if !transitionAllowed(o.State, target) {
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", "transition not allowed", map[string]any{
			"from": string(o.State),
			"to":   string(target),
		})
		return
	}
	if target == StatePlaced && len(o.LineItems) == 0 {
		common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_ORDER", "an empty order cannot be placed", nil)
		return
	}

	o.State = target
	if err := h.Store.SaveOrder(r.Context(), o); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to save order", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": o.ID, "state": string(o.State)}})
}
