package tax

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arvel-dev/backend-pricing/internal/common"
	"github.com/arvel-dev/backend-pricing/internal/condition"
)

// Store is the persistence surface of the tax rate admin endpoints.
type Store interface {
	ListTaxRates(ctx context.Context) ([]Rate, error)
	SaveTaxRate(ctx context.Context, rate Rate) error
	DeleteTaxRate(ctx context.Context, id uuid.UUID) error
}

// Handler provides the tax rate admin CRUD endpoints.
type Handler struct {
	Store    Store
	Registry *condition.Registry
	Validate *validator.Validate
	NotFound error
}

type rateRequest struct {
	Label            string                      `json:"label" validate:"required"`
	Percentage       string                      `json:"percentage" validate:"required"`
	DisplayInclusive bool                        `json:"displayInclusive"`
	Conditions       []condition.StoredCondition `json:"conditions"`
}

// List returns every configured tax rate.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "tax store not configured", nil)
		return
	}
	rates, err := h.Store.ListTaxRates(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list tax rates", nil)
		return
	}
	views := make([]map[string]any, 0, len(rates))
	for _, rate := range rates {
		view, err := rateView(rate)
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to render tax rate", nil)
			return
		}
		views = append(views, view)
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views})
}

// Create stores a new tax rate.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "tax store not configured", nil)
		return
	}
	rate, ok := h.decodeRate(w, r, uuid.New())
	if !ok {
		return
	}
	if err := h.Store.SaveTaxRate(r.Context(), rate); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to save tax rate", nil)
		return
	}
	view, err := rateView(rate)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to render tax rate", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": view})
}

// Update replaces a tax rate's definition.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "tax store not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "rateId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid tax rate id", nil)
		return
	}
	rate, ok := h.decodeRate(w, r, id)
	if !ok {
		return
	}
	if err := h.Store.SaveTaxRate(r.Context(), rate); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to save tax rate", nil)
		return
	}
	view, err := rateView(rate)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to render tax rate", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// Delete removes a tax rate.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "tax store not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "rateId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid tax rate id", nil)
		return
	}
	if err := h.Store.DeleteTaxRate(r.Context(), id); err != nil {
		if h.NotFound != nil && errors.Is(err, h.NotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "tax rate not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to delete tax rate", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeRate(w http.ResponseWriter, r *http.Request, id uuid.UUID) (Rate, bool) {
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return Rate{}, false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid payload", nil)
			return Rate{}, false
		}
	}
	percentage, err := decimal.NewFromString(req.Percentage)
	if err != nil || !percentage.IsPositive() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "percentage must be a positive decimal fraction", nil)
		return Rate{}, false
	}

	registry := h.Registry
	if registry == nil {
		registry = condition.DefaultRegistry()
	}
	conditions, err := registry.Decode(req.Conditions)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return Rate{}, false
	}

	return Rate{
		ID:               id,
		Label:            req.Label,
		Percentage:       percentage,
		DisplayInclusive: req.DisplayInclusive,
		Conditions:       conditions,
	}, true
}

func rateView(rate Rate) (map[string]any, error) {
	conditions, err := condition.Encode(rate.Conditions)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":               rate.ID,
		"label":            rate.Label,
		"percentage":       rate.Percentage.String(),
		"displayInclusive": rate.DisplayInclusive,
		"conditions":       conditions,
	}, nil
}
