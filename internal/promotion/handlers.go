package promotion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/arvel-dev/backend-pricing/internal/common"
	"github.com/arvel-dev/backend-pricing/internal/condition"
)

// Store is the persistence surface of the promotion admin endpoints.
type Store interface {
	GetPromotion(ctx context.Context, id uuid.UUID) (Promotion, error)
	ListPromotions(ctx context.Context) ([]Promotion, error)
	SavePromotion(ctx context.Context, p Promotion) error
	DeletePromotion(ctx context.Context, id uuid.UUID) error
}

// Handler provides the promotion admin CRUD endpoints. Conditions and offers
// travel in their declarative form and are validated by rebuilding them
// through the condition registry, the same path the store uses.
type Handler struct {
	Store    Store
	Registry *condition.Registry
	Validate *validator.Validate
	NotFound error
}

type promotionRequest struct {
	Name          string                      `json:"name" validate:"required"`
	Code          string                      `json:"code"`
	Compatibility string                      `json:"compatibility" validate:"omitempty,oneof=any none"`
	Conditions    []condition.StoredCondition `json:"conditions"`
	Offer         *OfferSpec                  `json:"offer" validate:"required"`
	StartsAt      *time.Time                  `json:"startsAt"`
	EndsAt        *time.Time                  `json:"endsAt"`
	Enabled       bool                        `json:"enabled"`
}

// List returns every promotion, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promotion store not configured", nil)
		return
	}
	promotions, err := h.Store.ListPromotions(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list promotions", nil)
		return
	}
	views := make([]map[string]any, 0, len(promotions))
	for _, p := range promotions {
		view, err := promotionView(p)
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to render promotion", nil)
			return
		}
		views = append(views, view)
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views})
}

// Get returns one promotion by id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promotion store not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "promotionId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid promotion id", nil)
		return
	}
	p, err := h.Store.GetPromotion(r.Context(), id)
	if err != nil {
		if h.NotFound != nil && errors.Is(err, h.NotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "promotion not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load promotion", nil)
		return
	}
	view, err := promotionView(p)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to render promotion", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// Create stores a new promotion.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promotion store not configured", nil)
		return
	}
	p, ok := h.decodePromotion(w, r, uuid.New())
	if !ok {
		return
	}
	if err := h.Store.SavePromotion(r.Context(), p); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to save promotion", nil)
		return
	}
	view, err := promotionView(p)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to render promotion", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": view})
}

// Update replaces a promotion's definition.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promotion store not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "promotionId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid promotion id", nil)
		return
	}
	if _, err := h.Store.GetPromotion(r.Context(), id); err != nil {
		if h.NotFound != nil && errors.Is(err, h.NotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "promotion not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load promotion", nil)
		return
	}
	p, ok := h.decodePromotion(w, r, id)
	if !ok {
		return
	}
	if err := h.Store.SavePromotion(r.Context(), p); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to save promotion", nil)
		return
	}
	view, err := promotionView(p)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to render promotion", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// Delete removes a promotion.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promotion store not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "promotionId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid promotion id", nil)
		return
	}
	if err := h.Store.DeletePromotion(r.Context(), id); err != nil {
		if h.NotFound != nil && errors.Is(err, h.NotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "promotion not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to delete promotion", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodePromotion(w http.ResponseWriter, r *http.Request, id uuid.UUID) (Promotion, bool) {
	var req promotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return Promotion{}, false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid payload", nil)
			return Promotion{}, false
		}
	}

	registry := h.Registry
	if registry == nil {
		registry = condition.DefaultRegistry()
	}
	conditions, err := registry.Decode(req.Conditions)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return Promotion{}, false
	}
	var offer Offer
	if req.Offer != nil {
		if offer, err = OfferFromSpec(*req.Offer, registry); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return Promotion{}, false
		}
	}

	compatibility := Compatibility(req.Compatibility)
	if compatibility == "" {
		compatibility = CompatibilityAny
	}
	return Promotion{
		ID:            id,
		Name:          req.Name,
		Code:          req.Code,
		Compatibility: compatibility,
		Conditions:    conditions,
		Offer:         offer,
		StartsAt:      req.StartsAt,
		EndsAt:        req.EndsAt,
		Enabled:       req.Enabled,
	}, true
}

func promotionView(p Promotion) (map[string]any, error) {
	conditions, err := condition.Encode(p.Conditions)
	if err != nil {
		return nil, err
	}
	view := map[string]any{
		"id":            p.ID,
		"name":          p.Name,
		"compatibility": string(p.Compatibility),
		"conditions":    conditions,
		"enabled":       p.Enabled,
	}
	if p.Code != "" {
		view["code"] = p.Code
	}
	if p.Offer != nil {
		spec, err := SpecOf(p.Offer)
		if err != nil {
			return nil, err
		}
		view["offer"] = spec
	}
	if p.StartsAt != nil {
		view["startsAt"] = p.StartsAt
	}
	if p.EndsAt != nil {
		view["endsAt"] = p.EndsAt
	}
	return view, nil
}
