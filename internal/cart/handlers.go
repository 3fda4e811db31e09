package cart

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arvel-dev/backend-pricing/internal/common"
	"github.com/arvel-dev/backend-pricing/internal/money"
	"github.com/arvel-dev/backend-pricing/internal/obs"
	"github.com/arvel-dev/backend-pricing/internal/order"
)

// Handler serves the cart mutation endpoints. Every mutation responds with
// the refreshed order view so clients never hold stale totals.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	// NotFound is the order store's sentinel for a missing row, mapped to a
	// 404 alongside the service's own ErrNotFound.
	NotFound error
}

type createOrderRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type addItemRequest struct {
	PurchasableID string `json:"purchasableId" validate:"required"`
	Title         string `json:"title" validate:"required"`
	Quantity      string `json:"quantity" validate:"required"`
	UnitPrice     string `json:"unitPrice"`
	Currency      string `json:"currency" validate:"required_with=UnitPrice,omitempty,len=3"`
}

type updateQuantityRequest struct {
	Quantity string `json:"quantity" validate:"required"`
}

type applyCouponRequest struct {
	Code string `json:"code" validate:"required"`
}

type addAdjustmentRequest struct {
	Type     string `json:"type" validate:"required"`
	Label    string `json:"label" validate:"required"`
	Amount   string `json:"amount" validate:"required"`
	Currency string `json:"currency" validate:"required,len=3"`
	Locked   bool   `json:"locked"`
}

// Create opens a new draft order for the given email.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.Svc.EnsureOrder(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOrder(w, http.StatusCreated, o)
}

// AddItem adds a purchasable to the order, merging into a matching line item
// when one exists.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid quantity", nil)
		return
	}
	var unitPrice *money.Money
	if req.UnitPrice != "" {
		price, err := money.FromString(req.UnitPrice, req.Currency)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid unit price", nil)
			return
		}
		unitPrice = &price
	}
	o, err := h.Svc.AddItem(r.Context(), orderID, req.PurchasableID, req.Title, quantity, unitPrice)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, o)
}

// UpdateQuantity sets a line item's quantity.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id", nil)
		return
	}
	var req updateQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid quantity", nil)
		return
	}
	o, err := h.Svc.UpdateQuantity(r.Context(), orderID, itemID, quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, o)
}

// RemoveItem deletes a line item.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id", nil)
		return
	}
	o, err := h.Svc.RemoveItem(r.Context(), orderID, itemID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, o)
}

// ApplyCoupon attaches a promotion code to the order.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req applyCouponRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.Svc.ApplyPromotionCode(r.Context(), orderID, req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, o)
}

// RemoveCoupon detaches the order's promotion code.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	o, err := h.Svc.RemovePromotionCode(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, o)
}

// AddAdjustment attaches a manual order-level adjustment.
func (h *Handler) AddAdjustment(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req addAdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := money.FromString(req.Amount, req.Currency)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid amount", nil)
		return
	}
	adj := order.Adjustment{
		Type:   order.AdjustmentType(req.Type),
		Label:  req.Label,
		Amount: amount,
		Locked: req.Locked,
	}
	o, err := h.Svc.AddAdjustment(r.Context(), orderID, adj)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, o)
}

// ClearAdjustments drops the order's non-locked adjustments and reruns the
// recalculation pipeline.
func (h *Handler) ClearAdjustments(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	o, err := h.Svc.ClearAdjustments(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, o)
}

// Recalculate reruns the pipeline without any other mutation.
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	o, err := h.Svc.Recalculate(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOrder(w, http.StatusOK, o)
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(v); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid payload", validationDetails(err))
			return false
		}
	}
	return true
}

func validationDetails(err error) any {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil
	}
	details := make([]map[string]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, map[string]string{
			"field": fe.Field(),
			"rule":  fe.Tag(),
		})
	}
	return details
}

func (h *Handler) writeOrder(w http.ResponseWriter, status int, o *order.Order) {
	view, err := order.View(o)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to render order", nil)
		return
	}
	common.JSON(w, status, map[string]any{"data": view})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), h.NotFound != nil && errors.Is(err, h.NotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrNotDraft):
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	case errors.Is(err, ErrPromotionNotApplicable):
		common.JSONError(w, http.StatusUnprocessableEntity, "NOT_APPLICABLE", err.Error(), nil)
	case errors.Is(err, money.ErrCurrencyMismatch):
		obs.ObserveCurrencyMismatch()
		common.JSONError(w, http.StatusUnprocessableEntity, "CURRENCY_MISMATCH", err.Error(), nil)
	case errors.Is(err, order.ErrNoCurrency):
		common.JSONError(w, http.StatusUnprocessableEntity, "NO_CURRENCY", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart operation failed", nil)
	}
}
