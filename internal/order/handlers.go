package order

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/arvel-dev/backend-pricing/internal/common"
	"github.com/arvel-dev/backend-pricing/internal/money"
)

// Getter loads persisted orders for the read endpoints.
type Getter interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
}

// Handler serves the order read endpoints.
type Handler struct {
	Store Getter
	// NotFound is the store's sentinel for a missing order.
	NotFound error
}

// Get renders a single order with its collected adjustments and display
// totals.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
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
	view, err := View(o)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to render order", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// View renders an order for API responses: derived totals as decimal strings,
// line items in stored sequence, and adjustments collected at the rounding
// boundary.
func View(o *Order) (map[string]any, error) {
	adjustments, err := o.CollectAdjustments()
	if err != nil {
		return nil, err
	}
	balance, err := o.Balance()
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		item, err := lineItemView(li, o.RoundingMode)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	currency, _ := o.Currency()
	view := map[string]any{
		"id":           o.ID,
		"state":        string(o.State),
		"email":        o.Email,
		"currency":     currency,
		"roundingMode": o.RoundingMode.String(),
		"subtotal":     moneyView(o.Subtotal),
		"total":        moneyView(o.Total),
		"roundedTotal": fixedMoneyView(o.RoundedTotal()),
		"totalPaid":    moneyView(o.TotalPaid),
		"balance":      moneyView(balance),
		"paid":         o.IsPaid(),
		"items":        items,
		"adjustments":  adjustmentViews(adjustments),
		"createdAt":    o.CreatedAt,
		"updatedAt":    o.UpdatedAt,
	}
	if o.CouponCode != "" {
		view["couponCode"] = o.CouponCode
	}
	return view, nil
}

func lineItemView(li *LineItem, mode money.RoundingMode) (map[string]any, error) {
	adjustedTotal, err := li.AdjustedTotalPrice()
	if err != nil {
		return nil, err
	}
	view := map[string]any{
		"id":            li.ID,
		"purchasableId": li.PurchasableID,
		"title":         li.Title,
		"quantity":      li.Quantity.String(),
		"unitPrice":     moneyView(li.UnitPrice),
		"total":         moneyView(li.TotalPrice()),
		"overridden":    li.Overridden,
		"adjustments":   adjustmentViews(roundAll(li.ExpandedAdjustments(), mode)),
	}
	if adjustedTotal != nil {
		rounded := adjustedTotal.RoundToCurrency(mode)
		view["adjustedTotal"] = fixedMoneyView(&rounded)
	}
	return view, nil
}

func adjustmentViews(adjustments []Adjustment) []map[string]any {
	views := make([]map[string]any, 0, len(adjustments))
	for _, adj := range adjustments {
		view := map[string]any{
			"type":     string(adj.Type),
			"label":    adj.Label,
			"amount":   adj.Amount.StringFixed(),
			"currency": adj.Amount.CurrencyCode(),
			"included": adj.Included,
			"locked":   adj.Locked,
		}
		if adj.SourceID != "" {
			view["sourceId"] = adj.SourceID
		}
		if !adj.Percentage.IsZero() {
			view["percentage"] = adj.Percentage.String()
		}
		views = append(views, view)
	}
	return views
}

func roundAll(adjustments []Adjustment, mode money.RoundingMode) []Adjustment {
	rounded := make([]Adjustment, 0, len(adjustments))
	for _, adj := range adjustments {
		rounded = append(rounded, adj.WithAmount(adj.Amount.RoundToCurrency(mode)))
	}
	return rounded
}

func moneyView(m *money.Money) map[string]any {
	if m == nil {
		return nil
	}
	return map[string]any{
		"amount":   m.Amount().String(),
		"currency": m.CurrencyCode(),
	}
}

// fixedMoneyView renders boundary-rounded amounts at the currency's scale,
// so a rounded $4 displays as "4.00" rather than the trimmed "4".
func fixedMoneyView(m *money.Money) map[string]any {
	if m == nil {
		return nil
	}
	return map[string]any{
		"amount":   m.StringFixed(),
		"currency": m.CurrencyCode(),
	}
}
