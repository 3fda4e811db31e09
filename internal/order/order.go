package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arvel-dev/backend-pricing/internal/money"
)

// ErrNoCurrency is returned when an order-level adjustment is added before
// any line item has established the order currency.
var ErrNoCurrency = errors.New("order has no priced line items yet")

// State models the order lifecycle.
type State string

const (
	StateDraft     State = "draft"
	StatePlaced    State = "placed"
	StateCompleted State = "completed"
	StateCanceled  State = "canceled"
)

// Order is the aggregate root holding line items, order-level adjustments
// and the derived totals. Totals are never patched incrementally; every
// mutation is followed by a full RecalculateTotalPrice pass, which makes the
// derivation idempotent.
type Order struct {
	ID           uuid.UUID
	State        State
	Email        string
	CouponCode   string
	RoundingMode money.RoundingMode
	LineItems    []*LineItem
	Adjustments  []Adjustment
	Subtotal     *money.Money
	Total        *money.Money
	TotalPaid    *money.Money
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// New creates an empty draft order.
func New(email string) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:           uuid.New(),
		State:        StateDraft,
		Email:        email,
		RoundingMode: money.RoundHalfUp,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Currency returns the order currency, established by the first line item
// that carries a price.
func (o *Order) Currency() (string, bool) {
	for _, li := range o.LineItems {
		if currency, ok := li.Currency(); ok {
			return currency, true
		}
	}
	return "", false
}

// FindLineItem looks up a line item by id.
func (o *Order) FindLineItem(id uuid.UUID) (*LineItem, bool) {
	for _, li := range o.LineItems {
		if li.ID == id {
			return li, true
		}
	}
	return nil, false
}

// MatchLineItem returns an existing line item that the candidate would
// duplicate: same purchasable, same unit price, standard adjustments and no
// manual override. Cart additions increment the match instead of appending
// a second row for an identical configuration.
func (o *Order) MatchLineItem(candidate *LineItem) *LineItem {
	for _, li := range o.LineItems {
		if li.Overridden || candidate.Overridden {
			continue
		}
		if li.Mode != AdjustmentModeStandard || candidate.Mode != AdjustmentModeStandard {
			continue
		}
		if li.PurchasableID != candidate.PurchasableID {
			continue
		}
		if (li.UnitPrice == nil) != (candidate.UnitPrice == nil) {
			continue
		}
		if li.UnitPrice != nil && !li.UnitPrice.Equal(*candidate.UnitPrice) {
			continue
		}
		return li
	}
	return nil
}

// AddLineItem appends a line item. A priced item whose currency differs from
// the order's established currency fails with ErrCurrencyMismatch and leaves
// the order unchanged.
func (o *Order) AddLineItem(li *LineItem) error {
	if itemCurrency, ok := li.Currency(); ok {
		if orderCurrency, established := o.Currency(); established && itemCurrency != orderCurrency {
			return fmt.Errorf("add line item %s: %w: %s vs %s", li.ID, money.ErrCurrencyMismatch, orderCurrency, itemCurrency)
		}
	}
	o.LineItems = append(o.LineItems, li)
	return nil
}

// RemoveLineItem deletes a line item by id, reporting whether it was found.
func (o *Order) RemoveLineItem(id uuid.UUID) bool {
	for i, li := range o.LineItems {
		if li.ID == id {
			o.LineItems = append(o.LineItems[:i], o.LineItems[i+1:]...)
			return true
		}
	}
	return false
}

// AddAdjustment appends an order-level adjustment. The amount must be in the
// order's established currency; the check fires here so the error surfaces
// at the point of misuse rather than during recalculation.
func (o *Order) AddAdjustment(adj Adjustment) error {
	currency, ok := o.Currency()
	if !ok {
		return fmt.Errorf("add %s adjustment: %w", adj.Type, ErrNoCurrency)
	}
	if adj.Amount.CurrencyCode() != currency {
		return fmt.Errorf("add %s adjustment: %w: %s vs %s", adj.Type, money.ErrCurrencyMismatch, currency, adj.Amount.CurrencyCode())
	}
	o.Adjustments = append(o.Adjustments, adj)
	return nil
}

// RemoveAdjustment removes the first order-level adjustment equal to adj.
// Absent adjustments are a no-op.
func (o *Order) RemoveAdjustment(adj Adjustment) {
	for i, stored := range o.Adjustments {
		if adjustmentsEqual(stored, adj) {
			o.Adjustments = append(o.Adjustments[:i], o.Adjustments[i+1:]...)
			return
		}
	}
}

// ClearAdjustments removes all non-locked order-level adjustments and, on
// every line item still in legacy mode, converts the per-unit amounts into
// standard ones instead of discarding them. Locked adjustments survive; on
// standard-mode line items only locked adjustments are kept. Dropping an
// included promotion adjustment backs its per-unit share out of the unit
// price again, so repeated clear-and-reapply passes never compound. Only
// promotion offers fold their included amounts into the price; an included
// tax rides a price that already contained it, so restoring it would shrink
// the price on every pass.
func (o *Order) ClearAdjustments() error {
	kept := o.Adjustments[:0]
	for _, adj := range o.Adjustments {
		if adj.Locked {
			kept = append(kept, adj)
		}
	}
	o.Adjustments = kept

	for _, li := range o.LineItems {
		if li.Mode == AdjustmentModeLegacyPerUnit {
			li.NormalizeLegacy()
			continue
		}
		keptItem := li.Adjustments[:0]
		for _, adj := range li.Adjustments {
			if adj.Locked {
				keptItem = append(keptItem, adj)
				continue
			}
			if adj.Included && adj.Type == AdjustmentPromotion && li.UnitPrice != nil {
				perUnit, err := adj.Amount.Div(li.Quantity)
				if err != nil {
					return fmt.Errorf("clear adjustments: %w", err)
				}
				restored, err := li.UnitPrice.Sub(perUnit)
				if err != nil {
					return fmt.Errorf("clear adjustments: %w", err)
				}
				li.UnitPrice = &restored
			}
		}
		li.Adjustments = keptItem
	}
	return nil
}

// RecalculateTotalPrice derives subtotal and total from scratch:
// subtotal is the sum of all priced line items' totals; total adds every
// non-included adjustment across line items (legacy amounts expanded by
// quantity) and the order itself. Totals stay unrounded; rounding happens at
// the collection boundary only. An order without priced line items has no
// totals at all.
func (o *Order) RecalculateTotalPrice() error {
	currency, ok := o.Currency()
	if !ok {
		o.Subtotal = nil
		o.Total = nil
		return nil
	}

	subtotal, err := money.Zero(currency)
	if err != nil {
		return err
	}
	for _, li := range o.LineItems {
		total := li.TotalPrice()
		if total == nil {
			continue
		}
		subtotal, err = subtotal.Add(*total)
		if err != nil {
			return err
		}
	}

	total := subtotal
	for _, li := range o.LineItems {
		for _, adj := range li.ExpandedAdjustments() {
			if adj.Included {
				continue
			}
			total, err = total.Add(adj.Amount)
			if err != nil {
				return err
			}
		}
	}
	for _, adj := range o.Adjustments {
		if adj.Included {
			continue
		}
		total, err = total.Add(adj.Amount)
		if err != nil {
			return err
		}
	}

	o.Subtotal = &subtotal
	o.Total = &total
	return nil
}

// CollectAdjustments returns the display view of all adjustments: line-item
// level ones (legacy amounts expanded) combined across line items by key,
// followed by order-level ones, optionally filtered by type. Amounts are
// rounded here, at the collection boundary, using the order's rounding mode
// and the currency's fraction digits; internal totals stay unrounded.
func (o *Order) CollectAdjustments(types ...AdjustmentType) ([]Adjustment, error) {
	var itemLevel []Adjustment
	for _, li := range o.LineItems {
		itemLevel = append(itemLevel, li.ExpandedAdjustments()...)
	}
	combined, err := CombineAdjustments(itemLevel)
	if err != nil {
		return nil, err
	}
	combined = append(combined, o.Adjustments...)

	collected := make([]Adjustment, 0, len(combined))
	for _, adj := range combined {
		if !adj.matchesTypes(types) {
			continue
		}
		collected = append(collected, adj.WithAmount(adj.Amount.RoundToCurrency(o.RoundingMode)))
	}
	return collected, nil
}

// Balance returns total minus total paid, or nil when the order has no
// total. A missing TotalPaid counts as zero.
func (o *Order) Balance() (*money.Money, error) {
	if o.Total == nil {
		return nil, nil
	}
	if o.TotalPaid == nil {
		balance := *o.Total
		return &balance, nil
	}
	balance, err := o.Total.Sub(*o.TotalPaid)
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// IsPaid reports whether the order balance has reached zero. A draft order
// only counts as paid when it is zero-valued; otherwise the order must have
// left the draft state first.
func (o *Order) IsPaid() bool {
	if o.Total == nil {
		return false
	}
	if o.State == StateDraft {
		return o.Total.IsZero()
	}
	balance, err := o.Balance()
	if err != nil || balance == nil {
		return false
	}
	return !balance.IsPositive()
}

// RoundedTotal returns the grand total rounded for display using the
// order's rounding mode, or nil when the order has no total.
func (o *Order) RoundedTotal() *money.Money {
	if o.Total == nil {
		return nil
	}
	rounded := o.Total.RoundToCurrency(o.RoundingMode)
	return &rounded
}
