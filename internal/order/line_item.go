package order

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arvel-dev/backend-pricing/internal/money"
)

// ErrInvalidQuantity is returned when a line item quantity is not positive.
var ErrInvalidQuantity = errors.New("quantity must be positive")

// AdjustmentMode tags how a line item's stored adjustments are interpreted.
type AdjustmentMode int

const (
	// AdjustmentModeStandard stores adjustment amounts at total-price level.
	AdjustmentModeStandard AdjustmentMode = iota
	// AdjustmentModeLegacyPerUnit stores adjustment amounts per unit; they
	// are multiplied by quantity whenever aggregated at the order level.
	AdjustmentModeLegacyPerUnit
)

// LineItem is one purchasable line within an order: product x quantity x
// unit price plus its own ordered adjustment list.
type LineItem struct {
	ID            uuid.UUID
	PurchasableID string
	Title         string
	Quantity      decimal.Decimal
	UnitPrice     *money.Money
	Overridden    bool
	Mode          AdjustmentMode
	Adjustments   []Adjustment
}

// NewLineItem constructs a priced line item in standard adjustment mode.
func NewLineItem(purchasableID, title string, quantity decimal.Decimal, unitPrice *money.Money) (*LineItem, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuantity, quantity)
	}
	return &LineItem{
		ID:            uuid.New(),
		PurchasableID: purchasableID,
		Title:         title,
		Quantity:      quantity,
		UnitPrice:     unitPrice,
	}, nil
}

// Currency returns the line item's currency when it has a price.
func (li *LineItem) Currency() (string, bool) {
	if li.UnitPrice == nil {
		return "", false
	}
	return li.UnitPrice.CurrencyCode(), true
}

// TotalPrice returns unit price x quantity without rounding, or nil when the
// line item has no price yet.
func (li *LineItem) TotalPrice() *money.Money {
	if li.UnitPrice == nil {
		return nil
	}
	total := li.UnitPrice.Mul(li.Quantity)
	return &total
}

// AdjustedTotalPrice returns the total price plus all non-included
// adjustments, optionally narrowed to the provided types. Legacy per-unit
// amounts are expanded by quantity before summing.
func (li *LineItem) AdjustedTotalPrice(types ...AdjustmentType) (*money.Money, error) {
	total := li.TotalPrice()
	if total == nil {
		return nil, nil
	}
	sum := *total
	for _, adj := range li.ExpandedAdjustments() {
		if adj.Included || !adj.matchesTypes(types) {
			continue
		}
		var err error
		sum, err = sum.Add(adj.Amount)
		if err != nil {
			return nil, err
		}
	}
	return &sum, nil
}

// AdjustedUnitPrice returns the adjusted total divided back by quantity.
func (li *LineItem) AdjustedUnitPrice(types ...AdjustmentType) (*money.Money, error) {
	total, err := li.AdjustedTotalPrice(types...)
	if err != nil || total == nil {
		return nil, err
	}
	unit, err := total.Div(li.Quantity)
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

// ExpandedAdjustments returns the stored adjustments at total-price level.
// In legacy mode each stored amount is per unit and gets scaled by quantity;
// in standard mode the list is returned as stored.
func (li *LineItem) ExpandedAdjustments() []Adjustment {
	switch li.Mode {
	case AdjustmentModeLegacyPerUnit:
		expanded := make([]Adjustment, 0, len(li.Adjustments))
		for _, adj := range li.Adjustments {
			expanded = append(expanded, adj.Scale(li.Quantity))
		}
		return expanded
	default:
		out := make([]Adjustment, len(li.Adjustments))
		copy(out, li.Adjustments)
		return out
	}
}

// AddAdjustment appends an adjustment. A priced line item rejects amounts in
// a different currency so misuse surfaces at the call site, not at
// recalculation time.
func (li *LineItem) AddAdjustment(adj Adjustment) error {
	if currency, ok := li.Currency(); ok && adj.Amount.CurrencyCode() != currency {
		return fmt.Errorf("line item %s: %w: %s vs %s", li.ID, money.ErrCurrencyMismatch, currency, adj.Amount.CurrencyCode())
	}
	li.Adjustments = append(li.Adjustments, adj)
	return nil
}

// RemoveAdjustment removes the first stored adjustment equal to adj.
// Removing an adjustment that is not present is a no-op.
func (li *LineItem) RemoveAdjustment(adj Adjustment) {
	for i, stored := range li.Adjustments {
		if adjustmentsEqual(stored, adj) {
			li.Adjustments = append(li.Adjustments[:i], li.Adjustments[i+1:]...)
			return
		}
	}
}

// RemoveAdjustmentsBySource drops every stored adjustment carrying the given
// source id. It reports how many were removed.
func (li *LineItem) RemoveAdjustmentsBySource(sourceID string) int {
	kept := li.Adjustments[:0]
	removed := 0
	for _, adj := range li.Adjustments {
		if adj.SourceID == sourceID {
			removed++
			continue
		}
		kept = append(kept, adj)
	}
	li.Adjustments = kept
	return removed
}

// SetAdjustments replaces the ordered adjustment list.
func (li *LineItem) SetAdjustments(adjustments []Adjustment) {
	li.Adjustments = append([]Adjustment(nil), adjustments...)
}

// NormalizeLegacy converts legacy per-unit adjustments into total-price
// level ones by multiplying each stored amount by quantity. Calling it on a
// standard-mode line item is a no-op, so a second call never double-scales.
func (li *LineItem) NormalizeLegacy() {
	if li.Mode != AdjustmentModeLegacyPerUnit {
		return
	}
	for i, adj := range li.Adjustments {
		li.Adjustments[i] = adj.Scale(li.Quantity)
	}
	li.Mode = AdjustmentModeStandard
}

func adjustmentsEqual(a, b Adjustment) bool {
	return a.SameKey(b) && a.Amount.Equal(b.Amount) && a.Locked == b.Locked
}
