package order

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/arvel-dev/backend-pricing/internal/money"
)

// AdjustmentType classifies a signed monetary change attached to a line
// item or an order.
type AdjustmentType string

const (
	AdjustmentTax       AdjustmentType = "tax"
	AdjustmentDiscount  AdjustmentType = "discount"
	AdjustmentFee       AdjustmentType = "fee"
	AdjustmentPromotion AdjustmentType = "promotion"
	AdjustmentShipping  AdjustmentType = "shipping"
	AdjustmentCustom    AdjustmentType = "custom"
)

// Valid reports whether the type is one of the known kinds.
func (t AdjustmentType) Valid() bool {
	switch t {
	case AdjustmentTax, AdjustmentDiscount, AdjustmentFee, AdjustmentPromotion, AdjustmentShipping, AdjustmentCustom:
		return true
	}
	return false
}

// Adjustment is an immutable value object describing one signed monetary
// delta. Included adjustments are already reflected in the displayed unit
// price and never change the order total. Locked adjustments survive
// ClearAdjustments.
type Adjustment struct {
	Type       AdjustmentType
	Label      string
	Amount     money.Money
	SourceID   string
	Percentage decimal.Decimal
	Included   bool
	Locked     bool
}

// WithAmount returns a copy with a replaced amount.
func (a Adjustment) WithAmount(amount money.Money) Adjustment {
	a.Amount = amount
	return a
}

// Scale returns a copy with the amount multiplied by a dimensionless factor.
// Used when legacy per-unit adjustments are expanded by quantity.
func (a Adjustment) Scale(factor decimal.Decimal) Adjustment {
	a.Amount = a.Amount.Mul(factor)
	return a
}

// SameKey reports whether two adjustments collapse into one display row:
// identical type, source, label, percentage and included flag.
func (a Adjustment) SameKey(b Adjustment) bool {
	return a.Type == b.Type &&
		a.SourceID == b.SourceID &&
		a.Label == b.Label &&
		a.Percentage.Equal(b.Percentage) &&
		a.Included == b.Included
}

func (a Adjustment) matchesTypes(types []AdjustmentType) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if a.Type == t {
			return true
		}
	}
	return false
}

// CombineAdjustments merges adjustments sharing the same key into a single
// row with the summed amount, preserving first-seen order. Two flat tax rows
// from different line items become one row instead of duplicating.
func CombineAdjustments(adjustments []Adjustment) ([]Adjustment, error) {
	combined := make([]Adjustment, 0, len(adjustments))
	for _, adj := range adjustments {
		merged := false
		for i := range combined {
			if !combined[i].SameKey(adj) {
				continue
			}
			sum, err := combined[i].Amount.Add(adj.Amount)
			if err != nil {
				return nil, fmt.Errorf("combine %s adjustment %q: %w", adj.Type, adj.Label, err)
			}
			combined[i] = combined[i].WithAmount(sum)
			merged = true
			break
		}
		if !merged {
			combined = append(combined, adj)
		}
	}
	return combined, nil
}
