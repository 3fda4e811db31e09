// Package tax computes tax adjustments for orders. Rates are percentages
// applied per line item, either on top of the price or already included in
// it (VAT style display).
package tax

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arvel-dev/backend-pricing/internal/condition"
	"github.com/arvel-dev/backend-pricing/internal/order"
)

// Rate is one tax rate. Percentage is a fraction: 0.20 means twenty percent.
type Rate struct {
	ID         uuid.UUID
	Label      string
	Percentage decimal.Decimal
	// DisplayInclusive marks the rate as already contained in displayed
	// prices. The emitted adjustment is informational and does not change
	// the order total.
	DisplayInclusive bool
	// Conditions narrow which line items the rate covers; empty covers
	// every priced line item.
	Conditions []condition.Condition
}

// Apply recomputes the tax adjustments for every rate on the order. Existing
// adjustments sourced from the given rates are replaced, so Apply is
// idempotent. The order totals are recalculated afterwards.
func Apply(o *order.Order, rates []Rate, now time.Time) error {
	for _, rate := range rates {
		for _, li := range o.LineItems {
			li.RemoveAdjustmentsBySource(rate.ID.String())
		}
	}

	for _, rate := range rates {
		if !rate.Percentage.IsPositive() {
			return fmt.Errorf("tax rate %s: non-positive percentage %s", rate.ID, rate.Percentage)
		}
		for _, li := range o.LineItems {
			if li.UnitPrice == nil {
				continue
			}
			eligible, err := condition.AnyMatch(rate.Conditions, condition.Context{Order: o, LineItem: li, Now: now})
			if err != nil {
				return fmt.Errorf("tax rate %s: %w", rate.ID, err)
			}
			if !eligible {
				continue
			}

			total := li.TotalPrice()
			if total == nil || total.IsZero() {
				continue
			}

			amount := total.Mul(rate.Percentage)
			if rate.DisplayInclusive {
				// The displayed price already carries the tax: back it
				// out of the total instead of stacking on top.
				divisor := decimal.NewFromInt(1).Add(rate.Percentage)
				backed, err := amount.Div(divisor)
				if err != nil {
					return fmt.Errorf("tax rate %s: %w", rate.ID, err)
				}
				amount = backed
			}
			if amount.IsZero() {
				continue
			}

			adj := order.Adjustment{
				Type:       order.AdjustmentTax,
				Label:      rate.Label,
				SourceID:   rate.ID.String(),
				Amount:     amount,
				Percentage: rate.Percentage,
				Included:   rate.DisplayInclusive,
			}
			if err := li.AddAdjustment(adj); err != nil {
				return fmt.Errorf("tax rate %s: %w", rate.ID, err)
			}
		}
	}

	return o.RecalculateTotalPrice()
}
