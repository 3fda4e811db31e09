package promotion

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/arvel-dev/backend-pricing/internal/condition"
	"github.com/arvel-dev/backend-pricing/internal/money"
	"github.com/arvel-dev/backend-pricing/internal/order"
)

// FixedAmountOff discounts each targeted line item by a fixed amount per
// unit, clamped so the unit price never goes negative.
type FixedAmountOff struct {
	Amount money.Money
	// DisplayInclusive bakes the discount into the displayed unit price
	// and marks the emitted adjustment as included.
	DisplayInclusive bool
	// ItemConditions narrow which line items the offer targets; empty
	// targets every priced line item.
	ItemConditions []condition.Condition
}

// Apply implements Offer.
func (f FixedAmountOff) Apply(o *order.Order, p Promotion) (bool, error) {
	applied := false
	for _, li := range o.LineItems {
		if li.UnitPrice == nil || li.UnitPrice.CurrencyCode() != f.Amount.CurrencyCode() {
			continue
		}
		eligible, err := condition.AnyMatch(f.ItemConditions, condition.Context{Order: o, LineItem: li})
		if err != nil {
			return applied, err
		}
		if !eligible {
			continue
		}
		perUnit, err := clampToUnitPrice(f.Amount, *li.UnitPrice)
		if err != nil {
			return applied, err
		}
		if perUnit.IsZero() {
			continue
		}
		if err := emitItemDiscount(li, p, perUnit, decimal.Decimal{}, f.DisplayInclusive); err != nil {
			return applied, err
		}
		applied = true
	}
	return applied, nil
}

// PercentageOff discounts each targeted line item by a percentage of its
// unit price. Percentage is a fraction: 0.50 means fifty percent.
type PercentageOff struct {
	Percentage       decimal.Decimal
	DisplayInclusive bool
	ItemConditions   []condition.Condition
}

// Apply implements Offer.
func (pct PercentageOff) Apply(o *order.Order, p Promotion) (bool, error) {
	if !pct.Percentage.IsPositive() {
		return false, fmt.Errorf("percentage off: non-positive percentage %s", pct.Percentage)
	}
	applied := false
	for _, li := range o.LineItems {
		if li.UnitPrice == nil {
			continue
		}
		eligible, err := condition.AnyMatch(pct.ItemConditions, condition.Context{Order: o, LineItem: li})
		if err != nil {
			return applied, err
		}
		if !eligible {
			continue
		}
		perUnit := li.UnitPrice.Mul(pct.Percentage)
		if perUnit.IsZero() {
			continue
		}
		if err := emitItemDiscount(li, p, perUnit, pct.Percentage, pct.DisplayInclusive); err != nil {
			return applied, err
		}
		applied = true
	}
	return applied, nil
}

// BuyXGetY grants a discount on up to GetQuantity units for every full
// BuyQuantity units purchased. The buy and get sides are matched
// independently, so one line item can both count towards the buy threshold
// and receive the discount.
type BuyXGetY struct {
	BuyQuantity   decimal.Decimal
	BuyConditions []condition.Condition
	GetQuantity   decimal.Decimal
	GetConditions []condition.Condition
	// OfferAmount is a per-unit fixed discount. When nil, OfferPercentage
	// is used instead.
	OfferAmount     *money.Money
	OfferPercentage decimal.Decimal
}

// Apply implements Offer.
func (b BuyXGetY) Apply(o *order.Order, p Promotion) (bool, error) {
	if !b.BuyQuantity.IsPositive() || !b.GetQuantity.IsPositive() {
		return false, fmt.Errorf("buy x get y: buy and get quantities must be positive")
	}

	sumBuy := decimal.Zero
	for _, li := range o.LineItems {
		if li.UnitPrice == nil {
			continue
		}
		eligible, err := condition.AnyMatch(b.BuyConditions, condition.Context{Order: o, LineItem: li})
		if err != nil {
			return false, err
		}
		if eligible {
			sumBuy = sumBuy.Add(li.Quantity)
		}
	}
	if sumBuy.LessThan(b.BuyQuantity) {
		return false, nil
	}

	// Only whole multiples of the buy quantity grant get units: buying 13
	// with buy=6 get=4 yields floor(13/6)*4 = 8 eligible units.
	remaining := sumBuy.Div(b.BuyQuantity).Floor().Mul(b.GetQuantity)
	if !remaining.IsPositive() {
		return false, nil
	}

	var getItems []*order.LineItem
	for _, li := range o.LineItems {
		if li.UnitPrice == nil {
			continue
		}
		eligible, err := condition.AnyMatch(b.GetConditions, condition.Context{Order: o, LineItem: li})
		if err != nil {
			return false, err
		}
		if eligible {
			getItems = append(getItems, li)
		}
	}
	if len(getItems) == 0 {
		return false, nil
	}

	// Cheapest eligible items are discounted first; the stable sort keeps
	// insertion order between equal prices so results are reproducible.
	sort.SliceStable(getItems, func(i, j int) bool {
		return getItems[i].UnitPrice.Amount().LessThan(getItems[j].UnitPrice.Amount())
	})

	applied := false
	for _, li := range getItems {
		if !remaining.IsPositive() {
			break
		}
		consumed := decimal.Min(li.Quantity, remaining)

		var perUnit money.Money
		percentage := decimal.Decimal{}
		if b.OfferAmount != nil {
			var err error
			perUnit, err = clampToUnitPrice(*b.OfferAmount, *li.UnitPrice)
			if err != nil {
				return applied, err
			}
		} else {
			if !b.OfferPercentage.IsPositive() {
				return applied, fmt.Errorf("buy x get y: offer amount or percentage required")
			}
			perUnit = li.UnitPrice.Mul(b.OfferPercentage)
			percentage = b.OfferPercentage
		}

		if !perUnit.IsZero() {
			adj := order.Adjustment{
				Type:       order.AdjustmentPromotion,
				Label:      p.Name,
				SourceID:   p.ID.String(),
				Amount:     perUnit.Mul(consumed).Neg(),
				Percentage: percentage,
			}
			if err := li.AddAdjustment(adj); err != nil {
				return applied, err
			}
			applied = true
		}
		remaining = remaining.Sub(consumed)
	}
	return applied, nil
}

// clampToUnitPrice caps a per-unit discount so it never exceeds the unit
// price. Offers never push a unit price negative.
func clampToUnitPrice(discount, unitPrice money.Money) (money.Money, error) {
	cmp, err := discount.Cmp(unitPrice)
	if err != nil {
		return money.Money{}, err
	}
	if cmp > 0 {
		return unitPrice, nil
	}
	return discount, nil
}

// emitItemDiscount attaches the promotion adjustment for one line item. For
// display-inclusive offers the discount is also baked into the unit price.
func emitItemDiscount(li *order.LineItem, p Promotion, perUnit money.Money, percentage decimal.Decimal, inclusive bool) error {
	adj := order.Adjustment{
		Type:       order.AdjustmentPromotion,
		Label:      p.Name,
		SourceID:   p.ID.String(),
		Amount:     perUnit.Mul(li.Quantity).Neg(),
		Percentage: percentage,
		Included:   inclusive,
	}
	if err := li.AddAdjustment(adj); err != nil {
		return err
	}
	if inclusive {
		reduced, err := li.UnitPrice.Sub(perUnit)
		if err != nil {
			return err
		}
		li.UnitPrice = &reduced
	}
	return nil
}
