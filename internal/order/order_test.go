package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvel-dev/backend-pricing/internal/money"
)

func TestRecalculateEmptyOrderHasNoTotal(t *testing.T) {
	o := New("buyer@example.com")
	require.NoError(t, o.RecalculateTotalPrice())
	assert.Nil(t, o.Subtotal)
	assert.Nil(t, o.Total)

	// Unpriced line items do not establish a total either.
	li, err := NewLineItem("sku-1", "Widget", decimal.NewFromInt(1), nil)
	require.NoError(t, err)
	require.NoError(t, o.AddLineItem(li))
	require.NoError(t, o.RecalculateTotalPrice())
	assert.Nil(t, o.Total)
}

func TestRecalculateIdempotent(t *testing.T) {
	o := New("buyer@example.com")
	require.NoError(t, o.AddLineItem(pricedItem(t, "sku-1", "2.00", "2")))
	require.NoError(t, o.AddLineItem(pricedItem(t, "sku-2", "3.00", "1")))
	require.NoError(t, o.AddAdjustment(Adjustment{Type: AdjustmentFee, Label: "handling", Amount: usd(t, "1.25")}))

	require.NoError(t, o.RecalculateTotalPrice())
	firstSubtotal := *o.Subtotal
	firstTotal := *o.Total

	require.NoError(t, o.RecalculateTotalPrice())
	assert.True(t, o.Subtotal.Equal(firstSubtotal))
	assert.True(t, o.Total.Equal(firstTotal))
}

func TestCurrencyEstablishedByFirstPricedItem(t *testing.T) {
	o := New("buyer@example.com")
	unpriced, err := NewLineItem("sku-0", "Sample", decimal.NewFromInt(1), nil)
	require.NoError(t, err)
	require.NoError(t, o.AddLineItem(unpriced))

	_, ok := o.Currency()
	assert.False(t, ok)

	eur := money.MustFromString("5.00", "EUR")
	eurItem, err := NewLineItem("sku-1", "Widget", decimal.NewFromInt(1), &eur)
	require.NoError(t, err)
	require.NoError(t, o.AddLineItem(eurItem))

	currency, ok := o.Currency()
	require.True(t, ok)
	assert.Equal(t, "EUR", currency)
}

func TestAddLineItemCurrencyMismatchLeavesOrderUnchanged(t *testing.T) {
	o := New("buyer@example.com")
	require.NoError(t, o.AddLineItem(pricedItem(t, "sku-1", "10.00", "1")))

	eur := money.MustFromString("5.00", "EUR")
	mismatch, err := NewLineItem("sku-2", "Gadget", decimal.NewFromInt(1), &eur)
	require.NoError(t, err)

	err = o.AddLineItem(mismatch)
	require.ErrorIs(t, err, money.ErrCurrencyMismatch)
	assert.Len(t, o.LineItems, 1)
}

func TestAddAdjustmentCurrencyChecks(t *testing.T) {
	o := New("buyer@example.com")
	err := o.AddAdjustment(Adjustment{Type: AdjustmentFee, Label: "handling", Amount: usd(t, "1.00")})
	require.ErrorIs(t, err, ErrNoCurrency)

	require.NoError(t, o.AddLineItem(pricedItem(t, "sku-1", "10.00", "1")))
	err = o.AddAdjustment(Adjustment{Type: AdjustmentFee, Label: "handling", Amount: money.MustFromString("1.00", "EUR")})
	require.ErrorIs(t, err, money.ErrCurrencyMismatch)
	assert.Empty(t, o.Adjustments)

	require.NoError(t, o.AddAdjustment(Adjustment{Type: AdjustmentFee, Label: "handling", Amount: usd(t, "1.00")}))
	assert.Len(t, o.Adjustments, 1)
}

func TestAdditivityInvariant(t *testing.T) {
	o := New("buyer@example.com")
	require.NoError(t, o.AddLineItem(pricedItem(t, "sku-1", "2.00", "2")))
	require.NoError(t, o.AddLineItem(pricedItem(t, "sku-2", "3.00", "1")))

	item := o.LineItems[0]
	require.NoError(t, item.AddAdjustment(Adjustment{Type: AdjustmentTax, Label: "vat", SourceID: "vat", Amount: usd(t, "0.40")}))
	require.NoError(t, o.AddAdjustment(Adjustment{Type: AdjustmentPromotion, Label: "welcome", SourceID: "promo-1", Amount: usd(t, "-1.00")}))
	require.NoError(t, o.AddAdjustment(Adjustment{Type: AdjustmentTax, Label: "import", SourceID: "import", Amount: usd(t, "0.35"), Included: true}))

	require.NoError(t, o.RecalculateTotalPrice())
	// subtotal 7.00, total = 7.00 + 0.40 - 1.00, included tax excluded.
	assert.True(t, o.Subtotal.Equal(usd(t, "7.00")))
	assert.True(t, o.Total.Equal(usd(t, "6.40")))
}

// Order with mixed included and non-included tax adjustments: per-item taxes
// with distinct sources stay separate rows and the included order-level one
// never feeds the total.
func TestMixedIncludedAdjustmentsScenario(t *testing.T) {
	o := New("buyer@example.com")
	first := pricedItem(t, "sku-1", "2.00", "2")
	second := pricedItem(t, "sku-2", "3.00", "1")
	require.NoError(t, o.AddLineItem(first))
	require.NoError(t, o.AddLineItem(second))

	require.NoError(t, first.AddAdjustment(Adjustment{Type: AdjustmentTax, Label: "US Sales Tax", SourceID: "us_sales_tax|sku-1", Amount: usd(t, "2.121")}))
	require.NoError(t, second.AddAdjustment(Adjustment{Type: AdjustmentTax, Label: "US Sales Tax", SourceID: "us_sales_tax|sku-2", Amount: usd(t, "5.344")}))
	require.NoError(t, o.AddAdjustment(Adjustment{Type: AdjustmentTax, Label: "Included Tax", SourceID: "included_tax", Amount: usd(t, "100.00"), Included: true}))

	require.NoError(t, o.RecalculateTotalPrice())
	assert.True(t, o.Subtotal.Equal(usd(t, "7.00")))
	// Internal total stays unrounded: 7.00 + 2.121 + 5.344.
	assert.True(t, o.Total.Equal(usd(t, "14.465")))
	assert.True(t, o.RoundedTotal().Equal(usd(t, "14.47")))

	collected, err := o.CollectAdjustments()
	require.NoError(t, err)
	require.Len(t, collected, 3)
	assert.True(t, collected[0].Amount.Equal(usd(t, "2.12")))
	assert.True(t, collected[1].Amount.Equal(usd(t, "5.34")))
	assert.True(t, collected[2].Amount.Equal(usd(t, "100.00")))
	assert.True(t, collected[2].Included)
}

func TestCollectAdjustmentsMergesSharedKeys(t *testing.T) {
	o := New("buyer@example.com")
	first := pricedItem(t, "sku-1", "2.00", "2")
	second := pricedItem(t, "sku-2", "3.00", "1")
	require.NoError(t, o.AddLineItem(first))
	require.NoError(t, o.AddLineItem(second))

	flat := Adjustment{Type: AdjustmentTax, Label: "US Sales Tax", SourceID: "us_sales_tax"}
	require.NoError(t, first.AddAdjustment(flat.WithAmount(usd(t, "0.40"))))
	require.NoError(t, second.AddAdjustment(flat.WithAmount(usd(t, "0.30"))))

	collected, err := o.CollectAdjustments()
	require.NoError(t, err)
	require.Len(t, collected, 1)
	assert.True(t, collected[0].Amount.Equal(usd(t, "0.70")))
	assert.Equal(t, "us_sales_tax", collected[0].SourceID)
}

func TestCollectAdjustmentsTypeFilterAndLegacyExpansion(t *testing.T) {
	o := New("buyer@example.com")
	li := pricedItem(t, "sku-1", "10.00", "2")
	li.Mode = AdjustmentModeLegacyPerUnit
	require.NoError(t, o.AddLineItem(li))
	require.NoError(t, li.AddAdjustment(Adjustment{Type: AdjustmentDiscount, Label: "promo", SourceID: "promo-1", Amount: usd(t, "-1.00")}))
	require.NoError(t, o.AddAdjustment(Adjustment{Type: AdjustmentFee, Label: "handling", Amount: usd(t, "0.50")}))

	discounts, err := o.CollectAdjustments(AdjustmentDiscount)
	require.NoError(t, err)
	require.Len(t, discounts, 1)
	// Legacy per-unit -1.00 expanded by quantity 2.
	assert.True(t, discounts[0].Amount.Equal(usd(t, "-2.00")))
}

func TestClearAdjustments(t *testing.T) {
	o := New("buyer@example.com")
	standard := pricedItem(t, "sku-1", "10.00", "1")
	legacy := pricedItem(t, "sku-2", "5.00", "2")
	legacy.Mode = AdjustmentModeLegacyPerUnit
	require.NoError(t, o.AddLineItem(standard))
	require.NoError(t, o.AddLineItem(legacy))

	require.NoError(t, standard.AddAdjustment(Adjustment{Type: AdjustmentTax, Label: "vat", Amount: usd(t, "2.00")}))
	require.NoError(t, standard.AddAdjustment(Adjustment{Type: AdjustmentFee, Label: "legacy fee", Amount: usd(t, "1.00"), Locked: true}))
	require.NoError(t, legacy.AddAdjustment(Adjustment{Type: AdjustmentDiscount, Label: "promo", Amount: usd(t, "-0.50")}))
	require.NoError(t, o.AddAdjustment(Adjustment{Type: AdjustmentPromotion, Label: "welcome", SourceID: "promo-1", Amount: usd(t, "-1.00")}))
	require.NoError(t, o.AddAdjustment(Adjustment{Type: AdjustmentFee, Label: "fixed fee", Amount: usd(t, "3.00"), Locked: true}))

	require.NoError(t, o.ClearAdjustments())

	require.Len(t, o.Adjustments, 1)
	assert.Equal(t, "fixed fee", o.Adjustments[0].Label)

	require.Len(t, standard.Adjustments, 1)
	assert.Equal(t, "legacy fee", standard.Adjustments[0].Label)

	// Legacy adjustments are normalized, never silently dropped.
	require.Equal(t, AdjustmentModeStandard, legacy.Mode)
	require.Len(t, legacy.Adjustments, 1)
	assert.True(t, legacy.Adjustments[0].Amount.Equal(usd(t, "-1.00")))
}

func TestClearAdjustmentsRestoresInclusiveUnitPrice(t *testing.T) {
	o := New("buyer@example.com")
	// Unit price already carries a baked-in 2.00 per-unit discount.
	li := pricedItem(t, "sku-1", "8.00", "2")
	require.NoError(t, o.AddLineItem(li))
	require.NoError(t, li.AddAdjustment(Adjustment{
		Type:     AdjustmentPromotion,
		Label:    "baked in",
		SourceID: "promo-1",
		Amount:   usd(t, "-4.00"),
		Included: true,
	}))

	require.NoError(t, o.ClearAdjustments())

	assert.Empty(t, li.Adjustments)
	assert.True(t, li.UnitPrice.Equal(usd(t, "10.00")))
}

func TestClearAdjustmentsLeavesInclusiveTaxPriceAlone(t *testing.T) {
	o := New("buyer@example.com")
	// An included tax marks a price that already contains it; clearing the
	// adjustment must not alter the unit price.
	li := pricedItem(t, "sku-1", "12.00", "1")
	require.NoError(t, o.AddLineItem(li))
	require.NoError(t, li.AddAdjustment(Adjustment{
		Type:     AdjustmentTax,
		Label:    "VAT",
		SourceID: "rate-1",
		Amount:   usd(t, "2.00"),
		Included: true,
	}))

	require.NoError(t, o.ClearAdjustments())

	assert.Empty(t, li.Adjustments)
	assert.True(t, li.UnitPrice.Equal(usd(t, "12.00")))
}

func TestBalanceAndIsPaid(t *testing.T) {
	o := New("buyer@example.com")
	assert.False(t, o.IsPaid())

	require.NoError(t, o.AddLineItem(pricedItem(t, "sku-1", "10.00", "1")))
	require.NoError(t, o.RecalculateTotalPrice())

	// Draft orders are only paid when zero-valued.
	assert.False(t, o.IsPaid())

	o.State = StatePlaced
	balance, err := o.Balance()
	require.NoError(t, err)
	assert.True(t, balance.Equal(usd(t, "10.00")))
	assert.False(t, o.IsPaid())

	paid := usd(t, "10.00")
	o.TotalPaid = &paid
	balance, err = o.Balance()
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	assert.True(t, o.IsPaid())

	overpaid := usd(t, "12.00")
	o.TotalPaid = &overpaid
	assert.True(t, o.IsPaid())
}

func TestZeroValuedDraftIsPaid(t *testing.T) {
	o := New("buyer@example.com")
	zero := money.MustFromString("0", "USD")
	li, err := NewLineItem("sku-free", "Freebie", decimal.NewFromInt(1), &zero)
	require.NoError(t, err)
	require.NoError(t, o.AddLineItem(li))
	require.NoError(t, o.RecalculateTotalPrice())
	assert.True(t, o.IsPaid())
}

func TestMatchLineItem(t *testing.T) {
	o := New("buyer@example.com")
	existing := pricedItem(t, "sku-1", "10.00", "1")
	require.NoError(t, o.AddLineItem(existing))

	same := pricedItem(t, "sku-1", "10.00", "1")
	assert.Same(t, existing, o.MatchLineItem(same))

	differentPrice := pricedItem(t, "sku-1", "9.00", "1")
	assert.Nil(t, o.MatchLineItem(differentPrice))

	differentSKU := pricedItem(t, "sku-2", "10.00", "1")
	assert.Nil(t, o.MatchLineItem(differentSKU))

	existing.Overridden = true
	assert.Nil(t, o.MatchLineItem(same))
}

func TestCombineAdjustmentsPreservesOrder(t *testing.T) {
	a := Adjustment{Type: AdjustmentTax, Label: "vat", SourceID: "vat", Amount: money.MustFromString("1.00", "USD")}
	b := Adjustment{Type: AdjustmentDiscount, Label: "promo", SourceID: "promo", Amount: money.MustFromString("-2.00", "USD")}
	c := a.WithAmount(money.MustFromString("0.50", "USD"))

	combined, err := CombineAdjustments([]Adjustment{a, b, c})
	require.NoError(t, err)
	require.Len(t, combined, 2)
	assert.Equal(t, "vat", combined[0].Label)
	assert.True(t, combined[0].Amount.Equal(money.MustFromString("1.50", "USD")))
	assert.Equal(t, "promo", combined[1].Label)
}
