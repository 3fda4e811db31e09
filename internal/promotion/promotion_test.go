package promotion

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvel-dev/backend-pricing/internal/condition"
	"github.com/arvel-dev/backend-pricing/internal/money"
	"github.com/arvel-dev/backend-pricing/internal/order"
)

func TestApplyRequiresOffer(t *testing.T) {
	o := order.New("buyer@example.com")
	p := promo("Broken", nil)
	p.Offer = nil
	_, err := Apply(p, o, time.Now())
	require.ErrorIs(t, err, ErrNoOffer)
}

func TestActiveAtWindow(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	p := promo("Window", PercentageOff{Percentage: decimal.RequireFromString("0.10")})
	assert.True(t, p.ActiveAt(now))

	p.StartsAt = &after
	assert.False(t, p.ActiveAt(now))

	p.StartsAt = &before
	p.EndsAt = &after
	assert.True(t, p.ActiveAt(now))

	p.EndsAt = &before
	assert.False(t, p.ActiveAt(now))

	p.StartsAt, p.EndsAt = nil, nil
	p.Enabled = false
	assert.False(t, p.ActiveAt(now))
}

func TestApplyOutsideWindowLeavesOrderUntouched(t *testing.T) {
	o := order.New("buyer@example.com")
	li := item(t, "sku-1", "10.00", "1")
	require.NoError(t, o.AddLineItem(li))

	ends := time.Now().Add(-time.Hour)
	p := promo("Expired", PercentageOff{Percentage: decimal.RequireFromString("0.10")})
	p.EndsAt = &ends

	applied, err := Apply(p, o, time.Now())
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, li.Adjustments)
}

func TestApplyIneligibleConditions(t *testing.T) {
	o := order.New("buyer@example.com")
	require.NoError(t, o.AddLineItem(item(t, "sku-1", "10.00", "1")))
	require.NoError(t, o.RecalculateTotalPrice())

	p := promo("Big spenders", PercentageOff{Percentage: decimal.RequireFromString("0.10")})
	p.Conditions = []condition.Condition{
		condition.OrderTotalPrice{Operator: ">=", Amount: money.MustFromString("100.00", "USD")},
	}

	applied, err := Apply(p, o, time.Now())
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, o.LineItems[0].Adjustments)
}

func TestApplyConditionErrorIsFatal(t *testing.T) {
	o := order.New("buyer@example.com")
	require.NoError(t, o.AddLineItem(item(t, "sku-1", "10.00", "1")))
	require.NoError(t, o.RecalculateTotalPrice())

	p := promo("Broken operator", PercentageOff{Percentage: decimal.RequireFromString("0.10")})
	p.Conditions = []condition.Condition{
		condition.OrderTotalPrice{Operator: "<>", Amount: money.MustFromString("1.00", "USD")},
	}
	_, err := Apply(p, o, time.Now())
	require.ErrorIs(t, err, condition.ErrInvalidOperator)
}

func TestCompatibilityNoneRefusesToStack(t *testing.T) {
	o := order.New("buyer@example.com")
	require.NoError(t, o.AddLineItem(item(t, "sku-1", "20.00", "1")))

	first := promo("First", PercentageOff{Percentage: decimal.RequireFromString("0.10")})
	applied, err := Apply(first, o, time.Now())
	require.NoError(t, err)
	require.True(t, applied)

	exclusive := promo("Exclusive", PercentageOff{Percentage: decimal.RequireFromString("0.50")})
	exclusive.Compatibility = CompatibilityNone
	applied, err = Apply(exclusive, o, time.Now())
	require.NoError(t, err)
	assert.False(t, applied)
	require.Len(t, o.LineItems[0].Adjustments, 1)
	assert.Equal(t, first.ID.String(), o.LineItems[0].Adjustments[0].SourceID)
}

func TestCompatibilityNoneAppliesToCleanOrder(t *testing.T) {
	o := order.New("buyer@example.com")
	require.NoError(t, o.AddLineItem(item(t, "sku-1", "20.00", "1")))

	exclusive := promo("Exclusive", PercentageOff{Percentage: decimal.RequireFromString("0.50")})
	exclusive.Compatibility = CompatibilityNone
	applied, err := Apply(exclusive, o, time.Now())
	require.NoError(t, err)
	assert.True(t, applied)
	assert.True(t, o.Total.Equal(usd(t, "10.00")))
}

// A promotion-typed adjustment from any source blocks a CompatibilityNone
// promotion, not just adjustments emitted by other promotions.
func TestCompatibilityNoneBlockedByManualPromotionAdjustment(t *testing.T) {
	o := order.New("buyer@example.com")
	li := item(t, "sku-1", "20.00", "1")
	require.NoError(t, o.AddLineItem(li))
	require.NoError(t, o.AddAdjustment(order.Adjustment{
		Type:     order.AdjustmentPromotion,
		Label:    "Manual goodwill",
		SourceID: "support-ticket-42",
		Amount:   usd(t, "-1.00"),
	}))

	exclusive := promo("Exclusive", PercentageOff{Percentage: decimal.RequireFromString("0.50")})
	exclusive.Compatibility = CompatibilityNone
	applied, err := Apply(exclusive, o, time.Now())
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestApplyAllReturnsAppliedIDsInOrder(t *testing.T) {
	o := order.New("buyer@example.com")
	require.NoError(t, o.AddLineItem(item(t, "sku-1", "100.00", "1")))

	tenOff := promo("Ten off", FixedAmountOff{Amount: usd(t, "10.00")})
	expired := promo("Expired", PercentageOff{Percentage: decimal.RequireFromString("0.10")})
	ends := time.Now().Add(-time.Hour)
	expired.EndsAt = &ends
	fiveOff := promo("Five off", FixedAmountOff{Amount: usd(t, "5.00")})

	applied, err := ApplyAll([]Promotion{tenOff, expired, fiveOff}, o, time.Now())
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, tenOff.ID, applied[0])
	assert.Equal(t, fiveOff.ID, applied[1])

	// 100 - 10 - 5.
	assert.True(t, o.Total.Equal(usd(t, "85.00")))
}
