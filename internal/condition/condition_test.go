package condition

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvel-dev/backend-pricing/internal/money"
	"github.com/arvel-dev/backend-pricing/internal/order"
)

func orderWithTotal(t *testing.T, amount, currency string) *order.Order {
	t.Helper()
	o := order.New("buyer@example.com")
	price := money.MustFromString(amount, currency)
	li, err := order.NewLineItem("sku-1", "Widget", decimal.NewFromInt(1), &price)
	require.NoError(t, err)
	require.NoError(t, o.AddLineItem(li))
	require.NoError(t, o.RecalculateTotalPrice())
	return o
}

func TestOrderTotalPriceOperators(t *testing.T) {
	o := orderWithTotal(t, "50.00", "USD")
	threshold := money.MustFromString("50.00", "USD")

	cases := []struct {
		operator string
		want     bool
	}{
		{">=", true},
		{"<=", true},
		{"==", true},
		{">", false},
		{"<", false},
	}
	for _, tc := range cases {
		cond := OrderTotalPrice{Operator: tc.operator, Amount: threshold}
		got, err := cond.Evaluate(Context{Order: o})
		require.NoError(t, err, tc.operator)
		assert.Equal(t, tc.want, got, tc.operator)
	}
}

func TestOrderTotalPriceInvalidOperator(t *testing.T) {
	cond := OrderTotalPrice{Operator: "<>", Amount: money.MustFromString("1", "USD")}
	_, err := cond.Evaluate(Context{Order: orderWithTotal(t, "50.00", "USD")})
	require.ErrorIs(t, err, ErrInvalidOperator)
}

func TestOrderTotalPriceCurrencyMismatchIsFalseNotError(t *testing.T) {
	cond := OrderTotalPrice{Operator: ">=", Amount: money.MustFromString("1", "EUR")}
	got, err := cond.Evaluate(Context{Order: orderWithTotal(t, "50.00", "USD")})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestOrderTotalPriceNoTotal(t *testing.T) {
	cond := OrderTotalPrice{Operator: ">=", Amount: money.MustFromString("1", "USD")}
	got, err := cond.Evaluate(Context{Order: order.New("buyer@example.com")})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestOrderItemQuantity(t *testing.T) {
	li, err := order.NewLineItem("sku-1", "Widget", decimal.RequireFromString("2.5"), nil)
	require.NoError(t, err)

	cond := OrderItemQuantity{Operator: ">=", Quantity: decimal.NewFromInt(2)}
	got, err := cond.Evaluate(Context{LineItem: li})
	require.NoError(t, err)
	assert.True(t, got)

	got, err = cond.Evaluate(Context{})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestOrderItemPurchasable(t *testing.T) {
	li, err := order.NewLineItem("sku-2", "Widget", decimal.NewFromInt(1), nil)
	require.NoError(t, err)

	cond := OrderItemPurchasable{PurchasableIDs: []string{"sku-1", "sku-2"}}
	got, err := cond.Evaluate(Context{LineItem: li})
	require.NoError(t, err)
	assert.True(t, got)

	cond = OrderItemPurchasable{PurchasableIDs: []string{"sku-9"}}
	got, err = cond.Evaluate(Context{LineItem: li})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestOrderEmailDomain(t *testing.T) {
	o := order.New("buyer@Example.COM")
	cond := OrderEmailDomain{Domains: []string{"example.com"}}
	got, err := cond.Evaluate(Context{Order: o})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestAnyMatchFirstTrueWins(t *testing.T) {
	o := orderWithTotal(t, "50.00", "USD")
	miss := OrderTotalPrice{Operator: ">", Amount: money.MustFromString("100", "USD")}
	hit := OrderTotalPrice{Operator: ">=", Amount: money.MustFromString("10", "USD")}

	got, err := AnyMatch([]Condition{miss, hit}, Context{Order: o})
	require.NoError(t, err)
	assert.True(t, got)

	got, err = AnyMatch([]Condition{miss}, Context{Order: o})
	require.NoError(t, err)
	assert.False(t, got)

	// Empty sets always match.
	got, err = AnyMatch(nil, Context{Order: o})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestAnyMatchPropagatesErrors(t *testing.T) {
	o := orderWithTotal(t, "50.00", "USD")
	broken := OrderTotalPrice{Operator: "!!", Amount: money.MustFromString("1", "USD")}
	_, err := AnyMatch([]Condition{broken}, Context{Order: o})
	require.ErrorIs(t, err, ErrInvalidOperator)
}

func TestRegistryBuildsBuiltins(t *testing.T) {
	registry := DefaultRegistry()

	cond, err := registry.New(IDOrderTotalPrice, map[string]any{
		"operator": ">=",
		"amount":   "25.00",
		"currency": "USD",
	})
	require.NoError(t, err)
	got, err := cond.Evaluate(Context{Order: orderWithTotal(t, "50.00", "USD")})
	require.NoError(t, err)
	assert.True(t, got)

	cond, err = registry.New(IDOrderItemQuantity, map[string]any{
		"operator": ">",
		"quantity": "1",
	})
	require.NoError(t, err)
	li, err := order.NewLineItem("sku-1", "Widget", decimal.NewFromInt(3), nil)
	require.NoError(t, err)
	got, err = cond.Evaluate(Context{LineItem: li})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestRegistryUnknownCondition(t *testing.T) {
	_, err := DefaultRegistry().New("no_such_condition", nil)
	require.ErrorIs(t, err, ErrUnknownCondition)
}

func TestRegistryInvalidConfiguration(t *testing.T) {
	_, err := DefaultRegistry().New(IDOrderTotalPrice, map[string]any{"operator": ">="})
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = DefaultRegistry().New(IDOrderCurrency, map[string]any{"currencies": []any{}})
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("x", func(map[string]any) (Condition, error) { return nil, nil }))
	err := r.Register("x", func(map[string]any) (Condition, error) { return nil, nil })
	require.Error(t, err)
}
