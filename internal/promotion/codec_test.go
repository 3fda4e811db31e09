package promotion

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvel-dev/backend-pricing/internal/condition"
	"github.com/arvel-dev/backend-pricing/internal/money"
)

func TestOfferRoundTripFixedAmountOff(t *testing.T) {
	in := FixedAmountOff{
		Amount:           money.MustFromString("5.00", "USD"),
		DisplayInclusive: true,
		ItemConditions: []condition.Condition{
			condition.OrderItemPurchasable{PurchasableIDs: []string{"sku-1"}},
		},
	}
	raw, err := MarshalOffer(in)
	require.NoError(t, err)

	decoded, err := UnmarshalOffer(raw, condition.DefaultRegistry())
	require.NoError(t, err)
	out, ok := decoded.(FixedAmountOff)
	require.True(t, ok)
	assert.True(t, out.Amount.Equal(in.Amount))
	assert.True(t, out.DisplayInclusive)
	require.Len(t, out.ItemConditions, 1)
	assert.Equal(t, condition.IDOrderItemPurchasable, out.ItemConditions[0].ID())
}

func TestOfferRoundTripPercentageOff(t *testing.T) {
	in := PercentageOff{Percentage: decimal.RequireFromString("0.15")}
	raw, err := MarshalOffer(in)
	require.NoError(t, err)

	decoded, err := UnmarshalOffer(raw, condition.DefaultRegistry())
	require.NoError(t, err)
	out, ok := decoded.(PercentageOff)
	require.True(t, ok)
	assert.True(t, out.Percentage.Equal(in.Percentage))
	assert.False(t, out.DisplayInclusive)
}

func TestOfferRoundTripBuyXGetY(t *testing.T) {
	amount := money.MustFromString("1.00", "USD")
	in := BuyXGetY{
		BuyQuantity:   decimal.NewFromInt(6),
		BuyConditions: []condition.Condition{condition.OrderItemPurchasable{PurchasableIDs: []string{"sku-buy"}}},
		GetQuantity:   decimal.NewFromInt(4),
		OfferAmount:   &amount,
	}
	raw, err := MarshalOffer(in)
	require.NoError(t, err)

	decoded, err := UnmarshalOffer(raw, condition.DefaultRegistry())
	require.NoError(t, err)
	out, ok := decoded.(BuyXGetY)
	require.True(t, ok)
	assert.True(t, out.BuyQuantity.Equal(in.BuyQuantity))
	assert.True(t, out.GetQuantity.Equal(in.GetQuantity))
	require.NotNil(t, out.OfferAmount)
	assert.True(t, out.OfferAmount.Equal(amount))
	require.Len(t, out.BuyConditions, 1)
}

func TestOfferUnknownKind(t *testing.T) {
	_, err := UnmarshalOffer([]byte(`{"kind":"mystery"}`), condition.DefaultRegistry())
	require.Error(t, err)
}

func TestUnmarshalOfferEmptyIsNil(t *testing.T) {
	offer, err := UnmarshalOffer(nil, condition.DefaultRegistry())
	require.NoError(t, err)
	assert.Nil(t, offer)
}
