package promotion

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/arvel-dev/backend-pricing/internal/condition"
	"github.com/arvel-dev/backend-pricing/internal/money"
)

// Offer kinds as they appear in storage and API payloads.
const (
	OfferKindFixedAmountOff = "fixed_amount_off"
	OfferKindPercentageOff  = "percentage_off"
	OfferKindBuyXGetY       = "buy_x_get_y"
)

// OfferSpec is the declarative form of an offer, shared between the
// promotions table and the admin API.
type OfferSpec struct {
	Kind             string                      `json:"kind"`
	Amount           string                      `json:"amount,omitempty"`
	Currency         string                      `json:"currency,omitempty"`
	Percentage       string                      `json:"percentage,omitempty"`
	DisplayInclusive bool                        `json:"display_inclusive,omitempty"`
	ItemConditions   []condition.StoredCondition `json:"item_conditions,omitempty"`
	BuyQuantity      string                      `json:"buy_quantity,omitempty"`
	BuyConditions    []condition.StoredCondition `json:"buy_conditions,omitempty"`
	GetQuantity      string                      `json:"get_quantity,omitempty"`
	GetConditions    []condition.StoredCondition `json:"get_conditions,omitempty"`
}

// MarshalOffer converts an offer to its JSON stored form.
func MarshalOffer(offer Offer) ([]byte, error) {
	spec, err := SpecOf(offer)
	if err != nil {
		return nil, err
	}
	return json.Marshal(spec)
}

// SpecOf converts an offer to its declarative form.
func SpecOf(offer Offer) (OfferSpec, error) {
	switch o := offer.(type) {
	case FixedAmountOff:
		itemConditions, err := condition.Encode(o.ItemConditions)
		if err != nil {
			return OfferSpec{}, err
		}
		return OfferSpec{
			Kind:             OfferKindFixedAmountOff,
			Amount:           o.Amount.Amount().String(),
			Currency:         o.Amount.CurrencyCode(),
			DisplayInclusive: o.DisplayInclusive,
			ItemConditions:   itemConditions,
		}, nil
	case PercentageOff:
		itemConditions, err := condition.Encode(o.ItemConditions)
		if err != nil {
			return OfferSpec{}, err
		}
		return OfferSpec{
			Kind:             OfferKindPercentageOff,
			Percentage:       o.Percentage.String(),
			DisplayInclusive: o.DisplayInclusive,
			ItemConditions:   itemConditions,
		}, nil
	case BuyXGetY:
		buyConditions, err := condition.Encode(o.BuyConditions)
		if err != nil {
			return OfferSpec{}, err
		}
		getConditions, err := condition.Encode(o.GetConditions)
		if err != nil {
			return OfferSpec{}, err
		}
		spec := OfferSpec{
			Kind:          OfferKindBuyXGetY,
			BuyQuantity:   o.BuyQuantity.String(),
			BuyConditions: buyConditions,
			GetQuantity:   o.GetQuantity.String(),
			GetConditions: getConditions,
		}
		if o.OfferAmount != nil {
			spec.Amount = o.OfferAmount.Amount().String()
			spec.Currency = o.OfferAmount.CurrencyCode()
		}
		if !o.OfferPercentage.IsZero() {
			spec.Percentage = o.OfferPercentage.String()
		}
		return spec, nil
	default:
		return OfferSpec{}, fmt.Errorf("offer %T has no stored form", offer)
	}
}

// UnmarshalOffer rebuilds an offer from its JSON stored form. Conditions are
// resolved through the registry.
func UnmarshalOffer(raw []byte, registry *condition.Registry) (Offer, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var spec OfferSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("decode offer: %w", err)
	}
	return OfferFromSpec(spec, registry)
}

// OfferFromSpec builds an offer from its declarative form.
func OfferFromSpec(spec OfferSpec, registry *condition.Registry) (Offer, error) {
	switch spec.Kind {
	case OfferKindFixedAmountOff:
		amount, err := money.FromString(spec.Amount, spec.Currency)
		if err != nil {
			return nil, fmt.Errorf("fixed amount offer: %w", err)
		}
		itemConditions, err := registry.Decode(spec.ItemConditions)
		if err != nil {
			return nil, err
		}
		return FixedAmountOff{
			Amount:           amount,
			DisplayInclusive: spec.DisplayInclusive,
			ItemConditions:   itemConditions,
		}, nil
	case OfferKindPercentageOff:
		percentage, err := decimal.NewFromString(spec.Percentage)
		if err != nil {
			return nil, fmt.Errorf("percentage offer: %w", err)
		}
		itemConditions, err := registry.Decode(spec.ItemConditions)
		if err != nil {
			return nil, err
		}
		return PercentageOff{
			Percentage:       percentage,
			DisplayInclusive: spec.DisplayInclusive,
			ItemConditions:   itemConditions,
		}, nil
	case OfferKindBuyXGetY:
		buyQuantity, err := decimal.NewFromString(spec.BuyQuantity)
		if err != nil {
			return nil, fmt.Errorf("buy x get y buy quantity: %w", err)
		}
		getQuantity, err := decimal.NewFromString(spec.GetQuantity)
		if err != nil {
			return nil, fmt.Errorf("buy x get y get quantity: %w", err)
		}
		buyConditions, err := registry.Decode(spec.BuyConditions)
		if err != nil {
			return nil, err
		}
		getConditions, err := registry.Decode(spec.GetConditions)
		if err != nil {
			return nil, err
		}
		offer := BuyXGetY{
			BuyQuantity:   buyQuantity,
			BuyConditions: buyConditions,
			GetQuantity:   getQuantity,
			GetConditions: getConditions,
		}
		if spec.Amount != "" {
			amount, err := money.FromString(spec.Amount, spec.Currency)
			if err != nil {
				return nil, fmt.Errorf("buy x get y amount: %w", err)
			}
			offer.OfferAmount = &amount
		}
		if spec.Percentage != "" {
			offer.OfferPercentage, err = decimal.NewFromString(spec.Percentage)
			if err != nil {
				return nil, fmt.Errorf("buy x get y percentage: %w", err)
			}
		}
		return offer, nil
	default:
		return nil, fmt.Errorf("unknown offer kind %q", spec.Kind)
	}
}
