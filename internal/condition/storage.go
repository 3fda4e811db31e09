package condition

import "fmt"

// StoredCondition is the persisted form of a condition: its registry id plus
// the factory configuration. Decoding goes back through the registry, so
// stored conditions and externally supplied ones share one validation path.
type StoredCondition struct {
	ID     string         `json:"id"`
	Config map[string]any `json:"config"`
}

// Encode converts conditions to their stored form.
func Encode(conditions []Condition) ([]StoredCondition, error) {
	stored := make([]StoredCondition, 0, len(conditions))
	for _, cond := range conditions {
		config, err := configOf(cond)
		if err != nil {
			return nil, err
		}
		stored = append(stored, StoredCondition{ID: cond.ID(), Config: config})
	}
	return stored, nil
}

// Decode rebuilds conditions from their stored form.
func (r *Registry) Decode(stored []StoredCondition) ([]Condition, error) {
	if len(stored) == 0 {
		return nil, nil
	}
	conditions := make([]Condition, 0, len(stored))
	for _, sc := range stored {
		cond, err := r.New(sc.ID, sc.Config)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}
	return conditions, nil
}

func configOf(cond Condition) (map[string]any, error) {
	switch c := cond.(type) {
	case OrderTotalPrice:
		return map[string]any{
			"operator": c.Operator,
			"amount":   c.Amount.Amount().String(),
			"currency": c.Amount.CurrencyCode(),
		}, nil
	case OrderCurrency:
		return map[string]any{"currencies": c.Currencies}, nil
	case OrderEmailDomain:
		return map[string]any{"domains": c.Domains}, nil
	case OrderItemQuantity:
		return map[string]any{"operator": c.Operator, "quantity": c.Quantity.String()}, nil
	case OrderItemPurchasable:
		return map[string]any{"purchasable_ids": c.PurchasableIDs}, nil
	default:
		return nil, fmt.Errorf("condition %q has no stored form", cond.ID())
	}
}
