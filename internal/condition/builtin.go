package condition

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/arvel-dev/backend-pricing/internal/money"
)

// Builtin condition ids.
const (
	IDOrderTotalPrice      = "order_total_price"
	IDOrderCurrency        = "order_currency"
	IDOrderEmailDomain     = "order_email_domain"
	IDOrderItemQuantity    = "order_item_quantity"
	IDOrderItemPurchasable = "order_item_purchasable"
)

// DefaultRegistry returns a registry with every builtin condition
// registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(r.Register(IDOrderTotalPrice, newOrderTotalPrice))
	must(r.Register(IDOrderCurrency, newOrderCurrency))
	must(r.Register(IDOrderEmailDomain, newOrderEmailDomain))
	must(r.Register(IDOrderItemQuantity, newOrderItemQuantity))
	must(r.Register(IDOrderItemPurchasable, newOrderItemPurchasable))
	return r
}

// OrderTotalPrice compares the order total against a configured amount.
// A currency mismatch between the total and the configured amount makes the
// condition evaluate false: the condition describes eligibility, it is not a
// mandatory operation.
type OrderTotalPrice struct {
	Operator string
	Amount   money.Money
}

func (OrderTotalPrice) ID() string { return IDOrderTotalPrice }

// Evaluate implements Condition.
func (c OrderTotalPrice) Evaluate(ctx Context) (bool, error) {
	if ctx.Order == nil || ctx.Order.Total == nil {
		return false, nil
	}
	if ctx.Order.Total.CurrencyCode() != c.Amount.CurrencyCode() {
		return false, nil
	}
	cmp, err := ctx.Order.Total.Cmp(c.Amount)
	if err != nil {
		return false, err
	}
	return compareResult(c.Operator, cmp)
}

func newOrderTotalPrice(config map[string]any) (Condition, error) {
	operator, err := stringField(config, "operator")
	if err != nil {
		return nil, err
	}
	amount, err := stringField(config, "amount")
	if err != nil {
		return nil, err
	}
	currency, err := stringField(config, "currency")
	if err != nil {
		return nil, err
	}
	m, err := money.FromString(amount, currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return OrderTotalPrice{Operator: operator, Amount: m}, nil
}

// OrderCurrency matches orders whose established currency is in the
// configured set.
type OrderCurrency struct {
	Currencies []string
}

func (OrderCurrency) ID() string { return IDOrderCurrency }

// Evaluate implements Condition.
func (c OrderCurrency) Evaluate(ctx Context) (bool, error) {
	if ctx.Order == nil {
		return false, nil
	}
	currency, ok := ctx.Order.Currency()
	if !ok {
		return false, nil
	}
	for _, candidate := range c.Currencies {
		if strings.EqualFold(candidate, currency) {
			return true, nil
		}
	}
	return false, nil
}

func newOrderCurrency(config map[string]any) (Condition, error) {
	currencies, err := stringsField(config, "currencies")
	if err != nil {
		return nil, err
	}
	return OrderCurrency{Currencies: currencies}, nil
}

// OrderEmailDomain matches orders placed with an email in one of the
// configured domains.
type OrderEmailDomain struct {
	Domains []string
}

func (OrderEmailDomain) ID() string { return IDOrderEmailDomain }

// Evaluate implements Condition.
func (c OrderEmailDomain) Evaluate(ctx Context) (bool, error) {
	if ctx.Order == nil {
		return false, nil
	}
	_, domain, found := strings.Cut(ctx.Order.Email, "@")
	if !found {
		return false, nil
	}
	for _, candidate := range c.Domains {
		if strings.EqualFold(candidate, domain) {
			return true, nil
		}
	}
	return false, nil
}

func newOrderEmailDomain(config map[string]any) (Condition, error) {
	domains, err := stringsField(config, "domains")
	if err != nil {
		return nil, err
	}
	return OrderEmailDomain{Domains: domains}, nil
}

// OrderItemQuantity compares a line item's quantity against a configured
// threshold.
type OrderItemQuantity struct {
	Operator string
	Quantity decimal.Decimal
}

func (OrderItemQuantity) ID() string { return IDOrderItemQuantity }

// Evaluate implements Condition.
func (c OrderItemQuantity) Evaluate(ctx Context) (bool, error) {
	if ctx.LineItem == nil {
		return false, nil
	}
	return compareResult(c.Operator, ctx.LineItem.Quantity.Cmp(c.Quantity))
}

func newOrderItemQuantity(config map[string]any) (Condition, error) {
	operator, err := stringField(config, "operator")
	if err != nil {
		return nil, err
	}
	quantity, err := decimalField(config, "quantity")
	if err != nil {
		return nil, err
	}
	return OrderItemQuantity{Operator: operator, Quantity: quantity}, nil
}

// OrderItemPurchasable matches line items referencing one of the configured
// purchasable ids.
type OrderItemPurchasable struct {
	PurchasableIDs []string
}

func (OrderItemPurchasable) ID() string { return IDOrderItemPurchasable }

// Evaluate implements Condition.
func (c OrderItemPurchasable) Evaluate(ctx Context) (bool, error) {
	if ctx.LineItem == nil {
		return false, nil
	}
	for _, id := range c.PurchasableIDs {
		if id == ctx.LineItem.PurchasableID {
			return true, nil
		}
	}
	return false, nil
}

func newOrderItemPurchasable(config map[string]any) (Condition, error) {
	ids, err := stringsField(config, "purchasable_ids")
	if err != nil {
		return nil, err
	}
	return OrderItemPurchasable{PurchasableIDs: ids}, nil
}

func stringField(config map[string]any, key string) (string, error) {
	raw, ok := config[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", ErrInvalidConfiguration, key)
	}
	value, ok := raw.(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %q must be a non-empty string", ErrInvalidConfiguration, key)
	}
	return value, nil
}

func stringsField(config map[string]any, key string) ([]string, error) {
	raw, ok := config[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrInvalidConfiguration, key)
	}
	switch typed := raw.(type) {
	case []string:
		if len(typed) == 0 {
			return nil, fmt.Errorf("%w: %q must not be empty", ErrInvalidConfiguration, key)
		}
		return typed, nil
	case []any:
		out := make([]string, 0, len(typed))
		for _, el := range typed {
			s, ok := el.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %q must be a list of strings", ErrInvalidConfiguration, key)
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: %q must not be empty", ErrInvalidConfiguration, key)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q must be a list of strings", ErrInvalidConfiguration, key)
	}
}

func decimalField(config map[string]any, key string) (decimal.Decimal, error) {
	raw, ok := config[key]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: missing %q", ErrInvalidConfiguration, key)
	}
	switch typed := raw.(type) {
	case string:
		d, err := decimal.NewFromString(typed)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: %q: %v", ErrInvalidConfiguration, key, err)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(typed), nil
	case int:
		return decimal.NewFromInt(int64(typed)), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: %q must be a number", ErrInvalidConfiguration, key)
	}
}
