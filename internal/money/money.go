package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrCurrencyMismatch is returned when two amounts with different currencies
// are combined or compared.
var ErrCurrencyMismatch = errors.New("currency mismatch")

// ErrInvalidCurrency is returned when a currency code is empty or malformed.
var ErrInvalidCurrency = errors.New("invalid currency code")

// ErrDivisionByZero is returned when dividing an amount by a zero scalar.
var ErrDivisionByZero = errors.New("division by zero")

// RoundingMode selects how a half-way value is resolved when rounding.
type RoundingMode int

const (
	// RoundHalfUp rounds half-way values away from zero.
	RoundHalfUp RoundingMode = iota
	// RoundHalfDown rounds half-way values towards zero.
	RoundHalfDown
	// RoundHalfEven rounds half-way values to the nearest even neighbour.
	RoundHalfEven
	// RoundHalfOdd rounds half-way values to the nearest odd neighbour.
	RoundHalfOdd
)

// String returns the persisted name of the rounding mode.
func (r RoundingMode) String() string {
	switch r {
	case RoundHalfDown:
		return "half_down"
	case RoundHalfEven:
		return "half_even"
	case RoundHalfOdd:
		return "half_odd"
	default:
		return "half_up"
	}
}

// ParseRoundingMode is the inverse of RoundingMode.String.
func ParseRoundingMode(name string) (RoundingMode, error) {
	switch name {
	case "half_up", "":
		return RoundHalfUp, nil
	case "half_down":
		return RoundHalfDown, nil
	case "half_even":
		return RoundHalfEven, nil
	case "half_odd":
		return RoundHalfOdd, nil
	default:
		return RoundHalfUp, fmt.Errorf("unknown rounding mode %q", name)
	}
}

// Money is an immutable decimal amount in a single currency. The zero value
// is not a valid amount; construct values through New or FromString.
//
// Arithmetic never rounds. Callers round explicitly at display and
// persistence boundaries so intermediate sums keep full precision.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// New builds a Money value from a decimal amount and an ISO 4217 code.
func New(amount decimal.Decimal, currency string) (Money, error) {
	code, err := normalizeCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	return Money{amount: amount, currency: code}, nil
}

// FromString parses a decimal string such as "9.99" into a Money value.
func FromString(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return New(d, currency)
}

// MustFromString parses like FromString and panics on error. Intended for
// tests and static declarations.
func MustFromString(amount, currency string) Money {
	m, err := FromString(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns the zero amount in the provided currency.
func Zero(currency string) (Money, error) {
	return New(decimal.Zero, currency)
}

// Amount returns the decimal amount.
func (m Money) Amount() decimal.Decimal { return m.amount }

// CurrencyCode returns the ISO 4217 currency code.
func (m Money) CurrencyCode() string { return m.currency }

// Add returns m + other. Fails when the currencies differ.
func (m Money) Add(other Money) (Money, error) {
	if err := m.assertSameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Sub returns m - other. Fails when the currencies differ.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.assertSameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// Mul returns m scaled by a dimensionless factor such as a quantity or a
// percentage. The currency is preserved.
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(factor), currency: m.currency}
}

// Div returns m divided by a dimensionless divisor. The currency is
// preserved. Division keeps enough precision for later aggregation.
func (m Money) Div(divisor decimal.Decimal) (Money, error) {
	if divisor.IsZero() {
		return Money{}, ErrDivisionByZero
	}
	return Money{amount: m.amount.DivRound(divisor, divPrecision), currency: m.currency}, nil
}

// divPrecision bounds non-terminating division results well past any
// currency's fraction digits.
const divPrecision = 12

// Neg returns the amount with its sign flipped.
func (m Money) Neg() Money {
	return Money{amount: m.amount.Neg(), currency: m.currency}
}

// Cmp compares two amounts: -1 when m < other, 0 when equal, 1 when greater.
// Fails when the currencies differ.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.assertSameCurrency(other); err != nil {
		return 0, err
	}
	return m.amount.Cmp(other.amount), nil
}

// Equal reports whether both amount and currency are identical. Unlike Cmp
// it never errors; differing currencies are simply not equal.
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.amount.IsZero() }

// IsPositive reports whether the amount is greater than zero.
func (m Money) IsPositive() bool { return m.amount.IsPositive() }

// IsNegative reports whether the amount is less than zero.
func (m Money) IsNegative() bool { return m.amount.IsNegative() }

// Round returns the amount rounded to the given number of fraction digits
// using the provided mode. Rounding is always explicit; no other operation
// on Money rounds.
func (m Money) Round(mode RoundingMode, places int32) Money {
	return Money{amount: roundDecimal(m.amount, places, mode), currency: m.currency}
}

// RoundToCurrency rounds to the fraction digits registered for the amount's
// currency, falling back to two digits for unknown codes.
func (m Money) RoundToCurrency(mode RoundingMode) Money {
	digits := int32(DefaultFractionDigits)
	if cur, ok := Lookup(m.currency); ok {
		digits = int32(cur.FractionDigits)
	}
	return m.Round(mode, digits)
}

// String renders the amount followed by its currency code, e.g. "9.99 USD".
func (m Money) String() string {
	return m.amount.String() + " " + m.currency
}

// StringFixed renders the bare amount padded to the currency's fraction
// digits, e.g. "4.00" where String would collapse to "4". For display of
// amounts that have already been rounded to the currency scale; amounts with
// more precision are rounded half-even by the underlying formatting.
func (m Money) StringFixed() string {
	digits := int32(DefaultFractionDigits)
	if cur, ok := Lookup(m.currency); ok {
		digits = int32(cur.FractionDigits)
	}
	return m.amount.StringFixed(digits)
}

func (m Money) assertSameCurrency(other Money) error {
	if m.currency != other.currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return nil
}

func normalizeCurrency(code string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if len(trimmed) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return trimmed, nil
}

var (
	decimalOne  = decimal.NewFromInt(1)
	decimalTwo  = decimal.NewFromInt(2)
	decimalHalf = decimal.New(5, -1)
)

func roundDecimal(d decimal.Decimal, places int32, mode RoundingMode) decimal.Decimal {
	switch mode {
	case RoundHalfEven:
		return d.RoundBank(places)
	case RoundHalfUp, RoundHalfDown, RoundHalfOdd:
		// handled below
	default:
		return d.Round(places)
	}

	shifted := d.Shift(places)
	floor := shifted.Floor()
	frac := shifted.Sub(floor)

	var rounded decimal.Decimal
	switch frac.Cmp(decimalHalf) {
	case -1:
		rounded = floor
	case 1:
		rounded = floor.Add(decimalOne)
	default:
		rounded = resolveHalf(d, floor, mode)
	}
	return rounded.Shift(-places)
}

// resolveHalf picks between floor and floor+1 for an exact half-way value.
func resolveHalf(original, floor decimal.Decimal, mode RoundingMode) decimal.Decimal {
	ceil := floor.Add(decimalOne)
	switch mode {
	case RoundHalfUp:
		if original.IsNegative() {
			return floor
		}
		return ceil
	case RoundHalfDown:
		if original.IsNegative() {
			return ceil
		}
		return floor
	case RoundHalfOdd:
		if floor.Mod(decimalTwo).IsZero() {
			return ceil
		}
		return floor
	default: // half even
		if floor.Mod(decimalTwo).IsZero() {
			return floor
		}
		return ceil
	}
}
