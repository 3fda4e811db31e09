package money

// Currency carries the display metadata for one ISO 4217 currency. It is
// used only at the display-rounding boundary, never for internal arithmetic.
type Currency struct {
	Code           string
	Symbol         string
	FractionDigits int
}

// DefaultFractionDigits is used for currencies absent from the registry.
const DefaultFractionDigits = 2

var currencies = map[string]Currency{
	"AUD": {Code: "AUD", Symbol: "A$", FractionDigits: 2},
	"BHD": {Code: "BHD", Symbol: ".د.ب", FractionDigits: 3},
	"CAD": {Code: "CAD", Symbol: "CA$", FractionDigits: 2},
	"CHF": {Code: "CHF", Symbol: "CHF", FractionDigits: 2},
	"CNY": {Code: "CNY", Symbol: "¥", FractionDigits: 2},
	"EUR": {Code: "EUR", Symbol: "€", FractionDigits: 2},
	"GBP": {Code: "GBP", Symbol: "£", FractionDigits: 2},
	"IDR": {Code: "IDR", Symbol: "Rp", FractionDigits: 2},
	"JPY": {Code: "JPY", Symbol: "¥", FractionDigits: 0},
	"KRW": {Code: "KRW", Symbol: "₩", FractionDigits: 0},
	"KWD": {Code: "KWD", Symbol: "د.ك", FractionDigits: 3},
	"NZD": {Code: "NZD", Symbol: "NZ$", FractionDigits: 2},
	"SGD": {Code: "SGD", Symbol: "S$", FractionDigits: 2},
	"USD": {Code: "USD", Symbol: "$", FractionDigits: 2},
}

// Lookup returns the metadata for a currency code when registered.
func Lookup(code string) (Currency, bool) {
	normalized, err := normalizeCurrency(code)
	if err != nil {
		return Currency{}, false
	}
	cur, ok := currencies[normalized]
	return cur, ok
}

// FractionDigits returns the registered fraction digits for a code, falling
// back to DefaultFractionDigits.
func FractionDigits(code string) int {
	if cur, ok := Lookup(code); ok {
		return cur.FractionDigits
	}
	return DefaultFractionDigits
}
