package events

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the number of fractional digits every amount is truncated to.
const AmountPlaces = 2

// Price is a decimal amount in an ISO 4217 currency. The amount is truncated
// toward zero to two fractional digits when the Price is built. The amount as
// given is kept alongside so that totals are summed before truncation
// (10.999 + 5.999 totals 16.99, not 16.98).
type Price struct {
	amount   decimal.Decimal
	exact    decimal.Decimal
	currency string
}

// NewPrice builds a Price from a decimal amount.
func NewPrice(amount decimal.Decimal, currency string) (Price, error) {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if err := validateCurrency(cur); err != nil {
		return Price{}, err
	}
	return Price{amount: TruncateAmount(amount), exact: amount, currency: cur}, nil
}

// ParsePrice builds a Price from a decimal string such as "15.99".
func ParsePrice(amount, currency string) (Price, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Price{}, &ValidationError{Field: "price", Message: fmt.Sprintf("invalid amount %q", amount)}
	}
	return NewPrice(d, currency)
}

// Amount returns the truncated amount.
func (p Price) Amount() decimal.Decimal { return p.amount }

// Currency returns the upper-cased ISO currency code.
func (p Price) Currency() string { return p.currency }

// IsZero reports whether p was never built through NewPrice or ParsePrice.
func (p Price) IsZero() bool { return p.currency == "" }

// String renders the price as "15.99 USD".
func (p Price) String() string {
	return FormatAmount(p.amount) + " " + p.currency
}

// TruncateAmount drops every fractional digit past the second, rounding toward zero.
func TruncateAmount(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(AmountPlaces)
}

// FormatAmount renders d truncated to two places with both digits always present,
// e.g. 16.998 -> "16.99" and 10 -> "10.00".
func FormatAmount(d decimal.Decimal) string {
	return TruncateAmount(d).StringFixed(AmountPlaces)
}

// Exact returns the amount as it was given, before truncation.
func (p Price) Exact() decimal.Decimal { return p.exact }

// SumAmounts adds the exact prices and truncates the total.
func SumAmounts(prices ...Price) decimal.Decimal {
	total := decimal.Zero
	for _, p := range prices {
		total = total.Add(p.exact)
	}
	return TruncateAmount(total)
}

func validateCurrency(cur string) error {
	if cur == "" {
		return &ValidationError{Field: "currency", Message: "required"}
	}
	if len(cur) != 3 {
		return &ValidationError{Field: "currency", Message: fmt.Sprintf("%q is not a 3-letter ISO code", cur)}
	}
	for _, r := range cur {
		if r < 'A' || r > 'Z' {
			return &ValidationError{Field: "currency", Message: fmt.Sprintf("%q is not a 3-letter ISO code", cur)}
		}
	}
	return nil
}
