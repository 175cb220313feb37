package models

import (
	"math"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

const (
	CurrencyPlaces    = 2
	QuantityPlaces    = 4
	AverageCostPlaces = 6

	DefaultCurrency = money.USD
)

// Fits reports whether d can be stored with the given number of decimal
// places without rounding.
func Fits(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

// NormalizePrice rounds an upstream price half-to-even to currency precision.
func NormalizePrice(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(CurrencyPlaces)
}

// WeightedAverage returns (q1*p1 + q2*p2) / (q1+q2) rounded to
// AverageCostPlaces.
func WeightedAverage(q1, p1, q2, p2 decimal.Decimal) decimal.Decimal {
	total := q1.Add(q2)
	return q1.Mul(p1).Add(q2.Mul(p2)).
		DivRound(total, AverageCostPlaces+4).
		RoundBank(AverageCostPlaces)
}

var (
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// FormatMoney renders an amount in the given ISO currency, e.g. "$1,500.00".
// Amounts beyond int64 cents fall back to "<fixed> <code>".
func FormatMoney(d decimal.Decimal, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	cents := d.Shift(CurrencyPlaces).Round(0)
	if cents.GreaterThan(maxCents) || cents.LessThan(minCents) {
		return d.StringFixed(CurrencyPlaces) + " " + currency
	}
	return money.New(cents.IntPart(), currency).Display()
}

// FormatQuantity renders a quantity without trailing zeros.
func FormatQuantity(d decimal.Decimal) string {
	return d.String()
}
