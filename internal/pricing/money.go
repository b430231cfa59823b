package pricing

import "github.com/shopspring/decimal"

// Money is a monetary amount in the configured currency. Every amount the
// engine produces is already rounded to the cent.
type Money = decimal.Decimal

var hundred = decimal.NewFromInt(100)

// RoundCents rounds to two decimal places, half away from zero.
func RoundCents(d decimal.Decimal) Money {
	return d.Round(2)
}

// ToMinorUnits converts an amount into integer cents for payment providers.
func ToMinorUnits(m Money) int64 {
	return m.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts integer cents back into a Money value.
func FromMinorUnits(cents int64) Money {
	return decimal.New(cents, -2)
}

// Format renders an amount with exactly two decimals.
func Format(m Money) string {
	return m.StringFixed(2)
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}
