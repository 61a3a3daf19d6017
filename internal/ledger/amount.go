package ledger

import "github.com/shopspring/decimal"

// Scale is the fixed number of fractional digits for all monetary amounts.
const Scale = 4

// Quantize normalizes an amount to the ledger's fixed scale using
// round-half-up. Every amount entering the ledger passes through here so the
// balance invariant is an exact comparison, never a float tolerance.
func Quantize(value decimal.Decimal) decimal.Decimal {
	return value.Round(Scale)
}

// FormatAmount renders an amount with exactly Scale fractional digits. Hash
// inputs use this form so serialization is deterministic.
func FormatAmount(value decimal.Decimal) string {
	return Quantize(value).StringFixed(Scale)
}
