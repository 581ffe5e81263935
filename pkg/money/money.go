// Package money holds the decimal arithmetic shared by orders, transactions
// and invoices so every record derives its totals the same way.
package money

import (
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits money amounts are rounded to.
const Scale = 2

// QuantityScale matches the numeric(18,4) quantity columns.
const QuantityScale = 4

var (
	// MinQuantity is the smallest tradeable quantity.
	MinQuantity = decimal.RequireFromString("0.01")
	// MinPrice is the smallest accepted unit price.
	MinPrice = decimal.RequireFromString("0.01")

	hundred = decimal.NewFromInt(100)
)

// LineTotals are the derived amounts for a single line.
type LineTotals struct {
	Subtotal decimal.Decimal
	VAT      decimal.Decimal
	Total    decimal.Decimal
}

// Totals are the aggregate amounts for a document.
type Totals struct {
	Subtotal    decimal.Decimal
	TotalVAT    decimal.Decimal
	TotalAmount decimal.Decimal
}

// Line computes subtotal = qty*price and VAT = subtotal*rate/100, each
// rounded half away from zero to Scale.
func Line(quantity, unitPrice, vatRate decimal.Decimal) LineTotals {
	subtotal := quantity.Mul(unitPrice).Round(Scale)
	vat := subtotal.Mul(vatRate).Div(hundred).Round(Scale)
	return LineTotals{
		Subtotal: subtotal,
		VAT:      vat,
		Total:    subtotal.Add(vat),
	}
}

// Sum aggregates line totals.
func Sum(lines []LineTotals) Totals {
	out := Totals{Subtotal: decimal.Zero, TotalVAT: decimal.Zero, TotalAmount: decimal.Zero}
	for _, l := range lines {
		out.Subtotal = out.Subtotal.Add(l.Subtotal)
		out.TotalVAT = out.TotalVAT.Add(l.VAT)
		out.TotalAmount = out.TotalAmount.Add(l.Total)
	}
	return out
}

// ValidVATRate reports whether rate lies within 0..100.
func ValidVATRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(hundred)
}

// FitsQuantityScale reports whether q carries no significant digits past
// QuantityScale. Trailing zeros do not count, so 30.00000 fits.
func FitsQuantityScale(q decimal.Decimal) bool {
	return q.Equal(q.Truncate(QuantityScale))
}
