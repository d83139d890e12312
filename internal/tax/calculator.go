// Package tax computes line and document amounts for tax-aware line items.
package tax

import "github.com/shopspring/decimal"

// Line is the calculator view of a line item.
type Line struct {
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	TaxPercent decimal.Decimal
}

// Amounts groups the three derived monetary figures.
type Amounts struct {
	Untaxed decimal.Decimal `json:"untaxed"`
	Tax     decimal.Decimal `json:"tax"`
	Total   decimal.Decimal `json:"total"`
}

// Add returns the element-wise sum of two amounts.
func (a Amounts) Add(other Amounts) Amounts {
	return Amounts{
		Untaxed: a.Untaxed.Add(other.Untaxed),
		Tax:     a.Tax.Add(other.Tax),
		Total:   a.Total.Add(other.Total),
	}
}

// Equal compares amounts numerically.
func (a Amounts) Equal(other Amounts) bool {
	return a.Untaxed.Equal(other.Untaxed) && a.Tax.Equal(other.Tax) && a.Total.Equal(other.Total)
}

// ComputeLine maps a line to its amounts. No rounding is applied and signs
// are not validated here; callers reject negative input first.
func ComputeLine(line Line) Amounts {
	untaxed := line.Quantity.Mul(line.UnitPrice)
	// percent / 100 as an exact decimal shift
	taxAmount := untaxed.Mul(line.TaxPercent).Shift(-2)
	return Amounts{
		Untaxed: untaxed,
		Tax:     taxAmount,
		Total:   untaxed.Add(taxAmount),
	}
}

// ComputeTotals sums ComputeLine over every line. An empty set yields zero.
func ComputeTotals(lines []Line) Amounts {
	totals := Amounts{Untaxed: decimal.Zero, Tax: decimal.Zero, Total: decimal.Zero}
	for _, line := range lines {
		totals = totals.Add(ComputeLine(line))
	}
	return totals
}
