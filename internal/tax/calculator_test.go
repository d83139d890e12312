package tax

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	require.NoError(t, err)
	return d
}

func TestComputeLineEighteenPercent(t *testing.T) {
	got := ComputeLine(Line{Quantity: dec(t, "2"), UnitPrice: dec(t, "100"), TaxPercent: dec(t, "18")})

	assert.True(t, got.Untaxed.Equal(dec(t, "200")), got.Untaxed.String())
	assert.True(t, got.Tax.Equal(dec(t, "36")), got.Tax.String())
	assert.True(t, got.Total.Equal(dec(t, "236")), got.Total.String())
}

func TestComputeLineKeepsFullPrecision(t *testing.T) {
	got := ComputeLine(Line{Quantity: dec(t, "3"), UnitPrice: dec(t, "0.333"), TaxPercent: dec(t, "12.5")})

	assert.Equal(t, "0.999", got.Untaxed.String())
	assert.Equal(t, "0.124875", got.Tax.String())
	assert.Equal(t, "1.123875", got.Total.String())
}

func TestComputeTotalsEmpty(t *testing.T) {
	got := ComputeTotals(nil)
	assert.True(t, got.Untaxed.IsZero())
	assert.True(t, got.Tax.IsZero())
	assert.True(t, got.Total.IsZero())
}

func TestTotalsProperties(t *testing.T) {
	cases := [][]Line{
		{{Quantity: dec(t, "1"), UnitPrice: dec(t, "10"), TaxPercent: dec(t, "0")}},
		{
			{Quantity: dec(t, "2"), UnitPrice: dec(t, "100"), TaxPercent: dec(t, "18")},
			{Quantity: dec(t, "7.5"), UnitPrice: dec(t, "19.99"), TaxPercent: dec(t, "5")},
			{Quantity: dec(t, "1"), UnitPrice: dec(t, "0"), TaxPercent: dec(t, "100")},
		},
		{
			{Quantity: dec(t, "0.001"), UnitPrice: dec(t, "123456.789"), TaxPercent: dec(t, "33.333")},
			{Quantity: dec(t, "12"), UnitPrice: dec(t, "4.2"), TaxPercent: dec(t, "28")},
		},
	}
	for _, lines := range cases {
		sum := decimal.Zero
		for _, l := range lines {
			amounts := ComputeLine(l)
			require.True(t, amounts.Total.Equal(amounts.Untaxed.Add(amounts.Tax)))
			sum = sum.Add(amounts.Total)
		}
		totals := ComputeTotals(lines)
		assert.True(t, totals.Total.Equal(sum))
		assert.True(t, totals.Total.Equal(totals.Untaxed.Add(totals.Tax)))
		assert.True(t, totals.Equal(ComputeTotals(lines)), "recomputation must be deterministic")
	}
}
