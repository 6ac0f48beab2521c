package slippage

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"qi-quai-rates/internal/flow"
	"qi-quai-rates/internal/market"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func noFlow() flow.Totals {
	return flow.Totals{AtoB: decimal.Zero, BtoA: decimal.Zero}
}

func TestDefaultParamsAreValid(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())
	require.True(t, p.Floor(market.AtoB).GreaterThanOrEqual(p.Floor(market.BtoA)))
	require.False(t, p.Ceiling(market.AtoB).Equal(p.Ceiling(market.BtoA)))
}

func TestEmptyFlowAppliesFullAdjustment(t *testing.T) {
	b := Explain(DefaultParams(), market.AtoB, d("10"), noFlow())

	require.True(t, b.FlowRatio.IsZero())
	require.Equal(t, "5", b.FlowAdjustment.String())
	require.Equal(t, "0.001", b.SizeImpact.String())
	require.Equal(t, "6.501", b.Total.String())
	require.False(t, b.Capped)
}

func TestDominantFlowLowersSlippage(t *testing.T) {
	p := DefaultParams()
	heavyAtoB := flow.Totals{AtoB: d("900"), BtoA: d("100")}

	same := Compute(p, market.AtoB, d("10"), heavyAtoB)
	opposite := Compute(p, market.BtoA, d("10"), heavyAtoB)

	// a-to-b: 1.5 + 0.1*5 + 0.001
	require.Equal(t, "2.001", same.String())
	// b-to-a: 0.5 + 0.9*5 + 0.001
	require.Equal(t, "5.001", opposite.String())
}

func TestFlowRatioDenominatorFloorsAtOne(t *testing.T) {
	tiny := flow.Totals{AtoB: d("0.5"), BtoA: decimal.Zero}

	b := Explain(DefaultParams(), market.AtoB, d("1"), tiny)
	require.Equal(t, "0.5", b.FlowRatio.String())
}

func TestNonPositiveAmountYieldsZero(t *testing.T) {
	for _, amount := range []string{"0", "-3"} {
		require.True(t, Compute(DefaultParams(), market.AtoB, d(amount), noFlow()).IsZero(), amount)
	}
}

func TestSlippageMonotonicInSize(t *testing.T) {
	p := DefaultParams()
	totals := flow.Totals{AtoB: d("40"), BtoA: d("60")}

	for _, dir := range market.Directions {
		prev := decimal.Zero
		for _, amount := range []string{"0.01", "1", "10", "500", "5000", "19999", "20000", "1000000"} {
			got := Compute(p, dir, d(amount), totals)
			require.True(t, got.GreaterThanOrEqual(prev), "%s amount %s: %s < %s", dir, amount, got, prev)
			prev = got
		}
	}
}

func TestSlippageNeverExceedsCeiling(t *testing.T) {
	p := DefaultParams()
	p.FloorAtoB = d("7")
	p.FloorBtoA = d("5.5")

	amounts := []string{"1", "1000", "1000000"}
	flows := []flow.Totals{noFlow(), {AtoB: d("1"), BtoA: d("1000")}, {AtoB: d("1000"), BtoA: d("1")}}

	for _, dir := range market.Directions {
		for _, amount := range amounts {
			for _, totals := range flows {
				b := Explain(p, dir, d(amount), totals)
				require.True(t, b.Total.LessThanOrEqual(p.Ceiling(dir)))
			}
		}
	}

	b := Explain(p, market.AtoB, d("1000000"), noFlow())
	require.True(t, b.Capped)
	require.Equal(t, "8", b.Total.String())
}

func TestValidateRejectsBadCalibration(t *testing.T) {
	p := DefaultParams()
	p.FloorBtoA = d("3")
	require.Error(t, p.Validate())

	p = DefaultParams()
	p.CeilingBtoA = p.CeilingAtoB
	require.Error(t, p.Validate())

	p = DefaultParams()
	p.SizeDivisor = decimal.Zero
	require.Error(t, p.Validate())
}
