package slippage

import (
	"errors"

	"github.com/shopspring/decimal"

	"qi-quai-rates/internal/flow"
	"qi-quai-rates/internal/market"
)

// Params calibrates the slippage model. All values are percentages except
// SizeDivisor, which is expressed in source-asset units.
type Params struct {
	FloorAtoB       decimal.Decimal
	FloorBtoA       decimal.Decimal
	CeilingAtoB     decimal.Decimal
	CeilingBtoA     decimal.Decimal
	FlowCoefficient decimal.Decimal
	SizeDivisor     decimal.Decimal
	SizeCap         decimal.Decimal
}

// DefaultParams returns the production calibration.
func DefaultParams() Params {
	return Params{
		FloorAtoB:       decimal.RequireFromString("1.5"),
		FloorBtoA:       decimal.RequireFromString("0.5"),
		CeilingAtoB:     decimal.NewFromInt(8),
		CeilingBtoA:     decimal.NewFromInt(6),
		FlowCoefficient: decimal.NewFromInt(5),
		SizeDivisor:     decimal.NewFromInt(10000),
		SizeCap:         decimal.NewFromInt(2),
	}
}

// Validate checks the calibration invariants.
func (p Params) Validate() error {
	for _, v := range []decimal.Decimal{p.FloorAtoB, p.FloorBtoA, p.CeilingAtoB, p.CeilingBtoA, p.FlowCoefficient, p.SizeCap} {
		if v.IsNegative() {
			return errors.New("slippage parameters must not be negative")
		}
	}
	if !p.SizeDivisor.IsPositive() {
		return errors.New("slippage size divisor must be positive")
	}
	if p.FloorAtoB.LessThan(p.FloorBtoA) {
		return errors.New("slippage floor for a-to-b must be at least the b-to-a floor")
	}
	if p.CeilingAtoB.Equal(p.CeilingBtoA) {
		return errors.New("slippage ceilings must differ per direction")
	}
	if p.CeilingAtoB.LessThan(p.FloorAtoB) || p.CeilingBtoA.LessThan(p.FloorBtoA) {
		return errors.New("slippage ceiling must not be below its floor")
	}
	return nil
}

// Floor returns the base slippage for d.
func (p Params) Floor(d market.Direction) decimal.Decimal {
	if d == market.BtoA {
		return p.FloorBtoA
	}
	return p.FloorAtoB
}

// Ceiling returns the absolute cap for d.
func (p Params) Ceiling(d market.Direction) decimal.Decimal {
	if d == market.BtoA {
		return p.CeilingBtoA
	}
	return p.CeilingAtoB
}

// Breakdown exposes the individual terms of a slippage computation.
type Breakdown struct {
	Base           decimal.Decimal
	FlowRatio      decimal.Decimal
	FlowAdjustment decimal.Decimal
	SizeImpact     decimal.Decimal
	Ceiling        decimal.Decimal
	Total          decimal.Decimal
	Capped         bool
}

var one = decimal.NewFromInt(1)

// Explain computes slippage for converting amount in direction d given the
// recent flow totals, returning every intermediate term.
func Explain(p Params, d market.Direction, amount decimal.Decimal, totals flow.Totals) Breakdown {
	if !amount.IsPositive() {
		return Breakdown{Total: decimal.Zero, Ceiling: p.Ceiling(d)}
	}

	both := totals.Sum()
	ratio := decimal.Zero
	if both.IsPositive() {
		ratio = totals.Same(d).Div(decimal.Max(both, one))
	}

	size := decimal.Zero
	if p.SizeDivisor.IsPositive() {
		size = decimal.Min(amount.Div(p.SizeDivisor), p.SizeCap)
	}

	b := Breakdown{
		Base:           p.Floor(d),
		FlowRatio:      ratio,
		FlowAdjustment: one.Sub(ratio).Mul(p.FlowCoefficient),
		SizeImpact:     size,
		Ceiling:        p.Ceiling(d),
	}

	total := b.Base.Add(b.FlowAdjustment).Add(b.SizeImpact)
	if total.GreaterThan(b.Ceiling) {
		total = b.Ceiling
		b.Capped = true
	}
	if total.IsNegative() {
		total = decimal.Zero
	}
	b.Total = total
	return b
}

// Compute returns the slippage percentage for converting amount in direction d.
// Non-positive amounts yield zero; callers reject them before pricing.
func Compute(p Params, d market.Direction, amount decimal.Decimal, totals flow.Totals) decimal.Decimal {
	return Explain(p, d, amount, totals).Total
}
