package app

import (
	"context"
	"fmt"
	"math/big"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"qi-quai-rates/internal/fetcher"
	"qi-quai-rates/internal/market"
)

// Simulate prices repeated conversions against fixed rates so the flow
// feedback on slippage can be observed without any upstream.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	pair := a.Config.Pair()
	src, err := newStaticSource(opts)
	if err != nil {
		return err
	}
	direction, err := pair.ParseDirection(opts.Direction)
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(opts.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", opts.Amount, err)
	}
	count := max(opts.Count, 1)

	eng, err := a.newEngine(src)
	if err != nil {
		return err
	}
	if outcome := eng.Cache().Refresh(ctx); !outcome.OK() {
		return outcome.Err()
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "#\tDirection\tIn\tOut\tSlippage%\tSame-direction share")
	for i := range count {
		res, err := eng.Convert(ctx, direction, amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1,
			pair.Label(direction),
			formatDecimal(res.AmountIn, 8),
			formatDecimal(res.AmountOut, 8),
			formatDecimal(res.SlippagePercent, 4),
			formatDecimal(res.Breakdown.FlowRatio, 4),
		)
		if opts.Alternate {
			direction = direction.Opposite()
		}
	}
	return writer.Flush()
}

// staticSource serves fixed values in place of the live fetchers.
type staticSource struct {
	rates  map[market.Direction]decimal.Decimal
	priceA decimal.Decimal
}

func newStaticSource(opts SimulateOptions) (*staticSource, error) {
	parse := func(name, raw string) (decimal.Decimal, error) {
		v, err := decimal.NewFromString(raw)
		if err != nil || !v.IsPositive() {
			return decimal.Zero, fmt.Errorf("%s must be a positive number, got %q", name, raw)
		}
		return v, nil
	}
	ab, err := parse("rate a->b", opts.RateAtoB)
	if err != nil {
		return nil, err
	}
	ba, err := parse("rate b->a", opts.RateBtoA)
	if err != nil {
		return nil, err
	}
	price, err := parse("price a", opts.PriceA)
	if err != nil {
		return nil, err
	}
	return &staticSource{
		rates:  map[market.Direction]decimal.Decimal{market.AtoB: ab, market.BtoA: ba},
		priceA: price,
	}, nil
}

func (s *staticSource) FetchRate(_ context.Context, d market.Direction, _ *big.Int) (decimal.Decimal, error) {
	return s.rates[d], nil
}

func (s *staticSource) FetchUSDPrice(context.Context, market.Asset) (decimal.Decimal, error) {
	return s.priceA, nil
}

var _ fetcher.RateSource = (*staticSource)(nil)
