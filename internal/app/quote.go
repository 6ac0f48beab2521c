package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"qi-quai-rates/internal/engine"
)

// Quote refreshes once and prices a conversion without recording its flow.
func (a *App) Quote(ctx context.Context, opts QuoteOptions) (engine.Result, error) {
	pair := a.Config.Pair()
	direction, err := pair.ParseDirection(opts.Direction)
	if err != nil {
		return engine.Result{}, err
	}
	amount, err := engine.ParseAmount(opts.Amount)
	if err != nil {
		return engine.Result{}, err
	}

	src, release := a.newSource()
	defer release()

	eng, err := a.newEngine(src)
	if err != nil {
		return engine.Result{}, err
	}
	if outcome := eng.Cache().Refresh(ctx); !outcome.OK() {
		a.Logger.Warn().Err(outcome.Err()).Msg("refresh incomplete")
	}

	res, err := eng.Quote(ctx, direction, amount)
	if err != nil {
		return engine.Result{}, err
	}

	b := res.Breakdown
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "conversion\t%s %s -> %s\n", formatDecimal(res.AmountIn, 8), pair.Source(direction).Symbol, pair.Target(direction).Symbol)
	fmt.Fprintf(writer, "rate\t%s (updated %s)\n", formatDecimal(res.Rate, 8), res.RateUpdatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(writer, "base slippage\t%s%%\n", b.Base)
	fmt.Fprintf(writer, "flow adjustment\t%s%% (same-direction share %s)\n", formatDecimal(b.FlowAdjustment, 4), formatDecimal(b.FlowRatio, 4))
	fmt.Fprintf(writer, "size impact\t%s%%\n", formatDecimal(b.SizeImpact, 4))
	fmt.Fprintf(writer, "total slippage\t%s%% (ceiling %s%%, capped %t)\n", formatDecimal(res.SlippagePercent, 4), b.Ceiling, b.Capped)
	fmt.Fprintf(writer, "amount out\t%s %s\n", formatDecimal(res.AmountOut, 8), pair.Target(direction).Symbol)
	fmt.Fprintf(writer, "effective rate\t%s\n", formatDecimal(res.EffectiveRate, 8))
	if res.Stale {
		fmt.Fprintln(writer, "warning\trate is stale; upstream refresh failed")
	}
	return res, writer.Flush()
}
