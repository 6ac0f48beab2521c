package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"qi-quai-rates/internal/flow"
	"qi-quai-rates/internal/market"
	"qi-quai-rates/internal/ratecache"
	"qi-quai-rates/internal/slippage"
)

var (
	// ErrInvalidInput rejects a bad direction or a non-positive amount.
	ErrInvalidInput = errors.New("invalid conversion input")
	// ErrNoDataAvailable means the rate for the direction is unknown or zero.
	ErrNoDataAvailable = errors.New("no rate data available")
)

// FlowWindow is the look-back used for flow totals when pricing a conversion.
const FlowWindow = time.Hour

const (
	// MaxAmountDigits bounds the integer digits of a conversion amount.
	MaxAmountDigits = 30
	// MaxAmountScale bounds the fractional digits of a conversion amount.
	MaxAmountScale = 18

	maxAmountInputLen = 64
)

var hundred = decimal.NewFromInt(100)

// Result is the outcome of a priced conversion.
type Result struct {
	QuoteID         uuid.UUID
	Direction       market.Direction
	AmountIn        decimal.Decimal
	AmountOut       decimal.Decimal
	EffectiveRate   decimal.Decimal
	SlippagePercent decimal.Decimal
	Rate            decimal.Decimal
	Stale           bool
	RateUpdatedAt   time.Time
	Breakdown       slippage.Breakdown
}

// Option customises an Engine.
type Option func(*Engine)

// WithFlowWindow overrides FlowWindow. It is clamped to the flow retention.
func WithFlowWindow(window time.Duration) Option {
	return func(e *Engine) {
		if window > 0 {
			e.window = window
		}
	}
}

// Engine prices conversions from the cached rates and the recent flow.
type Engine struct {
	cache  *ratecache.Cache
	flows  *flow.Tracker
	params slippage.Params
	window time.Duration
	logger zerolog.Logger
}

// New wires an engine. The calibration is validated up front.
func New(cache *ratecache.Cache, flows *flow.Tracker, params slippage.Params, logger zerolog.Logger, opts ...Option) (*Engine, error) {
	if cache == nil || flows == nil {
		return nil, errors.New("engine requires a rate cache and a flow tracker")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("slippage params: %w", err)
	}
	e := &Engine{
		cache:  cache,
		flows:  flows,
		params: params,
		window: FlowWindow,
		logger: logger.With().Str("component", "engine").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.window > flow.Retention {
		e.window = flow.Retention
	}
	return e, nil
}

// Cache returns the rate cache the engine reads from.
func (e *Engine) Cache() *ratecache.Cache { return e.cache }

// Flows returns the flow tracker the engine records into.
func (e *Engine) Flows() *flow.Tracker { return e.flows }

// Params returns the slippage calibration.
func (e *Engine) Params() slippage.Params { return e.params }

// Window returns the flow look-back used when pricing.
func (e *Engine) Window() time.Duration { return e.window }

// Convert prices amountIn in direction d and records it as flow.
func (e *Engine) Convert(ctx context.Context, d market.Direction, amountIn decimal.Decimal) (Result, error) {
	res, err := e.price(ctx, d, amountIn)
	if err != nil {
		return res, err
	}
	if err := e.flows.Record(d, amountIn); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	e.logger.Info().
		Str("quote_id", res.QuoteID.String()).
		Str("direction", d.String()).
		Str("amount_in", amountIn.String()).
		Str("amount_out", res.AmountOut.String()).
		Str("slippage_pct", res.SlippagePercent.String()).
		Bool("stale", res.Stale).
		Msg("conversion priced")
	return res, nil
}

// Quote prices amountIn in direction d without touching the flow tracker.
func (e *Engine) Quote(ctx context.Context, d market.Direction, amountIn decimal.Decimal) (Result, error) {
	return e.price(ctx, d, amountIn)
}

func (e *Engine) price(ctx context.Context, d market.Direction, amountIn decimal.Decimal) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if !d.Valid() {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, market.ErrUnknownDirection)
	}
	if err := checkAmount(amountIn); err != nil {
		return Result{}, err
	}

	reading := e.cache.Rate(d)
	if !reading.Available() || reading.Value.IsZero() {
		return Result{
			Direction:       d,
			AmountIn:        amountIn,
			AmountOut:       decimal.Zero,
			EffectiveRate:   decimal.Zero,
			SlippagePercent: decimal.Zero,
			Rate:            decimal.Zero,
			Stale:           reading.IsStale(),
		}, ErrNoDataAvailable
	}

	totals := e.flows.WindowedTotals(e.window)
	breakdown := slippage.Explain(e.params, d, amountIn, totals)

	raw := amountIn.Mul(reading.Value)
	amountOut := raw.Mul(decimal.NewFromInt(1).Sub(breakdown.Total.Div(hundred)))

	return Result{
		QuoteID:         uuid.New(),
		Direction:       d,
		AmountIn:        amountIn,
		AmountOut:       amountOut,
		EffectiveRate:   amountOut.Div(amountIn),
		SlippagePercent: breakdown.Total,
		Rate:            reading.Value,
		Stale:           reading.Status == ratecache.StatusStale,
		RateUpdatedAt:   reading.UpdatedAt,
		Breakdown:       breakdown,
	}, nil
}

// Spread is the round-trip loss of converting A to B and straight back, in
// percent. Both rates must be known and non-zero.
func (e *Engine) Spread() (decimal.Decimal, error) {
	ab := e.cache.Rate(market.AtoB)
	ba := e.cache.Rate(market.BtoA)
	if !ab.Available() || !ba.Available() || ab.Value.IsZero() || ba.Value.IsZero() {
		return decimal.Zero, ErrNoDataAvailable
	}
	roundTrip := ab.Value.Mul(ba.Value)
	return decimal.NewFromInt(1).Sub(roundTrip).Mul(hundred), nil
}

// ParseAmount reads a user supplied amount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	if len(raw) > maxAmountInputLen {
		return decimal.Zero, fmt.Errorf("%w: amount is longer than %d characters", ErrInvalidInput, maxAmountInputLen)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidInput, raw)
	}
	if err := checkAmount(v); err != nil {
		return decimal.Zero, err
	}
	return v, nil
}

// checkAmount rejects non-positive amounts and amounts outside the digit
// bounds. It only inspects the exponent and coefficient so it stays cheap for
// values like 1e50000000.
func checkAmount(v decimal.Decimal) error {
	if !v.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	exp := int64(v.Exponent())
	if exp < -MaxAmountScale {
		return fmt.Errorf("%w: amount has more than %d decimal places", ErrInvalidInput, MaxAmountScale)
	}
	if int64(v.NumDigits())+exp > MaxAmountDigits {
		return fmt.Errorf("%w: amount exceeds %d integer digits", ErrInvalidInput, MaxAmountDigits)
	}
	return nil
}
