package fetcher

import (
	"context"
	"errors"
	"math/big"

	"github.com/shopspring/decimal"

	"qi-quai-rates/internal/market"
)

// ErrMalformedPayload marks upstream responses that could not be interpreted.
var ErrMalformedPayload = errors.New("malformed upstream payload")

// RateFetcher quotes how many target units one source unit buys.
type RateFetcher interface {
	FetchRate(ctx context.Context, direction market.Direction, amount *big.Int) (decimal.Decimal, error)
}

// PriceFetcher retrieves the USD spot price of an asset.
type PriceFetcher interface {
	FetchUSDPrice(ctx context.Context, asset market.Asset) (decimal.Decimal, error)
}

// RateSource is everything the rate cache polls.
type RateSource interface {
	RateFetcher
	PriceFetcher
}

// Source joins a rate fetcher and a price fetcher into one RateSource.
type Source struct {
	Rates  RateFetcher
	Prices PriceFetcher
}

// FetchRate delegates to the rate fetcher.
func (s Source) FetchRate(ctx context.Context, direction market.Direction, amount *big.Int) (decimal.Decimal, error) {
	return s.Rates.FetchRate(ctx, direction, amount)
}

// FetchUSDPrice delegates to the price fetcher.
func (s Source) FetchUSDPrice(ctx context.Context, asset market.Asset) (decimal.Decimal, error) {
	return s.Prices.FetchUSDPrice(ctx, asset)
}

var _ RateSource = Source{}
