package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"qi-quai-rates/internal/market"
)

const (
	coinGeckoPricePath   = "/simple/price"
	defaultCoinGeckoBase = "https://api.coingecko.com/api/v3"
	defaultVsCurrency    = "usd"
)

// CoinGeckoOptions parameterise the USD spot price fetcher.
type CoinGeckoOptions struct {
	BaseURL    string
	APIKey     string
	VsCurrency string
	// CoinIDs maps asset symbols to CoinGecko coin ids.
	CoinIDs   map[string]string
	Timeout   time.Duration
	UserAgent string
}

// CoinGecko fetches spot prices from the simple/price endpoint.
type CoinGecko struct {
	opts    CoinGeckoOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCoinGecko constructs a price fetcher.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultCoinGeckoBase
	}
	if opts.VsCurrency == "" {
		opts.VsCurrency = defaultVsCurrency
	}

	return &CoinGecko{
		opts:    opts,
		logger:  logger.With().Str("component", "price_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchUSDPrice retrieves the spot price of asset in the configured currency.
func (c *CoinGecko) FetchUSDPrice(ctx context.Context, asset market.Asset) (decimal.Decimal, error) {
	coinID := c.coinID(asset)
	if coinID == "" {
		return decimal.Decimal{}, fmt.Errorf("no coingecko id configured for %s", asset.Symbol)
	}

	query := url.Values{}
	query.Set("ids", coinID)
	query.Set("vs_currencies", c.opts.VsCurrency)
	endpoint := c.baseURL + coinGeckoPricePath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "qiquai/1.0")
	}
	if c.opts.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.opts.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, parseHTTPError(resp.StatusCode, payload)
	}
	if !gjson.ValidBytes(payload) {
		return decimal.Decimal{}, fmt.Errorf("coingecko response: %w", ErrMalformedPayload)
	}

	field := gjson.GetBytes(payload, coinID+"."+c.opts.VsCurrency)
	if !field.Exists() || field.Type != gjson.Number {
		return decimal.Decimal{}, fmt.Errorf("coingecko price for %s missing: %w", coinID, ErrMalformedPayload)
	}

	price, err := decimal.NewFromString(field.Raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse price: %w", err)
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("coingecko price for %s not positive: %w", coinID, ErrMalformedPayload)
	}

	c.logger.Debug().Str("coin", coinID).Str("price", price.String()).Msg("price fetched")
	return price, nil
}

func (c *CoinGecko) coinID(asset market.Asset) string {
	for symbol, id := range c.opts.CoinIDs {
		if strings.EqualFold(symbol, asset.Symbol) {
			return id
		}
	}
	return ""
}

func parseHTTPError(status int, payload []byte) error {
	if msg := gjson.GetBytes(payload, "status.error_message"); msg.Exists() && msg.String() != "" {
		return fmt.Errorf("coingecko api error (%d): %s", status, msg.String())
	}
	if msg := gjson.GetBytes(payload, "error"); msg.Exists() && msg.String() != "" {
		return fmt.Errorf("coingecko api error (%d): %s", status, msg.String())
	}
	if len(payload) > 0 {
		return fmt.Errorf("coingecko api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("coingecko api error (%d)", status)
}

var _ PriceFetcher = (*CoinGecko)(nil)
