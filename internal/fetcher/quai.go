package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"qi-quai-rates/internal/market"
)

const (
	defaultQuaiRPCURL = "https://rpc.quai.network/cyprus1"
	defaultAtoBMethod = "quai_quaiToQi"
	defaultBtoAMethod = "quai_qiToQuai"
	defaultBlockTag   = "latest"
	defaultRPCTimeout = 10 * time.Second
)

// QuaiOptions parameterise the Quai JSON-RPC rate fetcher.
type QuaiOptions struct {
	RPCURL     string
	Pair       market.Pair
	AtoBMethod string
	BtoAMethod string
	BlockTag   string
	Timeout    time.Duration
}

// Quai quotes conversion rates through the node's conversion RPC methods.
type Quai struct {
	opts      QuaiOptions
	logger    zerolog.Logger
	client    *rpc.Client
	clientMux sync.Mutex
}

// NewQuai builds a Quai rate fetcher, filling unset options with defaults.
func NewQuai(opts QuaiOptions, logger zerolog.Logger) *Quai {
	opts.RPCURL = strings.TrimSpace(opts.RPCURL)
	if opts.RPCURL == "" {
		opts.RPCURL = defaultQuaiRPCURL
	}
	if opts.AtoBMethod == "" {
		opts.AtoBMethod = defaultAtoBMethod
	}
	if opts.BtoAMethod == "" {
		opts.BtoAMethod = defaultBtoAMethod
	}
	if opts.BlockTag == "" {
		opts.BlockTag = defaultBlockTag
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRPCTimeout
	}
	return &Quai{opts: opts, logger: logger.With().Str("component", "quai_fetcher").Logger()}
}

// FetchRate asks the node how many target base units amount buys and
// scales the answer to whole target units per whole source unit.
func (q *Quai) FetchRate(ctx context.Context, direction market.Direction, amount *big.Int) (decimal.Decimal, error) {
	method, err := q.method(direction)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return decimal.Decimal{}, errors.New("quote amount must be positive")
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, q.opts.Timeout)
	defer cancel()

	client, err := q.getClient(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}

	var out hexutil.Big
	if err := client.CallContext(ctx, &out, method, hexutil.EncodeBig(amount), q.opts.BlockTag); err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", method, err)
	}

	raw := out.ToInt()
	if raw.Sign() < 0 {
		return decimal.Decimal{}, fmt.Errorf("%s returned negative amount: %w", method, ErrMalformedPayload)
	}

	source := q.opts.Pair.Source(direction)
	target := q.opts.Pair.Target(direction)

	rate := decimal.NewFromBigInt(raw, -target.Decimals)
	units := decimal.NewFromBigInt(amount, -source.Decimals)
	if !units.Equal(decimal.NewFromInt(1)) {
		rate = rate.Div(units)
	}

	q.logger.Debug().
		Str("method", method).
		Str("amount", amount.String()).
		Str("raw", raw.String()).
		Str("rate", rate.String()).
		Msg("rate quoted")
	return rate, nil
}

// Close releases the underlying RPC client.
func (q *Quai) Close() {
	q.clientMux.Lock()
	defer q.clientMux.Unlock()
	if q.client != nil {
		q.client.Close()
		q.client = nil
	}
}

func (q *Quai) method(direction market.Direction) (string, error) {
	switch direction {
	case market.AtoB:
		return q.opts.AtoBMethod, nil
	case market.BtoA:
		return q.opts.BtoAMethod, nil
	default:
		return "", fmt.Errorf("%w: %v", market.ErrUnknownDirection, direction)
	}
}

func (q *Quai) getClient(ctx context.Context) (*rpc.Client, error) {
	q.clientMux.Lock()
	defer q.clientMux.Unlock()

	if q.client != nil {
		return q.client, nil
	}

	client, err := rpc.DialOptions(ctx, q.opts.RPCURL, rpc.WithHTTPClient(&http.Client{Timeout: q.opts.Timeout}))
	if err != nil {
		return nil, fmt.Errorf("dial quai rpc: %w", err)
	}
	q.client = client
	return client, nil
}

var _ RateFetcher = (*Quai)(nil)
