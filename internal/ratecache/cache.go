package ratecache

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"qi-quai-rates/internal/fetcher"
	"qi-quai-rates/internal/history"
	"qi-quai-rates/internal/market"
)

var (
	// ErrFetchFailed wraps every failed sub-fetch of a refresh.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrRateNeverObserved means the derived price has no A->B rate to work from.
	ErrRateNeverObserved = errors.New("a-to-b rate never observed")
	// ErrInputsNotRefreshed means a derivation input failed in this cycle.
	ErrInputsNotRefreshed = errors.New("derivation inputs not refreshed")
)

// Sample is one point of a quantity's history.
type Sample = history.Sample[decimal.Decimal]

// SyntheticSpan is how far back the placeholder series reaches when a
// quantity has a value but no history yet.
const SyntheticSpan = time.Hour

// RefreshOutcome summarises one refresh cycle.
type RefreshOutcome struct {
	At     time.Time
	Errors map[Quantity]error
}

// OK reports whether every quantity refreshed successfully.
func (o RefreshOutcome) OK() bool {
	return len(o.Errors) == 0
}

// Failed lists the quantities that went stale in this cycle.
func (o RefreshOutcome) Failed() []Quantity {
	out := make([]Quantity, 0, len(o.Errors))
	for q := range o.Errors {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Err joins the failures of the cycle, or returns nil.
func (o RefreshOutcome) Err() error {
	errs := make([]error, 0, len(o.Errors))
	for _, q := range o.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", q, o.Errors[q]))
	}
	return errors.Join(errs...)
}

type entry struct {
	value     decimal.Decimal
	previous  decimal.Decimal
	updatedAt time.Time
	observed  bool
	stale     bool
	lastErr   error
}

type result struct {
	value decimal.Decimal
	err   error
}

// Option customises a Cache.
type Option func(*Cache)

// WithClock overrides the cache clock.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithHistoryCapacity overrides the per-quantity history capacity.
func WithHistoryCapacity(n int) Option {
	return func(c *Cache) { c.historyCap = n }
}

// Cache keeps the last good value of every quantity and falls back to it
// whenever a refresh fails.
type Cache struct {
	source     fetcher.RateSource
	pair       market.Pair
	logger     zerolog.Logger
	now        func() time.Time
	historyCap int

	mu        sync.RWMutex
	entries   map[Quantity]*entry
	histories map[Quantity]*history.Buffer[decimal.Decimal]
}

// New creates an empty cache polling source for pair.
func New(source fetcher.RateSource, pair market.Pair, logger zerolog.Logger, opts ...Option) *Cache {
	c := &Cache{
		source:     source,
		pair:       pair,
		logger:     logger.With().Str("component", "rate_cache").Logger(),
		now:        time.Now,
		historyCap: history.DefaultCapacity,
		entries:    make(map[Quantity]*entry, len(Quantities)),
		histories:  make(map[Quantity]*history.Buffer[decimal.Decimal], len(Quantities)),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, q := range Quantities {
		c.entries[q] = &entry{}
		c.histories[q] = history.New[decimal.Decimal](c.historyCap, history.WithClock(c.now))
	}
	return c
}

// Pair returns the asset pair the cache tracks.
func (c *Cache) Pair() market.Pair {
	return c.pair
}

// Refresh fetches both rates and the USD price of A independently. Failures
// never propagate: the affected quantity keeps its last good value and is
// marked stale.
func (c *Cache) Refresh(ctx context.Context) RefreshOutcome {
	var rateAB, rateBA, priceA result

	var g errgroup.Group
	g.Go(func() error {
		rateAB = guard(func() (decimal.Decimal, error) {
			return c.source.FetchRate(ctx, market.AtoB, c.pair.UnitAmount(market.AtoB))
		})
		return nil
	})
	g.Go(func() error {
		rateBA = guard(func() (decimal.Decimal, error) {
			return c.source.FetchRate(ctx, market.BtoA, c.pair.UnitAmount(market.BtoA))
		})
		return nil
	})
	g.Go(func() error {
		priceA = guard(func() (decimal.Decimal, error) {
			return c.source.FetchUSDPrice(ctx, c.pair.A)
		})
		return nil
	})
	_ = g.Wait()

	now := c.now()
	outcome := RefreshOutcome{At: now, Errors: make(map[Quantity]error)}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.apply(RateAtoB, rateAB, now, &outcome)
	c.apply(RateBtoA, rateBA, now, &outcome)
	c.apply(PriceA, priceA, now, &outcome)
	c.apply(PriceB, c.derive(rateAB, priceA), now, &outcome)

	return outcome
}

// Read returns the current reading of q.
func (c *Cache) Read(q Quantity) Reading {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[q]
	if !ok {
		return Reading{Quantity: q, Status: StatusUnavailable, Value: decimal.Zero}
	}

	r := Reading{Quantity: q, LastError: e.lastErr}
	switch {
	case !e.observed:
		r.Status = StatusUnavailable
		r.Value = decimal.Zero
		return r
	case e.stale:
		r.Status = StatusStale
	default:
		r.Status = StatusFresh
	}
	r.Value = e.value
	r.Previous = e.previous
	r.UpdatedAt = e.updatedAt
	return r
}

// Rate returns the reading of the fetched rate for direction d.
func (c *Cache) Rate(d market.Direction) Reading {
	if d == market.BtoA {
		return c.Read(RateBtoA)
	}
	return c.Read(RateAtoB)
}

// Readings returns every quantity's reading in display order.
func (c *Cache) Readings() []Reading {
	out := make([]Reading, 0, len(Quantities))
	for _, q := range Quantities {
		out = append(out, c.Read(q))
	}
	return out
}

// Buffer exposes the raw history buffer of q.
func (c *Cache) Buffer(q Quantity) *history.Buffer[decimal.Decimal] {
	return c.histories[q]
}

// History returns q's samples. When nothing was recorded yet but a value is
// known, a flat two-point series spanning SyntheticSpan is returned so charts
// have a line to draw.
func (c *Cache) History(q Quantity) []Sample {
	buf, ok := c.histories[q]
	if !ok {
		return nil
	}
	if samples := buf.Snapshot(); len(samples) > 0 {
		return samples
	}

	r := c.Read(q)
	if !r.Available() {
		return []Sample{}
	}
	now := c.now()
	return []Sample{
		{Timestamp: now.Add(-SyntheticSpan), Value: r.Value},
		{Timestamp: now, Value: r.Value},
	}
}

// HistorySince yields q's samples at or after since.
func (c *Cache) HistorySince(q Quantity, since time.Time) iter.Seq[Sample] {
	if buf, ok := c.histories[q]; ok && buf.Len() > 0 {
		return buf.FilterSince(since)
	}
	return func(yield func(Sample) bool) {
		for _, s := range c.History(q) {
			if s.Timestamp.Before(since) {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}
}

// apply must be called with c.mu held.
func (c *Cache) apply(q Quantity, r result, now time.Time, outcome *RefreshOutcome) {
	e := c.entries[q]
	if r.err != nil {
		e.stale = true
		e.lastErr = r.err
		outcome.Errors[q] = r.err
		c.logger.Debug().Err(r.err).Str("quantity", q.String()).Bool("has_fallback", e.observed).Msg("refresh failed")
		return
	}

	if e.observed {
		e.previous = e.value
	}
	e.value = r.value
	e.updatedAt = now
	e.observed = true
	e.stale = false
	e.lastErr = nil

	if err := c.histories[q].Push(Sample{Timestamp: now, Value: r.value}); err != nil {
		c.logger.Warn().Err(err).Str("quantity", q.String()).Msg("history sample dropped")
	}
}

// derive must be called with c.mu held, after RateAtoB has been applied.
func (c *Cache) derive(rate, price result) result {
	if rate.err == nil && price.err == nil {
		return result{value: price.value.Mul(rate.value)}
	}
	if !c.entries[RateAtoB].observed {
		return result{err: ErrRateNeverObserved}
	}
	return result{err: fmt.Errorf("%w: %w", ErrInputsNotRefreshed, errors.Join(rate.err, price.err))}
}

func guard(fetch func() (decimal.Decimal, error)) (r result) {
	defer func() {
		if p := recover(); p != nil {
			r = result{err: fmt.Errorf("%w: panic: %v", ErrFetchFailed, p)}
		}
	}()

	v, err := fetch()
	if err != nil {
		return result{err: fmt.Errorf("%w: %w", ErrFetchFailed, err)}
	}
	if v.IsNegative() {
		return result{err: fmt.Errorf("%w: negative value %s", ErrFetchFailed, v)}
	}
	return result{value: v}
}
