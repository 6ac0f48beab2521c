package ratecache

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"qi-quai-rates/internal/history"
	"qi-quai-rates/internal/market"
)

var errNetwork = errors.New("network unreachable")

var testPair = market.Pair{
	A: market.Asset{Symbol: "QUAI", Decimals: 18},
	B: market.Asset{Symbol: "QI", Decimals: 3},
}

type quote struct {
	value decimal.Decimal
	err   error
}

type fakeSource struct {
	mu     sync.Mutex
	rates  map[market.Direction]quote
	price  quote
	quoted map[market.Direction]*big.Int
	panics bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		rates:  map[market.Direction]quote{},
		quoted: map[market.Direction]*big.Int{},
	}
}

func (f *fakeSource) set(d market.Direction, v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rates[d] = quote{value: decimal.RequireFromString(v)}
}

func (f *fakeSource) fail(d market.Direction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rates[d] = quote{err: errNetwork}
}

func (f *fakeSource) setPrice(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = quote{value: decimal.RequireFromString(v)}
}

func (f *fakeSource) failPrice() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = quote{err: errNetwork}
}

func (f *fakeSource) FetchRate(_ context.Context, d market.Direction, amount *big.Int) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("boom")
	}
	f.quoted[d] = amount
	q, ok := f.rates[d]
	if !ok {
		return decimal.Decimal{}, errNetwork
	}
	return q.value, q.err
}

func (f *fakeSource) FetchUSDPrice(context.Context, market.Asset) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.price.err == nil && f.price.value.IsZero() {
		return decimal.Decimal{}, errNetwork
	}
	return f.price.value, f.price.err
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCache(src *fakeSource) (*Cache, *clock) {
	clk := &clock{now: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)}
	return New(src, testPair, zerolog.Nop(), WithClock(clk.Now)), clk
}

func TestReadBeforeAnyRefreshIsUnavailable(t *testing.T) {
	c, _ := newTestCache(newFakeSource())

	for _, q := range Quantities {
		r := c.Read(q)
		require.Equal(t, StatusUnavailable, r.Status, q.String())
		require.False(t, r.Available())
		require.True(t, r.Value.IsZero())
	}
}

func TestRefreshStoresValuesAndDerivedPrice(t *testing.T) {
	src := newFakeSource()
	src.set(market.AtoB, "16")
	src.set(market.BtoA, "0.0625")
	src.setPrice("0.05")

	c, _ := newTestCache(src)
	outcome := c.Refresh(context.Background())
	require.True(t, outcome.OK())
	require.NoError(t, outcome.Err())

	require.Equal(t, "16", c.Read(RateAtoB).Value.String())
	require.Equal(t, "0.0625", c.Read(RateBtoA).Value.String())
	require.Equal(t, "0.05", c.Read(PriceA).Value.String())
	require.Equal(t, "0.8", c.Read(PriceB).Value.String())
	require.Equal(t, StatusFresh, c.Read(PriceB).Status)

	require.Equal(t, 0, src.quoted[market.AtoB].Cmp(testPair.UnitAmount(market.AtoB)))
	require.Equal(t, 0, src.quoted[market.BtoA].Cmp(big.NewInt(1000)))
}

func TestFallbackAfterConsecutiveFailures(t *testing.T) {
	src := newFakeSource()
	src.set(market.AtoB, "16")
	src.set(market.BtoA, "0.0625")
	src.setPrice("0.05")

	c, clk := newTestCache(src)
	c.Refresh(context.Background())
	updated := c.Read(RateAtoB).UpdatedAt

	src.fail(market.AtoB)
	src.fail(market.BtoA)
	src.failPrice()

	for i := 0; i < 5; i++ {
		clk.Advance(30 * time.Second)
		outcome := c.Refresh(context.Background())
		require.Len(t, outcome.Failed(), len(Quantities))
		require.ErrorIs(t, outcome.Errors[RateAtoB], ErrFetchFailed)
		require.ErrorIs(t, outcome.Errors[RateAtoB], errNetwork)

		r := c.Read(RateAtoB)
		require.Equal(t, StatusStale, r.Status)
		require.True(t, r.IsStale())
		require.Equal(t, "16", r.Value.String())
		require.Equal(t, updated, r.UpdatedAt)

		require.Equal(t, "0.05", c.Read(PriceA).Value.String())
		require.Equal(t, "0.8", c.Read(PriceB).Value.String())
		require.Equal(t, StatusStale, c.Read(PriceB).Status)
	}

	require.Equal(t, 1, c.Buffer(RateAtoB).Len(), "failures never append history")
}

func TestSubFetchesAreIndependent(t *testing.T) {
	src := newFakeSource()
	src.set(market.AtoB, "16")
	src.fail(market.BtoA)
	src.setPrice("0.05")

	c, _ := newTestCache(src)
	outcome := c.Refresh(context.Background())

	require.Equal(t, []Quantity{RateBtoA}, outcome.Failed())
	require.Equal(t, StatusFresh, c.Read(RateAtoB).Status)
	require.Equal(t, StatusUnavailable, c.Read(RateBtoA).Status)
	require.True(t, c.Read(RateBtoA).IsStale())
	require.Equal(t, StatusFresh, c.Read(PriceB).Status)
}

func TestDerivedPriceUnavailableWithoutRate(t *testing.T) {
	src := newFakeSource()
	src.fail(market.AtoB)
	src.set(market.BtoA, "0.0625")
	src.setPrice("0.05")

	c, _ := newTestCache(src)
	outcome := c.Refresh(context.Background())

	require.ErrorIs(t, outcome.Errors[PriceB], ErrRateNeverObserved)
	require.Equal(t, StatusUnavailable, c.Read(PriceB).Status)
	require.Equal(t, StatusFresh, c.Read(PriceA).Status)
}

func TestDerivedPriceFallsBackWhenInputFails(t *testing.T) {
	src := newFakeSource()
	src.set(market.AtoB, "16")
	src.set(market.BtoA, "0.0625")
	src.setPrice("0.05")

	c, _ := newTestCache(src)
	c.Refresh(context.Background())

	src.setPrice("0.1")
	src.fail(market.AtoB)
	outcome := c.Refresh(context.Background())

	require.ErrorIs(t, outcome.Errors[PriceB], ErrInputsNotRefreshed)
	require.Equal(t, "0.1", c.Read(PriceA).Value.String())
	require.Equal(t, "0.05", c.Read(PriceA).Previous.String())
	require.Equal(t, "0.8", c.Read(PriceB).Value.String())
	require.Equal(t, StatusStale, c.Read(PriceB).Status)
}

func TestHistoriesAreSeparatePerQuantity(t *testing.T) {
	src := newFakeSource()
	src.set(market.AtoB, "16")
	src.set(market.BtoA, "0.0625")
	src.setPrice("0.05")

	c, clk := newTestCache(src)
	c.Refresh(context.Background())
	clk.Advance(time.Minute)
	src.setPrice("0.06")
	c.Refresh(context.Background())

	a := c.History(PriceA)
	b := c.History(PriceB)
	require.Len(t, a, 2)
	require.Len(t, b, 2)
	require.Equal(t, "0.06", a[1].Value.String())
	require.Equal(t, "0.96", b[1].Value.String())

	var since []string
	for s := range c.HistorySince(PriceA, clk.Now()) {
		since = append(since, s.Value.String())
	}
	require.Equal(t, []string{"0.06"}, since)
}

func TestHistorySynthesisedFromLastValue(t *testing.T) {
	src := newFakeSource()
	src.set(market.AtoB, "16")
	src.set(market.BtoA, "0.0625")
	src.setPrice("0.05")

	c, clk := newTestCache(src)
	require.Empty(t, c.History(PriceB))

	c.Refresh(context.Background())
	// A known value whose samples were never recorded.
	c.histories[PriceB] = history.New[decimal.Decimal](history.DefaultCapacity, history.WithClock(clk.Now))

	series := c.History(PriceB)
	require.Len(t, series, 2)
	require.Equal(t, clk.Now().Add(-SyntheticSpan), series[0].Timestamp)
	require.Equal(t, clk.Now(), series[1].Timestamp)
	require.Equal(t, "0.8", series[0].Value.String())

	count := 0
	for range c.HistorySince(PriceB, clk.Now().Add(-time.Minute)) {
		count++
	}
	require.Equal(t, 1, count)
}

func TestRefreshRecoversFromPanickingSource(t *testing.T) {
	src := newFakeSource()
	src.panics = true
	src.setPrice("0.05")

	c, _ := newTestCache(src)
	outcome := c.Refresh(context.Background())

	require.ErrorIs(t, outcome.Errors[RateAtoB], ErrFetchFailed)
	require.ErrorIs(t, outcome.Errors[RateBtoA], ErrFetchFailed)
	require.Equal(t, StatusFresh, c.Read(PriceA).Status)
}

func TestNegativeValuesAreFailures(t *testing.T) {
	src := newFakeSource()
	src.set(market.AtoB, "-1")
	src.set(market.BtoA, "0.0625")
	src.setPrice("0.05")

	c, _ := newTestCache(src)
	outcome := c.Refresh(context.Background())
	require.ErrorIs(t, outcome.Errors[RateAtoB], ErrFetchFailed)
	require.Equal(t, StatusUnavailable, c.Read(RateAtoB).Status)
}

func TestConcurrentRefreshAndRead(t *testing.T) {
	src := newFakeSource()
	src.set(market.AtoB, "16")
	src.set(market.BtoA, "0.0625")
	src.setPrice("0.05")

	c := New(src, testPair, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Refresh(context.Background())
		}()
		go func() {
			defer wg.Done()
			_ = c.Readings()
			_ = c.History(PriceA)
		}()
	}
	wg.Wait()

	require.Equal(t, "16", c.Read(RateAtoB).Value.String())
	require.LessOrEqual(t, c.Buffer(PriceA).Len(), 8)
}

func TestParseQuantityRoundTrip(t *testing.T) {
	for _, q := range Quantities {
		got, err := ParseQuantity(q.String())
		require.NoError(t, err)
		require.Equal(t, q, got)
	}
	_, err := ParseQuantity("volume")
	require.Error(t, err)
}
