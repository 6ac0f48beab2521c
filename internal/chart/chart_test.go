package chart

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	r, err := ParseRange("")
	require.NoError(t, err)
	require.Equal(t, Range24H, r)

	r, err = ParseRange(" 7D ")
	require.NoError(t, err)
	require.Equal(t, 7*24*time.Hour, r.Duration())

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	require.Equal(t, now.Add(-time.Hour), Range1H.Since(now))

	_, err = ParseRange("1y")
	require.Error(t, err)
}

func TestDownsampleKeepsEnds(t *testing.T) {
	items := make([]int, 101)
	for i := range items {
		items[i] = i
	}
	out := Downsample(items, 5)
	require.Equal(t, []int{0, 25, 50, 75, 100}, out)
	require.Equal(t, items, Downsample(items, 0))
	require.Equal(t, []int{100}, Downsample(items, 1))
}

func TestRenderPNG(t *testing.T) {
	start := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	points := []Point{
		{Time: start, Value: decimal.RequireFromString("0.05")},
		{Time: start.Add(time.Minute), Value: decimal.RequireFromString("0.051")},
		{Time: start.Add(2 * time.Minute), Value: decimal.RequireFromString("0.049")},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderPNG(&buf, Options{Title: "QUAI/USD", Width: 320, Height: 200}, Series{Name: "QUAI/USD", Points: points}))
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
}

func TestRenderPNGNeedsTwoPoints(t *testing.T) {
	var buf bytes.Buffer
	err := RenderPNG(&buf, Options{}, Series{Name: "x", Points: []Point{{Time: time.Now(), Value: decimal.NewFromInt(1)}}})
	require.ErrorIs(t, err, ErrNotEnoughPoints)
	require.ErrorIs(t, RenderPNG(&buf, Options{}), ErrNotEnoughPoints)
}

func TestRenderPNGFlatSeries(t *testing.T) {
	start := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	flat := []Point{
		{Time: start.Add(-time.Hour), Value: decimal.NewFromInt(16)},
		{Time: start, Value: decimal.NewFromInt(16)},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderPNG(&buf, Options{Width: 320, Height: 200}, Series{Name: "QUAI->QI", Points: flat}))
	require.NotZero(t, buf.Len())
}
