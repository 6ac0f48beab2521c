package chart

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	gochart "github.com/wcharczuk/go-chart/v2"
)

// ErrNotEnoughPoints is returned when a series cannot be drawn as a line.
var ErrNotEnoughPoints = errors.New("chart: at least two points are required")

// Range is a history look-back selectable by clients.
type Range string

const (
	Range1H  Range = "1h"
	Range24H Range = "24h"
	Range7D  Range = "7d"
	Range30D Range = "30d"
)

// Ranges lists the supported ranges, shortest first.
var Ranges = []Range{Range1H, Range24H, Range7D, Range30D}

// ParseRange resolves a range name. Empty input selects Range24H.
func ParseRange(raw string) (Range, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return Range24H, nil
	}
	for _, r := range Ranges {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unsupported range %q", raw)
}

// Duration returns the look-back of r.
func (r Range) Duration() time.Duration {
	switch r {
	case Range1H:
		return time.Hour
	case Range7D:
		return 7 * 24 * time.Hour
	case Range30D:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Since returns the start of r relative to now.
func (r Range) Since(now time.Time) time.Time {
	return now.Add(-r.Duration())
}

// Point is one plotted value.
type Point struct {
	Time  time.Time
	Value decimal.Decimal
}

// Series is a named line.
type Series struct {
	Name   string
	Points []Point
	// Secondary plots the series against the right-hand axis.
	Secondary bool
}

// Options controls the rendered image.
type Options struct {
	Title         string
	YAxisName     string
	SecondaryName string
	Width         int
	Height        int
	Precision     int
}

// RenderPNG draws series as a time chart into w.
func RenderPNG(w io.Writer, opts Options, series ...Series) error {
	if len(series) == 0 {
		return ErrNotEnoughPoints
	}
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 720
	}
	if opts.Precision <= 0 {
		opts.Precision = 6
	}

	format := fmt.Sprintf("%%.%df", opts.Precision)
	valueFormatter := func(v interface{}) string {
		return gochart.FloatValueFormatterWithFormat(v, format)
	}

	var primary, secondary bounds
	lines := make([]gochart.Series, 0, len(series))
	for _, s := range series {
		if len(s.Points) < 2 {
			return fmt.Errorf("%w: %s has %d", ErrNotEnoughPoints, s.Name, len(s.Points))
		}
		x := make([]time.Time, len(s.Points))
		y := make([]float64, len(s.Points))
		for i, p := range s.Points {
			x[i] = p.Time
			y[i] = p.Value.InexactFloat64()
		}
		line := gochart.TimeSeries{Name: s.Name, XValues: x, YValues: y}
		if s.Secondary {
			line.YAxis = gochart.YAxisSecondary
			secondary.add(y)
		} else {
			primary.add(y)
		}
		lines = append(lines, line)
	}

	graph := gochart.Chart{
		Title:  opts.Title,
		Width:  opts.Width,
		Height: opts.Height,
		XAxis: gochart.XAxis{
			ValueFormatter: gochart.TimeValueFormatter,
		},
		YAxis: gochart.YAxis{
			Name:           opts.YAxisName,
			ValueFormatter: valueFormatter,
		},
		YAxisSecondary: gochart.YAxis{
			Name:           opts.SecondaryName,
			ValueFormatter: valueFormatter,
		},
		Series: lines,
	}
	graph.YAxis.Range = primary.flatRange()
	graph.YAxisSecondary.Range = secondary.flatRange()
	graph.Elements = []gochart.Renderable{gochart.Legend(&graph)}

	return graph.Render(gochart.PNG, w)
}

type bounds struct {
	min, max float64
	seen     bool
}

func (b *bounds) add(values []float64) {
	for _, v := range values {
		if !b.seen {
			b.min, b.max, b.seen = v, v, true
			continue
		}
		b.min = math.Min(b.min, v)
		b.max = math.Max(b.max, v)
	}
}

// flatRange pads a zero-height range, which go-chart refuses to draw.
func (b bounds) flatRange() gochart.Range {
	if !b.seen || b.max > b.min {
		return nil
	}
	pad := math.Abs(b.min) * 0.01
	if pad == 0 {
		pad = 1
	}
	return &gochart.ContinuousRange{Min: b.min - pad, Max: b.max + pad}
}

// Downsample picks at most max evenly spaced items, always keeping the first
// and the last.
func Downsample[T any](items []T, max int) []T {
	if max <= 0 || len(items) <= max {
		return items
	}
	if max == 1 {
		return items[len(items)-1:]
	}

	result := make([]T, 0, max)
	step := float64(len(items)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(items) {
			idx = len(items) - 1
		}
		result = append(result, items[idx])
	}
	return result
}
