package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"qi-quai-rates/internal/chart"
	"qi-quai-rates/internal/ratecache"
	"qi-quai-rates/internal/service"
	"qi-quai-rates/internal/storage"
)

// Export renders persisted samples as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	quantities, err := parseQuantities(opts.Quantities)
	if err != nil {
		return err
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Poller.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	return a.export(ctx, store, quantities, from, to, opts)
}

func (a *App) export(ctx context.Context, store storage.SampleStore, quantities []ratecache.Quantity, from, to time.Time, opts ExportOptions) error {
	bySeries := make(map[ratecache.Quantity][]storage.PriceSample, len(quantities))
	total := 0
	for _, q := range quantities {
		samples, err := store.ListSamplesBetween(ctx, q.String(), from, to)
		if err != nil {
			return err
		}
		bySeries[q] = chart.Downsample(samples, opts.MaxPoints)
		total += len(samples)
	}
	if total == 0 {
		a.Logger.Info().Time("from", from).Time("to", to).Msg("no samples found for export window")
		return nil
	}
	a.Logger.Info().Int("total", total).Int("quantities", len(quantities)).Msg("exporting samples")

	if opts.CSVPath != "" {
		if err := a.writeSamplesCSV(opts.CSVPath, quantities, bySeries); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := a.writeSamplesPNG(opts.PNGPath, quantities, bySeries); err != nil {
			return err
		}
	}
	return nil
}

func parseQuantities(raw []string) ([]ratecache.Quantity, error) {
	if len(raw) == 0 {
		return ratecache.Quantities, nil
	}
	out := make([]ratecache.Quantity, 0, len(raw))
	for _, r := range raw {
		q, err := ratecache.ParseQuantity(r)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (a *App) writeSamplesCSV(path string, quantities []ratecache.Quantity, bySeries map[ratecache.Quantity][]storage.PriceSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"sampled_at", "quantity", "label", "value", "cycle_id"}); err != nil {
		return err
	}

	pair := a.Config.Pair()
	for _, q := range quantities {
		for _, sample := range bySeries[q] {
			record := []string{
				sample.SampledAt.UTC().Format(time.RFC3339Nano),
				sample.Quantity,
				service.Label(pair, q),
				sample.Value.String(),
				sample.CycleID,
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

// writeSamplesPNG plots rates on the left axis and USD prices on the right.
func (a *App) writeSamplesPNG(path string, quantities []ratecache.Quantity, bySeries map[ratecache.Quantity][]storage.PriceSample) error {
	pair := a.Config.Pair()
	series := make([]chart.Series, 0, len(quantities))
	for _, q := range quantities {
		samples := bySeries[q]
		if len(samples) < 2 {
			a.Logger.Warn().Str("quantity", q.String()).Int("samples", len(samples)).Msg("too few samples to plot; skipping")
			continue
		}
		points := make([]chart.Point, len(samples))
		for i, s := range samples {
			points[i] = chart.Point{Time: s.SampledAt, Value: s.Value}
		}
		series = append(series, chart.Series{
			Name:      service.Label(pair, q),
			Points:    points,
			Secondary: !q.IsRate(),
		})
	}
	if len(series) == 0 {
		return fmt.Errorf("png: %w", chart.ErrNotEnoughPoints)
	}

	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return chart.RenderPNG(file, chart.Options{
		Title:         pair.A.Symbol + "/" + pair.B.Symbol,
		YAxisName:     "Rate",
		SecondaryName: "USD",
	}, series...)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
