package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"qi-quai-rates/internal/ratecache"
	"qi-quai-rates/internal/service"
)

// Show refreshes once against the live sources and prints every reading,
// followed by persisted history when requested.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	src, release := a.newSource()
	defer release()

	eng, err := a.newEngine(src)
	if err != nil {
		return err
	}
	cache := eng.Cache()
	outcome := cache.Refresh(ctx)
	pair := cache.Pair()

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Quantity\tLabel\tValue\tStatus\tUpdated (UTC)\tError")
	for _, r := range cache.Readings() {
		updated := "-"
		if r.Available() {
			updated = r.UpdatedAt.UTC().Format(time.RFC3339)
		}
		errMsg := ""
		if e := outcome.Errors[r.Quantity]; e != nil {
			errMsg = sanitizeInline(e.Error())
		}
		label := service.Label(pair, r.Quantity)
		if r.Quantity.Derived() {
			label += " (derived)"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Quantity, label, formatDecimal(r.Value, 8), r.Status, updated, errMsg)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	if spread, err := eng.Spread(); err == nil {
		fmt.Fprintf(a.Out, "\nround-trip spread: %s%%\n", formatDecimal(spread, 4))
	}

	if opts.Snapshot {
		if err := a.showSnapshot(ctx); err != nil {
			return err
		}
	}
	if opts.History <= 0 {
		return nil
	}
	return a.showHistory(ctx, opts.History)
}

func (a *App) showSnapshot(ctx context.Context) error {
	pub := a.newPublisher()
	if pub == nil {
		return errors.New("redis not configured; cannot show snapshot")
	}
	defer pub.Close()

	entries, err := pub.Load(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.Out)
	if len(entries) == 0 {
		fmt.Fprintln(a.Out, "no published snapshot")
		return nil
	}
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Published\tValue\tStatus\tUpdated (UTC)\tCycle")
	for _, q := range ratecache.Quantities {
		e, ok := entries[q.String()]
		if !ok {
			continue
		}
		updated := "-"
		if e.UpdatedAt != nil {
			updated = e.UpdatedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n", e.Quantity, e.Value, e.Status, updated, e.CycleID)
	}
	return writer.Flush()
}

func (a *App) showHistory(ctx context.Context, limit int) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	defer closeStore()

	pair := a.Config.Pair()
	fmt.Fprintln(a.Out)
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Sampled (UTC)\tLabel\tValue\tCycle")
	for _, q := range ratecache.Quantities {
		samples, err := store.ListRecentSamples(ctx, q.String(), limit)
		if err != nil {
			return err
		}
		for _, s := range samples {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
				s.SampledAt.UTC().Format(time.RFC3339), service.Label(pair, q), formatDecimal(s.Value, 8), s.CycleID)
		}
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.Round(places).String()
}
