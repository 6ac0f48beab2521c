package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"qi-quai-rates/internal/app"
	"qi-quai-rates/internal/chart"
)

var (
	exportFrom      string
	exportTo        string
	exportRange     string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
	exportQuantity  []string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export persisted rates and prices as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			PNGPath:    exportPNGPath,
			CSVPath:    exportCSVPath,
			MaxPoints:  exportMaxPoints,
			Quantities: exportQuantity,
		}

		to, err := parseTimestamp("--to", exportTo)
		if err != nil {
			return err
		}
		opts.To = to

		from, err := parseTimestamp("--from", exportFrom)
		if err != nil {
			return err
		}
		if exportRange != "" {
			if from != nil {
				return errors.New("--from and --range are mutually exclusive")
			}
			rng, err := chart.ParseRange(exportRange)
			if err != nil {
				return err
			}
			end := time.Now().UTC()
			if to != nil {
				end = *to
			}
			start := rng.Since(end)
			from = &start
		}
		opts.From = from

		return getApp().Export(cmd.Context(), opts)
	},
}

func parseTimestamp(flag, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value: %w", flag, err)
	}
	return &ts, nil
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	f.StringVar(&exportTo, "to", "", "End timestamp (RFC3339, exclusive)")
	f.StringVar(&exportRange, "range", "", "Window ending at --to: 1h, 24h, 7d or 30d")
	f.StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	f.StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	f.IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points per quantity (defaults to config)")
	f.StringSliceVar(&exportQuantity, "quantity", nil, "Quantities to export, e.g. rate_a_to_b,price_b_usd (defaults to all)")
}
