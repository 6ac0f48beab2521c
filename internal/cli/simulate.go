package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"qi-quai-rates/internal/app"
)

var simulateOpts app.SimulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run repeated conversions against fixed rates to observe flow-driven slippage",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateOpts.Count <= 0 {
			return errors.New("--count must be greater than zero")
		}
		return getApp().Simulate(cmd.Context(), simulateOpts)
	},
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simulateOpts.RateAtoB, "rate-a-to-b", "", "Units of B per unit of A")
	f.StringVar(&simulateOpts.RateBtoA, "rate-b-to-a", "", "Units of A per unit of B")
	f.StringVar(&simulateOpts.PriceA, "price-a", "1", "USD price of A")
	f.StringVar(&simulateOpts.Direction, "direction", "a-to-b", "Direction of the first conversion")
	f.StringVar(&simulateOpts.Amount, "amount", "100", "Amount converted each round")
	f.IntVar(&simulateOpts.Count, "count", 5, "Number of conversions")
	f.BoolVar(&simulateOpts.Alternate, "alternate", false, "Flip direction after every conversion")
	_ = simulateCmd.MarkFlagRequired("rate-a-to-b")
	_ = simulateCmd.MarkFlagRequired("rate-b-to-a")
}
