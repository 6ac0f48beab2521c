package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"qi-quai-rates/internal/app"
)

var (
	showHistory  int
	showSnapshot bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Refresh once and display current rates and prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showHistory < 0 {
			return fmt.Errorf("--history cannot be negative")
		}
		return getApp().Show(cmd.Context(), app.ShowOptions{History: showHistory, Snapshot: showSnapshot})
	},
}

func init() {
	showCmd.Flags().IntVar(&showHistory, "history", 0, "Also print this many persisted samples per quantity")
	showCmd.Flags().BoolVar(&showSnapshot, "snapshot", false, "Also print the readings last published to redis")
}
