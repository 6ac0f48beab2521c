package cli

import (
	"github.com/spf13/cobra"

	"qi-quai-rates/internal/app"
)

var (
	quoteDirection string
	quoteAmount    string
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price a conversion against live rates without recording it",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := getApp().Quote(cmd.Context(), app.QuoteOptions{
			Direction: quoteDirection,
			Amount:    quoteAmount,
		})
		return err
	},
}

func init() {
	quoteCmd.Flags().StringVar(&quoteDirection, "direction", "a-to-b", "Conversion direction: a-to-b, b-to-a or e.g. QUAI->QI")
	quoteCmd.Flags().StringVar(&quoteAmount, "amount", "", "Amount of the source asset")
	_ = quoteCmd.MarkFlagRequired("amount")
}
