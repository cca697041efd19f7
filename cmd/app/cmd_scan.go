package main

import (
	"context"

	"github.com/spf13/cobra"

	"FinScan/internal/domain/models"
	"FinScan/internal/usecase"
	"FinScan/pkg/server"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Classify the regime and scan the universe once",
	Long: `Run one scan for a trading date and print the result as JSON.

Examples:
  finscan scan --date 2024-06-03
  finscan scan --symbols FPT,HPG,VNM --strategy swing
  finscan scan --apply=false`,
	RunE: runScan,
}

var (
	scanDate     string
	scanSymbols  []string
	scanStrategy string
	scanApply    bool
	regimeOnly   bool
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanDate, "date", "", "trading date (YYYY-MM-DD), today when empty")
	scanCmd.Flags().StringSliceVar(&scanSymbols, "symbols", nil, "scan these symbols instead of the configured universe")
	scanCmd.Flags().StringVar(&scanStrategy, "strategy", "", "apply every candidate under this strategy (swing|position|longterm)")
	scanCmd.Flags().BoolVar(&scanApply, "apply", true, "turn candidates into recommendations")
	scanCmd.Flags().BoolVar(&regimeOnly, "regime-only", false, "only print the regime snapshot")
}

func runScan(cmd *cobra.Command, args []string) error {
	date, err := parseDate(scanDate)
	if err != nil {
		return err
	}
	return runOnce(func(ctx context.Context, app *server.App) (interface{}, error) {
		if regimeOnly {
			return app.Scan().Regime(ctx, date)
		}
		return app.Scan().Run(ctx, usecase.ScanRequest{
			Date:     date,
			Universe: scanSymbols,
			Strategy: models.Horizon(scanStrategy),
			Apply:    scanApply,
		})
	})
}
