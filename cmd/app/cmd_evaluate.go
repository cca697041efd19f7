package main

import (
	"context"

	"github.com/spf13/cobra"

	"FinScan/pkg/server"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Advance every open recommendation one cycle",
	Long: `Evaluate ACTIVE and BROKEN recommendations against the close of a
trading date and print the report as JSON.

Examples:
  finscan evaluate
  finscan evaluate --date 2024-06-03`,
	RunE: runEvaluate,
}

var evaluateDate string

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringVar(&evaluateDate, "date", "", "trading date (YYYY-MM-DD), today when empty")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	date, err := parseDate(evaluateDate)
	if err != nil {
		return err
	}
	return runOnce(func(ctx context.Context, app *server.App) (interface{}, error) {
		return app.Evaluation().Run(ctx, date)
	})
}
