package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"FinScan/internal/di"
	"FinScan/pkg/config"
	"FinScan/pkg/server"
	"FinScan/pkg/util"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "finscan",
	Short: "Market regime classifier, adaptive scanner and recommendation tracker",
	Long: `finscan classifies the daily market regime, scans the universe with a
relaxation ladder tuned to that regime and tracks the resulting
recommendations until they are archived or replaced.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the daily schedule and bar ingestion",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		return app.Run()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "config file path")
	rootCmd.AddCommand(serveCmd)
}

func buildApp() (*server.App, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return nil, fmt.Errorf("app initialization failed: %w", err)
	}
	return app, nil
}

// runOnce builds the app, runs fn and releases every resource.
func runOnce(fn func(ctx context.Context, app *server.App) (interface{}, error)) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		app.Close(ctx)
	}()

	out, err := fn(context.Background(), app)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	t, ok := util.ParseTime(s)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid date %q, want %s", s, util.DateLayout)
	}
	return t, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
