// Command ingest runs one COT ingestion or one volatility collection and exits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"positioning-lab/internal/app"
	"positioning-lab/internal/config"
	"positioning-lab/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "ingest",
		Short:         "Fetch COT reports or BTC option volatility into storage",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to YAML config")
	root.AddCommand(cotCmd(&configPath), volatilityCmd(&configPath))
	return root
}

// setup loads config, logger and stores shared by every subcommand.
func setup(ctx context.Context, configPath string) (config.Config, zerolog.Logger, *app.Stores, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, zerolog.Nop(), nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return config.Config{}, zerolog.Nop(), nil, err
	}
	stores, err := app.OpenStores(ctx, cfg.Storage, logger)
	if err != nil {
		return config.Config{}, zerolog.Nop(), nil, err
	}
	return cfg, logger, stores, nil
}

func cotCmd(configPath *string) *cobra.Command {
	var yearsBack int
	cmd := &cobra.Command{
		Use:   "cot",
		Short: "Download yearly disaggregated COT reports and upsert tracked markets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, stores, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer stores.Close()

			if yearsBack > 0 {
				cfg.CFTC.YearsBack = yearsBack
			}
			arch, err := app.NewArchiver(ctx, cfg.S3)
			if err != nil {
				return err
			}

			ingester := app.NewCOTIngester(cfg, stores, arch, logger)
			res, err := ingester.Run(ctx, cfg.CFTC.YearsBack)
			if err != nil {
				return err
			}
			fmt.Printf("COT ingestion: years fetched %v, failed %v, rows stored %d, rejected %d, invalid fields %d\n",
				res.YearsFetched, res.YearsFailed, res.RowsStored, res.RowsRejected, res.InvalidFields)
			return nil
		},
	}
	cmd.Flags().IntVar(&yearsBack, "years-back", 0, "years of history before the current year (overrides config)")
	return cmd
}

func volatilityCmd(configPath *string) *cobra.Command {
	var transport string
	cmd := &cobra.Command{
		Use:   "volatility",
		Short: "Snapshot implied volatility of every live BTC option on Deribit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, stores, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer stores.Close()

			if transport != "" {
				cfg.Deribit.Transport = transport
			}
			arch, err := app.NewArchiver(ctx, cfg.S3)
			if err != nil {
				return err
			}
			source, err := app.NewDeribitClient(ctx, cfg.Deribit, logger)
			if err != nil {
				return err
			}
			defer source.Close()

			collector := app.NewVolatilityCollector(cfg, source, stores, arch, logger)
			res, err := collector.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Volatility run %s: %d instruments, %d expiries, %d points (%d tickers failed, %d skipped)\n",
				res.RunID, res.Instruments, res.Expiries, res.Points, res.TickersFailed, res.TickersSkipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "deribit transport: http or ws (overrides config)")
	return cmd
}
