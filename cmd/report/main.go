// Command report generates the positioning alert report (Markdown) and the full metrics CSV.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"positioning-lab/internal/app"
	"positioning-lab/internal/config"
	"positioning-lab/internal/logging"
	"positioning-lab/internal/reporting"
)

const (
	reportFile  = "ALERTS.md"
	metricsFile = "POSITIONING.csv"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		outputDir  string
	)
	cmd := &cobra.Command{
		Use:           "report",
		Short:         "Generate the positioning alert report from stored COT data",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			stores, err := app.OpenStores(ctx, cfg.Storage, logger)
			if err != nil {
				return err
			}
			defer stores.Close()

			analyzer, err := app.NewAnalyzer(cfg, stores)
			if err != nil {
				return err
			}
			report, err := app.NewReportGenerator(cfg, analyzer).Generate(ctx)
			if err != nil {
				return fmt.Errorf("generate report: %w", err)
			}

			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			mdPath := filepath.Join(outputDir, reportFile)
			if err := os.WriteFile(mdPath, []byte(reporting.RenderMarkdown(report)), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", mdPath, err)
			}
			csvPath := filepath.Join(outputDir, metricsFile)
			if err := os.WriteFile(csvPath, []byte(reporting.RenderCSV(report.Records)), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", csvPath, err)
			}

			logger.Info().
				Str("markdown", mdPath).
				Str("csv", csvPath).
				Int("instruments", report.Summary.Total).
				Int("alerts", len(report.Alerts)).
				Msg("report written")
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to YAML config")
	cmd.Flags().StringVar(&outputDir, "output-dir", "output", "directory for generated files")
	return cmd
}
