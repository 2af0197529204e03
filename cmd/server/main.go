// Command server runs the dashboard together with the scheduled COT ingestion
// and BTC volatility collection.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"positioning-lab/internal/app"
	"positioning-lab/internal/commentary"
	"positioning-lab/internal/config"
	"positioning-lab/internal/dashboard"
	"positioning-lab/internal/extraction"
	"positioning-lab/internal/ingestion"
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
	var (
		configPath string
		addr       string
	)
	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Serve the positioning and volatility dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to YAML config")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	stores, err := app.OpenStores(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	arch, err := app.NewArchiver(ctx, cfg.S3)
	if err != nil {
		return err
	}
	cache, closeCache := app.NewCommentaryCache(ctx, cfg.Redis, logger)
	defer closeCache()

	analyzer, err := app.NewAnalyzer(cfg, stores)
	if err != nil {
		return err
	}

	deps := dashboard.Deps{
		Reports:    app.NewReportGenerator(cfg, analyzer),
		Series:     analyzer,
		Volatility: stores.Volatility,
		Batches:    extraction.NewBatchStore(cfg.Extraction.ResultTTL),
	}

	llm := app.NewOpenRouterClient(cfg.OpenRouter, logger)
	if llm.Configured() {
		deps.Commentary = commentaryService(cfg, llm, cache, logger)
		deps.Extractor = app.NewTableExtractor(cfg, llm, logger)
	} else {
		logger.Warn().Msg("OPENROUTER_API_KEY not set, AI commentary and table extraction disabled")
	}

	var schedulers []*ingestion.Scheduler
	if !cfg.Schedule.DisableCOT {
		ingester := app.NewCOTIngester(cfg, stores, arch, logger)
		sched := ingestion.NewScheduler("cot", cfg.Schedule.COTInterval, func(ctx context.Context) error {
			_, err := ingester.Run(ctx, cfg.CFTC.YearsBack)
			return err
		}, logger)
		schedulers = append(schedulers, sched)
	}

	if !cfg.Schedule.DisableVolatility {
		source, err := app.NewDeribitClient(ctx, cfg.Deribit, logger)
		if err != nil {
			return err
		}
		defer source.Close()

		collector := app.NewVolatilityCollector(cfg, source, stores, arch, logger)
		sched := ingestion.NewScheduler("volatility", cfg.Schedule.VolatilityInterval, func(ctx context.Context) error {
			_, err := collector.Run(ctx)
			return err
		}, logger)
		schedulers = append(schedulers, sched)
	}

	for _, sched := range schedulers {
		deps.Jobs = append(deps.Jobs, sched)
	}

	srv, err := dashboard.NewServer(dashboard.Config{
		Addr:           cfg.HTTP.Addr,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxUploadBytes: int64(cfg.Extraction.MaxUploadMB) << 20,
		Location:       cfg.DisplayLocation(),
		Engine:         cfg.EngineConfig(),
	}, deps, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	for _, sched := range schedulers {
		g.Go(func() error { return sched.Run(gctx) })
	}

	logger.Info().Str("addr", cfg.HTTP.Addr).Str("storage", cfg.Storage.Driver).Msg("server started")
	err = g.Wait()
	logger.Info().Msg("server stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func commentaryService(cfg config.Config, llm commentary.Completer, cache commentary.Cache, log zerolog.Logger) *commentary.Service {
	return commentary.NewService(llm, cache, commentary.Config{
		Model:    cfg.OpenRouter.Model,
		CacheTTL: cfg.OpenRouter.CacheTTL,
	}, log)
}
