// Package app wires configuration into stores, clients and services for the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"positioning-lab/internal/archive"
	"positioning-lab/internal/breakers"
	redcache "positioning-lab/internal/cache/redis"
	"positioning-lab/internal/cftc"
	"positioning-lab/internal/commentary"
	"positioning-lab/internal/config"
	"positioning-lab/internal/deribit"
	"positioning-lab/internal/extraction"
	"positioning-lab/internal/ingestion"
	"positioning-lab/internal/metrics"
	"positioning-lab/internal/openrouter"
	"positioning-lab/internal/reporting"
	"positioning-lab/internal/storage"
	chstore "positioning-lab/internal/storage/clickhouse"
	"positioning-lab/internal/storage/filestore"
	"positioning-lab/internal/storage/memory"
	"positioning-lab/internal/storage/migrations"
	pgstore "positioning-lab/internal/storage/postgres"
)

// Stores holds the storage implementations selected by storage.driver.
type Stores struct {
	Positions  storage.PositionReportStore
	Volatility storage.VolatilityStore
	closers    []func() error
}

// Close releases database connections. Safe to call on memory and file stores.
func (s *Stores) Close() error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.closers[i]())
	}
	return err
}

// OpenStores creates the stores for cfg.Driver, applying migrations for the database driver.
func OpenStores(ctx context.Context, cfg config.StorageConfig, log zerolog.Logger) (*Stores, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		log.Info().Msg("using in-memory storage")
		return &Stores{
			Positions:  memory.NewPositionReportStore(),
			Volatility: memory.NewVolatilityStore(),
		}, nil

	case config.DriverFile:
		log.Info().Str("dir", cfg.DataDir).Msg("using file storage")
		positions, err := filestore.OpenPositionReportStore(ctx, cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open position file store: %w", err)
		}
		vol, err := filestore.OpenVolatilityStore(ctx, cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open volatility file store: %w", err)
		}
		return &Stores{Positions: positions, Volatility: vol}, nil

	case config.DriverDatabase:
		return openDatabaseStores(ctx, cfg, log)

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func openDatabaseStores(ctx context.Context, cfg config.StorageConfig, log zerolog.Logger) (*Stores, error) {
	log.Info().Msg("connecting to PostgreSQL")
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, cfg.PostgresConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool, log); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}

	log.Info().Msg("connecting to ClickHouse")
	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	return &Stores{
		Positions:  pgstore.NewPositionReportStore(pool),
		Volatility: chstore.NewVolatilityStore(conn),
		closers: []func() error{
			func() error { pool.Close(); return nil },
			conn.Close,
		},
	}, nil
}

// NewArchiver returns nil when no bucket is configured.
func NewArchiver(ctx context.Context, cfg config.S3Config) (*archive.Archiver, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}
	client, err := archive.New(ctx, archive.ClientConfig{
		Endpoint:       cfg.Endpoint,
		Region:         cfg.Region,
		Bucket:         cfg.Bucket,
		AccessKey:      cfg.AccessKey,
		SecretKey:      cfg.SecretKey,
		ForcePathStyle: cfg.Endpoint != "",
	})
	if err != nil {
		return nil, err
	}
	return archive.NewArchiver(client, cfg.Prefix), nil
}

// NewCFTCClient creates the report downloader behind a circuit breaker.
func NewCFTCClient(cfg config.CFTCConfig, log zerolog.Logger) *cftc.Client {
	return cftc.NewClient(cfg.BaseURL,
		cftc.WithTimeout(cfg.Timeout),
		cftc.WithMaxRetries(cfg.MaxRetries),
		cftc.WithCategoryPrefix(cfg.CategoryPrefix),
		cftc.WithBreaker(breakers.New("cftc", breakers.Settings{}, log)),
	)
}

// NewDeribitClient creates the HTTP or WebSocket client selected by cfg.Transport.
func NewDeribitClient(ctx context.Context, cfg config.DeribitConfig, log zerolog.Logger) (deribit.Client, error) {
	if cfg.Transport == "ws" {
		wsCfg := deribit.DefaultWSConfig()
		wsCfg.RateLimit = cfg.RateLimit
		wsCfg.RequestTimeout = cfg.Timeout
		return deribit.NewWSClient(ctx, cfg.WSURL, &wsCfg, log)
	}
	return deribit.NewHTTPClient(cfg.BaseURL,
		deribit.WithTimeout(cfg.Timeout),
		deribit.WithMaxRetries(cfg.MaxRetries),
		deribit.WithRateLimit(cfg.RateLimit),
	), nil
}

// NewOpenRouterClient creates the chat completion client behind a circuit breaker.
func NewOpenRouterClient(cfg config.OpenRouterConfig, log zerolog.Logger) *openrouter.Client {
	return openrouter.NewClient(cfg.BaseURL, cfg.APIKey,
		openrouter.WithTimeout(cfg.Timeout),
		openrouter.WithAppHeaders(cfg.Referer, cfg.Title),
		openrouter.WithBreaker(breakers.New("openrouter", breakers.Settings{}, log)),
	)
}

// ExtractionModels returns the extractor model list with the configured vision model first.
func ExtractionModels(cfg config.Config) []string {
	models := []string{}
	if cfg.OpenRouter.VisionModel != "" {
		models = append(models, cfg.OpenRouter.VisionModel)
	}
	for _, m := range cfg.Extraction.Models {
		if m != cfg.OpenRouter.VisionModel {
			models = append(models, m)
		}
	}
	return models
}

// NewTableExtractor creates the image table extractor on top of llm.
func NewTableExtractor(cfg config.Config, llm extraction.Completer, log zerolog.Logger) *extraction.Extractor {
	e := extraction.NewExtractor(llm, ExtractionModels(cfg), log)
	e.SetTimeout(cfg.OpenRouter.Timeout)
	return e
}

// NewCommentaryCache connects to Redis when configured, otherwise returns a no-op cache.
// A Redis that cannot be reached is logged and replaced by the no-op cache.
func NewCommentaryCache(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (commentary.Cache, func() error) {
	if cfg.Addr == "" {
		return commentary.NopCache{}, func() error { return nil }
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := redcache.New(pingCtx, redcache.ClientConfig{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unavailable, commentary cache disabled")
		return commentary.NopCache{}, func() error { return nil }
	}
	return redcache.NewTextCache(client, ""), client.Close
}

// NewCOTIngester wires the CFTC source, position store and optional archive.
func NewCOTIngester(cfg config.Config, stores *Stores, arch *archive.Archiver, log zerolog.Logger) *ingestion.COTIngester {
	opts := ingestion.COTOptions{
		Source:  NewCFTCClient(cfg.CFTC, log),
		Store:   stores.Positions,
		Markets: cfg.CFTC.Markets,
		Logger:  log,
	}
	if arch != nil {
		opts.Archive = arch
	}
	return ingestion.NewCOTIngester(opts)
}

// NewVolatilityCollector wires a Deribit source, volatility store and optional archive.
func NewVolatilityCollector(cfg config.Config, source ingestion.OptionSource, stores *Stores, arch *archive.Archiver, log zerolog.Logger) *ingestion.VolatilityCollector {
	opts := ingestion.VolatilityOptions{
		Source:   source,
		Store:    stores.Volatility,
		Currency: cfg.Deribit.Currency,
		Logger:   log,
	}
	if arch != nil {
		opts.Archive = arch
	}
	return ingestion.NewVolatilityCollector(opts)
}

// NewAnalyzer creates the store-backed metrics analyzer.
func NewAnalyzer(cfg config.Config, stores *Stores) (*metrics.Analyzer, error) {
	engine, err := metrics.NewEngine(cfg.EngineConfig())
	if err != nil {
		return nil, err
	}
	return metrics.NewAnalyzer(stores.Positions, engine), nil
}

// NewReportGenerator creates the alert report generator.
func NewReportGenerator(cfg config.Config, analyzer *metrics.Analyzer) *reporting.Generator {
	return reporting.NewGenerator(analyzer, cfg.Engine.CurrentYearsBack)
}
