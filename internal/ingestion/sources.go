package ingestion

import (
	"context"
	"time"

	"positioning-lab/internal/cftc"
	"positioning-lab/internal/deribit"
	"positioning-lab/internal/domain"
)

// ReportSource provides yearly positioning reports.
type ReportSource interface {
	// FetchYear returns the parsed rows of one yearly report plus its raw text.
	FetchYear(ctx context.Context, year int) (*cftc.YearReport, error)
}

// OptionSource provides option market data for the volatility collector.
type OptionSource interface {
	GetInstruments(ctx context.Context, currency, kind string, expired bool) ([]deribit.Instrument, error)
	GetIndexPrice(ctx context.Context, indexName string) (float64, error)
	GetTicker(ctx context.Context, instrumentName string) (*deribit.Ticker, error)
}

// ReportArchive keeps raw yearly reports.
type ReportArchive interface {
	ArchiveCOTYear(ctx context.Context, year int, raw []byte, fetched time.Time) error
}

// RunArchive keeps volatility collection runs.
type RunArchive interface {
	ArchiveVolatilityRun(ctx context.Context, run domain.VolatilityRun) error
}
