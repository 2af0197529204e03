package storage

import (
	"context"
	"time"

	"positioning-lab/internal/domain"
)

// PositionReportStore provides access to raw positioning reports.
// Only raw fields are persisted; derived fields are recomputed on read.
type PositionReportStore interface {
	// UpsertBulk inserts or replaces reports keyed by (instrument_id, report_date).
	// CFTC history files are re-published with revisions, so re-ingestion overwrites.
	// Returns ErrInvalidInput if any record lacks an instrument or date.
	UpsertBulk(ctx context.Context, records []domain.PositionRecord) error

	// GetByInstrument retrieves all reports for an instrument, ordered by report_date ASC.
	GetByInstrument(ctx context.Context, instrumentID string) ([]domain.PositionRecord, error)

	// GetByDateRange retrieves reports with report_date within [start, end] (inclusive),
	// ordered by instrument_id ASC, report_date ASC.
	GetByDateRange(ctx context.Context, start, end time.Time) ([]domain.PositionRecord, error)

	// GetAll retrieves every report, ordered by instrument_id ASC, report_date ASC.
	GetAll(ctx context.Context) ([]domain.PositionRecord, error)

	// ListInstruments returns distinct instrument IDs in ascending order.
	ListInstruments(ctx context.Context) ([]string, error)
}

// VolatilityStore provides access to option implied volatility snapshots.
type VolatilityStore interface {
	// InsertBulk adds points of a run. Fails entire batch on duplicate (run_id, instrument_name).
	InsertBulk(ctx context.Context, points []domain.VolatilityPoint) error

	// GetLatestRun retrieves the most recent run by collected_at. Returns ErrNotFound if empty.
	GetLatestRun(ctx context.Context) (*domain.VolatilityRun, error)

	// GetByRun retrieves all points of a run, ordered by expiry ASC, strike ASC.
	// Returns ErrNotFound if the run does not exist.
	GetByRun(ctx context.Context, runID string) (*domain.VolatilityRun, error)

	// LastCollectedAt returns the collected_at of the latest run. Returns ErrNotFound if empty.
	LastCollectedAt(ctx context.Context) (time.Time, error)
}
