package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/storage"
)

// PositionReportStore implements storage.PositionReportStore using PostgreSQL.
type PositionReportStore struct {
	pool *Pool
}

// NewPositionReportStore creates a new PositionReportStore.
func NewPositionReportStore(pool *Pool) *PositionReportStore {
	return &PositionReportStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionReportStore = (*PositionReportStore)(nil)

const upsertPositionQuery = `
	INSERT INTO position_reports (
		instrument_id, report_date, long_positions, short_positions, open_interest
	) VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (instrument_id, report_date) DO UPDATE SET
		long_positions  = EXCLUDED.long_positions,
		short_positions = EXCLUDED.short_positions,
		open_interest   = EXCLUDED.open_interest,
		updated_at      = now()
`

// UpsertBulk inserts or replaces reports in one transaction.
func (s *PositionReportStore) UpsertBulk(ctx context.Context, records []domain.PositionRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if err := storage.ValidatePositionRecord(r); err != nil {
			return err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(upsertPositionQuery,
			r.InstrumentID,
			r.ReportDate,
			r.LongPositions,
			r.ShortPositions,
			r.OpenInterest,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if isInvalidInputError(err) {
			return storage.ErrInvalidInput
		}
		return fmt.Errorf("upsert position reports: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const selectPositionColumns = `
	SELECT instrument_id, report_date, long_positions, short_positions, open_interest
	FROM position_reports
`

// GetByInstrument retrieves all reports for an instrument, ordered by report_date ASC.
func (s *PositionReportStore) GetByInstrument(ctx context.Context, instrumentID string) ([]domain.PositionRecord, error) {
	rows, err := s.pool.Query(ctx, selectPositionColumns+`
		WHERE instrument_id = $1
		ORDER BY report_date ASC
	`, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("get reports by instrument: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetByDateRange retrieves reports within [start, end] (inclusive).
func (s *PositionReportStore) GetByDateRange(ctx context.Context, start, end time.Time) ([]domain.PositionRecord, error) {
	rows, err := s.pool.Query(ctx, selectPositionColumns+`
		WHERE report_date >= $1 AND report_date <= $2
		ORDER BY instrument_id ASC, report_date ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("get reports by date range: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetAll retrieves every report.
func (s *PositionReportStore) GetAll(ctx context.Context) ([]domain.PositionRecord, error) {
	rows, err := s.pool.Query(ctx, selectPositionColumns+`
		ORDER BY instrument_id ASC, report_date ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("get all reports: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// ListInstruments returns distinct instrument IDs in ascending order.
func (s *PositionReportStore) ListInstruments(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT instrument_id FROM position_reports ORDER BY instrument_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan instruments: %w", err)
	}
	return ids, nil
}

// scanPositions scans multiple rows into a slice of PositionRecord.
func scanPositions(rows pgx.Rows) ([]domain.PositionRecord, error) {
	var records []domain.PositionRecord

	for rows.Next() {
		var r domain.PositionRecord
		err := rows.Scan(
			&r.InstrumentID,
			&r.ReportDate,
			&r.LongPositions,
			&r.ShortPositions,
			&r.OpenInterest,
		)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		r.ReportDate = r.ReportDate.UTC()
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}

	return records, nil
}
