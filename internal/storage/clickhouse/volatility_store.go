package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/storage"
)

// VolatilityStore implements storage.VolatilityStore using ClickHouse.
type VolatilityStore struct {
	conn *Conn
}

// NewVolatilityStore creates a new VolatilityStore.
func NewVolatilityStore(conn *Conn) *VolatilityStore {
	return &VolatilityStore{conn: conn}
}

// Compile-time interface check.
var _ storage.VolatilityStore = (*VolatilityStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate (run_id, instrument_name).
// MergeTree does not enforce uniqueness, so duplicates are checked before the insert.
func (s *VolatilityStore) InsertBulk(ctx context.Context, points []domain.VolatilityPoint) error {
	if len(points) == 0 {
		return nil
	}

	type key struct{ runID, instrument string }
	seen := make(map[key]struct{}, len(points))
	runs := make(map[string]struct{})
	for _, p := range points {
		if err := storage.ValidateVolatilityPoint(p); err != nil {
			return err
		}
		k := key{p.RunID, p.InstrumentName}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
		runs[p.RunID] = struct{}{}
	}

	for runID := range runs {
		existing, err := s.instrumentsInRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for _, name := range existing {
			if _, dup := seen[key{runID, name}]; dup {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO volatility_points (
			run_id, collected_at, instrument_name, expiry_date, expiry_timestamp_ms,
			strike, option_type, implied_volatility, underlying_index
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.RunID, p.CollectedAt.UTC(), p.InstrumentName, p.ExpiryDate, uint64(p.ExpiryTimestampMs),
			p.Strike, string(p.OptionType), p.ImpliedVolatility, p.UnderlyingIndex,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetLatestRun retrieves the most recent run by collected_at.
func (s *VolatilityStore) GetLatestRun(ctx context.Context) (*domain.VolatilityRun, error) {
	var runID string
	err := s.conn.QueryRow(ctx, `
		SELECT run_id FROM volatility_points
		ORDER BY collected_at DESC, run_id DESC
		LIMIT 1
	`).Scan(&runID)
	if err != nil {
		if isNoRows(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query latest run: %w", err)
	}
	return s.GetByRun(ctx, runID)
}

// GetByRun retrieves all points of a run, ordered by expiry ASC, strike ASC.
func (s *VolatilityStore) GetByRun(ctx context.Context, runID string) (*domain.VolatilityRun, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT run_id, collected_at, instrument_name, expiry_date, expiry_timestamp_ms,
		       strike, option_type, implied_volatility, underlying_index
		FROM volatility_points
		WHERE run_id = ?
		ORDER BY expiry_date ASC, strike ASC, option_type ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	points, err := scanVolatilityPoints(rows)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, storage.ErrNotFound
	}

	return &domain.VolatilityRun{
		RunID:       runID,
		CollectedAt: points[0].CollectedAt,
		Points:      points,
	}, nil
}

// LastCollectedAt returns the collected_at of the latest run.
func (s *VolatilityStore) LastCollectedAt(ctx context.Context) (time.Time, error) {
	var (
		count uint64
		at    time.Time
	)
	err := s.conn.QueryRow(ctx, `SELECT count(), max(collected_at) FROM volatility_points`).Scan(&count, &at)
	if err != nil {
		return time.Time{}, fmt.Errorf("query last collected: %w", err)
	}
	if count == 0 {
		return time.Time{}, storage.ErrNotFound
	}
	return at.UTC(), nil
}

func (s *VolatilityStore) instrumentsInRun(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT instrument_name FROM volatility_points WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// scanVolatilityPoints scans multiple rows.
func scanVolatilityPoints(rows chRows) ([]domain.VolatilityPoint, error) {
	var points []domain.VolatilityPoint

	for rows.Next() {
		var (
			p          domain.VolatilityPoint
			expiryMs   uint64
			optionType string
		)
		err := rows.Scan(
			&p.RunID, &p.CollectedAt, &p.InstrumentName, &p.ExpiryDate, &expiryMs,
			&p.Strike, &optionType, &p.ImpliedVolatility, &p.UnderlyingIndex,
		)
		if err != nil {
			return nil, fmt.Errorf("scan volatility row: %w", err)
		}
		p.CollectedAt = p.CollectedAt.UTC()
		p.ExpiryDate = p.ExpiryDate.UTC()
		p.ExpiryTimestampMs = int64(expiryMs)
		p.OptionType = domain.OptionType(optionType)
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate volatility rows: %w", err)
	}
	return points, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
