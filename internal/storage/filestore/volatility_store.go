package filestore

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/storage"
	"positioning-lab/internal/storage/memory"
)

// VolatilityFile is the file name used inside the data directory.
const VolatilityFile = "volatility_data.csv"

var volatilityHeader = []string{
	"run_id", "timestamp", "expiry_date", "expiry_timestamp", "strike",
	"implied_volatility", "option_type", "instrument_name", "underlying_index",
}

// VolatilityStore appends collector runs to a CSV file.
type VolatilityStore struct {
	mu    sync.Mutex
	path  string
	cache *memory.VolatilityStore
}

// OpenVolatilityStore loads dir/volatility_data.csv.
func OpenVolatilityStore(ctx context.Context, dir string) (*VolatilityStore, error) {
	s := &VolatilityStore{
		path:  filepath.Join(dir, VolatilityFile),
		cache: memory.NewVolatilityStore(),
	}

	rows, err := readAll(s.path, volatilityHeader)
	if err != nil {
		return nil, err
	}
	points := make([]domain.VolatilityPoint, 0, len(rows))
	for i, row := range rows {
		p, err := decodeVolatilityRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", s.path, i+2, err)
		}
		points = append(points, p)
	}
	if err := s.cache.InsertBulk(ctx, points); err != nil {
		return nil, fmt.Errorf("load %s: %w", s.path, err)
	}
	return s, nil
}

// InsertBulk validates against the cache, appends to the file, then updates the cache.
func (s *VolatilityStore) InsertBulk(ctx context.Context, points []domain.VolatilityPoint) error {
	if len(points) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cache.CheckInsert(points); err != nil {
		return err
	}
	rows := make([][]string, len(points))
	for i, p := range points {
		rows[i] = encodeVolatilityRow(p)
	}
	if err := appendRows(s.path, volatilityHeader, rows); err != nil {
		return err
	}
	return s.cache.InsertBulk(ctx, points)
}

func (s *VolatilityStore) GetLatestRun(ctx context.Context) (*domain.VolatilityRun, error) {
	return s.cache.GetLatestRun(ctx)
}

func (s *VolatilityStore) GetByRun(ctx context.Context, runID string) (*domain.VolatilityRun, error) {
	return s.cache.GetByRun(ctx, runID)
}

func (s *VolatilityStore) LastCollectedAt(ctx context.Context) (time.Time, error) {
	return s.cache.LastCollectedAt(ctx)
}

// WriteVolatilityCSV writes points with the volatility_data.csv header.
func WriteVolatilityCSV(w io.Writer, points []domain.VolatilityPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(volatilityHeader); err != nil {
		return err
	}
	for _, p := range points {
		if err := cw.Write(encodeVolatilityRow(p)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func encodeVolatilityRow(p domain.VolatilityPoint) []string {
	return []string{
		p.RunID,
		p.CollectedAt.UTC().Format(time.RFC3339),
		p.ExpiryDate.Format(domain.DateLayout),
		strconv.FormatInt(p.ExpiryTimestampMs, 10),
		strconv.FormatFloat(p.Strike, 'f', -1, 64),
		strconv.FormatFloat(p.ImpliedVolatility, 'f', -1, 64),
		string(p.OptionType),
		p.InstrumentName,
		strconv.FormatFloat(p.UnderlyingIndex, 'f', -1, 64),
	}
}

func decodeVolatilityRow(row []string) (domain.VolatilityPoint, error) {
	var (
		p   domain.VolatilityPoint
		err error
	)
	p.RunID = row[0]
	if p.CollectedAt, err = time.Parse(time.RFC3339, row[1]); err != nil {
		return p, fmt.Errorf("timestamp: %w", err)
	}
	if p.ExpiryDate, err = time.Parse(domain.DateLayout, row[2]); err != nil {
		return p, fmt.Errorf("expiry_date: %w", err)
	}
	if p.ExpiryTimestampMs, err = strconv.ParseInt(row[3], 10, 64); err != nil {
		return p, fmt.Errorf("expiry_timestamp: %w", err)
	}
	if p.Strike, err = strconv.ParseFloat(row[4], 64); err != nil {
		return p, fmt.Errorf("strike: %w", err)
	}
	if p.ImpliedVolatility, err = strconv.ParseFloat(row[5], 64); err != nil {
		return p, fmt.Errorf("implied_volatility: %w", err)
	}
	p.OptionType = domain.OptionType(row[6])
	p.InstrumentName = row[7]
	if p.UnderlyingIndex, err = strconv.ParseFloat(row[8], 64); err != nil {
		return p, fmt.Errorf("underlying_index: %w", err)
	}
	return p, nil
}

var _ storage.VolatilityStore = (*VolatilityStore)(nil)
