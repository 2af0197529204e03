package filestore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/storage"
	"positioning-lab/internal/storage/memory"
)

// PositionsFile is the file name used inside the data directory.
const PositionsFile = "positions.csv"

var positionHeader = []string{"instrument_id", "report_date", "long_positions", "short_positions", "open_interest"}

// PositionReportStore persists raw reports to a CSV file.
// Reads are served from an in-memory copy loaded at open time.
type PositionReportStore struct {
	mu    sync.Mutex // serializes file rewrites
	path  string
	cache *memory.PositionReportStore
}

// OpenPositionReportStore loads dir/positions.csv, creating nothing until the first write.
func OpenPositionReportStore(ctx context.Context, dir string) (*PositionReportStore, error) {
	s := &PositionReportStore{
		path:  filepath.Join(dir, PositionsFile),
		cache: memory.NewPositionReportStore(),
	}

	rows, err := readAll(s.path, positionHeader)
	if err != nil {
		return nil, err
	}
	records := make([]domain.PositionRecord, 0, len(rows))
	for i, row := range rows {
		d, err := time.Parse(domain.DateLayout, row[1])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", s.path, i+2, err)
		}
		records = append(records, domain.PositionRecord{
			InstrumentID:   row[0],
			ReportDate:     d,
			LongPositions:  parseFloat(row[2]),
			ShortPositions: parseFloat(row[3]),
			OpenInterest:   parseFloat(row[4]),
		})
	}
	if err := s.cache.UpsertBulk(ctx, records); err != nil {
		return nil, fmt.Errorf("load %s: %w", s.path, err)
	}
	return s, nil
}

// UpsertBulk rewrites the file with records merged in, then updates the cache.
// The cache is left untouched when the write fails.
func (s *PositionReportStore) UpsertBulk(ctx context.Context, records []domain.PositionRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.cache.GetAll(ctx)
	if err != nil {
		return err
	}
	merged := memory.NewPositionReportStore()
	if err := merged.UpsertBulk(ctx, current); err != nil {
		return err
	}
	if err := merged.UpsertBulk(ctx, records); err != nil {
		return err
	}
	all, err := merged.GetAll(ctx)
	if err != nil {
		return err
	}

	rows := make([][]string, len(all))
	for i, r := range all {
		rows[i] = []string{
			r.InstrumentID,
			r.ReportDate.Format(domain.DateLayout),
			formatFloat(r.LongPositions),
			formatFloat(r.ShortPositions),
			formatFloat(r.OpenInterest),
		}
	}
	if err := writeAll(s.path, positionHeader, rows); err != nil {
		return err
	}
	return s.cache.UpsertBulk(ctx, records)
}

func (s *PositionReportStore) GetByInstrument(ctx context.Context, instrumentID string) ([]domain.PositionRecord, error) {
	return s.cache.GetByInstrument(ctx, instrumentID)
}

func (s *PositionReportStore) GetByDateRange(ctx context.Context, start, end time.Time) ([]domain.PositionRecord, error) {
	return s.cache.GetByDateRange(ctx, start, end)
}

func (s *PositionReportStore) GetAll(ctx context.Context) ([]domain.PositionRecord, error) {
	return s.cache.GetAll(ctx)
}

func (s *PositionReportStore) ListInstruments(ctx context.Context) ([]string, error) {
	return s.cache.ListInstruments(ctx)
}

var _ storage.PositionReportStore = (*PositionReportStore)(nil)
