package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/storage"
)

// PositionReportStore is an in-memory implementation of storage.PositionReportStore.
type PositionReportStore struct {
	mu   sync.RWMutex
	data map[string]domain.PositionRecord // keyed by (instrument_id, report_date)
}

// NewPositionReportStore creates a new in-memory position report store.
func NewPositionReportStore() *PositionReportStore {
	return &PositionReportStore{
		data: make(map[string]domain.PositionRecord),
	}
}

// UpsertBulk validates the whole batch before writing any record.
func (s *PositionReportStore) UpsertBulk(_ context.Context, records []domain.PositionRecord) error {
	for _, r := range records {
		if err := storage.ValidatePositionRecord(r); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		s.data[r.Key()] = r.Raw()
	}
	return nil
}

// GetByInstrument retrieves all reports for an instrument, ordered by report_date ASC.
func (s *PositionReportStore) GetByInstrument(_ context.Context, instrumentID string) ([]domain.PositionRecord, error) {
	return s.filter(func(r domain.PositionRecord) bool {
		return r.InstrumentID == instrumentID
	}), nil
}

// GetByDateRange retrieves reports within [start, end] (inclusive).
func (s *PositionReportStore) GetByDateRange(_ context.Context, start, end time.Time) ([]domain.PositionRecord, error) {
	return s.filter(func(r domain.PositionRecord) bool {
		return !r.ReportDate.Before(start) && !r.ReportDate.After(end)
	}), nil
}

// GetAll retrieves every report.
func (s *PositionReportStore) GetAll(_ context.Context) ([]domain.PositionRecord, error) {
	return s.filter(func(domain.PositionRecord) bool { return true }), nil
}

// ListInstruments returns distinct instrument IDs in ascending order.
func (s *PositionReportStore) ListInstruments(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, r := range s.data {
		seen[r.InstrumentID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *PositionReportStore) filter(keep func(domain.PositionRecord) bool) []domain.PositionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.PositionRecord
	for _, r := range s.data {
		if keep(r) {
			result = append(result, r)
		}
	}
	storage.SortPositions(result)
	return result
}

var _ storage.PositionReportStore = (*PositionReportStore)(nil)
