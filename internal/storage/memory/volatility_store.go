package memory

import (
	"context"
	"sync"
	"time"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/storage"
)

// VolatilityStore is an in-memory implementation of storage.VolatilityStore.
type VolatilityStore struct {
	mu   sync.RWMutex
	runs map[string][]domain.VolatilityPoint // keyed by run_id
	keys map[string]struct{}                 // (run_id, instrument_name)
}

// NewVolatilityStore creates a new in-memory volatility store.
func NewVolatilityStore() *VolatilityStore {
	return &VolatilityStore{
		runs: make(map[string][]domain.VolatilityPoint),
		keys: make(map[string]struct{}),
	}
}

func volKey(runID, instrument string) string {
	return runID + "|" + instrument
}

// InsertBulk adds multiple points. Fails entire batch on duplicate.
func (s *VolatilityStore) InsertBulk(_ context.Context, points []domain.VolatilityPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(points); err != nil {
		return err
	}
	for _, p := range points {
		s.keys[volKey(p.RunID, p.InstrumentName)] = struct{}{}
		s.runs[p.RunID] = append(s.runs[p.RunID], p)
	}
	return nil
}

// CheckInsert reports the error InsertBulk would return for points without storing them.
func (s *VolatilityStore) CheckInsert(points []domain.VolatilityPoint) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.check(points)
}

func (s *VolatilityStore) check(points []domain.VolatilityPoint) error {
	batchKeys := make(map[string]struct{}, len(points))
	for _, p := range points {
		if err := storage.ValidateVolatilityPoint(p); err != nil {
			return err
		}
		key := volKey(p.RunID, p.InstrumentName)
		if _, exists := s.keys[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}
	return nil
}

// GetLatestRun retrieves the most recent run by collected_at.
func (s *VolatilityStore) GetLatestRun(ctx context.Context) (*domain.VolatilityRun, error) {
	runID, _, err := s.latest()
	if err != nil {
		return nil, err
	}
	return s.GetByRun(ctx, runID)
}

// GetByRun retrieves all points of a run, ordered by expiry ASC, strike ASC.
func (s *VolatilityStore) GetByRun(_ context.Context, runID string) (*domain.VolatilityRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points, ok := s.runs[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]domain.VolatilityPoint, len(points))
	copy(out, points)
	storage.SortVolatility(out)

	return &domain.VolatilityRun{
		RunID:       runID,
		CollectedAt: out[0].CollectedAt,
		Points:      out,
	}, nil
}

// LastCollectedAt returns the collected_at of the latest run.
func (s *VolatilityStore) LastCollectedAt(_ context.Context) (time.Time, error) {
	_, at, err := s.latest()
	return at, err
}

func (s *VolatilityStore) latest() (string, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		runID string
		at    time.Time
	)
	for id, points := range s.runs {
		c := points[0].CollectedAt
		if runID == "" || c.After(at) || (c.Equal(at) && id > runID) {
			runID, at = id, c
		}
	}
	if runID == "" {
		return "", time.Time{}, storage.ErrNotFound
	}
	return runID, at, nil
}

var _ storage.VolatilityStore = (*VolatilityStore)(nil)
