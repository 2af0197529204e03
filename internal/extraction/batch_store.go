package extraction

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"positioning-lab/internal/domain"
)

// BundleName is the file name of the combined download.
const BundleName = "extracted_tables.zip"

// Batch is one extraction run kept for downloads.
type Batch struct {
	ID        string
	Model     string
	CreatedAt time.Time
	Results   []domain.ExtractionResult
}

// Names returns the download name of each result, matching the bundle entries.
func (b *Batch) Names() []string {
	return UniqueCSVNames(b.Results)
}

// Find returns the result whose download name is csvName.
func (b *Batch) Find(csvName string) (domain.ExtractionResult, bool) {
	for i, name := range b.Names() {
		if name == csvName {
			return b.Results[i], true
		}
	}
	return domain.ExtractionResult{}, false
}

// BatchStore keeps batches in memory for ttl.
type BatchStore struct {
	mu      sync.RWMutex
	batches map[string]*Batch
	ttl     time.Duration
	now     func() time.Time
}

// NewBatchStore creates a store. Zero ttl keeps batches for an hour.
func NewBatchStore(ttl time.Duration) *BatchStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &BatchStore{
		batches: make(map[string]*Batch),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put stores results under a new batch ID.
func (s *BatchStore) Put(model string, results []domain.ExtractionResult) *Batch {
	b := &Batch{
		ID:        uuid.NewString(),
		Model:     model,
		CreatedAt: s.now(),
		Results:   results,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	s.batches[b.ID] = b
	return b
}

// Get returns a live batch.
func (s *BatchStore) Get(id string) (*Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok || s.expired(b) {
		return nil, false
	}
	return b, true
}

// Len returns the number of stored batches, expired ones included until purged.
func (s *BatchStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.batches)
}

// Purge drops expired batches.
func (s *BatchStore) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
}

func (s *BatchStore) purgeLocked() {
	for id, b := range s.batches {
		if s.expired(b) {
			delete(s.batches, id)
		}
	}
}

func (s *BatchStore) expired(b *Batch) bool {
	return s.now().Sub(b.CreatedAt) > s.ttl
}
