package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/storage/filestore"
)

// Putter uploads one object.
type Putter interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}

// Archiver writes raw ingestion output under a key prefix.
//
// Key schema:
//
//	<prefix>/cot/<year>/com_disagg_<year>_<fetched>.txt
//	<prefix>/volatility/<yyyy-mm-dd>/<run_id>.csv
type Archiver struct {
	put    Putter
	prefix string
}

// NewArchiver creates an Archiver.
func NewArchiver(put Putter, prefix string) *Archiver {
	return &Archiver{put: put, prefix: strings.Trim(prefix, "/")}
}

// COTKey returns the object key for a yearly report fetched at t.
func (a *Archiver) COTKey(year int, fetched time.Time) string {
	name := fmt.Sprintf("com_disagg_%d_%s.txt", year, fetched.UTC().Format("20060102T150405Z"))
	return path.Join(a.prefix, "cot", fmt.Sprint(year), name)
}

// VolatilityKey returns the object key for a collection run.
func (a *Archiver) VolatilityKey(run domain.VolatilityRun) string {
	return path.Join(a.prefix, "volatility", run.CollectedAt.UTC().Format(domain.DateLayout), run.RunID+".csv")
}

// ArchiveCOTYear stores the raw text of one yearly report.
func (a *Archiver) ArchiveCOTYear(ctx context.Context, year int, raw []byte, fetched time.Time) error {
	return a.put.Put(ctx, a.COTKey(year, fetched), bytes.NewReader(raw), "text/csv")
}

// ArchiveVolatilityRun stores one run in the volatility_data.csv layout.
func (a *Archiver) ArchiveVolatilityRun(ctx context.Context, run domain.VolatilityRun) error {
	var buf bytes.Buffer
	if err := filestore.WriteVolatilityCSV(&buf, run.Points); err != nil {
		return fmt.Errorf("encode run %s: %w", run.RunID, err)
	}
	return a.put.Put(ctx, a.VolatilityKey(run), &buf, "text/csv")
}
