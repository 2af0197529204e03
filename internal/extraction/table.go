package extraction

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"positioning-lab/internal/domain"
)

// ErrEmptyTable is returned when the model output has no columns.
var ErrEmptyTable = errors.New("no columns to parse")

// StripFences trims whitespace and removes a surrounding markdown code fence.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// Drop the opening fence line, which may carry a language tag
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseTable parses CSV with a header row. Every row must match the header width.
func ParseTable(text string) (*domain.Table, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, ErrEmptyTable
	}
	return &domain.Table{Header: records[0], Rows: records[1:]}, nil
}

// TableCSV renders a table back to CSV.
func TableCSV(t *domain.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ResultCSV returns the downloadable CSV for a result: the normalized table on
// success, the raw model output on partial success.
func ResultCSV(r domain.ExtractionResult) ([]byte, bool, error) {
	switch {
	case r.Status == domain.ExtractionSuccess && r.Table != nil:
		data, err := TableCSV(r.Table)
		return data, err == nil, err
	case r.Downloadable():
		return []byte(r.RawCSV), true, nil
	default:
		return nil, false, nil
	}
}

// Bundle zips every downloadable result as <basename>.csv.
// Duplicate names get a numeric suffix. ok is false when nothing was downloadable.
func Bundle(results []domain.ExtractionResult) (data []byte, ok bool, err error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := UniqueCSVNames(results)

	for i, r := range results {
		content, has, err := ResultCSV(r)
		if err != nil {
			return nil, false, fmt.Errorf("render %s: %w", r.Filename, err)
		}
		if !has {
			continue
		}
		name := names[i]

		w, err := zw.Create(name)
		if err != nil {
			return nil, false, fmt.Errorf("zip %s: %w", name, err)
		}
		if _, err := w.Write(content); err != nil {
			return nil, false, fmt.Errorf("zip %s: %w", name, err)
		}
		ok = true
	}
	if err := zw.Close(); err != nil {
		return nil, false, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), ok, nil
}

// UniqueCSVNames returns one CSV name per result, in order. Repeated names get a
// numeric suffix, skipping any name already taken by an earlier result.
func UniqueCSVNames(results []domain.ExtractionResult) []string {
	names := make([]string, len(results))
	used := make(map[string]bool, len(results))
	for i, r := range results {
		name := CSVName(r.Filename)
		base := strings.TrimSuffix(name, ".csv")
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s_%d.csv", base, n)
		}
		used[name] = true
		names[i] = name
	}
	return names
}
