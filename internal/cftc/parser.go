package cftc

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"positioning-lab/internal/domain"
)

// Column names in the disaggregated futures+options text files.
const (
	ColMarket       = "Market_and_Exchange_Names"
	ColReportDate   = "Report_Date_as_YYYY-MM-DD"
	ColOpenInterest = "Open_Interest_All"

	// DefaultCategoryPrefix selects the managed money trader category.
	DefaultCategoryPrefix = "M_Money_Positions"
)

var (
	// ErrArchiveEmpty is returned when a yearly archive has no data file.
	ErrArchiveEmpty = errors.New("cftc archive contains no data file")
	// ErrMissingColumn is returned when a required header is absent.
	ErrMissingColumn = errors.New("cftc report missing column")
)

// UnzipReport returns the contents of the single data file in a yearly archive.
func UnzipReport(archive []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return data, nil
	}
	return nil, ErrArchiveEmpty
}

// ParseReport reads a disaggregated report by header name.
// categoryPrefix picks the trader category, e.g. "M_Money_Positions" reads
// M_Money_Positions_Long_All and M_Money_Positions_Short_All.
// Values are left raw; coercion happens in domain.RawPositionRow.ToRecord.
func ParseReport(r io.Reader, categoryPrefix string) ([]domain.RawPositionRow, error) {
	if categoryPrefix == "" {
		categoryPrefix = DefaultCategoryPrefix
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	longCol := categoryPrefix + "_Long_All"
	shortCol := categoryPrefix + "_Short_All"
	cols := make(map[string]int, 5)
	for _, name := range []string{ColMarket, ColReportDate, ColOpenInterest, longCol, shortCol} {
		i, ok := idx[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		cols[name] = i
	}

	var rows []domain.RawPositionRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		field := func(name string) string {
			i := cols[name]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		rows = append(rows, domain.RawPositionRow{
			InstrumentID:   field(ColMarket),
			ReportDate:     field(ColReportDate),
			LongPositions:  field(longCol),
			ShortPositions: field(shortCol),
			OpenInterest:   field(ColOpenInterest),
		})
	}
	return rows, nil
}
