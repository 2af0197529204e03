package storage

import (
	"sort"

	"positioning-lab/internal/domain"
)

// ValidatePositionRecord checks the key fields of a position record.
func ValidatePositionRecord(r domain.PositionRecord) error {
	if r.InstrumentID == "" || r.ReportDate.IsZero() {
		return ErrInvalidInput
	}
	return nil
}

// ValidateVolatilityPoint checks the key fields of a volatility point.
func ValidateVolatilityPoint(p domain.VolatilityPoint) error {
	if p.RunID == "" || p.InstrumentName == "" || p.CollectedAt.IsZero() {
		return ErrInvalidInput
	}
	return nil
}

// SortPositions orders records by instrument_id ASC, report_date ASC.
func SortPositions(records []domain.PositionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].InstrumentID != records[j].InstrumentID {
			return records[i].InstrumentID < records[j].InstrumentID
		}
		return records[i].ReportDate.Before(records[j].ReportDate)
	})
}

// SortVolatility orders points by expiry ASC, strike ASC, option type ASC.
func SortVolatility(points []domain.VolatilityPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		a, b := points[i], points[j]
		if !a.ExpiryDate.Equal(b.ExpiryDate) {
			return a.ExpiryDate.Before(b.ExpiryDate)
		}
		if a.Strike != b.Strike {
			return a.Strike < b.Strike
		}
		return a.OptionType < b.OptionType
	})
}
