package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// ParseNumeric coerces a raw field into a finite float.
// Empty, non-numeric (including "1,234"), NaN and infinite inputs yield nil and ok=false.
func ParseNumeric(v any) (*float64, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case *float64:
		if x == nil {
			return nil, false
		}
		return ParseNumeric(*x)
	case json.Number:
		v = x.String()
	case string:
		s := strings.TrimSpace(x)
		if s == "" || s == "." {
			return nil, false
		}
		v = s
	}

	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return &f, true
}

// ParseReportDate parses a report date and truncates it to the UTC calendar day.
func ParseReportDate(v any) (time.Time, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if t, err := time.Parse(DateLayout, s); err == nil {
			return t.UTC(), nil
		}
		v = s
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse report date %v: %w", v, err)
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// RawPositionRow is an uncoerced positioning row as it arrives from a source.
type RawPositionRow struct {
	InstrumentID   string
	ReportDate     any
	LongPositions  any
	ShortPositions any
	OpenInterest   any
}

// ToRecord coerces a raw row. Bad numeric fields become nil and are listed in invalid.
// An unparseable date or empty instrument is an error since the row cannot be placed.
func (r RawPositionRow) ToRecord() (rec PositionRecord, invalid []string, err error) {
	id := strings.TrimSpace(r.InstrumentID)
	if id == "" {
		return PositionRecord{}, nil, fmt.Errorf("empty instrument id")
	}
	date, err := ParseReportDate(r.ReportDate)
	if err != nil {
		return PositionRecord{}, nil, err
	}

	rec = PositionRecord{InstrumentID: id, ReportDate: date}

	var ok bool
	if rec.LongPositions, ok = ParseNumeric(r.LongPositions); !ok {
		invalid = append(invalid, "long_positions")
	}
	if rec.ShortPositions, ok = ParseNumeric(r.ShortPositions); !ok {
		invalid = append(invalid, "short_positions")
	}
	if rec.OpenInterest, ok = ParseNumeric(r.OpenInterest); !ok {
		invalid = append(invalid, "open_interest")
	}
	return rec, invalid, nil
}
