package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want *float64
	}{
		{"int", 42, Float(42)},
		{"float", 1.5, Float(1.5)},
		{"string", " 1234 ", Float(1234)},
		{"thousands separator", "12,345", nil},
		{"decimal comma", "1,5", nil},
		{"json number", json.Number("7.25"), Float(7.25)},
		{"empty", "", nil},
		{"dot placeholder", ".", nil},
		{"text", "n/a", nil},
		{"nil", nil, nil},
		{"nan", math.NaN(), nil},
		{"inf", math.Inf(1), nil},
		{"nil pointer", (*float64)(nil), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseNumeric(tt.in)
			if tt.want == nil {
				if got != nil || ok {
					t.Fatalf("expected nil, got %v (ok=%v)", got, ok)
				}
				return
			}
			if !ok || got == nil {
				t.Fatalf("expected %v, got nil", *tt.want)
			}
			if *got != *tt.want {
				t.Errorf("expected %v, got %v", *tt.want, *got)
			}
		})
	}
}

func TestParseReportDate(t *testing.T) {
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	for _, in := range []any{"2024-03-05", "2024-03-05T18:30:00Z", want.Add(15 * time.Hour)} {
		got, err := ParseReportDate(in)
		if err != nil {
			t.Fatalf("parse %v: %v", in, err)
		}
		if !got.Equal(want) {
			t.Errorf("parse %v: expected %v, got %v", in, want, got)
		}
	}

	if _, err := ParseReportDate("not a date"); err == nil {
		t.Error("expected error for garbage date")
	}
}

func TestRawPositionRow_ToRecord(t *testing.T) {
	row := RawPositionRow{
		InstrumentID:   "GOLD - COMMODITY EXCHANGE INC.",
		ReportDate:     "2024-01-02",
		LongPositions:  "150000",
		ShortPositions: "abc",
		OpenInterest:   500000,
	}

	rec, invalid, err := row.ToRecord()
	if err != nil {
		t.Fatalf("ToRecord: %v", err)
	}
	if rec.LongPositions == nil || *rec.LongPositions != 150000 {
		t.Errorf("unexpected long positions: %v", rec.LongPositions)
	}
	if rec.ShortPositions != nil {
		t.Errorf("expected nil short positions, got %v", *rec.ShortPositions)
	}
	if len(invalid) != 1 || invalid[0] != "short_positions" {
		t.Errorf("expected short_positions flagged, got %v", invalid)
	}

	if _, _, err := (RawPositionRow{ReportDate: "2024-01-02"}).ToRecord(); err == nil {
		t.Error("expected error for empty instrument")
	}
}
