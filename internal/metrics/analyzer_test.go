package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/storage"
	"positioning-lab/internal/storage/memory"
)

func seedStore(t *testing.T, records ...domain.PositionRecord) *memory.PositionReportStore {
	t.Helper()
	store := memory.NewPositionReportStore()
	if err := store.UpsertBulk(context.Background(), records); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

func report(id string, date time.Time, long, short, oi float64) domain.PositionRecord {
	return domain.PositionRecord{
		InstrumentID:   id,
		ReportDate:     date,
		LongPositions:  domain.Float(long),
		ShortPositions: domain.Float(short),
		OpenInterest:   domain.Float(oi),
	}
}

func newTestAnalyzer(t *testing.T, store storage.PositionReportStore) *Analyzer {
	t.Helper()
	engine, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return NewAnalyzer(store, engine)
}

func TestAnalyzer_Analyze(t *testing.T) {
	d0 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	store := seedStore(t,
		report("GOLD", d0, 10, 0, 100),
		report("GOLD", d0.AddDate(0, 0, 7), 20, 0, 100),
		report("GOLD", d0.AddDate(0, 0, 14), 30, 0, 100),
		report("WHEAT", d0, 50, 0, 100),
		report("WHEAT", d0.AddDate(0, 0, 7), 10, 0, 100),
	)
	a := newTestAnalyzer(t, store)

	res, err := a.Analyze(context.Background())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(res.Records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(res.Records))
	}
	if len(res.Latest) != 2 {
		t.Fatalf("expected 2 latest rows, got %d", len(res.Latest))
	}

	gold := res.Latest[0]
	if gold.InstrumentID != "GOLD" || !gold.ReportDate.Equal(d0.AddDate(0, 0, 14)) {
		t.Fatalf("unexpected latest gold row: %+v", gold)
	}
	if gold.PercentileRank == nil || *gold.PercentileRank != 100 {
		t.Errorf("expected gold rank 100, got %v", gold.PercentileRank)
	}
	if gold.Alert != domain.AlertOverbought || gold.Trend != domain.TrendUp {
		t.Errorf("expected Overbought/Up, got %s/%s", gold.Alert, gold.Trend)
	}

	wheat := res.Latest[1]
	if wheat.PercentileRank == nil || *wheat.PercentileRank != 0 {
		t.Errorf("expected wheat rank 0, got %v", wheat.PercentileRank)
	}
	if wheat.Alert != domain.AlertOversold || wheat.Trend != domain.TrendDown {
		t.Errorf("expected Oversold/Down, got %s/%s", wheat.Alert, wheat.Trend)
	}

	want := Summary{Total: 2, Overbought: 1, Oversold: 1}
	if res.Summary != want {
		t.Errorf("expected summary %+v, got %+v", want, res.Summary)
	}
}

func TestAnalyzer_AnalyzeEmpty(t *testing.T) {
	a := newTestAnalyzer(t, memory.NewPositionReportStore())
	if _, err := a.Analyze(context.Background()); !errors.Is(err, ErrNoReports) {
		t.Fatalf("expected ErrNoReports, got %v", err)
	}
}

func TestAnalyzer_SeriesMatchesAnalyze(t *testing.T) {
	d0 := time.Date(2023, 6, 6, 0, 0, 0, 0, time.UTC)
	var recs []domain.PositionRecord
	for i := 0; i < 20; i++ {
		recs = append(recs,
			report("A", d0.AddDate(0, 0, 7*i), float64(i%7), 3, 50),
			report("B", d0.AddDate(0, 0, 7*i), float64(i%3), 1, 10),
		)
	}
	a := newTestAnalyzer(t, seedStore(t, recs...))

	full, err := a.Analyze(context.Background())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	series, err := a.Series(context.Background(), "A")
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	if len(series) != 20 {
		t.Fatalf("expected 20 rows, got %d", len(series))
	}

	byKey := make(map[string]domain.PositionRecord)
	for _, r := range full.Records {
		byKey[r.Key()] = r
	}
	for _, r := range series {
		want := byKey[r.Key()]
		if !equalPtr(r.PercentileRank, want.PercentileRank) || r.Alert != want.Alert || r.Trend != want.Trend {
			t.Errorf("%s: series %v/%s/%s, analyze %v/%s/%s", r.Key(),
				r.PercentileRank, r.Alert, r.Trend, want.PercentileRank, want.Alert, want.Trend)
		}
	}
}

func TestAnalyzer_SeriesUnknown(t *testing.T) {
	a := newTestAnalyzer(t, memory.NewPositionReportStore())
	if _, err := a.Series(context.Background(), "NOPE"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
