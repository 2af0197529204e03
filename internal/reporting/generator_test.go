package reporting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/metrics"
	"positioning-lab/internal/storage/memory"
)

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func weekly(id string, start time.Time, nets ...float64) []domain.PositionRecord {
	out := make([]domain.PositionRecord, 0, len(nets))
	for i, n := range nets {
		out = append(out, domain.PositionRecord{
			InstrumentID:   id,
			ReportDate:     start.AddDate(0, 0, 7*i),
			LongPositions:  domain.Float(n),
			ShortPositions: domain.Float(0),
			OpenInterest:   domain.Float(100),
		})
	}
	return out
}

func setupGenerator(t *testing.T, records []domain.PositionRecord) *Generator {
	t.Helper()
	store := memory.NewPositionReportStore()
	if err := store.UpsertBulk(context.Background(), records); err != nil {
		t.Fatalf("UpsertBulk failed: %v", err)
	}
	engine, err := metrics.NewEngine(metrics.DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return NewGenerator(metrics.NewAnalyzer(store, engine), 1).
		WithClock(func() time.Time { return fixedNow })
}

func setupTestData() []domain.PositionRecord {
	start := time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)
	var recs []domain.PositionRecord
	recs = append(recs, weekly("GOLD - COMMODITY EXCHANGE INC.", start, 10, 20, 30, 40)...)        // rising, Overbought
	recs = append(recs, weekly("CORN - CHICAGO BOARD OF TRADE", start, 40, 30, 20, 10)...)         // falling, Oversold
	recs = append(recs, weekly("COFFEE C - ICE FUTURES U.S.", start, 10, 40, 30, 20)...)           // middle, Neutral
	recs = append(recs, weekly("SILVER - COMMODITY EXCHANGE INC.", start.AddDate(-3, 0, 0), 5)...) // stale
	return recs
}

func TestGenerate_Basic(t *testing.T) {
	gen := setupGenerator(t, setupTestData())

	report, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !report.GeneratedAt.Equal(fixedNow) {
		t.Errorf("GeneratedAt = %v, want %v", report.GeneratedAt, fixedNow)
	}
	if report.WindowYears != 3 {
		t.Errorf("WindowYears = %v, want 3", report.WindowYears)
	}
	wantSince := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !report.CurrentSince.Equal(wantSince) {
		t.Errorf("CurrentSince = %v, want %v", report.CurrentSince, wantSince)
	}

	// Stale instrument excluded from the current view but kept in the full output.
	if len(report.Latest) != 3 {
		t.Fatalf("expected 3 latest rows, got %d", len(report.Latest))
	}
	if len(report.Records) != 13 {
		t.Errorf("expected 13 records, got %d", len(report.Records))
	}

	wantOrder := []string{
		"CORN - CHICAGO BOARD OF TRADE",
		"GOLD - COMMODITY EXCHANGE INC.",
		"COFFEE C - ICE FUTURES U.S.",
	}
	for i, id := range wantOrder {
		if report.Latest[i].InstrumentID != id {
			t.Errorf("Latest[%d] = %s, want %s", i, report.Latest[i].InstrumentID, id)
		}
	}

	if len(report.Alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(report.Alerts))
	}
	if report.Alerts[0].Alert != domain.AlertOversold || report.Alerts[1].Alert != domain.AlertOverbought {
		t.Errorf("unexpected alert order: %s, %s", report.Alerts[0].Alert, report.Alerts[1].Alert)
	}

	want := metrics.Summary{Total: 3, Overbought: 1, Oversold: 1, Neutral: 1}
	if report.Summary != want {
		t.Errorf("Summary = %+v, want %+v", report.Summary, want)
	}
}

func TestGenerate_NoReports(t *testing.T) {
	gen := setupGenerator(t, nil)
	if _, err := gen.Generate(context.Background()); !errors.Is(err, metrics.ErrNoReports) {
		t.Fatalf("expected ErrNoReports, got %v", err)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	gen := setupGenerator(t, setupTestData())

	var first string
	for i := 0; i < 5; i++ {
		report, err := gen.Generate(context.Background())
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		md := RenderMarkdown(report)
		if i == 0 {
			first = md
			continue
		}
		if md != first {
			t.Fatalf("run %d produced different markdown", i)
		}
	}
}

func TestRenderMarkdown(t *testing.T) {
	gen := setupGenerator(t, setupTestData())
	report, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	md := RenderMarkdown(report)
	for _, want := range []string{
		"## Traffic Light Alert Panel",
		"## Top Alerts Table",
		"| CORN - CHICAGO BOARD OF TRADE | 2024-11-26 | 10.0% | 0% | Green: Oversold | ▼ |",
		"| GOLD - COMMODITY EXCHANGE INC. | 2024-11-26 | 40.0% | 100% | Red: Overbought | ▲ |",
		"| Oversold | 1 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
	if strings.Contains(md, "SILVER") {
		t.Error("stale instrument should not be rendered")
	}
}

func TestRenderMarkdown_MissingValues(t *testing.T) {
	report := &Report{
		GeneratedAt: fixedNow,
		Thresholds:  domain.DefaultThresholds(),
		Latest: []AlertRow{{
			InstrumentID: "COCOA - ICE FUTURES U.S.",
			ReportDate:   fixedNow,
			Alert:        domain.AlertNeutral,
			Trend:        domain.TrendFlat,
		}},
		Summary: metrics.Summary{Total: 1, Neutral: 1, Unranked: 1},
	}

	md := RenderMarkdown(report)
	if !strings.Contains(md, "| COCOA - ICE FUTURES U.S. | 2025-03-10 | n/a | n/a | Gray: Neutral | - |") {
		t.Errorf("expected n/a row, got:\n%s", md)
	}
	if !strings.Contains(md, "All markets are currently neutral") {
		t.Error("expected neutral notice")
	}
}

func TestRenderCSV(t *testing.T) {
	records := []domain.PositionRecord{
		{
			InstrumentID:   "WHEAT, SRW",
			ReportDate:     time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			LongPositions:  domain.Float(10),
			ShortPositions: domain.Float(4),
			OpenInterest:   domain.Float(0),
			NetPosition:    domain.Float(6),
			Alert:          domain.AlertNeutral,
			Trend:          domain.TrendFlat,
		},
		{
			InstrumentID:     "GOLD",
			ReportDate:       time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC),
			LongPositions:    domain.Float(30),
			ShortPositions:   domain.Float(5),
			OpenInterest:     domain.Float(100),
			NetPosition:      domain.Float(25),
			NetPositionRatio: domain.Float(25),
			PercentileRank:   domain.Float(66.5),
			Alert:            domain.AlertNeutral,
			Trend:            domain.TrendUp,
		},
	}

	got := RenderCSV(records)
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "instrument_id,report_date,long,short,open_interest,net_position,net_position_ratio,percentile_rank,alert,trend" {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if lines[1] != `"WHEAT, SRW",2024-01-02,10,4,0,6,,,Neutral,Flat` {
		t.Errorf("unexpected row 1: %s", lines[1])
	}
	if lines[2] != "GOLD,2024-01-09,30,5,100,25,25,66.5,Neutral,Up" {
		t.Errorf("unexpected row 2: %s", lines[2])
	}
}

func TestSortRows(t *testing.T) {
	rows := []AlertRow{
		{InstrumentID: "B", Alert: domain.AlertNeutral},
		{InstrumentID: "C", Alert: domain.AlertOverbought},
		{InstrumentID: "A", Alert: domain.AlertNeutral},
		{InstrumentID: "D", Alert: domain.AlertOversold},
		{InstrumentID: "A", Alert: domain.AlertOverbought},
	}
	SortRows(rows)

	want := []string{"D", "A", "C", "A", "B"}
	for i, id := range want {
		if rows[i].InstrumentID != id {
			t.Errorf("rows[%d] = %s, want %s", i, rows[i].InstrumentID, id)
		}
	}
}
