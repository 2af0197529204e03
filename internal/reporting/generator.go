package reporting

import (
	"context"
	"time"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/metrics"
	"positioning-lab/internal/observability"
	"positioning-lab/internal/storage"
)

// DefaultCurrentYearsBack keeps rows from Jan 1 of last year onwards in the alert panel.
const DefaultCurrentYearsBack = 1

// Generator produces alert reports from stored position reports.
type Generator struct {
	analyzer         *metrics.Analyzer
	currentYearsBack int
	now              func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
// currentYearsBack <= 0 uses DefaultCurrentYearsBack.
func NewGenerator(analyzer *metrics.Analyzer, currentYearsBack int) *Generator {
	if currentYearsBack <= 0 {
		currentYearsBack = DefaultCurrentYearsBack
	}
	return &Generator{
		analyzer:         analyzer,
		currentYearsBack: currentYearsBack,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// CurrentSince returns Jan 1 of (now.Year - currentYearsBack), UTC.
func (g *Generator) CurrentSince() time.Time {
	return time.Date(g.now().Year()-g.currentYearsBack, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// Generate runs the engine over every stored report and builds the alert report.
// Returns metrics.ErrNoReports if nothing has been ingested.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	analysis, err := g.analyzer.Analyze(ctx)
	if err != nil {
		return nil, err
	}

	since := g.CurrentSince()
	current := make([]domain.PositionRecord, 0, len(analysis.Records))
	for _, r := range analysis.Records {
		if !r.ReportDate.Before(since) {
			current = append(current, r)
		}
	}
	latest := metrics.LatestPerInstrument(current)

	rows := make([]AlertRow, 0, len(latest))
	for _, r := range latest {
		rows = append(rows, NewAlertRow(r))
	}
	SortRows(rows)

	alerts := make([]AlertRow, 0)
	for _, r := range rows {
		if r.Alert != domain.AlertNeutral {
			alerts = append(alerts, r)
		}
	}

	records := make([]domain.PositionRecord, len(analysis.Records))
	copy(records, analysis.Records)
	storage.SortPositions(records)

	cfg := g.analyzer.Engine().Config()
	observability.RecordReportGenerated()

	return &Report{
		GeneratedAt:  g.now(),
		WindowYears:  cfg.TrailingWindowDays / metrics.DaysPerYear,
		Thresholds:   cfg.Thresholds,
		CurrentSince: since,
		Alerts:       alerts,
		Latest:       rows,
		Summary:      metrics.Summarize(latest),
		Records:      records,
	}, nil
}
