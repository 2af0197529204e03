package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/observability"
	"positioning-lab/internal/storage"
)

// ErrNoReports is returned when the store holds no position reports.
var ErrNoReports = errors.New("no position reports available")

// Analyzer loads raw reports from a store and runs the engine over them.
type Analyzer struct {
	store  storage.PositionReportStore
	engine *Engine
}

// NewAnalyzer creates a store-backed analyzer.
func NewAnalyzer(store storage.PositionReportStore, engine *Engine) *Analyzer {
	return &Analyzer{store: store, engine: engine}
}

// Engine returns the underlying engine.
func (a *Analyzer) Engine() *Engine {
	return a.engine
}

// Analysis is one engine pass over every stored report.
type Analysis struct {
	Records []domain.PositionRecord // engine output, store order
	Latest  []domain.PositionRecord // latest row per instrument, by instrument ID
	Summary Summary                 // alert counts over Latest
}

// Analyze computes derived metrics for all stored reports.
// Returns ErrNoReports if the store is empty.
func (a *Analyzer) Analyze(ctx context.Context) (*Analysis, error) {
	raw, err := a.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load position reports: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNoReports
	}

	records := a.run(raw)
	latest := LatestPerInstrument(records)
	summary := Summarize(latest)
	observability.SetCurrentAlerts(summary.Overbought, summary.Oversold, summary.Neutral)

	return &Analysis{
		Records: records,
		Latest:  latest,
		Summary: summary,
	}, nil
}

// Series computes derived metrics for one instrument, date ascending.
// Ranks only depend on the same instrument, so this matches Analyze for that instrument.
func (a *Analyzer) Series(ctx context.Context, instrumentID string) ([]domain.PositionRecord, error) {
	raw, err := a.store.GetByInstrument(ctx, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("load %s reports: %w", instrumentID, err)
	}
	if len(raw) == 0 {
		return nil, storage.ErrNotFound
	}
	return a.run(raw), nil
}

// Instruments lists stored instrument IDs.
func (a *Analyzer) Instruments(ctx context.Context) ([]string, error) {
	return a.store.ListInstruments(ctx)
}

func (a *Analyzer) run(raw []domain.PositionRecord) []domain.PositionRecord {
	start := time.Now()
	out := a.engine.Run(raw)
	observability.RecordEngineRun(len(out), time.Since(start))
	return out
}
