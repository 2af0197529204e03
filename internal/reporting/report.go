package reporting

import (
	"sort"
	"time"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/metrics"
)

// Report is the positioning alert report.
type Report struct {
	// Metadata
	GeneratedAt  time.Time
	WindowYears  float64 // trailing window in years
	Thresholds   domain.Thresholds
	CurrentSince time.Time // rows before this date are not considered current

	// Alerts holds latest non-neutral rows, in table order.
	Alerts []AlertRow

	// Latest holds the latest row of every current instrument, in table order.
	Latest []AlertRow

	// Summary counts alert states over Latest.
	Summary metrics.Summary

	// Records is the full engine output, instrument then date ascending.
	Records []domain.PositionRecord
}

// AlertRow is one instrument's latest positioning state.
type AlertRow struct {
	InstrumentID     string
	ReportDate       time.Time
	NetPositionRatio *float64
	PercentileRank   *float64
	Alert            domain.AlertState
	Trend            domain.Trend
}

// NewAlertRow projects an engine record onto an alert row.
func NewAlertRow(r domain.PositionRecord) AlertRow {
	return AlertRow{
		InstrumentID:     r.InstrumentID,
		ReportDate:       r.ReportDate,
		NetPositionRatio: r.NetPositionRatio,
		PercentileRank:   r.PercentileRank,
		Alert:            r.Alert,
		Trend:            r.Trend,
	}
}

// alertOrder puts extremes first: Oversold, Overbought, then Neutral.
var alertOrder = map[domain.AlertState]int{
	domain.AlertOversold:   0,
	domain.AlertOverbought: 1,
	domain.AlertNeutral:    2,
}

// SortRows orders rows by alert state, then instrument ID.
func SortRows(rows []AlertRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		oi, oj := alertOrder[rows[i].Alert], alertOrder[rows[j].Alert]
		if oi != oj {
			return oi < oj
		}
		return rows[i].InstrumentID < rows[j].InstrumentID
	})
}
