package domain

import "time"

// AlertState classifies a percentile rank against the configured thresholds.
type AlertState string

const (
	AlertOverbought AlertState = "Overbought"
	AlertOversold   AlertState = "Oversold"
	AlertNeutral    AlertState = "Neutral"
)

// Trend is the direction of the net position ratio versus the prior report.
type Trend string

const (
	TrendUp   Trend = "Up"
	TrendDown Trend = "Down"
	TrendFlat Trend = "Flat" // equal, or either side unknown
)

// PositionRecord is one positioning observation for one instrument at one report date.
// Raw fields come from ingestion; derived fields are filled only by the metrics engine.
// Nil pointers mean "missing or undefined", never zero.
type PositionRecord struct {
	InstrumentID   string    // CFTC market and exchange name
	ReportDate     time.Time // UTC calendar date
	LongPositions  *float64  // trader category long contracts
	ShortPositions *float64  // trader category short contracts
	OpenInterest   *float64  // total open interest, may be zero

	// Derived
	NetPosition      *float64   // long - short
	NetPositionRatio *float64   // net / open interest * 100
	PercentileRank   *float64   // 0..100 weak rank within trailing window
	Alert            AlertState // classification of PercentileRank
	Trend            Trend      // ratio vs prior report
}

// Key identifies a record within its instrument series.
func (r PositionRecord) Key() string {
	return r.InstrumentID + "|" + r.ReportDate.Format(DateLayout)
}

// Raw returns a copy of the record with derived fields cleared.
func (r PositionRecord) Raw() PositionRecord {
	return PositionRecord{
		InstrumentID:   r.InstrumentID,
		ReportDate:     r.ReportDate,
		LongPositions:  r.LongPositions,
		ShortPositions: r.ShortPositions,
		OpenInterest:   r.OpenInterest,
	}
}

// Thresholds are alert boundaries in percentile units.
type Thresholds struct {
	Overbought float64 // rank >= Overbought
	Oversold   float64 // rank <= Oversold
}

// DefaultThresholds returns the 90/10 alert thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Overbought: 90, Oversold: 10}
}

// DateLayout is the report date wire format.
const DateLayout = "2006-01-02"

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
