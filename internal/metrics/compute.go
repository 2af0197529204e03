package metrics

import (
	"math"
	"sort"
	"time"

	"positioning-lab/internal/domain"
)

// ComputeRatios fills NetPosition and NetPositionRatio for every record.
// Missing inputs, zero open interest and non-finite results yield nil ratios.
// Returns a new slice in input order; the input is not modified.
func ComputeRatios(records []domain.PositionRecord) []domain.PositionRecord {
	out := make([]domain.PositionRecord, len(records))
	for i, r := range records {
		r.NetPosition = computeNetPosition(r.LongPositions, r.ShortPositions)
		r.NetPositionRatio = computeRatio(r.NetPosition, r.OpenInterest)
		out[i] = r
	}
	return out
}

func computeNetPosition(long, short *float64) *float64 {
	if long == nil || short == nil {
		return nil
	}
	return finite(*long - *short)
}

// computeRatio returns net / oi * 100, or nil when undefined.
func computeRatio(net, oi *float64) *float64 {
	if net == nil || oi == nil || *oi == 0 {
		return nil
	}
	return finite(*net / *oi * 100)
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ComputePercentileRanks fills PercentileRank using a trailing window of
// [report_date - window, report_date) within each instrument.
// Records sharing a report date never see each other.
// Returns a new slice in input order.
func ComputePercentileRanks(records []domain.PositionRecord, window time.Duration) []domain.PositionRecord {
	out := cloneRecords(records)
	for _, idx := range groupByInstrument(out) {
		rankGroup(out, idx, window)
	}
	return out
}

// rankGroup ranks one instrument's records. idx holds positions in recs sorted by date.
// Window values are kept in a sorted slice; pointers lo and hi bound the window in idx.
func rankGroup(recs []domain.PositionRecord, idx []int, window time.Duration) {
	var (
		sorted []float64
		lo, hi int
	)
	for _, i := range idx {
		current := recs[i].ReportDate
		start := current.Add(-window)

		for hi < len(idx) && recs[idx[hi]].ReportDate.Before(current) {
			if v := recs[idx[hi]].NetPositionRatio; v != nil {
				sorted = insertSorted(sorted, *v)
			}
			hi++
		}
		for lo < hi && recs[idx[lo]].ReportDate.Before(start) {
			if v := recs[idx[lo]].NetPositionRatio; v != nil {
				sorted = removeSorted(sorted, *v)
			}
			lo++
		}

		recs[i].PercentileRank = weakPercentile(sorted, recs[i].NetPositionRatio)
	}
}

// weakPercentile returns 100 * count(v <= current) / len(sorted).
// Nil when history is empty or current is nil.
func weakPercentile(sorted []float64, current *float64) *float64 {
	if len(sorted) == 0 || current == nil {
		return nil
	}
	c := *current
	le := sort.Search(len(sorted), func(k int) bool { return sorted[k] > c })
	rank := 100 * float64(le) / float64(len(sorted))
	return &rank
}

func insertSorted(s []float64, v float64) []float64 {
	k := sort.SearchFloat64s(s, v)
	s = append(s, 0)
	copy(s[k+1:], s[k:])
	s[k] = v
	return s
}

func removeSorted(s []float64, v float64) []float64 {
	k := sort.SearchFloat64s(s, v)
	if k == len(s) || s[k] != v {
		return s
	}
	return append(s[:k], s[k+1:]...)
}

// ClassifyAlert maps a percentile rank onto an alert state.
// Overbought wins when both thresholds match. Nil rank is Neutral.
func ClassifyAlert(rank *float64, t domain.Thresholds) domain.AlertState {
	switch {
	case rank == nil:
		return domain.AlertNeutral
	case *rank >= t.Overbought:
		return domain.AlertOverbought
	case *rank <= t.Oversold:
		return domain.AlertOversold
	default:
		return domain.AlertNeutral
	}
}

// ComputeTrend compares each ratio with the prior report of the same instrument.
// The first report and any comparison involving nil are Flat.
func ComputeTrend(records []domain.PositionRecord) []domain.PositionRecord {
	out := cloneRecords(records)
	for _, idx := range groupByInstrument(out) {
		trendGroup(out, idx)
	}
	return out
}

func trendGroup(recs []domain.PositionRecord, idx []int) {
	var prev *float64
	for n, i := range idx {
		cur := recs[i].NetPositionRatio
		recs[i].Trend = domain.TrendFlat
		if n > 0 && cur != nil && prev != nil {
			switch {
			case *cur > *prev:
				recs[i].Trend = domain.TrendUp
			case *cur < *prev:
				recs[i].Trend = domain.TrendDown
			}
		}
		prev = cur
	}
}

// LatestPerInstrument returns the record with the latest report date per instrument,
// ordered by instrument ID. Ties keep the record that appears last in input order.
func LatestPerInstrument(records []domain.PositionRecord) []domain.PositionRecord {
	latest := make(map[string]domain.PositionRecord)
	for _, r := range records {
		if cur, ok := latest[r.InstrumentID]; ok && r.ReportDate.Before(cur.ReportDate) {
			continue
		}
		latest[r.InstrumentID] = r
	}

	out := make([]domain.PositionRecord, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].InstrumentID < out[j].InstrumentID
	})
	return out
}

// Band is a pair of static percentile levels for charting.
type Band struct {
	Lower float64
	Upper float64
}

// Bands computes lower/upper percentile levels (0..100) of values with linear
// interpolation between closest ranks. Returns false when values is empty.
func Bands(values []float64, lowerPct, upperPct float64) (Band, bool) {
	if len(values) == 0 {
		return Band{}, false
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return Band{
		Lower: computePercentile(sorted, lowerPct/100),
		Upper: computePercentile(sorted, upperPct/100),
	}, true
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
// p is percentile (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// Summary counts alert states.
type Summary struct {
	Total      int `json:"total"`
	Overbought int `json:"overbought"`
	Oversold   int `json:"oversold"`
	Neutral    int `json:"neutral"`
	Unranked   int `json:"unranked"` // nil percentile rank
}

// Summarize counts alert states over records.
func Summarize(records []domain.PositionRecord) Summary {
	s := Summary{Total: len(records)}
	for _, r := range records {
		switch r.Alert {
		case domain.AlertOverbought:
			s.Overbought++
		case domain.AlertOversold:
			s.Oversold++
		default:
			s.Neutral++
		}
		if r.PercentileRank == nil {
			s.Unranked++
		}
	}
	return s
}

func cloneRecords(records []domain.PositionRecord) []domain.PositionRecord {
	out := make([]domain.PositionRecord, len(records))
	copy(out, records)
	return out
}

// groupByInstrument returns record positions per instrument, each sorted by
// ReportDate ASC (stable, so input order breaks ties).
func groupByInstrument(records []domain.PositionRecord) map[string][]int {
	groups := make(map[string][]int)
	for i, r := range records {
		groups[r.InstrumentID] = append(groups[r.InstrumentID], i)
	}
	for _, idx := range groups {
		sort.SliceStable(idx, func(a, b int) bool {
			return records[idx[a]].ReportDate.Before(records[idx[b]].ReportDate)
		})
	}
	return groups
}
