package domain

import (
	"sort"
	"time"
)

// OptionType is the Deribit option kind.
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// VolatilityPoint is one option ticker observation from a collector run.
// Corresponds to volatility_points table in ClickHouse.
type VolatilityPoint struct {
	RunID             string     // uuid shared by all points of one collection run
	CollectedAt       time.Time  // run start, UTC
	InstrumentName    string     // e.g. BTC-27DEC24-60000-C
	ExpiryDate        time.Time  // UTC calendar date of expiry
	ExpiryTimestampMs int64      // exact expiry (ms)
	Strike            float64    // strike price (USD)
	OptionType        OptionType // call or put
	ImpliedVolatility float64    // mark IV in percent, always > 0
	UnderlyingIndex   float64    // BTC index price at run start, 0 if unknown
}

// VolatilityRun groups the points of one collector run.
type VolatilityRun struct {
	RunID       string
	CollectedAt time.Time
	Points      []VolatilityPoint
}

// Expiries returns the distinct expiry dates of the run in ascending order.
func (r VolatilityRun) Expiries() []time.Time {
	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, p := range r.Points {
		if _, ok := seen[p.ExpiryDate]; ok {
			continue
		}
		seen[p.ExpiryDate] = struct{}{}
		out = append(out, p.ExpiryDate)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
