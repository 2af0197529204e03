package reporting

import (
	"fmt"

	"positioning-lab/internal/domain"
)

// AlertLabel returns the traffic light label for an alert state.
func AlertLabel(a domain.AlertState) string {
	switch a {
	case domain.AlertOverbought:
		return "Red: Overbought"
	case domain.AlertOversold:
		return "Green: Oversold"
	default:
		return "Gray: Neutral"
	}
}

// TrendSymbol returns an arrow for a trend.
func TrendSymbol(t domain.Trend) string {
	switch t {
	case domain.TrendUp:
		return "▲"
	case domain.TrendDown:
		return "▼"
	default:
		return "-"
	}
}

// FormatRatio formats a net position ratio with one decimal, or missing when nil.
func FormatRatio(v *float64, missing string) string {
	if v == nil {
		return missing
	}
	return fmt.Sprintf("%.1f%%", *v)
}

// FormatRank formats a percentile rank with no decimals, or missing when nil.
func FormatRank(v *float64, missing string) string {
	if v == nil {
		return missing
	}
	return fmt.Sprintf("%.0f%%", *v)
}
