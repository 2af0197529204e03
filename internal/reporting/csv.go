package reporting

import (
	"strconv"
	"strings"

	"positioning-lab/internal/domain"
)

// RenderCSV renders engine output as CSV string. Nil values are empty cells.
func RenderCSV(records []domain.PositionRecord) string {
	var sb strings.Builder

	// Header
	sb.WriteString("instrument_id,report_date,long,short,open_interest,")
	sb.WriteString("net_position,net_position_ratio,percentile_rank,alert,trend\n")

	// Rows
	for _, r := range records {
		fields := []string{
			csvField(r.InstrumentID),
			r.ReportDate.Format(domain.DateLayout),
			formatOptional(r.LongPositions),
			formatOptional(r.ShortPositions),
			formatOptional(r.OpenInterest),
			formatOptional(r.NetPosition),
			formatOptional(r.NetPositionRatio),
			formatOptional(r.PercentileRank),
			string(r.Alert),
			string(r.Trend),
		}
		sb.WriteString(strings.Join(fields, ","))
		sb.WriteString("\n")
	}

	return sb.String()
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// csvField quotes s when it contains a separator, quote or newline.
func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
