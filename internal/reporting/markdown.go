package reporting

import (
	"fmt"
	"strings"
	"time"

	"positioning-lab/internal/domain"
)

const notAvailable = "n/a"

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Managed Money Positioning Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Window: %.2f years | Overbought >= %.0f | Oversold <= %.0f | Current since %s\n\n",
		r.WindowYears, r.Thresholds.Overbought, r.Thresholds.Oversold, r.CurrentSince.Format(domain.DateLayout)))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Instruments | %d |\n", r.Summary.Total))
	sb.WriteString(fmt.Sprintf("| Overbought | %d |\n", r.Summary.Overbought))
	sb.WriteString(fmt.Sprintf("| Oversold | %d |\n", r.Summary.Oversold))
	sb.WriteString(fmt.Sprintf("| Neutral | %d |\n", r.Summary.Neutral))
	sb.WriteString(fmt.Sprintf("| Insufficient history | %d |\n", r.Summary.Unranked))
	sb.WriteString("\n")

	// Alert panel
	sb.WriteString("## Traffic Light Alert Panel\n\n")
	if len(r.Alerts) == 0 {
		sb.WriteString("No extreme alerts at the moment. All markets are currently neutral.\n\n")
	} else {
		writeRows(&sb, r.Alerts)
	}

	// Full table
	sb.WriteString("## Top Alerts Table\n\n")
	if len(r.Latest) == 0 {
		sb.WriteString("No current data.\n\n")
	} else {
		writeRows(&sb, r.Latest)
	}

	return sb.String()
}

func writeRows(sb *strings.Builder, rows []AlertRow) {
	sb.WriteString("| Commodity | Report Date | Net Pos %OI | Percentile | Alert | Trend |\n")
	sb.WriteString("|-----------|-------------|-------------|------------|-------|-------|\n")
	for _, row := range rows {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
			row.InstrumentID,
			row.ReportDate.Format(domain.DateLayout),
			FormatRatio(row.NetPositionRatio, notAvailable),
			FormatRank(row.PercentileRank, notAvailable),
			AlertLabel(row.Alert),
			TrendSymbol(row.Trend),
		))
	}
	sb.WriteString("\n")
}
