package dashboard

import (
	"errors"
	"net/http"
	"time"

	"positioning-lab/internal/commentary"
	"positioning-lab/internal/domain"
	"positioning-lab/internal/metrics"
	"positioning-lab/internal/openrouter"
	"positioning-lab/internal/reporting"
	"positioning-lab/internal/storage"
)

// PositionRow is the JSON form of one engine row. Nil values encode as null.
type PositionRow struct {
	InstrumentID     string   `json:"instrument_id"`
	ReportDate       string   `json:"report_date"`
	NetPositionRatio *float64 `json:"net_position_ratio"`
	PercentileRank   *float64 `json:"percentile_rank"`
	Alert            string   `json:"alert"`
	Trend            string   `json:"trend"`
}

// LatestResponse is the body of GET /api/cot/latest.
type LatestResponse struct {
	GeneratedAt  time.Time       `json:"generated_at"`
	CurrentSince string          `json:"current_since"`
	Summary      metrics.Summary `json:"summary"`
	Rows         []PositionRow   `json:"rows"`
}

// SeriesResponse is the chart data of one instrument over the trailing window.
type SeriesResponse struct {
	InstrumentID string     `json:"instrument_id"`
	WindowDays   float64    `json:"window_days"`
	Overbought   float64    `json:"overbought"`
	Oversold     float64    `json:"oversold"`
	Dates        []string   `json:"dates"`
	Ratios       []*float64 `json:"ratios"`
	Ranks        []*float64 `json:"ranks"`
	Band         *bandJSON  `json:"band"`
}

type bandJSON struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// TextResponse carries AI generated text.
type TextResponse struct {
	Text string `json:"text"`
}

func toRow(r reporting.AlertRow) PositionRow {
	return PositionRow{
		InstrumentID:     r.InstrumentID,
		ReportDate:       r.ReportDate.Format(domain.DateLayout),
		NetPositionRatio: r.NetPositionRatio,
		PercentileRank:   r.PercentileRank,
		Alert:            string(r.Alert),
		Trend:            string(r.Trend),
	}
}

type cotView struct {
	Title             string
	Report            *reporting.Report
	Instruments       []string
	Selected          string
	CommentaryEnabled bool
}

func (s *Server) handleCOTPage(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Reports.Generate(r.Context())
	if errors.Is(err, metrics.ErrNoReports) {
		s.render(w, r, "cot.html", cotView{Title: "COT Managed Money Dashboard"})
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("generate report")
		s.renderError(w, r, http.StatusInternalServerError, "could not build the positioning report")
		return
	}

	instruments := make([]string, 0, len(report.Latest))
	for _, row := range report.Latest {
		instruments = append(instruments, row.InstrumentID)
	}
	selected := r.URL.Query().Get("instrument")
	if selected == "" && len(instruments) > 0 {
		selected = instruments[0]
	}

	s.render(w, r, "cot.html", cotView{
		Title:             "COT Managed Money Dashboard",
		Report:            report,
		Instruments:       instruments,
		Selected:          selected,
		CommentaryEnabled: s.deps.Commentary != nil,
	})
}

func (s *Server) handleCOTLatest(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Reports.Generate(r.Context())
	if errors.Is(err, metrics.ErrNoReports) {
		writeError(w, r, http.StatusNotFound, "no position reports ingested yet")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("generate report")
		writeError(w, r, http.StatusInternalServerError, "could not build the positioning report")
		return
	}

	rows := make([]PositionRow, 0, len(report.Latest))
	for _, row := range report.Latest {
		rows = append(rows, toRow(row))
	}
	writeJSON(w, http.StatusOK, LatestResponse{
		GeneratedAt:  report.GeneratedAt,
		CurrentSince: report.CurrentSince.Format(domain.DateLayout),
		Summary:      report.Summary,
		Rows:         rows,
	})
}

func (s *Server) handleCOTSeries(w http.ResponseWriter, r *http.Request) {
	instrument := r.URL.Query().Get("instrument")
	if instrument == "" {
		writeError(w, r, http.StatusBadRequest, "instrument is required")
		return
	}

	series, err := s.deps.Series.Series(r.Context(), instrument)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "unknown instrument")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("instrument", instrument).Msg("compute series")
		writeError(w, r, http.StatusInternalServerError, "could not compute series")
		return
	}

	writeJSON(w, http.StatusOK, buildSeries(instrument, series, s.cfg.Engine))
}

// buildSeries keeps rows within the trailing window ending at the latest report date
// and computes static p10/p90 bands of the ratios in that window.
func buildSeries(instrument string, series []domain.PositionRecord, cfg metrics.Config) SeriesResponse {
	resp := SeriesResponse{
		InstrumentID: instrument,
		WindowDays:   cfg.TrailingWindowDays,
		Overbought:   cfg.Thresholds.Overbought,
		Oversold:     cfg.Thresholds.Oversold,
		Dates:        []string{},
		Ratios:       []*float64{},
		Ranks:        []*float64{},
	}
	if len(series) == 0 {
		return resp
	}

	end := series[len(series)-1].ReportDate
	start := end.Add(-cfg.Window())
	var values []float64
	for _, rec := range series {
		if rec.ReportDate.Before(start) {
			continue
		}
		resp.Dates = append(resp.Dates, rec.ReportDate.Format(domain.DateLayout))
		resp.Ratios = append(resp.Ratios, rec.NetPositionRatio)
		resp.Ranks = append(resp.Ranks, rec.PercentileRank)
		if rec.NetPositionRatio != nil {
			values = append(values, *rec.NetPositionRatio)
		}
	}

	if band, ok := metrics.Bands(values, cfg.Thresholds.Oversold, cfg.Thresholds.Overbought); ok {
		resp.Band = &bandJSON{Lower: band.Lower, Upper: band.Upper}
	}
	return resp
}

func (s *Server) handleCOTCommentary(w http.ResponseWriter, r *http.Request) {
	if s.deps.Commentary == nil {
		writeError(w, r, http.StatusServiceUnavailable, "AI commentary is not configured")
		return
	}
	instrument := r.URL.Query().Get("instrument")
	if instrument == "" {
		writeError(w, r, http.StatusBadRequest, "instrument is required")
		return
	}

	series, err := s.deps.Series.Series(r.Context(), instrument)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "unknown instrument")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("instrument", instrument).Msg("compute series")
		writeError(w, r, http.StatusInternalServerError, "could not compute series")
		return
	}

	text, err := s.deps.Commentary.PositioningCommentary(r.Context(), instrument, series)
	if err != nil {
		s.writeAIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TextResponse{Text: text})
}

// writeAIError maps commentary failures to HTTP statuses.
func (s *Server) writeAIError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *openrouter.APIError
	switch {
	case errors.Is(err, commentary.ErrNoData):
		writeError(w, r, http.StatusNotFound, "no data to analyze")
	case errors.Is(err, openrouter.ErrNoAPIKey):
		writeError(w, r, http.StatusServiceUnavailable, "AI commentary is not configured")
	case errors.As(err, &apiErr):
		s.log.Warn().Err(err).Int("upstream_status", apiErr.StatusCode).Msg("ai call failed")
		writeError(w, r, http.StatusBadGateway, "Analysis failed: "+apiErr.Message)
	default:
		s.log.Warn().Err(err).Msg("ai call failed")
		writeError(w, r, http.StatusBadGateway, "Analysis failed")
	}
}
