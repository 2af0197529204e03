package dashboard

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/reporting"
)

//go:embed templates/*.html
var templateFS embed.FS

const insufficientData = "insufficient data"

var pages = []string{"home.html", "cot.html", "btc.html", "extract.html", "error.html"}

type views struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"ratio":      func(v *float64) string { return reporting.FormatRatio(v, insufficientData) },
	"rank":       func(v *float64) string { return reporting.FormatRank(v, insufficientData) },
	"alertLabel": reporting.AlertLabel,
	"alertClass": alertClass,
	"trend":      reporting.TrendSymbol,
	"trendClass": trendClass,
	"date":       func(t time.Time) string { return t.Format(domain.DateLayout) },
	"num":        func(prec int, v float64) string { return fmt.Sprintf("%.*f", prec, v) },
}

func loadViews() (*views, error) {
	layout, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	v := &views{pages: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		t, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		v.pages[name] = t
	}
	return v, nil
}

// render executes a page into a buffer so template errors never send a partial page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	s.renderStatus(w, r, http.StatusOK, name, data)
}

func (s *Server) renderStatus(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	t, ok := s.views.pages[name]
	if !ok {
		s.log.Error().Str("page", name).Msg("unknown page")
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		s.log.Error().Err(err).Str("page", name).Msg("render page")
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.renderStatus(w, r, status, "error.html", errorView{
		Title:     http.StatusText(status),
		Status:    status,
		Message:   message,
		RequestID: requestIDFrom(r.Context()),
	})
}

func alertClass(a domain.AlertState) string {
	switch a {
	case domain.AlertOverbought:
		return "alert-overbought"
	case domain.AlertOversold:
		return "alert-oversold"
	default:
		return "alert-neutral"
	}
}

func trendClass(t domain.Trend) string {
	switch t {
	case domain.TrendUp:
		return "trend-up"
	case domain.TrendDown:
		return "trend-down"
	default:
		return "trend-flat"
	}
}

type homeView struct {
	Title             string
	ExtractionEnabled bool
}

type errorView struct {
	Title     string
	Status    int
	Message   string
	RequestID string
}
