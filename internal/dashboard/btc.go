package dashboard

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/storage"
)

const (
	defaultExpiryCount = 3
	lastFetchedLayout  = "2006-01-02 15:04:05 (MST)"
)

// PointJSON is one volatility observation.
type PointJSON struct {
	InstrumentName    string  `json:"instrument_name"`
	ExpiryDate        string  `json:"expiry_date"`
	Strike            float64 `json:"strike"`
	OptionType        string  `json:"option_type"`
	ImpliedVolatility float64 `json:"implied_volatility"`
}

// SmileResponse is the body of GET /api/btc/smile.
type SmileResponse struct {
	RunID       string      `json:"run_id"`
	CollectedAt time.Time   `json:"collected_at"`
	IndexPrice  float64     `json:"index_price"`
	Points      []PointJSON `json:"points"`
}

type smileTrace struct {
	Name    string    `json:"name"`
	Strikes []float64 `json:"strikes"`
	IVs     []float64 `json:"ivs"`
}

type option struct {
	Value    string
	Selected bool
}

type btcView struct {
	Title           string
	Empty           bool
	LastFetched     string
	Expiries        []option
	Types           []option
	Traces          []smileTrace
	Points          []domain.VolatilityPoint
	AnalysisEnabled bool
}

func (s *Server) handleBTCPage(w http.ResponseWriter, r *http.Request) {
	view := btcView{
		Title:           "BTC Volatility Smile Dashboard",
		AnalysisEnabled: s.deps.Commentary != nil,
	}

	run, err := s.deps.Volatility.GetLatestRun(r.Context())
	if errors.Is(err, storage.ErrNotFound) {
		view.Empty = true
		s.render(w, r, "btc.html", view)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("load latest volatility run")
		s.renderError(w, r, http.StatusInternalServerError, "could not load volatility data")
		return
	}

	q := r.URL.Query()
	expiries := selectExpiries(run.Expiries(), q["expiry"])
	types := selectTypes(q["type"])
	points := filterPoints(run.Points, expiries, types)

	view.LastFetched = run.CollectedAt.In(s.cfg.Location).Format(lastFetchedLayout)
	view.Expiries = expiryOptions(run.Expiries(), expiries)
	view.Types = []option{
		{Value: string(domain.OptionCall), Selected: types[domain.OptionCall]},
		{Value: string(domain.OptionPut), Selected: types[domain.OptionPut]},
	}
	view.Traces = smileTraces(points)
	view.Points = points
	s.render(w, r, "btc.html", view)
}

func (s *Server) handleBTCSmile(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Volatility.GetLatestRun(r.Context())
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "no volatility data collected yet")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("load latest volatility run")
		writeError(w, r, http.StatusInternalServerError, "could not load volatility data")
		return
	}

	resp := SmileResponse{
		RunID:       run.RunID,
		CollectedAt: run.CollectedAt,
		Points:      make([]PointJSON, 0, len(run.Points)),
	}
	for _, p := range run.Points {
		resp.IndexPrice = p.UnderlyingIndex
		resp.Points = append(resp.Points, PointJSON{
			InstrumentName:    p.InstrumentName,
			ExpiryDate:        p.ExpiryDate.Format(domain.DateLayout),
			Strike:            p.Strike,
			OptionType:        string(p.OptionType),
			ImpliedVolatility: p.ImpliedVolatility,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBTCAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.deps.Commentary == nil {
		writeError(w, r, http.StatusServiceUnavailable, "AI commentary is not configured")
		return
	}
	run, err := s.deps.Volatility.GetLatestRun(r.Context())
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "no volatility data collected yet")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("load latest volatility run")
		writeError(w, r, http.StatusInternalServerError, "could not load volatility data")
		return
	}

	text, err := s.deps.Commentary.VolatilityAnalysis(r.Context(), *run)
	if err != nil {
		s.writeAIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TextResponse{Text: text})
}

// selectExpiries returns the requested expiries present in the run,
// or the first three when none are requested or none match.
func selectExpiries(all []time.Time, requested []string) map[time.Time]bool {
	available := make(map[string]time.Time, len(all))
	for _, e := range all {
		available[e.Format(domain.DateLayout)] = e
	}

	selected := make(map[time.Time]bool)
	for _, raw := range requested {
		if e, ok := available[raw]; ok {
			selected[e] = true
		}
	}
	if len(selected) > 0 {
		return selected
	}
	for i, e := range all {
		if i == defaultExpiryCount {
			break
		}
		selected[e] = true
	}
	return selected
}

// selectTypes returns the requested option types, both when none are valid.
func selectTypes(requested []string) map[domain.OptionType]bool {
	selected := make(map[domain.OptionType]bool)
	for _, raw := range requested {
		switch t := domain.OptionType(raw); t {
		case domain.OptionCall, domain.OptionPut:
			selected[t] = true
		}
	}
	if len(selected) == 0 {
		selected[domain.OptionCall] = true
		selected[domain.OptionPut] = true
	}
	return selected
}

func expiryOptions(all []time.Time, selected map[time.Time]bool) []option {
	out := make([]option, 0, len(all))
	for _, e := range all {
		out = append(out, option{Value: e.Format(domain.DateLayout), Selected: selected[e]})
	}
	return out
}

// filterPoints keeps selected points ordered by expiry, then strike.
func filterPoints(points []domain.VolatilityPoint, expiries map[time.Time]bool, types map[domain.OptionType]bool) []domain.VolatilityPoint {
	var out []domain.VolatilityPoint
	for _, p := range points {
		if expiries[p.ExpiryDate] && types[p.OptionType] {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ExpiryDate.Equal(out[j].ExpiryDate) {
			return out[i].ExpiryDate.Before(out[j].ExpiryDate)
		}
		return out[i].Strike < out[j].Strike
	})
	return out
}

// smileTraces builds one line per (expiry, option type) from points sorted by expiry and strike.
func smileTraces(points []domain.VolatilityPoint) []smileTrace {
	var traces []smileTrace
	index := make(map[string]int)
	for _, p := range points {
		name := p.ExpiryDate.Format(domain.DateLayout) + " " + string(p.OptionType)
		i, ok := index[name]
		if !ok {
			i = len(traces)
			index[name] = i
			traces = append(traces, smileTrace{Name: name})
		}
		traces[i].Strikes = append(traces[i].Strikes, p.Strike)
		traces[i].IVs = append(traces[i].IVs, p.ImpliedVolatility)
	}
	return traces
}
