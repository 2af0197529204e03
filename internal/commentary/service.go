// Package commentary produces AI commentary for dashboard data.
package commentary

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/observability"
	"positioning-lab/internal/openrouter"
)

// ErrNoData is returned when there is nothing to comment on.
var ErrNoData = errors.New("commentary: no data")

const (
	purposeVolatility  = "volatility_analysis"
	purposePositioning = "positioning_commentary"

	defaultMaxTokens      = 8000
	defaultHistoryRecords = 26
)

// Completer is the chat completion call used by Service.
type Completer interface {
	Complete(ctx context.Context, req openrouter.Request) (string, error)
}

// Config tunes Service.
type Config struct {
	Model          string
	MaxTokens      int
	CacheTTL       time.Duration
	HistoryRecords int // positioning rows sent per instrument
}

// Service builds prompts, calls the model and caches answers.
type Service struct {
	llm   Completer
	cache Cache
	cfg   Config
	log   zerolog.Logger
}

// NewService creates a Service. A nil cache disables caching.
func NewService(llm Completer, cache Cache, cfg Config, log zerolog.Logger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.HistoryRecords == 0 {
		cfg.HistoryRecords = defaultHistoryRecords
	}
	return &Service{llm: llm, cache: cache, cfg: cfg, log: log.With().Str("component", "commentary").Logger()}
}

// VolatilityAnalysis asks for BTC sentiment by expiry from a volatility snapshot.
func (s *Service) VolatilityAnalysis(ctx context.Context, run domain.VolatilityRun) (string, error) {
	if len(run.Points) == 0 {
		return "", ErrNoData
	}
	data, err := volatilityCSV(run.Points)
	if err != nil {
		return "", err
	}
	user := "Analyze this BTC options data:\n" + data
	return s.generate(ctx, purposeVolatility, volatilitySystemPrompt, user)
}

// PositioningCommentary comments on the latest engine output for one instrument.
// records must be engine output for that instrument; only the most recent rows are sent.
func (s *Service) PositioningCommentary(ctx context.Context, instrument string, records []domain.PositionRecord) (string, error) {
	var series []domain.PositionRecord
	for _, r := range records {
		if r.InstrumentID == instrument {
			series = append(series, r)
		}
	}
	if len(series) == 0 {
		return "", ErrNoData
	}
	if len(series) > s.cfg.HistoryRecords {
		series = series[len(series)-s.cfg.HistoryRecords:]
	}
	data, err := positioningCSV(series)
	if err != nil {
		return "", err
	}
	user := fmt.Sprintf("Market: %s\n%s", instrument, data)
	return s.generate(ctx, purposePositioning, positioningSystemPrompt, user)
}

func (s *Service) generate(ctx context.Context, purpose, system, user string) (string, error) {
	key := cacheKey(s.cfg.Model, system, user)
	if text, ok, err := s.cache.Get(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("purpose", purpose).Msg("commentary cache read failed")
	} else if ok {
		observability.RecordAICacheHit()
		return text, nil
	}

	text, err := s.llm.Complete(ctx, openrouter.Request{
		Model:     s.cfg.Model,
		Messages:  []openrouter.Message{openrouter.SystemMessage(system), openrouter.UserMessage(user)},
		MaxTokens: s.cfg.MaxTokens,
	})
	observability.RecordAICall(purpose, err)
	if err != nil {
		return "", fmt.Errorf("%s: %w", purpose, err)
	}

	if err := s.cache.Set(ctx, key, text, s.cfg.CacheTTL); err != nil {
		s.log.Warn().Err(err).Str("purpose", purpose).Msg("commentary cache write failed")
	}
	return text, nil
}

func volatilityCSV(points []domain.VolatilityPoint) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"expiry_date", "strike", "option_type", "implied_volatility", "instrument_name"})
	for _, p := range points {
		w.Write([]string{
			p.ExpiryDate.Format(domain.DateLayout),
			strconv.FormatFloat(p.Strike, 'f', -1, 64),
			string(p.OptionType),
			strconv.FormatFloat(p.ImpliedVolatility, 'f', 2, 64),
			p.InstrumentName,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write volatility csv: %w", err)
	}
	return buf.String(), nil
}

func positioningCSV(records []domain.PositionRecord) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"report_date", "net_position_pct_oi", "percentile_rank", "alert", "trend"})
	for _, r := range records {
		w.Write([]string{
			r.ReportDate.Format(domain.DateLayout),
			optFloat(r.NetPositionRatio, 2),
			optFloat(r.PercentileRank, 1),
			string(r.Alert),
			string(r.Trend),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write positioning csv: %w", err)
	}
	return buf.String(), nil
}

func optFloat(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}
