package metrics

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"positioning-lab/internal/domain"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid engine config")

// DaysPerYear approximates a year for trailing windows.
const DaysPerYear = 365.25

// DefaultWindowYears is the default trailing window length in years.
const DefaultWindowYears = 3

// Config holds engine parameters.
type Config struct {
	TrailingWindowDays float64           // lookback length in days (fractional allowed)
	Thresholds         domain.Thresholds // alert thresholds in percentile units
	Workers            int               // max instrument groups processed in parallel
}

// DefaultConfig returns a 3 x 365.25 day window with 90/10 thresholds.
func DefaultConfig() Config {
	return Config{
		TrailingWindowDays: DefaultWindowYears * DaysPerYear,
		Thresholds:         domain.DefaultThresholds(),
		Workers:            4,
	}
}

// Window returns the trailing window as a fixed duration.
func (c Config) Window() time.Duration {
	return time.Duration(c.TrailingWindowDays * float64(24*time.Hour))
}

// Validate checks window and thresholds.
func (c Config) Validate() error {
	if c.TrailingWindowDays <= 0 {
		return fmt.Errorf("%w: trailing window must be positive, got %v", ErrInvalidConfig, c.TrailingWindowDays)
	}
	t := c.Thresholds
	if t.Overbought < 0 || t.Overbought > 100 || t.Oversold < 0 || t.Oversold > 100 {
		return fmt.Errorf("%w: thresholds must be within 0..100", ErrInvalidConfig)
	}
	if t.Oversold >= t.Overbought {
		return fmt.Errorf("%w: oversold %v must be below overbought %v", ErrInvalidConfig, t.Oversold, t.Overbought)
	}
	return nil
}

// Engine derives positioning metrics. It holds no state between runs
// and is safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine after validating cfg.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Run computes ratios, percentile ranks, alerts and trends.
// The result has the same length and order as records; records is not modified.
// Instrument groups are processed concurrently since they share no data.
func (e *Engine) Run(records []domain.PositionRecord) []domain.PositionRecord {
	out := ComputeRatios(records)
	window := e.cfg.Window()
	thresholds := e.cfg.Thresholds

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for _, idx := range groupByInstrument(out) {
		g.Go(func() error {
			rankGroup(out, idx, window)
			for _, i := range idx {
				out[i].Alert = ClassifyAlert(out[i].PercentileRank, thresholds)
			}
			trendGroup(out, idx)
			return nil
		})
	}
	_ = g.Wait() // groups never fail

	return out
}
