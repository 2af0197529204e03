package ingestion

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"positioning-lab/internal/deribit"
	"positioning-lab/internal/domain"
	"positioning-lab/internal/observability"
	"positioning-lab/internal/storage"
)

// VolatilityCollector snapshots implied volatility for every live option of a currency.
type VolatilityCollector struct {
	source   OptionSource
	store    storage.VolatilityStore
	archive  RunArchive
	currency string
	log      zerolog.Logger
	now      func() time.Time
	newID    func() string
}

// VolatilityOptions contains configuration for creating a VolatilityCollector.
type VolatilityOptions struct {
	Source   OptionSource
	Store    storage.VolatilityStore
	Archive  RunArchive // optional
	Currency string     // default BTC
	Logger   zerolog.Logger
	Now      func() time.Time
}

// VolatilityResult summarizes one collection run.
type VolatilityResult struct {
	RunID          string
	IndexPrice     float64 // 0 when unknown
	Instruments    int
	Expiries       int
	Points         int
	TickersFailed  int
	TickersSkipped int // no mark IV or mark IV <= 0
}

// NewVolatilityCollector creates a VolatilityCollector.
func NewVolatilityCollector(opts VolatilityOptions) *VolatilityCollector {
	c := &VolatilityCollector{
		source:   opts.Source,
		store:    opts.Store,
		archive:  opts.Archive,
		currency: opts.Currency,
		log:      opts.Logger.With().Str("component", "volatility_collector").Logger(),
		now:      opts.Now,
		newID:    uuid.NewString,
	}
	if c.currency == "" {
		c.currency = "BTC"
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Run collects one snapshot. An instrument list failure aborts the run;
// a failing ticker is skipped. An empty snapshot stores nothing.
func (c *VolatilityCollector) Run(ctx context.Context) (VolatilityResult, error) {
	start := c.now().UTC()
	res := VolatilityResult{RunID: c.newID()}

	price, err := c.source.GetIndexPrice(ctx, deribit.IndexName(c.currency))
	if err != nil {
		c.log.Warn().Err(err).Msg("index price unknown")
		price = 0
	}
	res.IndexPrice = price

	instruments, err := c.source.GetInstruments(ctx, c.currency, "option", false)
	if err != nil {
		err = fmt.Errorf("fetch instruments: %w", err)
		observability.RecordCollectorRun("volatility", err, time.Since(start))
		return res, err
	}
	res.Instruments = len(instruments)

	groups := groupByExpiry(instruments)
	res.Expiries = len(groups)
	c.log.Info().Int("expiries", len(groups)).Float64("index_price", price).Msg("collecting volatility snapshot")

	var points []domain.VolatilityPoint
	for _, g := range groups {
		for _, inst := range g {
			if err := ctx.Err(); err != nil {
				observability.RecordCollectorRun("volatility", err, time.Since(start))
				return res, err
			}
			ticker, err := c.source.GetTicker(ctx, inst.InstrumentName)
			if err != nil {
				res.TickersFailed++
				c.log.Debug().Err(err).Str("instrument", inst.InstrumentName).Msg("ticker failed, skipping")
				continue
			}
			if ticker.MarkIV == nil || *ticker.MarkIV <= 0 {
				res.TickersSkipped++
				continue
			}
			points = append(points, domain.VolatilityPoint{
				RunID:             res.RunID,
				CollectedAt:       start,
				InstrumentName:    inst.InstrumentName,
				ExpiryDate:        expiryDate(inst.ExpirationTimestamp),
				ExpiryTimestampMs: inst.ExpirationTimestamp,
				Strike:            inst.Strike,
				OptionType:        domain.OptionType(inst.OptionType),
				ImpliedVolatility: *ticker.MarkIV,
				UnderlyingIndex:   price,
			})
		}
	}
	res.Points = len(points)

	if len(points) == 0 {
		c.log.Warn().Int("tickers_failed", res.TickersFailed).Msg("no IV data collected in this run")
		observability.RecordCollectorRun("volatility", nil, time.Since(start))
		return res, nil
	}

	if err := c.store.InsertBulk(ctx, points); err != nil {
		err = fmt.Errorf("store volatility points: %w", err)
		observability.RecordCollectorRun("volatility", err, time.Since(start))
		return res, err
	}
	observability.RecordVolatilityPoints(len(points))

	if c.archive != nil {
		run := domain.VolatilityRun{RunID: res.RunID, CollectedAt: start, Points: points}
		if err := c.archive.ArchiveVolatilityRun(ctx, run); err != nil {
			c.log.Warn().Err(err).Str("run_id", res.RunID).Msg("archive volatility run failed")
		}
	}

	observability.RecordCollectorRun("volatility", nil, time.Since(start))
	c.log.Info().
		Str("run_id", res.RunID).
		Int("points", res.Points).
		Int("tickers_failed", res.TickersFailed).
		Dur("took", time.Since(start)).
		Msg("volatility snapshot stored")
	return res, nil
}

// groupByExpiry returns option instruments grouped by expiry ascending;
// within an expiry calls come before puts, each by strike.
func groupByExpiry(instruments []deribit.Instrument) [][]deribit.Instrument {
	byExpiry := make(map[int64][]deribit.Instrument)
	for _, inst := range instruments {
		if inst.OptionType != string(domain.OptionCall) && inst.OptionType != string(domain.OptionPut) {
			continue
		}
		byExpiry[inst.ExpirationTimestamp] = append(byExpiry[inst.ExpirationTimestamp], inst)
	}

	expiries := make([]int64, 0, len(byExpiry))
	for ts := range byExpiry {
		expiries = append(expiries, ts)
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i] < expiries[j] })

	groups := make([][]deribit.Instrument, 0, len(expiries))
	for _, ts := range expiries {
		g := byExpiry[ts]
		sort.SliceStable(g, func(i, j int) bool {
			if g[i].OptionType != g[j].OptionType {
				return g[i].OptionType == string(domain.OptionCall)
			}
			return g[i].Strike < g[j].Strike
		})
		groups = append(groups, g)
	}
	return groups
}

func expiryDate(ms int64) time.Time {
	t := time.UnixMilli(ms).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
