package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"positioning-lab/internal/cftc"
	"positioning-lab/internal/domain"
	"positioning-lab/internal/observability"
	"positioning-lab/internal/storage"
)

// COTIngester downloads yearly COT reports and upserts the tracked markets.
type COTIngester struct {
	source  ReportSource
	store   storage.PositionReportStore
	markets map[string]struct{}
	archive ReportArchive
	log     zerolog.Logger
	now     func() time.Time
}

// COTOptions contains configuration for creating a COTIngester.
type COTOptions struct {
	Source  ReportSource
	Store   storage.PositionReportStore
	Markets []string      // empty selects cftc.DefaultMarkets
	Archive ReportArchive // optional
	Logger  zerolog.Logger
	Now     func() time.Time
}

// COTResult summarizes one ingestion run.
type COTResult struct {
	YearsFetched  []int
	YearsFailed   []int
	RowsRead      int
	RowsStored    int
	RowsRejected  int // no instrument or unparseable date
	InvalidFields int // numeric fields coerced to nil
}

// NewCOTIngester creates a COTIngester.
func NewCOTIngester(opts COTOptions) *COTIngester {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &COTIngester{
		source:  opts.Source,
		store:   opts.Store,
		markets: cftc.MarketSet(opts.Markets),
		archive: opts.Archive,
		log:     opts.Logger.With().Str("component", "cot_ingester").Logger(),
		now:     now,
	}
}

// Years returns the years fetched for a lookback: [now.Year()-yearsBack, now.Year()].
func Years(now time.Time, yearsBack int) []int {
	if yearsBack < 0 {
		yearsBack = 0
	}
	years := make([]int, 0, yearsBack+1)
	for y := now.Year() - yearsBack; y <= now.Year(); y++ {
		years = append(years, y)
	}
	return years
}

// Run fetches every year of the lookback. A year that cannot be fetched is logged
// and skipped; the run fails only when no year succeeds or the store rejects the batch.
func (i *COTIngester) Run(ctx context.Context, yearsBack int) (COTResult, error) {
	start := i.now()
	var (
		res     COTResult
		records []domain.PositionRecord
	)

	for _, year := range Years(start, yearsBack) {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		report, err := i.source.FetchYear(ctx, year)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			observability.RecordSourceYearFailed()
			i.log.Warn().Err(err).Int("year", year).Msg("could not fetch COT year, skipping")
			res.YearsFailed = append(res.YearsFailed, year)
			continue
		}
		res.YearsFetched = append(res.YearsFetched, year)
		res.RowsRead += len(report.Rows)

		records = append(records, i.convert(report, &res)...)

		if i.archive != nil {
			if err := i.archive.ArchiveCOTYear(ctx, year, report.Raw, start); err != nil {
				i.log.Warn().Err(err).Int("year", year).Msg("archive COT year failed")
			}
		}
	}

	if len(res.YearsFetched) == 0 {
		err := fmt.Errorf("no COT year could be fetched (tried %v)", res.YearsFailed)
		observability.RecordCollectorRun("cot", err, time.Since(start))
		return res, err
	}

	if len(records) > 0 {
		if err := i.store.UpsertBulk(ctx, records); err != nil {
			err = fmt.Errorf("store position reports: %w", err)
			observability.RecordCollectorRun("cot", err, time.Since(start))
			return res, err
		}
	}
	res.RowsStored = len(records)
	observability.RecordReportsIngested("cftc", res.RowsStored)
	observability.RecordCollectorRun("cot", nil, time.Since(start))

	i.log.Info().
		Ints("years", res.YearsFetched).
		Ints("failed_years", res.YearsFailed).
		Int("rows_read", res.RowsRead).
		Int("rows_stored", res.RowsStored).
		Int("invalid_fields", res.InvalidFields).
		Msg("COT ingestion complete")
	return res, nil
}

// convert filters to tracked markets and coerces raw rows.
func (i *COTIngester) convert(report *cftc.YearReport, res *COTResult) []domain.PositionRecord {
	out := make([]domain.PositionRecord, 0, len(report.Rows)/8)
	for _, row := range report.Rows {
		if _, ok := i.markets[row.InstrumentID]; !ok {
			continue
		}
		rec, invalid, err := row.ToRecord()
		if err != nil {
			res.RowsRejected++
			i.log.Warn().Err(err).Int("year", report.Year).Str("instrument", row.InstrumentID).Msg("rejected COT row")
			continue
		}
		for _, field := range invalid {
			res.InvalidFields++
			observability.RecordInvalidField(field)
			i.log.Warn().
				Str("instrument", rec.InstrumentID).
				Str("report_date", rec.ReportDate.Format(domain.DateLayout)).
				Str("field", field).
				Msg("invalid numeric field, treated as missing")
		}
		out = append(out, rec)
	}
	return out
}
