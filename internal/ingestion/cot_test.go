package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"positioning-lab/internal/cftc"
	"positioning-lab/internal/domain"
	"positioning-lab/internal/storage/memory"
)

type fakeReportSource struct {
	reports map[int]*cftc.YearReport
	calls   []int
}

func (f *fakeReportSource) FetchYear(_ context.Context, year int) (*cftc.YearReport, error) {
	f.calls = append(f.calls, year)
	if r, ok := f.reports[year]; ok {
		return r, nil
	}
	return nil, &cftc.StatusError{StatusCode: 404, URL: "test"}
}

type fakeReportArchive struct {
	years []int
}

func (f *fakeReportArchive) ArchiveCOTYear(_ context.Context, year int, _ []byte, _ time.Time) error {
	f.years = append(f.years, year)
	return nil
}

const gold = "GOLD - COMMODITY EXCHANGE INC."

func TestYears(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []int{2022, 2023, 2024, 2025}, Years(now, 3))
	assert.Equal(t, []int{2025}, Years(now, 0))
	assert.Equal(t, []int{2025}, Years(now, -2))
}

func TestCOTIngester_Run(t *testing.T) {
	source := &fakeReportSource{reports: map[int]*cftc.YearReport{
		2024: {Year: 2024, Raw: []byte("raw-2024"), Rows: []domain.RawPositionRow{
			{InstrumentID: gold, ReportDate: "2024-01-02", LongPositions: "100", ShortPositions: "40", OpenInterest: "1000"},
			{InstrumentID: "UNTRACKED MARKET", ReportDate: "2024-01-02", LongPositions: "1", ShortPositions: "1", OpenInterest: "1"},
			{InstrumentID: gold, ReportDate: "not a date", LongPositions: "1", ShortPositions: "1", OpenInterest: "1"},
		}},
		2025: {Year: 2025, Raw: []byte("raw-2025"), Rows: []domain.RawPositionRow{
			{InstrumentID: gold, ReportDate: "2025-01-07", LongPositions: "n/a", ShortPositions: "40", OpenInterest: ""},
		}},
	}}
	store := memory.NewPositionReportStore()
	archive := &fakeReportArchive{}

	ing := NewCOTIngester(COTOptions{
		Source:  source,
		Store:   store,
		Archive: archive,
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) },
	})

	res, err := ing.Run(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, []int{2023, 2024, 2025}, source.calls)
	assert.Equal(t, []int{2024, 2025}, res.YearsFetched)
	assert.Equal(t, []int{2023}, res.YearsFailed)
	assert.Equal(t, 4, res.RowsRead)
	assert.Equal(t, 2, res.RowsStored)
	assert.Equal(t, 1, res.RowsRejected)
	assert.Equal(t, 2, res.InvalidFields)
	assert.Equal(t, []int{2024, 2025}, archive.years)

	stored, err := store.GetByInstrument(context.Background(), gold)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, 100.0, *stored[0].LongPositions)
	assert.Nil(t, stored[1].LongPositions)
	assert.Nil(t, stored[1].OpenInterest)
	assert.Equal(t, 40.0, *stored[1].ShortPositions)
}

func TestCOTIngester_AllYearsFail(t *testing.T) {
	ing := NewCOTIngester(COTOptions{
		Source: &fakeReportSource{},
		Store:  memory.NewPositionReportStore(),
		Logger: zerolog.Nop(),
	})
	_, err := ing.Run(context.Background(), 1)
	assert.Error(t, err)
}

func TestCOTIngester_CustomMarkets(t *testing.T) {
	source := &fakeReportSource{reports: map[int]*cftc.YearReport{
		2025: {Year: 2025, Rows: []domain.RawPositionRow{
			{InstrumentID: gold, ReportDate: "2025-01-07", LongPositions: "1", ShortPositions: "1", OpenInterest: "2"},
			{InstrumentID: "BITCOIN - CHICAGO MERCANTILE EXCHANGE", ReportDate: "2025-01-07", LongPositions: "1", ShortPositions: "1", OpenInterest: "2"},
		}},
	}}
	store := memory.NewPositionReportStore()
	ing := NewCOTIngester(COTOptions{
		Source:  source,
		Store:   store,
		Markets: []string{"BITCOIN - CHICAGO MERCANTILE EXCHANGE"},
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) },
	})

	_, err := ing.Run(context.Background(), 0)
	require.NoError(t, err)

	ids, err := store.ListInstruments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BITCOIN - CHICAGO MERCANTILE EXCHANGE"}, ids)
}

func TestCOTIngester_ReingestUpserts(t *testing.T) {
	source := &fakeReportSource{reports: map[int]*cftc.YearReport{
		2025: {Year: 2025, Rows: []domain.RawPositionRow{
			{InstrumentID: gold, ReportDate: "2025-01-07", LongPositions: "1", ShortPositions: "1", OpenInterest: "2"},
		}},
	}}
	store := memory.NewPositionReportStore()
	ing := NewCOTIngester(COTOptions{
		Source: source, Store: store, Logger: zerolog.Nop(),
		Now: func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) },
	})

	_, err := ing.Run(context.Background(), 0)
	require.NoError(t, err)
	source.reports[2025].Rows[0].LongPositions = "5"
	_, err = ing.Run(context.Background(), 0)
	require.NoError(t, err)

	all, err := store.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 5.0, *all[0].LongPositions)
}

func TestCOTIngester_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ing := NewCOTIngester(COTOptions{Source: &fakeReportSource{}, Store: memory.NewPositionReportStore(), Logger: zerolog.Nop()})
	_, err := ing.Run(ctx, 1)
	assert.True(t, errors.Is(err, context.Canceled))
}
