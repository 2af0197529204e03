package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/storage"
)

func reportDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPositionReportStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPositionReportStore(pool)
	ctx := context.Background()

	assert.NoError(t, store.UpsertBulk(ctx, nil))

	records := []domain.PositionRecord{
		{InstrumentID: "GOLD - COMMODITY EXCHANGE INC.", ReportDate: reportDate(2024, 1, 9), LongPositions: ptr(150000.0), ShortPositions: ptr(40000.0), OpenInterest: ptr(500000.0)},
		{InstrumentID: "GOLD - COMMODITY EXCHANGE INC.", ReportDate: reportDate(2024, 1, 2), LongPositions: ptr(140000.0), ShortPositions: nil, OpenInterest: ptr(0.0)},
		{InstrumentID: "COCOA - ICE FUTURES U.S.", ReportDate: reportDate(2024, 1, 2), LongPositions: ptr(1.0), ShortPositions: ptr(2.0), OpenInterest: ptr(3.0)},
	}
	require.NoError(t, store.UpsertBulk(ctx, records))

	got, err := store.GetByInstrument(ctx, "GOLD - COMMODITY EXCHANGE INC.")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].ReportDate.Equal(reportDate(2024, 1, 2)))
	assert.Nil(t, got[0].ShortPositions)
	require.NotNil(t, got[0].OpenInterest)
	assert.Equal(t, 0.0, *got[0].OpenInterest)
	assert.Nil(t, got[0].NetPositionRatio)

	ids, err := store.ListInstruments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"COCOA - ICE FUTURES U.S.", "GOLD - COMMODITY EXCHANGE INC."}, ids)

	ranged, err := store.GetByDateRange(ctx, reportDate(2024, 1, 2), reportDate(2024, 1, 2))
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, "COCOA - ICE FUTURES U.S.", ranged[0].InstrumentID)
}

func TestPositionReportStore_UpsertRevises(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPositionReportStore(pool)
	ctx := context.Background()

	r := domain.PositionRecord{InstrumentID: "SILVER", ReportDate: reportDate(2024, 3, 5), LongPositions: ptr(10.0), ShortPositions: ptr(5.0), OpenInterest: ptr(100.0)}
	require.NoError(t, store.UpsertBulk(ctx, []domain.PositionRecord{r}))

	r.LongPositions = ptr(12.0)
	require.NoError(t, store.UpsertBulk(ctx, []domain.PositionRecord{r}))

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 12.0, *all[0].LongPositions)
}

func TestPositionReportStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPositionReportStore(pool)
	err := store.UpsertBulk(context.Background(), []domain.PositionRecord{{InstrumentID: "X"}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
