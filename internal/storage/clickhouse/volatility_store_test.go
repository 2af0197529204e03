package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/storage"
)

func testPoint(runID string, at time.Time, name string, expiry time.Time, strike float64, typ domain.OptionType) domain.VolatilityPoint {
	return domain.VolatilityPoint{
		RunID:             runID,
		CollectedAt:       at,
		InstrumentName:    name,
		ExpiryDate:        expiry,
		ExpiryTimestampMs: expiry.Add(8 * time.Hour).UnixMilli(),
		Strike:            strike,
		OptionType:        typ,
		ImpliedVolatility: 52.25,
		UnderlyingIndex:   64000,
	}
}

func TestVolatilityStore_InsertBulkAndLatest(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewVolatilityStore(conn)
	ctx := context.Background()

	assert.NoError(t, store.InsertBulk(ctx, nil))

	_, err := store.GetLatestRun(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.LastCollectedAt(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	t1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(30 * time.Minute)
	june28 := time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)
	june7 := time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertBulk(ctx, []domain.VolatilityPoint{
		testPoint("run-1", t1, "BTC-28JUN24-60000-C", june28, 60000, domain.OptionCall),
	}))
	require.NoError(t, store.InsertBulk(ctx, []domain.VolatilityPoint{
		testPoint("run-2", t2, "BTC-28JUN24-70000-C", june28, 70000, domain.OptionCall),
		testPoint("run-2", t2, "BTC-7JUN24-65000-P", june7, 65000, domain.OptionPut),
	}))

	run, err := store.GetLatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", run.RunID)
	require.Len(t, run.Points, 2)
	assert.True(t, run.Points[0].ExpiryDate.Equal(june7))
	assert.Equal(t, domain.OptionPut, run.Points[0].OptionType)
	assert.Equal(t, 52.25, run.Points[0].ImpliedVolatility)
	assert.Equal(t, june7.Add(8*time.Hour).UnixMilli(), run.Points[0].ExpiryTimestampMs)

	at, err := store.LastCollectedAt(ctx)
	require.NoError(t, err)
	assert.True(t, at.Equal(t2))
}

func TestVolatilityStore_InsertBulk_Duplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewVolatilityStore(conn)
	ctx := context.Background()
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	exp := time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)

	p := testPoint("run-1", at, "BTC-28JUN24-60000-C", exp, 60000, domain.OptionCall)
	require.NoError(t, store.InsertBulk(ctx, []domain.VolatilityPoint{p}))

	assert.ErrorIs(t, store.InsertBulk(ctx, []domain.VolatilityPoint{p}), storage.ErrDuplicateKey)

	q := testPoint("run-2", at, "BTC-28JUN24-60000-C", exp, 60000, domain.OptionCall)
	assert.ErrorIs(t, store.InsertBulk(ctx, []domain.VolatilityPoint{q, q}), storage.ErrDuplicateKey)

	_, err := store.GetByRun(ctx, "run-2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
