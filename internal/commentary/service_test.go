package commentary

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/openrouter"
)

type fakeLLM struct {
	reply string
	err   error
	calls []openrouter.Request
}

func (f *fakeLLM) Complete(_ context.Context, req openrouter.Request) (string, error) {
	f.calls = append(f.calls, req)
	return f.reply, f.err
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]string)
	}
	m.data[key] = value
	return nil
}

func sampleRun() domain.VolatilityRun {
	expiry := time.Date(2025, 3, 28, 0, 0, 0, 0, time.UTC)
	return domain.VolatilityRun{
		RunID: "run-1",
		Points: []domain.VolatilityPoint{
			{InstrumentName: "BTC-28MAR25-90000-C", ExpiryDate: expiry, Strike: 90000, OptionType: domain.OptionCall, ImpliedVolatility: 55.5},
			{InstrumentName: "BTC-28MAR25-80000-P", ExpiryDate: expiry, Strike: 80000, OptionType: domain.OptionPut, ImpliedVolatility: 61},
		},
	}
}

func TestVolatilityAnalysis_PromptAndCache(t *testing.T) {
	llm := &fakeLLM{reply: "Near-Term Sentiment: cautious"}
	cache := &mapCache{}
	svc := NewService(llm, cache, Config{Model: "m1", CacheTTL: time.Hour}, zerolog.Nop())

	text, err := svc.VolatilityAnalysis(context.Background(), sampleRun())
	require.NoError(t, err)
	assert.Equal(t, "Near-Term Sentiment: cautious", text)

	require.Len(t, llm.calls, 1)
	req := llm.calls[0]
	assert.Equal(t, "m1", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[0].Content, "Potential Impact on S&P 500")
	assert.True(t, strings.HasPrefix(req.Messages[1].Content, "Analyze this BTC options data:\n"))
	assert.Contains(t, req.Messages[1].Content, "2025-03-28,90000,call,55.50,BTC-28MAR25-90000-C")

	// Second call is served from cache
	text, err = svc.VolatilityAnalysis(context.Background(), sampleRun())
	require.NoError(t, err)
	assert.Equal(t, "Near-Term Sentiment: cautious", text)
	assert.Len(t, llm.calls, 1)
}

func TestVolatilityAnalysis_Empty(t *testing.T) {
	svc := NewService(&fakeLLM{}, nil, Config{}, zerolog.Nop())
	_, err := svc.VolatilityAnalysis(context.Background(), domain.VolatilityRun{})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestPositioningCommentary(t *testing.T) {
	llm := &fakeLLM{reply: "stretched long"}
	svc := NewService(llm, nil, Config{Model: "m", HistoryRecords: 2}, zerolog.Nop())

	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	records := []domain.PositionRecord{
		{InstrumentID: "GOLD", ReportDate: day(2), NetPositionRatio: domain.Float(10)},
		{InstrumentID: "CORN", ReportDate: day(2), NetPositionRatio: domain.Float(-5)},
		{InstrumentID: "GOLD", ReportDate: day(9), NetPositionRatio: domain.Float(20), PercentileRank: domain.Float(100), Alert: domain.AlertOverbought, Trend: domain.TrendUp},
		{InstrumentID: "GOLD", ReportDate: day(16), Alert: domain.AlertNeutral, Trend: domain.TrendFlat},
	}

	text, err := svc.PositioningCommentary(context.Background(), "GOLD", records)
	require.NoError(t, err)
	assert.Equal(t, "stretched long", text)

	user := llm.calls[0].Messages[1].Content
	assert.Contains(t, user, "Market: GOLD")
	assert.NotContains(t, user, "2024-01-02")
	assert.Contains(t, user, "2024-01-09,20.00,100.0,Overbought,Up")
	assert.Contains(t, user, "2024-01-16,,,Neutral,Flat")
}

func TestPositioningCommentary_UnknownInstrument(t *testing.T) {
	svc := NewService(&fakeLLM{}, nil, Config{}, zerolog.Nop())
	_, err := svc.PositioningCommentary(context.Background(), "NOPE", nil)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestGenerate_ErrorNotCached(t *testing.T) {
	boom := errors.New("boom")
	llm := &fakeLLM{err: boom}
	cache := &mapCache{}
	svc := NewService(llm, cache, Config{Model: "m"}, zerolog.Nop())

	_, err := svc.VolatilityAnalysis(context.Background(), sampleRun())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, cache.data)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, cacheKey("m", "a", "b"), cacheKey("m", "a", "b"))
	assert.NotEqual(t, cacheKey("m", "a", "b"), cacheKey("m2", "a", "b"))
	assert.NotEqual(t, cacheKey("m", "ab", ""), cacheKey("m", "a", "b"))
}
