// Package deribit is a minimal JSON-RPC client for Deribit's public option market data.
package deribit

import (
	"context"
	"fmt"
	"strings"
)

// Client defines the Deribit public methods used by the volatility collector.
type Client interface {
	// GetInstruments lists instruments for a currency and kind (e.g. BTC, option).
	GetInstruments(ctx context.Context, currency, kind string, expired bool) ([]Instrument, error)

	// GetIndexPrice returns the current index price, e.g. for btc_usd.
	GetIndexPrice(ctx context.Context, indexName string) (float64, error)

	// GetTicker returns the ticker for one instrument.
	GetTicker(ctx context.Context, instrumentName string) (*Ticker, error)

	// Close releases transport resources.
	Close() error
}

// Instrument is one listed option contract.
type Instrument struct {
	InstrumentName      string  `json:"instrument_name"`
	Kind                string  `json:"kind"`
	OptionType          string  `json:"option_type"`
	Strike              float64 `json:"strike"`
	ExpirationTimestamp int64   `json:"expiration_timestamp"` // Unix ms
	IsActive            bool    `json:"is_active"`
	BaseCurrency        string  `json:"base_currency"`
}

// Ticker is the subset of public/ticker used for implied volatility.
type Ticker struct {
	InstrumentName  string   `json:"instrument_name"`
	Timestamp       int64    `json:"timestamp"`
	MarkPrice       float64  `json:"mark_price"`
	MarkIV          *float64 `json:"mark_iv"`
	UnderlyingPrice float64  `json:"underlying_price"`
	IndexPrice      float64  `json:"index_price"`
}

// IndexName returns the Deribit index for a currency, e.g. BTC -> btc_usd.
func IndexName(currency string) string {
	return strings.ToLower(currency) + "_usd"
}

// RPCError is a JSON-RPC 2.0 error returned by the API. It is never retried.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("deribit RPC error %d: %s", e.Code, e.Message)
}

type indexPriceResult struct {
	IndexPrice float64 `json:"index_price"`
}
