package deribit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func writeResult(w http.ResponseWriter, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"result":  result,
	})
}

func TestHTTPClient_GetInstruments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/public/get_instruments" {
			t.Errorf("expected path /public/get_instruments, got %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("currency") != "BTC" || q.Get("kind") != "option" || q.Get("expired") != "false" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		writeResult(w, []map[string]interface{}{
			{
				"instrument_name":      "BTC-27DEC24-60000-C",
				"kind":                 "option",
				"option_type":          "call",
				"strike":               60000.0,
				"expiration_timestamp": int64(1735286400000),
				"is_active":            true,
			},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRateLimit(0))
	instruments, err := client.GetInstruments(context.Background(), "BTC", "option", false)
	if err != nil {
		t.Fatalf("GetInstruments: %v", err)
	}

	if len(instruments) != 1 {
		t.Fatalf("expected 1 instrument, got %d", len(instruments))
	}
	inst := instruments[0]
	if inst.InstrumentName != "BTC-27DEC24-60000-C" {
		t.Errorf("unexpected name %s", inst.InstrumentName)
	}
	if inst.Strike != 60000 || inst.OptionType != "call" || inst.ExpirationTimestamp != 1735286400000 {
		t.Errorf("unexpected instrument %+v", inst)
	}
}

func TestHTTPClient_GetTicker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("instrument_name"); got != "BTC-27DEC24-60000-C" {
			t.Errorf("unexpected instrument_name %s", got)
		}
		writeResult(w, map[string]interface{}{
			"instrument_name": "BTC-27DEC24-60000-C",
			"mark_iv":         52.5,
			"mark_price":      0.1,
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRateLimit(0))
	ticker, err := client.GetTicker(context.Background(), "BTC-27DEC24-60000-C")
	if err != nil {
		t.Fatalf("GetTicker: %v", err)
	}
	if ticker.MarkIV == nil || *ticker.MarkIV != 52.5 {
		t.Errorf("expected mark_iv 52.5, got %v", ticker.MarkIV)
	}
}

func TestHTTPClient_GetIndexPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("index_name"); got != "btc_usd" {
			t.Errorf("unexpected index_name %s", got)
		}
		writeResult(w, map[string]interface{}{"index_price": 65000.5})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRateLimit(0))
	price, err := client.GetIndexPrice(context.Background(), IndexName("BTC"))
	if err != nil {
		t.Fatalf("GetIndexPrice: %v", err)
	}
	if price != 65000.5 {
		t.Errorf("expected 65000.5, got %v", price)
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeResult(w, map[string]interface{}{"index_price": 1.0})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(10*time.Millisecond),
		WithRateLimit(0),
	)

	if _, err := client.GetIndexPrice(context.Background(), "btc_usd"); err != nil {
		t.Fatalf("GetIndexPrice: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_RPCError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"error": map[string]interface{}{
				"code":    10020,
				"message": "instrument_not_found",
			},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRateLimit(0), WithRetryDelay(10*time.Millisecond))
	_, err := client.GetTicker(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %T", err)
	}
	if rpcErr.Code != 10020 {
		t.Errorf("expected code 10020, got %d", rpcErr.Code)
	}
	if attempts.Load() != 1 {
		t.Errorf("RPC errors must not be retried, got %d attempts", attempts.Load())
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeResult(w, nil)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRateLimit(0))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.GetIndexPrice(ctx, "btc_usd")
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestIndexName(t *testing.T) {
	if got := IndexName("BTC"); got != "btc_usd" {
		t.Errorf("expected btc_usd, got %s", got)
	}
}
