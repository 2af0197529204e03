package deribit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// rpcServer answers each request with handler's result or error.
func rpcServer(t *testing.T, handler func(req wsRequest) (interface{}, *RPCError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			var req wsRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			result, rpcErr := handler(req)
			resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
			if rpcErr != nil {
				resp["error"] = rpcErr
			} else {
				resp["result"] = result
			}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testWSConfig() *WSClientConfig {
	cfg := DefaultWSConfig()
	cfg.RequestTimeout = 2 * time.Second
	cfg.RateLimit = 0
	return &cfg
}

func TestWSClient_Requests(t *testing.T) {
	server := rpcServer(t, func(req wsRequest) (interface{}, *RPCError) {
		switch req.Method {
		case "public/get_index_price":
			if req.Params["index_name"] != "btc_usd" {
				t.Errorf("unexpected params %v", req.Params)
			}
			return map[string]interface{}{"index_price": 64000.0}, nil
		case "public/get_instruments":
			return []map[string]interface{}{
				{"instrument_name": "BTC-1", "option_type": "put", "strike": 50000.0, "expiration_timestamp": 1},
				{"instrument_name": "BTC-2", "option_type": "call", "strike": 70000.0, "expiration_timestamp": 1},
			}, nil
		case "public/ticker":
			return map[string]interface{}{"instrument_name": req.Params["instrument_name"], "mark_iv": 48.0}, nil
		}
		return nil, &RPCError{Code: -32601, Message: "method not found"}
	})
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), testWSConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	price, err := client.GetIndexPrice(ctx, "btc_usd")
	if err != nil || price != 64000 {
		t.Fatalf("GetIndexPrice = %v, %v", price, err)
	}

	instruments, err := client.GetInstruments(ctx, "BTC", "option", false)
	if err != nil {
		t.Fatalf("GetInstruments: %v", err)
	}
	if len(instruments) != 2 || instruments[0].OptionType != "put" {
		t.Errorf("unexpected instruments %+v", instruments)
	}

	ticker, err := client.GetTicker(ctx, "BTC-2")
	if err != nil {
		t.Fatalf("GetTicker: %v", err)
	}
	if ticker.InstrumentName != "BTC-2" || ticker.MarkIV == nil || *ticker.MarkIV != 48 {
		t.Errorf("unexpected ticker %+v", ticker)
	}
}

func TestWSClient_RPCError(t *testing.T) {
	server := rpcServer(t, func(req wsRequest) (interface{}, *RPCError) {
		return nil, &RPCError{Code: 10020, Message: "instrument_not_found"}
	})
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), testWSConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	_, err = client.GetTicker(context.Background(), "nope")
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != 10020 {
		t.Fatalf("expected RPCError 10020, got %v", err)
	}
}

func TestWSClient_CallAfterClose(t *testing.T) {
	server := rpcServer(t, func(req wsRequest) (interface{}, *RPCError) {
		return map[string]interface{}{}, nil
	})
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), testWSConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, err := client.GetIndexPrice(context.Background(), "btc_usd"); !errors.Is(err, errClientClosed) {
		t.Errorf("expected errClientClosed, got %v", err)
	}
}

func TestWSClient_RequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := testWSConfig()
	cfg.RequestTimeout = 50 * time.Millisecond
	client, err := NewWSClient(context.Background(), wsURL(server), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	_, err = client.GetIndexPrice(context.Background(), "btc_usd")
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("expected timeout error, got %v", err)
	}
}

func TestWSRequest_Encoding(t *testing.T) {
	data, err := json.Marshal(wsRequest{JSONRPC: "2.0", ID: 7, Method: "public/ticker", Params: map[string]interface{}{"instrument_name": "X"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","id":7,"method":"public/ticker","params":{"instrument_name":"X"}}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}
