package stability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeTupleDecoding(t *testing.T) {
	raw := `[["1.2345","100.5",1718452800000,true],["1.2350","50",1718452801000,false]]`

	var trades []Trade
	require.NoError(t, json.Unmarshal([]byte(raw), &trades))
	require.Len(t, trades, 2)

	assert.Equal(t, 1.2345, trades[0].Price)
	assert.Equal(t, 100.5, trades[0].Quantity)
	assert.Equal(t, time.UnixMilli(1718452800000).UTC(), trades[0].Time)
	assert.True(t, trades[0].IsBuyerMaker)
	assert.False(t, trades[1].IsBuyerMaker)
}

func TestTradeTupleDecodingRejectsShortTuple(t *testing.T) {
	var trade Trade
	err := json.Unmarshal([]byte(`["1.23","10"]`), &trade)
	assert.Error(t, err)
}

func TestRecentTrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, aggTradesPath, r.URL.Path)
		assert.Equal(t, "FOOUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":"000000","data":[["1.23","10",1718452800000,false]]}`))
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL}, zerolog.Nop())
	trades, err := client.RecentTrades(context.Background(), "FOO")

	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, 1.23, trades[0].Price)
}

func TestRecentTradesBareArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[["1.23","10",1718452800000,false]]`))
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL}, zerolog.Nop())
	trades, err := client.RecentTrades(context.Background(), "FOO")

	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestRecentTradesNonOKIsQuietMarket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL}, zerolog.Nop())
	trades, err := client.RecentTrades(context.Background(), "FOO")

	require.NoError(t, err, "throttling must not surface as an error")
	assert.Empty(t, trades)
}
