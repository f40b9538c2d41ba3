package finnhub

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdgate/internal/cache"
	"mdgate/internal/errors"
	"mdgate/internal/market"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	mem := cache.NewMemory(100)
	t.Cleanup(mem.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "key"}, mem, nil, nil)
}

func TestGetQuotes(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("token"))
		switch r.URL.Query().Get("symbol") {
		case "AAPL":
			fmt.Fprint(w, `{"c": 189.5, "d": 2, "dp": 1.07, "h": 190, "l": 187, "o": 188, "pc": 187.5, "t": 1700000000}`)
		default:
			fmt.Fprint(w, `{"c": 370.1, "d": 1.1, "dp": 0.3, "h": 371, "l": 367, "o": 368, "pc": 369, "t": 1700000000}`)
		}
	}))

	quotes, err := c.GetQuotes(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "AAPL", quotes[0].Symbol)
	assert.Equal(t, 189.5, quotes[0].Price)
	assert.Equal(t, "MSFT", quotes[1].Symbol)
}

func TestGetQuotesUnknownSymbol(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Finnhub's way of saying "no such symbol".
		fmt.Fprint(w, `{"c": 0, "d": null, "dp": null, "h": 0, "l": 0, "o": 0, "pc": 0, "t": 0}`)
	}))

	_, err := c.GetQuotes(context.Background(), []string{"ZZZZ"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidSymbol))
}

func TestGetHistoricalBars(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stock/candle", r.URL.Path)
		assert.Equal(t, "D", r.URL.Query().Get("resolution"))
		fmt.Fprint(w, `{"s": "ok",
			"t": [1700000000, 1700086400],
			"o": [1, 1.5], "h": [2, 2.5], "l": [0.5, 1], "c": [1.5, 2], "v": [100, 200]}`)
	}))

	bars, err := c.GetHistoricalBars(context.Background(), market.BarsRequest{
		Symbol: "AAPL", Timeframe: market.TimeframeDay, Start: 1700000000, End: 1700170000,
	})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 1.5, bars[0].Close)
	assert.Equal(t, int64(200), bars[1].Volume)
}

func TestGetHistoricalBarsNoData(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"s": "no_data"}`)
	}))

	bars, err := c.GetHistoricalBars(context.Background(), market.BarsRequest{
		Symbol: "AAPL", Timeframe: market.TimeframeDay, Start: 1, End: 2,
	})
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestGetNews(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/company-news", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		fmt.Fprint(w, `[
			{"id": 101, "datetime": 1700000000, "headline": "Apple ships thing",
			 "related": "AAPL", "source": "wire", "summary": "sum", "url": "https://example.com/1"},
			{"id": 102, "datetime": 1700000100, "headline": "More apple news",
			 "related": "AAPL", "source": "wire", "summary": "sum2", "url": "https://example.com/2"}
		]`)
	}))

	items, err := c.GetNews(context.Background(), market.NewsRequest{Symbol: "AAPL", Limit: 1})
	require.NoError(t, err)
	require.Len(t, items, 1, "limit must be applied")
	assert.Equal(t, "101", items[0].ID)
	assert.Equal(t, []string{"AAPL"}, items[0].Symbols)
}
