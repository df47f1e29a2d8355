package polymarket_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polysignal/internal/adapters/polymarket"
)

func newTestClient(dataSrv, gammaSrv *httptest.Server) *polymarket.Client {
	dataURL := ""
	gammaURL := ""
	if dataSrv != nil {
		dataURL = dataSrv.URL
	}
	if gammaSrv != nil {
		gammaURL = gammaSrv.URL
	}
	return polymarket.NewClient(dataURL, gammaURL)
}

func tradeJSON(wallet string, shares, price float64, ts int64) string {
	return fmt.Sprintf(`{
		"proxyWallet": %q, "side": "BUY", "asset": "tok1", "conditionId": "0xcond",
		"size": %v, "price": %v, "timestamp": %d,
		"title": "Lakers vs. Celtics", "slug": "nba-lal-bos-2025-01-15",
		"outcome": "Yes", "outcomeIndex": 0, "transactionHash": "0xtx"
	}`, wallet, shares, price, ts)
}

func TestFetchRecentTrades_MapsNotionalAndFields(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trades", r.URL.Path)
		assert.Equal(t, "CASH", r.URL.Query().Get("filterType"))
		assert.Equal(t, "10", r.URL.Query().Get("filterAmount"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, "[%s]", tradeJSON("0xABC", 1000, 0.12, now.Unix()))
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	trades, err := client.FetchRecentTrades(context.Background(), now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.InDelta(t, 120.0, tr.Size, 0.001, "size = shares × price")
	assert.Equal(t, "0xabc", tr.Wallet, "wallet normalizada a minúsculas")
	assert.Equal(t, "nba-lal-bos-2025-01-15", tr.Slug)
	assert.Equal(t, "0xcond", tr.MarketID)
	assert.Equal(t, "BUY", tr.Side)
	assert.True(t, tr.Timestamp.Equal(now))
}

func TestFetchRecentTrades_DropsTradesBeforeSince(t *testing.T) {
	now := time.Now().UTC()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "[%s,%s]",
			tradeJSON("0xa", 100, 0.5, now.Add(-10*time.Minute).Unix()),
			tradeJSON("0xb", 100, 0.5, now.Add(-3*time.Hour).Unix()),
		)
	}))
	defer srv.Close()

	trades, err := newTestClient(srv, nil).FetchRecentTrades(context.Background(), now.Add(-time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "0xa", trades[0].Wallet)
}

func TestFetchRecentTrades_PartialResultsOnPageError(t *testing.T) {
	now := time.Now().UTC()
	page := make([]string, 500)
	for i := range page {
		page[i] = tradeJSON("0xa", 100, 0.5, now.Add(-time.Minute).Unix())
	}
	body := "[" + strings.Join(page, ",") + "]"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "0" {
			w.Write([]byte(body))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad offset"}`))
	}))
	defer srv.Close()

	trades, err := newTestClient(srv, nil).FetchRecentTrades(context.Background(), now.Add(-time.Hour), 0)
	require.Error(t, err)
	assert.Len(t, trades, 500, "la primera página se conserva aunque la segunda falle")
}

func TestFetchMarketPrice_ResolvesTeamOutcome(t *testing.T) {
	lastTrade := time.Date(2025, 1, 15, 22, 0, 0, 0, time.UTC)
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "0xcond", r.URL.Query().Get("condition_ids"))
		w.Write([]byte(`[{
			"conditionId": "0xcond",
			"question": "Lakers vs. Celtics",
			"outcomes": "[\"Yes\", \"No\"]",
			"outcomePrices": "[\"0.97\", \"0.03\"]",
			"closed": true
		}]`))
	}))
	defer gamma.Close()
	data := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0xcond", r.URL.Query().Get("market"))
		fmt.Fprintf(w, "[%s]", tradeJSON("0xa", 10, 0.97, lastTrade.Unix()))
	}))
	defer data.Close()

	client := newTestClient(data, gamma)

	mp, err := client.FetchMarketPrice(context.Background(), "0xcond", "Lakers")
	require.NoError(t, err)
	assert.Equal(t, "Yes", mp.Outcome)
	assert.InDelta(t, 0.97, mp.Price, 0.0001)
	assert.True(t, mp.Closed)
	assert.True(t, mp.LastTradeAt.Equal(lastTrade))

	mp, err = client.FetchMarketPrice(context.Background(), "0xcond", "Celtics")
	require.NoError(t, err)
	assert.InDelta(t, 0.03, mp.Price, 0.0001)

	_, err = client.FetchMarketPrice(context.Background(), "0xcond", "Knicks")
	assert.ErrorIs(t, err, polymarket.ErrMarketNotFound)
}

func TestFetchEventTimes(t *testing.T) {
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "nba-lal-bos-2025-01-15", r.URL.Query().Get("slug"))
		w.Write([]byte(`[{
			"slug": "nba-lal-bos-2025-01-15",
			"gameStartTime": "2025-01-16 00:30:00+00",
			"endDate": "2025-01-23T00:00:00Z"
		}]`))
	}))
	defer gamma.Close()

	et, err := newTestClient(nil, gamma).FetchEventTimes(context.Background(), "nba-lal-bos-2025-01-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 16, 0, 30, 0, 0, time.UTC), et.Start)
	assert.Equal(t, time.Date(2025, 1, 23, 0, 0, 0, 0, time.UTC), et.End)
}

func TestFetchGameResult(t *testing.T) {
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		w.Write([]byte(`[{"slug": "nba-lal-bos-2025-01-15", "title": "Lakers vs. Celtics", "score": "98-105", "ended": true}]`))
	}))
	defer gamma.Close()

	gr, err := newTestClient(nil, gamma).FetchGameResult(context.Background(), "nba-lal-bos-2025-01-15")
	require.NoError(t, err)
	assert.True(t, gr.Final)
	assert.Equal(t, "Celtics", gr.Winner)
	assert.Equal(t, 98, gr.HomeScore)
	assert.Equal(t, 105, gr.AwayScore)
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	b := polymarket.NewBreaker(newTestClient(srv, nil))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.FetchRecentTrades(ctx, time.Now().Add(-time.Hour), 10)
		require.Error(t, err)
	}

	_, err := b.FetchRecentTrades(ctx, time.Now().Add(-time.Hour), 10)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), hits.Load(), "con el circuito abierto no se llama al upstream")
}

func TestBreaker_NotFoundDoesNotTrip(t *testing.T) {
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer gamma.Close()

	b := polymarket.NewBreaker(newTestClient(nil, gamma))
	for i := 0; i < 5; i++ {
		_, err := b.FetchGameResult(context.Background(), "politics-election")
		assert.ErrorIs(t, err, polymarket.ErrMarketNotFound)
	}
}
