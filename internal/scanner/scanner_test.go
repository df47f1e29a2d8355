package scanner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polysignal/internal/adapters/storage"
	"github.com/alejandrodnm/polysignal/internal/domain"
	"github.com/alejandrodnm/polysignal/internal/learning"
	"github.com/alejandrodnm/polysignal/internal/metrics"
	"github.com/alejandrodnm/polysignal/internal/ports"
	"github.com/alejandrodnm/polysignal/internal/scanner"
	"github.com/alejandrodnm/polysignal/internal/signals"
	"github.com/alejandrodnm/polysignal/internal/wallets"
)

var now = time.Date(2025, 1, 15, 18, 0, 0, 0, time.UTC)

// --- mocks ---

type mockFeed struct {
	trades []domain.Trade
	err    error
	since  time.Time
}

func (m *mockFeed) FetchRecentTrades(_ context.Context, since time.Time, _ float64) ([]domain.Trade, error) {
	m.since = since
	return m.trades, m.err
}

type mockMetadata struct {
	times map[string]domain.EventTimes
}

func (m *mockMetadata) FetchEventTimes(_ context.Context, slug string) (domain.EventTimes, error) {
	t, ok := m.times[slug]
	if !ok {
		return domain.EventTimes{}, errors.New("not found")
	}
	return t, nil
}

type mockNotifier struct {
	notified []domain.Signal
	calls    int
}

func (m *mockNotifier) NotifySignals(_ context.Context, sigs []domain.Signal) error {
	m.calls++
	m.notified = sigs
	return nil
}

type mockPrices struct{ price float64 }

func (m *mockPrices) FetchMarketPrice(context.Context, string, string) (domain.MarketPrice, error) {
	return domain.MarketPrice{Price: m.price}, nil
}

// --- helpers ---

type env struct {
	scanner  *scanner.Scanner
	feed     *mockFeed
	notifier *mockNotifier
	prices   *mockPrices
	ledger   *wallets.Ledger
}

func newEnv(t *testing.T, cfg scanner.Config, trades ...domain.Trade) *env {
	t.Helper()
	return newEnvWithMetadata(t, cfg, nil, trades...)
}

func newEnvWithMetadata(t *testing.T, cfg scanner.Config, meta ports.MetadataProvider, trades ...domain.Trade) *env {
	t.Helper()
	db, err := storage.NewSQLiteKV(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rules := domain.DefaultRules()
	m := metrics.NewRegistry()
	ledger := wallets.NewLedger(db, rules.Wallets, m)
	store := learning.NewStore(db, rules.Learning, m)
	prices := &mockPrices{price: 0.5}
	mgr := signals.NewManager(signals.Deps{
		Store:    db,
		Wallets:  ledger,
		Learning: store,
		Prices:   prices,
		Metrics:  m,
	}, rules)
	signals.SetClock(mgr, func() time.Time { return now })

	e := &env{
		feed:     &mockFeed{trades: trades},
		notifier: &mockNotifier{},
		prices:   prices,
		ledger:   ledger,
	}
	e.scanner = scanner.New(cfg, rules, scanner.Deps{
		Feed:     e.feed,
		Metadata: meta,
		Store:    db,
		Wallets:  ledger,
		Learning: store,
		Signals:  mgr,
		Notifier: e.notifier,
		Metrics:  m,
	})
	scanner.SetClock(e.scanner, func() time.Time { return now })
	return e
}

func makeTrade(id, slug, title, outcome, wallet string, price, size float64) domain.Trade {
	return domain.Trade{
		ID:        id,
		MarketID:  "cond-" + slug,
		Slug:      slug,
		Title:     title,
		Outcome:   outcome,
		Side:      "BUY",
		Price:     price,
		Size:      size,
		Wallet:    wallet,
		Timestamp: now.Add(-time.Hour),
	}
}

func whaleTrade() domain.Trade {
	return makeTrade("0x1:a", "nba-lal-bos-2025-01-15", "Lakers vs Celtics", "Yes", "0xwhale", 0.12, 120_000)
}

func mediumTrade() domain.Trade {
	return makeTrade("0x2:a", "nfl-kc-buf-2025-01-15", "Chiefs vs Bills", "No", "0xmid", 0.5, 5_000)
}

// --- tests ---

func TestRunScan_WhaleSignal(t *testing.T) {
	e := newEnv(t, scanner.DefaultConfig(), whaleTrade())

	res, err := e.scanner.RunScan(context.Background(), scanner.ScanRequest{})
	require.NoError(t, err)
	require.Len(t, res.Signals, 1)

	sig := res.Signals[0]
	assert.Equal(t, "Lakers", sig.Direction)
	assert.Equal(t, "nba", sig.MarketType)
	assert.InDelta(t, 100.0, sig.BaseScore, 0.001)
	assert.InDelta(t, 100.0, sig.AIScore, 0.001)
	assert.GreaterOrEqual(t, sig.Confidence, 40.0)
	assert.LessOrEqual(t, sig.Confidence, 95.0)
	// Inicio estimado desde el slug: 23:00 UTC del día del partido
	assert.Equal(t, time.Date(2025, 1, 15, 23, 0, 0, 0, time.UTC), sig.EventStart)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, now.Add(-6*time.Hour), e.feed.since)

	assert.Equal(t, 1, e.notifier.calls)
	stat, err := e.ledger.WalletStats(context.Background(), "0xwhale")
	require.NoError(t, err)
	assert.Equal(t, 1, stat.Pending)
}

func TestRunScan_SkipsWhenPreviousRunIsRecent(t *testing.T) {
	e := newEnv(t, scanner.DefaultConfig(), whaleTrade())
	ctx := context.Background()

	_, err := e.scanner.RunScan(ctx, scanner.ScanRequest{})
	require.NoError(t, err)

	_, err = e.scanner.RunScan(ctx, scanner.ScanRequest{})
	assert.ErrorIs(t, err, scanner.ErrScanSkipped)

	// Force ignora el guard y reutiliza la señal pendiente del mercado
	res, err := e.scanner.RunScan(ctx, scanner.ScanRequest{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Existing)
	require.Len(t, res.Signals, 1)
}

func TestRunScan_PartialFeedKeepsTrades(t *testing.T) {
	e := newEnv(t, scanner.DefaultConfig(), whaleTrade())
	e.feed.err = context.DeadlineExceeded

	res, err := e.scanner.RunScan(context.Background(), scanner.ScanRequest{})
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Len(t, res.Signals, 1)
}

func TestRunScan_FeedDownDegradesToEmpty(t *testing.T) {
	e := newEnv(t, scanner.DefaultConfig())
	e.feed.err = errors.New("connection refused")

	res, err := e.scanner.RunScan(context.Background(), scanner.ScanRequest{})
	require.NoError(t, err)
	assert.Empty(t, res.Signals)
	assert.Equal(t, 0, e.notifier.calls)
}

func TestRunScan_DropsAreCounted(t *testing.T) {
	resolved := makeTrade("0x3:a", "nba-den-phx-2025-01-15", "Nuggets vs Suns", "Yes", "0xr", 0.97, 50_000)
	gambling := makeTrade("0x4:a", "btc-up-or-down-15m", "Bitcoin Up or Down", "Up", "0xg", 0.5, 50_000)
	e := newEnv(t, scanner.DefaultConfig(), whaleTrade(), resolved, gambling)

	res, err := e.scanner.RunScan(context.Background(), scanner.ScanRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Windows)
	assert.Equal(t, 2, res.Diagnostics.DroppedTotal())
	assert.Equal(t, 1, res.Diagnostics.Dropped["resolved_price"])
	assert.Equal(t, 1, res.Diagnostics.Dropped["gambling"])
}

func TestRunScan_RanksByAIScore(t *testing.T) {
	e := newEnv(t, scanner.DefaultConfig(), mediumTrade(), whaleTrade())

	res, err := e.scanner.RunScan(context.Background(), scanner.ScanRequest{})
	require.NoError(t, err)
	require.Len(t, res.Signals, 2)
	assert.Equal(t, "nba-lal-bos-2025-01-15", res.Signals[0].MarketKey)
	assert.Equal(t, "nfl-kc-buf-2025-01-15", res.Signals[1].MarketKey)
	assert.GreaterOrEqual(t, res.Signals[0].AIScore, res.Signals[1].AIScore)
}

func TestRunScan_Filters(t *testing.T) {
	tests := []struct {
		name    string
		req     scanner.ScanRequest
		wantLen int
	}{
		{"market type", scanner.ScanRequest{Filters: &scanner.FilterConfig{MarketTypes: []string{"NFL"}}}, 1},
		{"min volume", scanner.ScanRequest{Filters: &scanner.FilterConfig{MinVolume: 100_000}}, 1},
		{"limit", scanner.ScanRequest{Filters: &scanner.FilterConfig{Limit: 1}}, 1},
		{"min score", scanner.ScanRequest{MinScore: 101}, 0},
		{"no filters", scanner.ScanRequest{Filters: &scanner.FilterConfig{}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, scanner.DefaultConfig(), mediumTrade(), whaleTrade())
			res, err := e.scanner.RunScan(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Len(t, res.Signals, tt.wantLen)
		})
	}
}

func TestRunScan_UsesMetadataEventTimes(t *testing.T) {
	start := now.Add(30 * time.Minute)
	meta := &mockMetadata{times: map[string]domain.EventTimes{
		"nba-lal-bos-2025-01-15": {Start: start},
	}}
	e := newEnvWithMetadata(t, scanner.DefaultConfig(), meta, whaleTrade())

	res, err := e.scanner.RunScan(context.Background(), scanner.ScanRequest{})
	require.NoError(t, err)
	require.Len(t, res.Signals, 1)
	assert.Equal(t, start, res.Signals[0].EventStart)
	assert.Equal(t, start.Add(3*time.Hour), res.Signals[0].EventEnd)
	assert.Equal(t, "<2h", res.Signals[0].TimingWindow)
}

func TestRun_DryRunScansAndSettles(t *testing.T) {
	cfg := scanner.DefaultConfig()
	cfg.DryRun = true
	e := newEnv(t, cfg, whaleTrade())
	e.prices.price = 0.98

	require.NoError(t, e.scanner.Run(context.Background()))

	stat, err := e.ledger.WalletStats(context.Background(), "0xwhale")
	require.NoError(t, err)
	assert.Equal(t, 1, stat.Wins)
	assert.Equal(t, 0, stat.Pending)
}

func TestRecordSettlement_FeedsReadSide(t *testing.T) {
	e := newEnv(t, scanner.DefaultConfig(), whaleTrade())
	ctx := context.Background()

	res, err := e.scanner.RunScan(ctx, scanner.ScanRequest{})
	require.NoError(t, err)
	require.Len(t, res.Signals, 1)

	e.prices.price = 0.97
	outcome, err := e.scanner.RecordSettlement(ctx, res.Signals[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeWin, outcome)

	// Segunda llamada: sin efectos
	outcome, err = e.scanner.RecordSettlement(ctx, res.Signals[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeWin, outcome)

	stat, err := e.scanner.WalletStats(ctx, "0xwhale")
	require.NoError(t, err)
	assert.Equal(t, 1, stat.Wins)

	factors, err := e.scanner.FactorStats(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, factors)
	for _, f := range factors {
		assert.Equal(t, 1, f.Wins, f.Name)
	}

	// Con una sola apuesta la wallet no entra en el ranking
	board, err := e.scanner.WalletLeaderboard(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, board)

	disc, err := e.scanner.DiscoveredPatterns(ctx)
	require.NoError(t, err)
	assert.Empty(t, disc.Promoted)
}
