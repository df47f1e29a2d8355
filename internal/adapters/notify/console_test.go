package notify_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polysignal/internal/adapters/notify"
	"github.com/alejandrodnm/polysignal/internal/domain"
)

func makeSignal(title string, ai float64, winner bool) domain.Signal {
	return domain.Signal{
		ID:               "sig-" + title,
		Title:            title,
		MarketType:       "nba",
		Direction:        "Lakers",
		Price:            0.12,
		BaseScore:        100,
		AIScore:          ai,
		AIMultiplier:     1,
		Confidence:       70,
		TotalVolume:      120_000,
		Wallets:          []string{"0xabc"},
		HasWinningWallet: winner,
		Factors: []domain.FactorRef{
			{Name: "betMega", Points: 80},
			{Name: "priceDeepLongshot", Points: 35},
		},
	}
}

func TestConsole_NotifySignals_Table(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	err := n.NotifySignals(context.Background(), []domain.Signal{
		makeSignal("Lakers vs. Celtics", 100, true),
		makeSignal("Knicks vs. Heat", 64, false),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Lakers vs. Celtics")
	assert.Contains(t, out, "Knicks vs. Heat")
	assert.Contains(t, out, "betMega,priceDeepLongshot")
	assert.Contains(t, out, "★")
	assert.Contains(t, out, "12%")
}

func TestConsole_NotifySignals_Compact(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, n.NotifySignals(context.Background(), []domain.Signal{makeSignal("Lakers vs. Celtics", 88, false)}))
	assert.Contains(t, buf.String(), "1 signals")
	assert.Contains(t, buf.String(), "ai88")
}

func TestConsole_NotifySignals_Empty(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	require.NoError(t, n.NotifySignals(context.Background(), nil))
	assert.Contains(t, buf.String(), "no signals")
}

func TestConsole_PrintLeaderboard(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	n.PrintLeaderboard([]domain.WalletStat{{
		Address:       "0x1234567890abcdef1234",
		Tier:          domain.TierElite,
		Wins:          8,
		Losses:        2,
		WinRate:       80,
		TotalVolume:   40_000,
		RealizedPnL:   1234.5,
		CurrentStreak: 3,
	}})

	out := buf.String()
	assert.Contains(t, out, "ELITE")
	assert.Contains(t, out, "0x1234…1234")
	assert.Contains(t, out, "+3")
	assert.Contains(t, out, "$1234.50")
}

func TestConsole_PrintDiscovery(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	n.PrintDiscovery(
		[]domain.FactorStat{{Name: "tod_evening", Wins: 9, Losses: 1, WinRate: 90, Weight: 1.85, SampleSize: 10, Discovered: true}},
		[]domain.PatternCandidate{{Dimension: domain.DimensionVolume, Name: "vol_under_10k", Wins: 1, Losses: 5, WinRate: 16.7, SampleSize: 6}},
	)

	out := buf.String()
	assert.Contains(t, out, "DISCOVERED PATTERNS (1)")
	assert.Contains(t, out, "tod_evening")
	assert.Contains(t, out, "NEAR PROMOTION (1)")
	assert.Contains(t, out, "vol_under_10k")
}
