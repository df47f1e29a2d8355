package wallets

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/alejandrodnm/polysignal/internal/domain"
	"github.com/alejandrodnm/polysignal/internal/kv"
)

// DedupReport resume una pasada de deduplicación.
type DedupReport struct {
	WalletsScanned int
	WalletsChanged int
	BetsRemoved    int
	TradesRemoved  int
}

type dedupKey struct {
	market string
	amount float64
}

func keyFor(market string, amount float64) dedupKey {
	return dedupKey{market: strings.ToLower(strings.TrimSpace(market)), amount: math.Round(amount)}
}

// DeduplicateWalletBets recorre las wallets seguidas y elimina apuestas que
// colisionan en (mercado, importe redondeado), quedándose con la resuelta si
// la hay. Pending y el volumen se recalculan a partir de lo que queda.
func (l *Ledger) DeduplicateWalletBets(ctx context.Context) (DedupReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var report DedupReport
	addrs, _, err := kv.GetJSON[[]string](ctx, l.kv, keyTracked)
	if err != nil {
		return report, fmt.Errorf("wallets.DeduplicateWalletBets: %w", err)
	}

	for _, addr := range addrs {
		stat, found, err := kv.GetJSON[domain.WalletStat](ctx, l.kv, walletKey(addr))
		if err != nil {
			return report, fmt.Errorf("wallets.DeduplicateWalletBets: %s: %w", addr, err)
		}
		if !found {
			continue
		}
		ledger, _, err := kv.GetJSON[domain.WalletLedger](ctx, l.kv, tradesKey(addr))
		if err != nil {
			return report, fmt.Errorf("wallets.DeduplicateWalletBets: %s: %w", addr, err)
		}
		report.WalletsScanned++

		bets, removedVolume, betsRemoved := dedupBets(stat.RecentBets)
		open, tradesRemoved := dedupOpen(ledger)
		if betsRemoved == 0 && tradesRemoved == 0 {
			continue
		}

		stat.RecentBets = bets
		stat.TotalVolume = math.Max(0, stat.TotalVolume-removedVolume)
		ledger.Open = open
		stat.Pending = len(open)
		stat.UnrealizedPnL = unrealized(open)
		stat.UpdatedAt = l.now()
		l.refresh(&stat)

		if err := kv.PutJSON(ctx, l.kv, tradesKey(addr), ledger, 0); err != nil {
			return report, fmt.Errorf("wallets.DeduplicateWalletBets: %s: %w", addr, err)
		}
		if err := kv.PutJSON(ctx, l.kv, walletKey(addr), stat, 0); err != nil {
			return report, fmt.Errorf("wallets.DeduplicateWalletBets: %s: %w", addr, err)
		}
		report.WalletsChanged++
		report.BetsRemoved += betsRemoved
		report.TradesRemoved += tradesRemoved
		slog.Info("wallet deduplicated", "wallet", addr, "bets_removed", betsRemoved, "trades_removed", tradesRemoved)
	}
	if report.WalletsChanged > 0 {
		l.invalidateWinners(ctx)
	}
	return report, nil
}

// dedupBets se queda con una apuesta por clave, prefiriendo la resuelta.
// Devuelve el volumen de las apuestas descartadas.
func dedupBets(bets []domain.WalletBet) ([]domain.WalletBet, float64, int) {
	keep := make(map[dedupKey]int, len(bets))
	for i, b := range bets {
		k := keyFor(b.Market, b.Amount)
		j, seen := keep[k]
		if !seen || (bets[j].IsPending() && !b.IsPending()) {
			keep[k] = i
		}
	}
	out := make([]domain.WalletBet, 0, len(keep))
	var removedVolume float64
	for i, b := range bets {
		if keep[keyFor(b.Market, b.Amount)] == i {
			out = append(out, b)
			continue
		}
		removedVolume += b.Amount
	}
	return out, removedVolume, len(bets) - len(out)
}

// dedupOpen elimina posiciones abiertas repetidas y las que ya tienen una
// resuelta con la misma clave.
func dedupOpen(ledger domain.WalletLedger) ([]domain.LedgerTrade, int) {
	resolved := make(map[dedupKey]bool, len(ledger.Resolved))
	for _, t := range ledger.Resolved {
		resolved[keyFor(t.Market, t.Stake)] = true
	}
	seen := make(map[dedupKey]bool, len(ledger.Open))
	out := make([]domain.LedgerTrade, 0, len(ledger.Open))
	for _, t := range ledger.Open {
		k := keyFor(t.Market, t.Stake)
		if seen[k] || resolved[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	return out, len(ledger.Open) - len(out)
}
