package wallets

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/polysignal/internal/domain"
	"github.com/alejandrodnm/polysignal/internal/kv"
)

// winnersCache guarda en memoria el set de wallets ganadoras hasta expires.
type winnersCache struct {
	set     map[string]bool
	expires time.Time
}

// winnersEntry es la forma persistida en wallets:winners.
type winnersEntry struct {
	Addresses []string  `json:"addresses"`
	BuiltAt   time.Time `json:"built_at"`
}

// IsWinningWallet devuelve true si la wallet tiene muestra suficiente y un
// win rate >= WinningWinRate. El set se cachea en memoria y en el KV
// durante WinnersCacheTTL.
func (l *Ledger) IsWinningWallet(ctx context.Context, address string) (bool, error) {
	addr := normalize(address)
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.winners.set != nil && now.Before(l.winners.expires) {
		return l.winners.set[addr], nil
	}

	entry, found, err := kv.GetJSON[winnersEntry](ctx, l.kv, keyWinners)
	if err != nil {
		return false, fmt.Errorf("wallets.IsWinningWallet: %w", err)
	}
	if !found || now.Sub(entry.BuiltAt) >= l.rules.WinnersCacheTTL {
		entry, err = l.buildWinners(ctx, now)
		if err != nil {
			return false, fmt.Errorf("wallets.IsWinningWallet: %w", err)
		}
	}

	set := make(map[string]bool, len(entry.Addresses))
	for _, a := range entry.Addresses {
		set[a] = true
	}
	l.winners = winnersCache{set: set, expires: entry.BuiltAt.Add(l.rules.WinnersCacheTTL)}
	return set[addr], nil
}

func (l *Ledger) buildWinners(ctx context.Context, now time.Time) (winnersEntry, error) {
	stats, err := l.trackedStats(ctx)
	if err != nil {
		return winnersEntry{}, err
	}
	entry := winnersEntry{Addresses: []string{}, BuiltAt: now}
	for _, s := range stats {
		if isWinner(s, l.rules) {
			entry.Addresses = append(entry.Addresses, s.Address)
		}
	}
	if err := kv.PutJSON(ctx, l.kv, keyWinners, entry, l.rules.WinnersCacheTTL); err != nil {
		return winnersEntry{}, err
	}
	return entry, nil
}

func isWinner(s domain.WalletStat, r domain.WalletRules) bool {
	return s.TotalBets >= r.MinBetsForTier && s.WinRate >= r.WinningWinRate
}

// invalidateWinners descarta el set cacheado tras un cambio de stats.
// Llamar con l.mu tomado.
func (l *Ledger) invalidateWinners(ctx context.Context) {
	l.winners = winnersCache{}
	if err := l.kv.Delete(ctx, keyWinners); err != nil {
		l.metrics.StoreError("wallets")
	}
}
