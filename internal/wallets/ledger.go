// Package wallets implementa el ledger de reputación de wallets: apuestas
// registradas, resultados, tiers, retención y la caché de wallets ganadoras.
package wallets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/polysignal/internal/domain"
	"github.com/alejandrodnm/polysignal/internal/kv"
	"github.com/alejandrodnm/polysignal/internal/metrics"
	"github.com/alejandrodnm/polysignal/internal/ports"
)

const (
	keyWalletPrefix = "wallet:"
	keyTracked      = "wallets:tracked"
	keyWinners      = "wallets:winners"
)

var (
	// ErrDuplicateBet indica que la apuesta ya estaba registrada (mismo mercado,
	// importe ±DuplicateAmount, dentro de DuplicateWindow).
	ErrDuplicateBet = errors.New("wallets: duplicate bet")
	// ErrNoPendingBet indica que no hay apuesta abierta que casar con el resultado.
	ErrNoPendingBet = errors.New("wallets: no pending bet")
	// ErrWalletNotFound indica que la wallet no está en el ledger.
	ErrWalletNotFound = errors.New("wallets: wallet not found")
)

// Bet es una apuesta observada que se registra como pendiente.
type Bet struct {
	Address   string
	SignalID  string
	Market    string
	Direction string
	Amount    float64
	Price     float64
	PlacedAt  time.Time
}

// Outcome es el resultado de una apuesta liquidada.
type Outcome struct {
	Address  string
	SignalID string
	Market   string
	Outcome  domain.Outcome
}

// Ledger es el Wallet Reputation Ledger.
type Ledger struct {
	kv      ports.KVStore
	rules   domain.WalletRules
	metrics *metrics.Registry
	now     func() time.Time

	mu      sync.Mutex
	winners winnersCache
}

// NewLedger crea un Ledger sobre el KV dado. m puede ser nil.
func NewLedger(store ports.KVStore, rules domain.WalletRules, m *metrics.Registry) *Ledger {
	return &Ledger{kv: store, rules: rules, metrics: m, now: time.Now}
}

func walletKey(addr string) string { return keyWalletPrefix + addr }
func tradesKey(addr string) string { return keyWalletPrefix + addr + ":trades" }

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// RecordBet registra una apuesta pendiente. Devuelve ErrDuplicateBet si ya
// existe una apuesta pendiente equivalente reciente.
func (l *Ledger) RecordBet(ctx context.Context, bet Bet) error {
	addr := normalize(bet.Address)
	if addr == "" || bet.Market == "" {
		return fmt.Errorf("wallets.RecordBet: missing address or market")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	placed := bet.PlacedAt
	if placed.IsZero() {
		placed = now
	}

	stat, found, err := kv.GetJSON[domain.WalletStat](ctx, l.kv, walletKey(addr))
	if err != nil {
		return fmt.Errorf("wallets.RecordBet: %w", err)
	}
	if !found {
		stat = domain.WalletStat{Address: addr, FirstSeen: now}
	}
	if l.isDuplicate(stat, bet, now) {
		return ErrDuplicateBet
	}

	ledger, _, err := kv.GetJSON[domain.WalletLedger](ctx, l.kv, tradesKey(addr))
	if err != nil {
		return fmt.Errorf("wallets.RecordBet: %w", err)
	}

	// Re-marcar posiciones abiertas del mismo mercado con el último precio
	for i := range ledger.Open {
		t := &ledger.Open[i]
		if strings.EqualFold(t.Market, bet.Market) && strings.EqualFold(t.Direction, bet.Direction) {
			t.MarkPrice = bet.Price
		}
	}
	ledger.Open = append(ledger.Open, domain.LedgerTrade{
		SignalID:   bet.SignalID,
		Market:     bet.Market,
		Direction:  bet.Direction,
		Stake:      bet.Amount,
		EntryPrice: bet.Price,
		MarkPrice:  bet.Price,
		OpenedAt:   placed,
	})
	ledger.Open = capTail(ledger.Open, l.rules.OpenTradesCap)

	stat.RecentBets = append(stat.RecentBets, domain.WalletBet{
		SignalID:   bet.SignalID,
		Market:     bet.Market,
		Direction:  bet.Direction,
		Amount:     bet.Amount,
		Price:      bet.Price,
		PlacedAt:   placed,
		RecordedAt: now,
	})
	stat.RecentBets = capTail(stat.RecentBets, l.rules.RecentBetsCap)
	// El cap puede descartar la posición abierta más antigua; Pending cuenta
	// solo lo que aún se puede liquidar.
	stat.Pending = len(ledger.Open)
	stat.TotalVolume += bet.Amount
	stat.LastBetAt = now
	stat.UpdatedAt = now
	stat.UnrealizedPnL = unrealized(ledger.Open)
	l.refresh(&stat)

	if err := kv.PutJSON(ctx, l.kv, tradesKey(addr), ledger, 0); err != nil {
		return fmt.Errorf("wallets.RecordBet: %w", err)
	}
	if err := kv.PutJSON(ctx, l.kv, walletKey(addr), stat, 0); err != nil {
		return fmt.Errorf("wallets.RecordBet: %w", err)
	}
	if _, err := kv.AddToIndex(ctx, l.kv, keyTracked, addr); err != nil {
		return fmt.Errorf("wallets.RecordBet: %w", err)
	}
	return nil
}

// isDuplicate busca una apuesta pendiente en el mismo mercado, con importe
// parecido, registrada en el ledger dentro de la ventana de duplicados.
func (l *Ledger) isDuplicate(stat domain.WalletStat, bet Bet, now time.Time) bool {
	for _, b := range stat.RecentBets {
		if !b.IsPending() || !strings.EqualFold(b.Market, bet.Market) {
			continue
		}
		if math.Abs(b.Amount-bet.Amount) > l.rules.DuplicateAmount {
			continue
		}
		recorded := b.RecordedAt
		if recorded.IsZero() {
			recorded = b.PlacedAt
		}
		if now.Sub(recorded) <= l.rules.DuplicateWindow {
			return true
		}
	}
	return false
}

// RecordOutcome liquida la apuesta abierta que corresponde al resultado
// (por SignalID, o si no por mercado) y aplica la política de retención.
// Devuelve ErrNoPendingBet sin cambiar nada si no hay apuesta que casar.
func (l *Ledger) RecordOutcome(ctx context.Context, o Outcome) (domain.WalletStat, error) {
	addr := normalize(o.Address)
	l.mu.Lock()
	defer l.mu.Unlock()

	stat, found, err := kv.GetJSON[domain.WalletStat](ctx, l.kv, walletKey(addr))
	if err != nil {
		return domain.WalletStat{}, fmt.Errorf("wallets.RecordOutcome: %w", err)
	}
	if !found {
		return domain.WalletStat{}, ErrNoPendingBet
	}
	ledger, _, err := kv.GetJSON[domain.WalletLedger](ctx, l.kv, tradesKey(addr))
	if err != nil {
		return domain.WalletStat{}, fmt.Errorf("wallets.RecordOutcome: %w", err)
	}

	idx := matchOpenTrade(ledger.Open, o)
	if idx < 0 {
		return stat, ErrNoPendingBet
	}

	now := l.now()
	trade := ledger.Open[idx]
	ledger.Open = append(ledger.Open[:idx:idx], ledger.Open[idx+1:]...)
	trade.SettledAt = &now
	trade.Outcome = o.Outcome
	trade.Return = domain.SettlementReturn(o.Outcome, trade.Stake, trade.EntryPrice)
	trade.PnL = trade.Return - trade.Stake
	ledger.Resolved = capTail(append(ledger.Resolved, trade), l.rules.ResolvedTradesCap)

	markRecentBet(stat.RecentBets, trade)
	stat.Pending = len(ledger.Open)
	switch o.Outcome {
	case domain.OutcomeWin:
		stat.Wins++
		if stat.CurrentStreak < 0 {
			stat.CurrentStreak = 0
		}
		stat.CurrentStreak++
	case domain.OutcomeLoss:
		stat.Losses++
		if stat.CurrentStreak > 0 {
			stat.CurrentStreak = 0
		}
		stat.CurrentStreak--
	}
	if stat.CurrentStreak > stat.BestStreak {
		stat.BestStreak = stat.CurrentStreak
	}
	stat.RealizedPnL += trade.PnL
	stat.UnrealizedPnL = unrealized(ledger.Open)
	stat.UpdatedAt = now
	l.refresh(&stat)

	// El ledger se escribe antes que el stat: si el segundo write falla, el
	// reintento no encuentra la apuesta abierta y no cuenta dos veces.
	if err := kv.PutJSON(ctx, l.kv, tradesKey(addr), ledger, 0); err != nil {
		return stat, fmt.Errorf("wallets.RecordOutcome: %w", err)
	}
	if err := kv.PutJSON(ctx, l.kv, walletKey(addr), stat, 0); err != nil {
		return stat, fmt.Errorf("wallets.RecordOutcome: %w", err)
	}

	if l.shouldEvict(stat, now) {
		if err := l.evict(ctx, addr); err != nil {
			// Un fallo de eviction deja la wallet en el ledger; no afecta a la liquidación.
			slog.Warn("wallet eviction failed", "wallet", addr, "err", err)
			l.metrics.StoreError("wallets")
		} else {
			slog.Info("wallet evicted", "wallet", addr, "win_rate", stat.WinRate, "bets", stat.TotalBets)
		}
	}
	l.invalidateWinners(ctx)
	return stat, nil
}

// VoidSignal liquida como UNKNOWN las apuestas abiertas de signalID en todas
// las wallets seguidas. Se usa cuando la señal desapareció antes de liquidarse.
// Devuelve cuántas apuestas anuló.
func (l *Ledger) VoidSignal(ctx context.Context, signalID string) (int, error) {
	if signalID == "" {
		return 0, nil
	}
	addrs, _, err := kv.GetJSON[[]string](ctx, l.kv, keyTracked)
	if err != nil {
		return 0, fmt.Errorf("wallets.VoidSignal: %w", err)
	}
	voided := 0
	for _, addr := range addrs {
		ledger, _, err := kv.GetJSON[domain.WalletLedger](ctx, l.kv, tradesKey(addr))
		if err != nil {
			return voided, fmt.Errorf("wallets.VoidSignal: %s: %w", addr, err)
		}
		if !hasOpenSignal(ledger.Open, signalID) {
			continue
		}
		_, err = l.RecordOutcome(ctx, Outcome{Address: addr, SignalID: signalID, Outcome: domain.OutcomeUnknown})
		switch {
		case errors.Is(err, ErrNoPendingBet):
		case err != nil:
			return voided, fmt.Errorf("wallets.VoidSignal: %s: %w", addr, err)
		default:
			voided++
		}
	}
	return voided, nil
}

func hasOpenSignal(open []domain.LedgerTrade, signalID string) bool {
	for _, t := range open {
		if t.SignalID == signalID {
			return true
		}
	}
	return false
}

// matchOpenTrade devuelve el índice de la posición abierta más específica:
// primero por SignalID exacto, después por mercado (substring, sin mayúsculas).
func matchOpenTrade(open []domain.LedgerTrade, o Outcome) int {
	if o.SignalID != "" {
		for i, t := range open {
			if t.SignalID == o.SignalID {
				return i
			}
		}
	}
	market := strings.ToLower(strings.TrimSpace(o.Market))
	if market == "" {
		return -1
	}
	for i, t := range open {
		m := strings.ToLower(t.Market)
		if strings.Contains(m, market) || strings.Contains(market, m) {
			return i
		}
	}
	return -1
}

// markRecentBet copia el resultado a la entrada del ring buffer que corresponde.
func markRecentBet(bets []domain.WalletBet, t domain.LedgerTrade) {
	for i := range bets {
		b := &bets[i]
		if !b.IsPending() {
			continue
		}
		sameSignal := t.SignalID != "" && b.SignalID == t.SignalID
		sameBet := strings.EqualFold(b.Market, t.Market) && b.Amount == t.Stake && b.PlacedAt.Equal(t.OpenedAt)
		if sameSignal || sameBet {
			b.Outcome = t.Outcome
			b.PnL = t.PnL
			return
		}
	}
}

// shouldEvict aplica la retención asimétrica: fácil mantener, difícil expulsar.
func (l *Ledger) shouldEvict(stat domain.WalletStat, now time.Time) bool {
	r := l.rules
	keep := stat.Pending > 0 ||
		stat.TotalBets < r.MinBetsForTier ||
		stat.WinRate > r.KeepWinRate ||
		stat.TotalVolume >= r.KeepVolume ||
		now.Sub(stat.LastBetAt) <= r.KeepRecency
	if keep {
		return false
	}
	return stat.TotalBets >= r.EvictMinBets && stat.WinRate < r.EvictWinRate
}

func (l *Ledger) evict(ctx context.Context, addr string) error {
	if err := l.kv.Delete(ctx, walletKey(addr)); err != nil {
		return err
	}
	if err := l.kv.Delete(ctx, tradesKey(addr)); err != nil {
		return err
	}
	_, err := kv.RemoveFromIndex(ctx, l.kv, keyTracked, addr)
	return err
}

// refresh recalcula totalBets, winRate y tier.
func (l *Ledger) refresh(stat *domain.WalletStat) {
	stat.Recount()
	stat.Tier = Classify(stat.WinRate, stat.TotalBets, stat.TotalVolume, l.rules.Tiers, l.rules.MinBetsForTier)
}

// WalletStats devuelve el registro de una wallet.
func (l *Ledger) WalletStats(ctx context.Context, address string) (domain.WalletStat, error) {
	stat, found, err := kv.GetJSON[domain.WalletStat](ctx, l.kv, walletKey(normalize(address)))
	if err != nil {
		return domain.WalletStat{}, fmt.Errorf("wallets.WalletStats: %w", err)
	}
	if !found {
		return domain.WalletStat{}, ErrWalletNotFound
	}
	return stat, nil
}

// Leaderboard devuelve las wallets con muestra suficiente ordenadas por win rate,
// número de apuestas y P&L realizado.
func (l *Ledger) Leaderboard(ctx context.Context, limit int) ([]domain.WalletStat, error) {
	stats, err := l.trackedStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallets.Leaderboard: %w", err)
	}
	out := stats[:0]
	for _, s := range stats {
		if s.TotalBets >= l.rules.MinBetsForTier {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].WinRate != out[j].WinRate {
			return out[i].WinRate > out[j].WinRate
		}
		if out[i].TotalBets != out[j].TotalBets {
			return out[i].TotalBets > out[j].TotalBets
		}
		return out[i].RealizedPnL > out[j].RealizedPnL
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// trackedStats carga todas las wallets del índice. Las entradas del índice sin
// registro (evicciones a medias) se ignoran.
func (l *Ledger) trackedStats(ctx context.Context) ([]domain.WalletStat, error) {
	addrs, _, err := kv.GetJSON[[]string](ctx, l.kv, keyTracked)
	if err != nil {
		return nil, err
	}
	out := make([]domain.WalletStat, 0, len(addrs))
	for _, a := range addrs {
		stat, found, err := kv.GetJSON[domain.WalletStat](ctx, l.kv, walletKey(a))
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, stat)
		}
	}
	return out, nil
}

func unrealized(open []domain.LedgerTrade) float64 {
	var sum float64
	for _, t := range open {
		sum += t.Unrealized()
	}
	return sum
}

// capTail deja los últimos n elementos.
func capTail[T any](s []T, n int) []T {
	if n <= 0 || len(s) <= n {
		return s
	}
	return append([]T(nil), s[len(s)-n:]...)
}
