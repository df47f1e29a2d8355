// Package signals gestiona el ciclo de vida de las señales: creación,
// persistencia, liquidación y el barrido periódico de pendientes.
package signals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polysignal/internal/domain"
	"github.com/alejandrodnm/polysignal/internal/kv"
	"github.com/alejandrodnm/polysignal/internal/metrics"
	"github.com/alejandrodnm/polysignal/internal/ports"
	"github.com/alejandrodnm/polysignal/internal/scoring"
	"github.com/alejandrodnm/polysignal/internal/wallets"
)

const (
	keySignalPrefix = "signal:"
	keyPending      = "signals:pending"
)

// ErrSignalNotFound indica que la señal no existe o ya expiró.
var ErrSignalNotFound = errors.New("signals: signal not found")

// WalletBook es la parte del ledger de wallets que usa el ciclo de vida.
type WalletBook interface {
	RecordBet(ctx context.Context, bet wallets.Bet) error
	RecordOutcome(ctx context.Context, o wallets.Outcome) (domain.WalletStat, error)
	VoidSignal(ctx context.Context, signalID string) (int, error)
}

// Learner recibe el resultado de cada señal liquidada.
type Learner interface {
	RecordSettlement(ctx context.Context, signalID string, factors []string, keys domain.PatternKeys, outcome domain.Outcome) error
}

// Candidate es una ventana ya evaluada que el scanner quiere persistir.
type Candidate struct {
	Window     domain.MarketWindow
	Evaluation scoring.Evaluation
	DetectedAt time.Time
}

// Deps agrupa los colaboradores del Manager. Games, Prices, Publisher y
// Metrics son opcionales.
type Deps struct {
	Store     ports.KVStore
	Wallets   WalletBook
	Learning  Learner
	Games     ports.GameResultProvider
	Prices    ports.MarketResolver
	Publisher ports.SignalPublisher
	Metrics   *metrics.Registry
}

// Manager es el Signal Lifecycle Manager.
type Manager struct {
	deps  Deps
	rules domain.Rules
	now   func() time.Time
}

// NewManager crea un Manager.
func NewManager(deps Deps, rules domain.Rules) *Manager {
	return &Manager{deps: deps, rules: rules, now: time.Now}
}

func signalKey(id string) string { return keySignalPrefix + id }

// Create persiste una señal pendiente y registra una apuesta por cada top trade.
// Los fallos al registrar apuestas no invalidan la señal: se loguean y cuentan.
func (m *Manager) Create(ctx context.Context, c Candidate) (domain.Signal, error) {
	sig := buildSignal(c, m.rules.Scoring.MaxTopTrades)
	if err := m.save(ctx, sig, m.pendingTTL(sig, m.now())); err != nil {
		return domain.Signal{}, fmt.Errorf("signals.Create: persist: %w", err)
	}
	if _, err := kv.AddToIndex(ctx, m.deps.Store, keyPending, sig.ID); err != nil {
		return domain.Signal{}, fmt.Errorf("signals.Create: pending index: %w", err)
	}

	if m.deps.Wallets != nil {
		for _, t := range sig.TopTrades {
			err := m.deps.Wallets.RecordBet(ctx, wallets.Bet{
				Address:   t.Wallet,
				SignalID:  sig.ID,
				Market:    sig.MarketKey,
				Direction: t.Outcome,
				Amount:    t.Size,
				Price:     t.Price,
				PlacedAt:  t.Timestamp,
			})
			switch {
			case errors.Is(err, wallets.ErrDuplicateBet):
				slog.Debug("duplicate wallet bet skipped", "wallet", t.Wallet, "market", sig.MarketKey)
			case err != nil:
				slog.Warn("could not record wallet bet", "wallet", t.Wallet, "signal", sig.ID, "err", err)
				m.deps.Metrics.StoreError("wallets")
			}
		}
	}

	m.deps.Metrics.SignalCreated(sig.MarketType)
	if m.deps.Publisher != nil {
		if err := m.deps.Publisher.PublishCreated(ctx, sig); err != nil {
			slog.Warn("publish signal created failed", "signal", sig.ID, "err", err)
		}
	}
	return sig, nil
}

func buildSignal(c Candidate, maxTop int) domain.Signal {
	w, ev := c.Window, c.Evaluation
	direction := w.LargestOutcome
	if direction == "" {
		direction = w.DominantOutcome()
	}
	return domain.Signal{
		ID:               uuid.NewString(),
		MarketID:         w.MarketID,
		MarketKey:        w.Key,
		Slug:             w.Slug,
		Title:            w.Title,
		MarketType:       w.MarketType,
		Direction:        direction,
		Price:            w.LargestPrice,
		BaseScore:        ev.BaseScore,
		AIScore:          ev.AIScore,
		AIMultiplier:     ev.Multiplier,
		ShouldHide:       ev.ShouldHide,
		Confidence:       ev.Confidence,
		Factors:          ev.Factors,
		TopTrades:        w.TopTrades(maxTop),
		HasWinningWallet: ev.HasWinningWallet,
		TimingWindow:     ev.TimingWindow,
		Patterns:         ev.Keys,
		TotalVolume:      w.TotalVolume,
		Wallets:          w.WalletList(),
		EventStart:       w.EventStart,
		EventEnd:         w.EventEnd,
		CreatedAt:        c.DetectedAt,
		LastTradeAt:      w.LastTrade,
	}
}

// Get devuelve una señal por id.
func (m *Manager) Get(ctx context.Context, id string) (domain.Signal, error) {
	sig, found, err := kv.GetJSON[domain.Signal](ctx, m.deps.Store, signalKey(id))
	if err != nil {
		return domain.Signal{}, fmt.Errorf("signals.Get: %w", err)
	}
	if !found {
		return domain.Signal{}, ErrSignalNotFound
	}
	return sig, nil
}

// Pending devuelve las señales del índice de pendientes que siguen existiendo.
func (m *Manager) Pending(ctx context.Context) ([]domain.Signal, error) {
	ids, err := m.pendingIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("signals.Pending: %w", err)
	}
	out := make([]domain.Signal, 0, len(ids))
	for _, id := range ids {
		sig, err := m.Get(ctx, id)
		if errors.Is(err, ErrSignalNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("signals.Pending: %w", err)
		}
		if sig.IsPending() {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (m *Manager) pendingIDs(ctx context.Context) ([]string, error) {
	ids, _, err := kv.GetJSON[[]string](ctx, m.deps.Store, keyPending)
	return ids, err
}

// tradeKey identifica una apuesta dentro del journal de wallets.
func tradeKey(t domain.Trade, i int) string {
	if t.ID != "" {
		return t.ID
	}
	return fmt.Sprintf("%s#%d", strings.ToLower(t.Wallet), i)
}
