package signals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/polysignal/internal/domain"
	"github.com/alejandrodnm/polysignal/internal/kv"
	"github.com/alejandrodnm/polysignal/internal/wallets"
)

// Fuentes de liquidación.
const (
	SourceGame    = "game_result"
	SourcePrice   = "price"
	SourceTimeout = "timeout"
)

// SweepReport resume un barrido de señales pendientes.
type SweepReport struct {
	Checked  int
	Won      int
	Lost     int
	Unknown  int
	Pending  int
	Failed   int
	Dangling int // ids del índice cuya señal ya no existe
}

// Settled devuelve el número de señales liquidadas en el barrido.
func (r SweepReport) Settled() int {
	return r.Won + r.Lost + r.Unknown
}

// Settle intenta liquidar una señal. Devuelve el outcome final, o "" si la
// señal sigue pendiente. Liquidar una señal ya liquidada no tiene efectos.
//
// Los efectos (outcomes de wallets, aprendizaje, outcome final) se apuntan en
// Signal.Settlement: si uno falla la señal queda pendiente con la resolución
// guardada y el siguiente intento continúa desde el efecto que falló. Los
// destinos también son idempotentes por señal (ErrNoPendingBet en wallets,
// ids aplicados en learning), así que perder el journal no cuenta dos veces.
func (m *Manager) Settle(ctx context.Context, id string) (domain.Outcome, error) {
	sig, err := m.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !sig.IsPending() {
		m.dropFromIndex(ctx, id)
		return *sig.Outcome, nil
	}

	now := m.now()
	if sig.Settlement == nil || sig.Settlement.Resolved == "" {
		res := m.resolve(ctx, sig, now)
		if !res.Resolved {
			// Sigue pendiente: se renueva el TTL para que no expire antes de
			// poder resolverse.
			if err := m.save(ctx, sig, m.pendingTTL(sig, now)); err != nil {
				slog.Warn("could not refresh pending signal", "signal", id, "err", err)
				m.deps.Metrics.StoreError("signals")
			}
			return "", nil
		}
		sig.Settlement = &domain.SettlementProgress{
			Resolved:    res.Outcome,
			Source:      res.Source,
			ResolvedAt:  now,
			WalletsDone: map[string]bool{},
		}
		if err := m.save(ctx, sig, m.pendingTTL(sig, now)); err != nil {
			return "", fmt.Errorf("signals.Settle: stage: %w", err)
		}
	}
	p := sig.Settlement
	if p.WalletsDone == nil {
		p.WalletsDone = map[string]bool{}
	}
	outcome := p.Resolved

	if err := m.settleWallets(ctx, sig); err != nil {
		m.saveProgress(ctx, sig)
		return "", fmt.Errorf("signals.Settle: wallets: %w", err)
	}

	if !p.LearningDone {
		if m.deps.Learning != nil && outcome.Decisive() {
			err := m.deps.Learning.RecordSettlement(ctx, sig.ID, sig.FactorNames(), sig.Patterns, outcome)
			if err != nil {
				m.saveProgress(ctx, sig)
				return "", fmt.Errorf("signals.Settle: learning: %w", err)
			}
		}
		p.LearningDone = true
		if err := m.save(ctx, sig, m.pendingTTL(sig, now)); err != nil {
			return "", fmt.Errorf("signals.Settle: journal: %w", err)
		}
	}

	sig.Outcome = &outcome
	sig.SettledAt = &now
	if err := m.save(ctx, sig, m.rules.Settlement.SettledTTL); err != nil {
		return "", fmt.Errorf("signals.Settle: final: %w", err)
	}
	m.dropFromIndex(ctx, id)

	slog.Info("signal settled", "signal", id, "market", sig.MarketKey, "outcome", outcome, "source", p.Source)
	m.deps.Metrics.Settled(string(outcome))
	if m.deps.Publisher != nil {
		if err := m.deps.Publisher.PublishSettled(ctx, sig); err != nil {
			slog.Warn("publish signal settled failed", "signal", id, "err", err)
		}
	}
	return outcome, nil
}

// settleWallets liquida la apuesta de cada top trade una sola vez.
// ErrNoPendingBet (duplicado al crear o wallet expulsada) cuenta como hecho.
func (m *Manager) settleWallets(ctx context.Context, sig domain.Signal) error {
	if m.deps.Wallets == nil {
		return nil
	}
	p := sig.Settlement
	for i, t := range sig.TopTrades {
		key := tradeKey(t, i)
		if p.WalletsDone[key] {
			continue
		}
		_, err := m.deps.Wallets.RecordOutcome(ctx, wallets.Outcome{
			Address:  t.Wallet,
			SignalID: sig.ID,
			Market:   sig.MarketKey,
			Outcome:  p.Resolved,
		})
		if err != nil && !errors.Is(err, wallets.ErrNoPendingBet) {
			return fmt.Errorf("%s: %w", t.Wallet, err)
		}
		p.WalletsDone[key] = true
	}
	return nil
}

// resolve consulta las fuentes en orden: resultado del partido, precio y
// por último el timeout a UNKNOWN. Los errores de las fuentes no son fatales.
func (m *Manager) resolve(ctx context.Context, sig domain.Signal, now time.Time) domain.Resolution {
	r := m.rules.Settlement

	if m.deps.Games != nil && sig.Slug != "" {
		game, err := m.deps.Games.FetchGameResult(ctx, sig.Slug)
		switch {
		case err != nil:
			slog.Debug("game result unavailable", "slug", sig.Slug, "err", err)
		case game.Final:
			if outcome, ok := gameOutcome(game, sig.Direction); ok {
				return domain.Resolution{Resolved: true, Outcome: outcome, Source: SourceGame}
			}
		}
	}

	lastTrade := sig.LastTradeAt
	if m.deps.Prices != nil && sig.MarketID != "" {
		price, err := m.deps.Prices.FetchMarketPrice(ctx, sig.MarketID, sig.Direction)
		if err != nil {
			slog.Debug("market price unavailable", "market", sig.MarketID, "err", err)
		} else {
			switch {
			case price.Price >= r.WinPrice:
				return domain.Resolution{Resolved: true, Outcome: domain.OutcomeWin, Source: SourcePrice}
			case price.Price <= r.LossPrice:
				return domain.Resolution{Resolved: true, Outcome: domain.OutcomeLoss, Source: SourcePrice}
			}
			if price.LastTradeAt.After(lastTrade) {
				lastTrade = price.LastTradeAt
			}
		}
	}

	if end := m.eventEnd(sig); !end.IsZero() {
		if now.Sub(end) > r.UnknownAfterEventEnd {
			return domain.Resolution{Resolved: true, Outcome: domain.OutcomeUnknown, Source: SourceTimeout}
		}
		return domain.Resolution{LastTradeAt: lastTrade}
	}
	if !lastTrade.IsZero() && now.Sub(lastTrade) > r.UnknownAfterQuiet {
		return domain.Resolution{Resolved: true, Outcome: domain.OutcomeUnknown, Source: SourceTimeout, LastTradeAt: lastTrade}
	}
	return domain.Resolution{LastTradeAt: lastTrade}
}

// gameOutcome decide WIN/LOSS comparando el ganador con la dirección de la
// señal. Si la dirección no es ninguno de los dos equipos (p.ej. "Yes") el
// resultado del partido no sirve y se pasa a la fuente de precio.
func gameOutcome(g domain.GameResult, direction string) (domain.Outcome, bool) {
	if !sameTeam(direction, g.HomeTeam) && !sameTeam(direction, g.AwayTeam) && !sameTeam(direction, g.Winner) {
		return "", false
	}
	if g.Winner != "" && sameTeam(direction, g.Winner) {
		return domain.OutcomeWin, true
	}
	return domain.OutcomeLoss, true
}

func sameTeam(a, b string) bool {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

// SettlePending recorre el índice de pendientes e intenta liquidar cada señal.
// Un fallo en una señal no corta el barrido.
func (m *Manager) SettlePending(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	ids, err := m.pendingIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("signals.SettlePending: %w", err)
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Checked++
		outcome, err := m.Settle(ctx, id)
		switch {
		case errors.Is(err, ErrSignalNotFound):
			if err := m.voidDangling(ctx, id); err != nil {
				report.Failed++
				slog.Warn("could not void dangling signal", "signal", id, "err", err)
				continue
			}
			report.Dangling++
		case err != nil:
			report.Failed++
			slog.Warn("settlement failed", "signal", id, "err", err)
		case outcome == domain.OutcomeWin:
			report.Won++
		case outcome == domain.OutcomeLoss:
			report.Lost++
		case outcome == domain.OutcomeUnknown:
			report.Unknown++
		default:
			report.Pending++
		}
	}
	m.deps.Metrics.SetPending(report.Pending + report.Failed)
	return report, nil
}

// voidDangling anula como UNKNOWN las apuestas de una señal del índice cuyo
// registro ya no existe, y solo entonces la quita del índice.
func (m *Manager) voidDangling(ctx context.Context, id string) error {
	if m.deps.Wallets != nil {
		n, err := m.deps.Wallets.VoidSignal(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Warn("dangling signal voided", "signal", id, "bets", n)
		}
	}
	m.dropFromIndex(ctx, id)
	return nil
}

// eventEnd devuelve el fin conocido o estimado del evento, o cero si no hay fecha.
func (m *Manager) eventEnd(sig domain.Signal) time.Time {
	if !sig.EventEnd.IsZero() {
		return sig.EventEnd
	}
	if !sig.EventStart.IsZero() {
		return sig.EventStart.Add(m.rules.Settlement.DefaultEventDuration)
	}
	return time.Time{}
}

// pendingTTL es el TTL de una señal pendiente: PendingTTL más allá del momento
// en que el timeout la resolvería como UNKNOWN, y nunca menos de PendingTTL.
func (m *Manager) pendingTTL(sig domain.Signal, now time.Time) time.Duration {
	r := m.rules.Settlement
	ttl := r.PendingTTL
	if end := m.eventEnd(sig); !end.IsZero() {
		if d := end.Add(r.UnknownAfterEventEnd).Sub(now) + r.PendingTTL; d > ttl {
			ttl = d
		}
	}
	return ttl
}

func (m *Manager) save(ctx context.Context, sig domain.Signal, ttl time.Duration) error {
	return kv.PutJSON(ctx, m.deps.Store, signalKey(sig.ID), sig, ttl)
}

// saveProgress guarda el journal tras un efecto fallido. Si tampoco se puede
// guardar, el reintento se apoya en la idempotencia de los destinos.
func (m *Manager) saveProgress(ctx context.Context, sig domain.Signal) {
	if err := m.save(ctx, sig, m.pendingTTL(sig, m.now())); err != nil {
		slog.Warn("could not save settlement progress", "signal", sig.ID, "err", err)
		m.deps.Metrics.StoreError("signals")
	}
}

func (m *Manager) dropFromIndex(ctx context.Context, id string) {
	if _, err := kv.RemoveFromIndex(ctx, m.deps.Store, keyPending, id); err != nil {
		slog.Warn("could not update pending index", "signal", id, "err", err)
		m.deps.Metrics.StoreError("signals")
	}
}
