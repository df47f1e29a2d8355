// Package scoring implementa el scorer heurístico, el multiplicador aprendido
// (ensemble) y el estimador de confianza.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/alejandrodnm/polysignal/internal/domain"
)

const (
	// FactorWalletWinner se añade cuando una wallet ganadora participa.
	FactorWalletWinner = "walletWinner"
	// FactorPriceTossup puntúa entradas entre 50% y el primer umbral de favorito.
	FactorPriceTossup = "priceTossup"
)

// WinnerLookup responde si una wallet es históricamente acertada.
type WinnerLookup interface {
	IsWinningWallet(ctx context.Context, address string) (bool, error)
}

// Result es la salida del scorer heurístico para una ventana.
type Result struct {
	BaseScore        float64
	Factors          []domain.FactorRef // en orden de evaluación
	TimingWindow     string
	HasWinningWallet bool
	WinningWallets   []string
}

// FactorNames devuelve los nombres de los factores del resultado.
func (r Result) FactorNames() []string {
	return domain.FactorNames(r.Factors)
}

// Scorer calcula el score base determinista de una ventana de mercado.
type Scorer struct {
	rules domain.ScoringRules
}

// NewScorer crea un Scorer con las reglas dadas.
func NewScorer(rules domain.ScoringRules) *Scorer {
	return &Scorer{rules: rules}
}

// Score evalúa los factores de la ventana de forma independiente, los suma y
// acota el total a [0, 100]. winners puede ser nil.
func (s *Scorer) Score(ctx context.Context, w domain.MarketWindow, winners WinnerLookup) Result {
	var res Result
	add := func(name string, points float64, desc string) {
		res.Factors = append(res.Factors, domain.FactorRef{Name: name, Points: points, Description: desc})
	}

	// Apuesta más grande
	if b, ok := firstBucket(s.rules.BetBuckets, w.LargestBet); ok {
		add(b.Name, b.Points, fmt.Sprintf("largest bet $%.0f", w.LargestBet))
	}

	// Concentración: pocas wallets moviendo volumen relevante
	for _, c := range s.rules.Concentration {
		if w.WalletCount() > 0 && w.WalletCount() <= c.MaxWallets && w.TotalVolume >= c.MinVolume {
			add(c.Name, c.Points, fmt.Sprintf("%d wallet(s) with $%.0f", w.WalletCount(), w.TotalVolume))
			break
		}
	}

	// Volumen total
	if b, ok := firstBucket(s.rules.VolumeBuckets, w.TotalVolume); ok {
		add(b.Name, b.Points, fmt.Sprintf("volume $%.0f", w.TotalVolume))
	}

	// Precio de entrada de la apuesta dominante
	if name, points, ok := s.priceFactor(w.LargestPrice); ok {
		add(name, points, fmt.Sprintf("entry at %.0f%%", w.LargestPrice*100))
	}

	// Cercanía al inicio del evento
	if tb, ok := s.timingFactor(w); ok {
		add(tb.Name, tb.Points, "bet "+tb.Window+" before start")
		res.TimingWindow = tb.Window
	}

	// Wallet ganadora entre las que contribuyen
	if winners != nil {
		res.WinningWallets = s.winningWallets(ctx, w, winners)
		if len(res.WinningWallets) > 0 {
			res.HasWinningWallet = true
			add(FactorWalletWinner, s.rules.WinnerBonus, fmt.Sprintf("%d winning wallet(s)", len(res.WinningWallets)))
		}
	}

	var total float64
	for _, f := range res.Factors {
		total += f.Points
	}
	res.BaseScore = clamp(total, 0, 100)
	return res
}

// priceFactor distingue underdog (<50%) de favorito. Por debajo de 0.5 aplica
// la primera regla underdog con price <= Max; desde 0.5 la primera regla de
// favorito con price >= Min, y si ninguna encaja el tossup.
func (s *Scorer) priceFactor(price float64) (string, float64, bool) {
	if price <= 0 {
		return "", 0, false
	}
	if price < 0.5 {
		for _, r := range s.rules.UnderdogPrices {
			if price <= r.Max {
				return r.Name, r.Points, true
			}
		}
		return "", 0, false
	}
	for _, r := range s.rules.FavoritePrices {
		if price >= r.Min {
			return r.Name, r.Points, true
		}
	}
	return FactorPriceTossup, s.rules.TossupPoints, s.rules.TossupPoints > 0
}

// timingFactor mide las horas entre la apuesta dominante y el inicio del evento.
// Sin fecha de evento o con el evento ya empezado no hay factor.
func (s *Scorer) timingFactor(w domain.MarketWindow) (domain.TimingBucket, bool) {
	at := w.LargestAt
	if at.IsZero() {
		at = w.LastTrade
	}
	hours, ok := w.HoursToEvent(at)
	if !ok || hours < 0 {
		return domain.TimingBucket{}, false
	}
	return TimingBucketFor(s.rules.TimingBuckets, hours)
}

// TimingBucketFor devuelve el primer bucket con hours <= MaxHours; MaxHours < 0
// actúa como catch-all.
func TimingBucketFor(buckets []domain.TimingBucket, hours float64) (domain.TimingBucket, bool) {
	for _, b := range buckets {
		if b.MaxHours < 0 || hours <= b.MaxHours {
			return b, true
		}
	}
	return domain.TimingBucket{}, false
}

// winningWallets consulta el ledger en orden de la muestra. Los errores de
// lookup cuentan como "no ganadora".
func (s *Scorer) winningWallets(ctx context.Context, w domain.MarketWindow, winners WinnerLookup) []string {
	seen := make(map[string]bool)
	var out []string
	candidates := make([]string, 0, len(w.Trades)+1)
	if w.LargestWallet != "" {
		candidates = append(candidates, w.LargestWallet)
	}
	for _, t := range w.Trades {
		candidates = append(candidates, t.Wallet)
	}
	for _, addr := range candidates {
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		ok, err := winners.IsWinningWallet(ctx, addr)
		if err != nil {
			slog.Debug("winner lookup failed", "wallet", addr, "err", err)
			continue
		}
		if ok {
			out = append(out, addr)
		}
	}
	return out
}

func firstBucket(buckets []domain.Bucket, v float64) (domain.Bucket, bool) {
	for _, b := range buckets {
		if v >= b.Min {
			return b, true
		}
	}
	return domain.Bucket{}, false
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

