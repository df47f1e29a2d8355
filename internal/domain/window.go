package domain

import (
	"sort"
	"time"
)

// MarketWindow es el agregado efímero de los trades de un mercado dentro del
// horizonte de lookback. Se construye en cada scan y nunca se persiste.
type MarketWindow struct {
	Key        string
	MarketID   string
	Slug       string
	Title      string
	MarketType string

	TotalVolume   float64
	OutcomeVolume map[string]float64

	// Apuesta individual más grande del mercado
	LargestBet     float64
	LargestOutcome string
	LargestPrice   float64
	LargestWallet  string
	LargestAt      time.Time

	Wallets    map[string]struct{}
	FirstTrade time.Time
	LastTrade  time.Time

	// Trades es una muestra acotada (máx 10) ordenada por tamaño descendente.
	Trades []Trade

	// EventStart/EventEnd los rellena el scanner desde metadata o la fecha del slug.
	EventStart time.Time
	EventEnd   time.Time
}

// WalletCount devuelve el número de wallets distintas del mercado.
func (w MarketWindow) WalletCount() int {
	return len(w.Wallets)
}

// WalletList devuelve las wallets ordenadas alfabéticamente.
func (w MarketWindow) WalletList() []string {
	out := make([]string, 0, len(w.Wallets))
	for addr := range w.Wallets {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// DominantOutcome devuelve el outcome con más volumen. En empate gana el de la
// apuesta más grande.
func (w MarketWindow) DominantOutcome() string {
	best, bestVol := w.LargestOutcome, -1.0
	for outcome, vol := range w.OutcomeVolume {
		switch {
		case vol > bestVol:
			best, bestVol = outcome, vol
		case vol == bestVol && outcome == w.LargestOutcome:
			best = outcome
		}
	}
	return best
}

// HoursToEvent devuelve las horas entre at y el inicio del evento.
// ok=false si el inicio no se conoce.
func (w MarketWindow) HoursToEvent(at time.Time) (hours float64, ok bool) {
	if w.EventStart.IsZero() {
		return 0, false
	}
	return w.EventStart.Sub(at).Hours(), true
}

// TopTrades devuelve hasta n trades de la muestra.
func (w MarketWindow) TopTrades(n int) []Trade {
	if n > len(w.Trades) {
		n = len(w.Trades)
	}
	out := make([]Trade, n)
	copy(out, w.Trades[:n])
	return out
}
