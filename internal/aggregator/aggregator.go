// Package aggregator agrupa un batch de trades en ventanas por mercado.
package aggregator

import (
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/polysignal/internal/domain"
)

// Motivos de descarte contabilizados en Diagnostics.
const (
	ReasonMissingMarket    = "missing_market"
	ReasonMissingPrice     = "missing_price"
	ReasonMissingTimestamp = "missing_timestamp"
	ReasonStale            = "stale"
	ReasonResolvedPrice    = "resolved_price"
	ReasonBelowMinSize     = "below_min_size"
	ReasonGambling         = "gambling"
	ReasonSell             = "sell"
)

// Options parametriza una agregación.
type Options struct {
	// Lookback es el horizonte hacia atrás desde now. Cero = sin filtro de edad.
	Lookback   time.Duration
	Rules      domain.AggregationRules
	Classifier domain.MarketClassifier
}

// Diagnostics resume qué se descartó y por qué.
type Diagnostics struct {
	Input        int
	Kept         int
	Dropped      map[string]int
	EmptyMarkets int // mercados sin volumen tras filtrar
}

// DroppedTotal devuelve el total de trades descartados.
func (d Diagnostics) DroppedTotal() int {
	n := 0
	for _, v := range d.Dropped {
		n += v
	}
	return n
}

// Aggregate filtra los trades y los agrupa por mercado (slug, o título si no hay slug).
// Es pura: no hace I/O ni modifica los trades de entrada.
// Las ventanas se devuelven ordenadas por volumen total descendente.
func Aggregate(trades []domain.Trade, opts Options, now time.Time) ([]domain.MarketWindow, Diagnostics) {
	diag := Diagnostics{Input: len(trades), Dropped: make(map[string]int)}
	rules := opts.Rules
	sampleCap := rules.MaxSampleTrades
	if sampleCap <= 0 {
		sampleCap = 10
	}
	var cutoff time.Time
	if opts.Lookback > 0 {
		cutoff = now.Add(-opts.Lookback)
	}

	windows := make(map[string]*domain.MarketWindow)
	var order []string

	for _, t := range trades {
		if reason := dropReason(t, rules, cutoff, opts.Classifier); reason != "" {
			diag.Dropped[reason]++
			continue
		}
		diag.Kept++

		key := t.MarketKey()
		w, ok := windows[key]
		if !ok {
			w = &domain.MarketWindow{
				Key:           key,
				MarketID:      t.MarketID,
				Slug:          t.Slug,
				Title:         t.Title,
				OutcomeVolume: make(map[string]float64),
				Wallets:       make(map[string]struct{}),
			}
			if opts.Classifier != nil {
				w.MarketType = opts.Classifier.MarketType(t.Slug, t.Title)
			}
			windows[key] = w
			order = append(order, key)
		}
		addTrade(w, t, opts.Classifier)
		if len(w.Trades) > 4*sampleCap {
			trimSample(w, sampleCap)
		}
	}

	out := make([]domain.MarketWindow, 0, len(windows))
	for _, key := range order {
		w := windows[key]
		if w.TotalVolume <= 0 {
			diag.EmptyMarkets++
			continue
		}
		trimSample(w, sampleCap)
		out = append(out, *w)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalVolume > out[j].TotalVolume })
	return out, diag
}

// dropReason devuelve el motivo por el que un trade no entra en la agregación, o "".
func dropReason(t domain.Trade, r domain.AggregationRules, cutoff time.Time, c domain.MarketClassifier) string {
	switch {
	case t.MarketKey() == "":
		return ReasonMissingMarket
	case strings.EqualFold(t.Side, "SELL"):
		// Vender un outcome no es apostar por él: solo cuentan las compras.
		return ReasonSell
	case t.Price <= 0 || t.Price >= 1:
		return ReasonMissingPrice
	case t.Timestamp.IsZero():
		return ReasonMissingTimestamp
	case !cutoff.IsZero() && t.Timestamp.Before(cutoff):
		return ReasonStale
	case r.MaxPrice > 0 && t.Price >= r.MaxPrice, t.Price <= r.MinPrice:
		return ReasonResolvedPrice
	case t.Size < r.MinSizeUSD:
		return ReasonBelowMinSize
	case c != nil && c.IsGambling(t.Slug, t.Title):
		return ReasonGambling
	}
	return ""
}

func addTrade(w *domain.MarketWindow, t domain.Trade, c domain.MarketClassifier) {
	outcome := strings.TrimSpace(t.Outcome)
	if c != nil {
		outcome = c.ResolveOutcome(t.Title, t.Outcome, t.OutcomeIndex)
	}
	if w.MarketID == "" {
		w.MarketID = t.MarketID
	}

	w.TotalVolume += t.Size
	w.OutcomeVolume[outcome] += t.Size
	if t.Wallet != "" {
		w.Wallets[strings.ToLower(t.Wallet)] = struct{}{}
	}

	if t.Size > w.LargestBet {
		w.LargestBet = t.Size
		w.LargestOutcome = outcome
		w.LargestPrice = t.Price
		w.LargestWallet = strings.ToLower(t.Wallet)
		w.LargestAt = t.Timestamp
	}

	if w.FirstTrade.IsZero() || t.Timestamp.Before(w.FirstTrade) {
		w.FirstTrade = t.Timestamp
	}
	if t.Timestamp.After(w.LastTrade) {
		w.LastTrade = t.Timestamp
	}

	// La muestra guarda el outcome ya resuelto para que el scorer y el ledger
	// trabajen con el mismo nombre que la ventana.
	sample := t
	sample.Outcome = outcome
	sample.Wallet = strings.ToLower(t.Wallet)
	w.Trades = append(w.Trades, sample)
}

// trimSample deja los n trades más grandes, ordenados por tamaño descendente.
func trimSample(w *domain.MarketWindow, n int) {
	sort.SliceStable(w.Trades, func(i, j int) bool { return w.Trades[i].Size > w.Trades[j].Size })
	if len(w.Trades) > n {
		w.Trades = w.Trades[:n]
	}
}
