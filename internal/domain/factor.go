package domain

import (
	"math"
	"sort"
	"strings"
	"time"
)

const (
	minFactorWeight = 0.5
	maxFactorWeight = 2.0
)

// FactorStat son las estadísticas aprendidas de un factor.
// Solo la liquidación las muta; wins/losses se acumulan sin decay.
type FactorStat struct {
	Name       string    `json:"name"`
	Wins       int       `json:"wins"`
	Losses     int       `json:"losses"`
	WinRate    float64   `json:"win_rate"`
	Weight     float64   `json:"weight"`
	SampleSize int       `json:"sample_size"`
	Discovered bool      `json:"is_discovered"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Apply suma un outcome decisivo y recalcula winRate y weight.
// fullConfidence es el número de muestras a partir del cual el peso deja de amortiguarse.
func (f *FactorStat) Apply(outcome Outcome, fullConfidence int, now time.Time) {
	switch outcome {
	case OutcomeWin:
		f.Wins++
	case OutcomeLoss:
		f.Losses++
	default:
		return
	}
	f.SampleSize = f.Wins + f.Losses
	f.WinRate = WinRate(f.Wins, f.Losses)
	f.Weight = FactorWeight(f.WinRate, f.SampleSize, fullConfidence)
	f.UpdatedAt = now
}

// WinRate devuelve wins/(wins+losses) en porcentaje [0,100], 0 sin muestras.
func WinRate(wins, losses int) float64 {
	total := wins + losses
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total) * 100
}

// FactorWeight calcula el peso de un factor:
//
//	weight = 0.5 + (0.5 + winRate/100×1.5 − 0.5) × min(1, n/fullConfidence)
//
// El valor implícito por el win rate va de 0.5 a 2.0 y se amortigua linealmente
// hasta alcanzar fullConfidence muestras. Resultado acotado a [0.5, 2.0].
func FactorWeight(winRate float64, samples, fullConfidence int) float64 {
	if fullConfidence <= 0 {
		fullConfidence = 10
	}
	confidence := math.Min(1, float64(samples)/float64(fullConfidence))
	implied := minFactorWeight + winRate/100*1.5
	w := minFactorWeight + (implied-minFactorWeight)*confidence
	return math.Max(minFactorWeight, math.Min(maxFactorWeight, w))
}

// PatternCandidate tiene la forma de FactorStat pero se indexa por una dimensión
// auxiliar (franja horaria, bracket de volumen...). Se promueve a FactorStat
// cuando acumula muestras suficientes con un win rate extremo.
type PatternCandidate struct {
	Dimension  string    `json:"dimension"`
	Name       string    `json:"name"`
	Wins       int       `json:"wins"`
	Losses     int       `json:"losses"`
	WinRate    float64   `json:"win_rate"`
	SampleSize int       `json:"sample_size"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Apply suma un outcome decisivo al candidato.
func (p *PatternCandidate) Apply(outcome Outcome, now time.Time) {
	switch outcome {
	case OutcomeWin:
		p.Wins++
	case OutcomeLoss:
		p.Losses++
	default:
		return
	}
	p.SampleSize = p.Wins + p.Losses
	p.WinRate = WinRate(p.Wins, p.Losses)
	p.UpdatedAt = now
}

// ToFactor convierte el candidato en un FactorStat descubierto, copiando sus contadores.
func (p PatternCandidate) ToFactor(fullConfidence int, now time.Time) FactorStat {
	return FactorStat{
		Name:       p.Name,
		Wins:       p.Wins,
		Losses:     p.Losses,
		WinRate:    p.WinRate,
		Weight:     FactorWeight(p.WinRate, p.SampleSize, fullConfidence),
		SampleSize: p.SampleSize,
		Discovered: true,
		UpdatedAt:  now,
	}
}

// FactorCombo cuenta los resultados de un par no ordenado de factores.
type FactorCombo struct {
	Key       string    `json:"key"`
	A         string    `json:"a"`
	B         string    `json:"b"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	WinRate   float64   `json:"win_rate"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SampleSize devuelve wins + losses.
func (c FactorCombo) SampleSize() int {
	return c.Wins + c.Losses
}

// Apply suma un outcome decisivo al combo.
func (c *FactorCombo) Apply(outcome Outcome, now time.Time) {
	switch outcome {
	case OutcomeWin:
		c.Wins++
	case OutcomeLoss:
		c.Losses++
	default:
		return
	}
	c.WinRate = WinRate(c.Wins, c.Losses)
	c.UpdatedAt = now
}

// ComboKey devuelve la clave canónica de un par: los nombres ordenados unidos por "|".
func ComboKey(a, b string) (key, first, second string) {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "|"), pair[0], pair[1]
}

// FactorPairs devuelve todos los pares no ordenados de nombres distintos.
func FactorPairs(names []string) [][2]string {
	uniq := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n != "" && !seen[n] {
			seen[n] = true
			uniq = append(uniq, n)
		}
	}
	sort.Strings(uniq)

	var pairs [][2]string
	for i := 0; i < len(uniq); i++ {
		for j := i + 1; j < len(uniq); j++ {
			pairs = append(pairs, [2]string{uniq[i], uniq[j]})
		}
	}
	return pairs
}
