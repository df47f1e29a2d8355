package scoring

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/polysignal/internal/domain"
)

// Adjustment es el resultado del ensemble aprendido sobre un score base.
type Adjustment struct {
	Multiplier float64
	AIScore    float64
	ShouldHide bool
	// Reasons explica cada componente aplicado (para logs y debugging).
	Reasons []string
}

// Ensemble convierte el historial aprendido en un multiplicador acotado.
type Ensemble struct {
	rules domain.ScoringRules
	fade  map[string]bool
}

// NewEnsemble crea un Ensemble con las reglas dadas.
func NewEnsemble(rules domain.ScoringRules) *Ensemble {
	fade := make(map[string]bool, len(rules.FadeFactors))
	for _, f := range rules.FadeFactors {
		fade[f] = true
	}
	return &Ensemble{rules: rules, fade: fade}
}

// Apply calcula el multiplicador como producto de:
//   - el peso aprendido de cada factor con muestras suficientes
//   - el peso de cada patrón descubierto que coincide con la señal
//   - el ajuste de cada combo de factores con historial fuerte o débil
//
// El producto se acota a [MultiplierMin, MultiplierMax]. Un factor de la lista
// FADE con win rate histórico <= FadeWinRate marca la señal para ocultar. Con
// una wallet ganadora el multiplicador es al menos 1 y la señal nunca se oculta.
func (e *Ensemble) Apply(base float64, factors []string, keys domain.PatternKeys, hasWinner bool, snap domain.LearningSnapshot) Adjustment {
	adj := Adjustment{Multiplier: 1}
	minSamples := e.rules.MinSamplesForWeight

	for _, name := range factors {
		st, ok := snap.Factor(name, minSamples)
		if !ok {
			continue
		}
		adj.Multiplier *= st.Weight
		adj.Reasons = append(adj.Reasons, fmt.Sprintf("%s×%.2f", name, st.Weight))
		if e.fade[name] && st.WinRate <= e.rules.FadeWinRate {
			adj.ShouldHide = true
			adj.Reasons = append(adj.Reasons, fmt.Sprintf("fade:%s(%.0f%%)", name, st.WinRate))
		}
	}

	for _, name := range keys.Names() {
		st, ok := snap.Factor(name, minSamples)
		if !ok || !st.Discovered {
			continue
		}
		adj.Multiplier *= st.Weight
		adj.Reasons = append(adj.Reasons, fmt.Sprintf("pattern:%s×%.2f", name, st.Weight))
	}

	for _, pair := range domain.FactorPairs(factors) {
		c, ok := snap.Combo(pair[0], pair[1], e.rules.ComboMinSamples)
		if !ok {
			continue
		}
		switch {
		case c.WinRate >= e.rules.ComboStrongWinRate:
			adj.Multiplier *= e.rules.ComboBoost
			adj.Reasons = append(adj.Reasons, "combo+:"+c.Key)
		case c.WinRate <= e.rules.ComboWeakWinRate:
			adj.Multiplier *= e.rules.ComboPenalty
			adj.Reasons = append(adj.Reasons, "combo-:"+c.Key)
		}
	}

	adj.Multiplier = clamp(adj.Multiplier, e.rules.MultiplierMin, e.rules.MultiplierMax)
	if hasWinner {
		adj.Multiplier = math.Max(1, adj.Multiplier)
		adj.ShouldHide = false
	}
	adj.AIScore = clamp(math.Round(base*adj.Multiplier), 0, 100)
	return adj
}
