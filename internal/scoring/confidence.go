package scoring

import (
	"strings"

	"github.com/alejandrodnm/polysignal/internal/domain"
)

// Pesos de cada componente del estimador de confianza.
const (
	weightFactors    = 3.0
	weightMarketType = 1.0
	weightVolume     = 1.0
	weightTimeOfDay  = 0.5
	weightTiming     = 1.5
)

// timingPrefix identifica los factores de timing del scorer.
const timingPrefix = "timing"

// EstimateConfidence combina el historial aprendido en una confianza [0,100].
// Cada componente solo entra si su muestra es suficiente: los factores con
// MinFactorSamples, el resto con MinDimensionSamples. ok=false si ninguno entra.
func EstimateConfidence(rules domain.LearningRules, factors []string, keys domain.PatternKeys, snap domain.LearningSnapshot) (float64, bool) {
	var sum, weights float64
	addComponent := func(winRate, weight float64) {
		sum += winRate * weight
		weights += weight
	}

	// Win rate medio del conjunto de factores
	var factorSum float64
	var factorN int
	var timing *domain.FactorStat
	for _, name := range factors {
		st, ok := snap.Factor(name, rules.MinFactorSamples)
		if !ok {
			continue
		}
		factorSum += st.WinRate
		factorN++
		if strings.HasPrefix(name, timingPrefix) && st.SampleSize >= rules.MinDimensionSamples && timing == nil {
			t := st
			timing = &t
		}
	}
	if factorN > 0 {
		addComponent(factorSum/float64(factorN), weightFactors)
	}

	dims := []struct {
		dimension string
		weight    float64
	}{
		{domain.DimensionMarketType, weightMarketType},
		{domain.DimensionVolume, weightVolume},
		{domain.DimensionTimeOfDay, weightTimeOfDay},
	}
	for _, d := range dims {
		if p, ok := snap.Pattern(d.dimension, keys.Get(d.dimension), rules.MinDimensionSamples); ok {
			addComponent(p.WinRate, d.weight)
		}
	}

	if timing != nil {
		addComponent(timing.WinRate, weightTiming)
	}

	if weights == 0 {
		return 0, false
	}
	return clamp(sum/weights, 0, 100), true
}

// BlendConfidence mezcla la estimación con el AI score (LearnedShare / resto) y
// acota el resultado a [ConfidenceFloor, ConfidenceCeiling]. Sin estimación se
// usa el AI score solo.
func BlendConfidence(rules domain.ScoringRules, estimate float64, ok bool, aiScore float64) float64 {
	conf := aiScore
	if ok {
		share := rules.LearnedShare
		conf = share*estimate + (1-share)*aiScore
	}
	return clamp(conf, rules.ConfidenceFloor, rules.ConfidenceCeiling)
}
