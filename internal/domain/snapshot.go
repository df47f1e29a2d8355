package domain

// LearningSnapshot es la vista de solo lectura del learning store que usa el
// scoring de un scan. Se lee una vez por scan; un snapshot vacío equivale a
// "sin historial" (multiplicador neutro, confianza por defecto).
type LearningSnapshot struct {
	Factors  map[string]FactorStat
	Patterns map[string]map[string]PatternCandidate // dimension → bucket → candidato
	Combos   map[string]FactorCombo
}

// EmptySnapshot devuelve un snapshot sin historial.
func EmptySnapshot() LearningSnapshot {
	return LearningSnapshot{
		Factors:  map[string]FactorStat{},
		Patterns: map[string]map[string]PatternCandidate{},
		Combos:   map[string]FactorCombo{},
	}
}

// Factor devuelve las estadísticas de un factor si tiene al menos minSamples.
func (s LearningSnapshot) Factor(name string, minSamples int) (FactorStat, bool) {
	st, ok := s.Factors[name]
	if !ok || st.SampleSize < minSamples {
		return FactorStat{}, false
	}
	return st, true
}

// Pattern devuelve el candidato de una dimensión si tiene al menos minSamples.
func (s LearningSnapshot) Pattern(dimension, name string, minSamples int) (PatternCandidate, bool) {
	if name == "" {
		return PatternCandidate{}, false
	}
	p, ok := s.Patterns[dimension][name]
	if !ok || p.SampleSize < minSamples {
		return PatternCandidate{}, false
	}
	return p, true
}

// Combo devuelve las estadísticas de un par de factores si tiene al menos minSamples.
func (s LearningSnapshot) Combo(a, b string, minSamples int) (FactorCombo, bool) {
	key, _, _ := ComboKey(a, b)
	c, ok := s.Combos[key]
	if !ok || c.SampleSize() < minSamples {
		return FactorCombo{}, false
	}
	return c, true
}
