package scanner

import (
	"strings"

	"github.com/alejandrodnm/polysignal/internal/signals"
)

// FilterConfig contiene los filtros que se aplican a los candidatos ya puntuados.
type FilterConfig struct {
	// MinScore descarta candidatos con AI score menor.
	MinScore float64
	// MarketTypes limita el resultado a estos tipos ("nba", "politics"...). Vacío = todos.
	MarketTypes []string
	// MinVolume descarta mercados con menos volumen total en la ventana.
	MinVolume float64
	// IncludeHidden mantiene los candidatos que el ensemble marca como ocultos.
	IncludeHidden bool
	// Limit corta el ranking final. 0 = sin límite.
	Limit int
}

// DefaultFilterConfig devuelve los filtros por defecto: score >= 40, sin ocultos.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinScore: 40,
		Limit:    50,
	}
}

// Filter aplica los filtros configurados sobre una lista de candidatos.
type Filter struct {
	cfg   FilterConfig
	types map[string]bool
}

// NewFilter crea un Filter con la configuración dada.
func NewFilter(cfg FilterConfig) *Filter {
	f := &Filter{cfg: cfg}
	if len(cfg.MarketTypes) > 0 {
		f.types = make(map[string]bool, len(cfg.MarketTypes))
		for _, t := range cfg.MarketTypes {
			f.types[strings.ToLower(strings.TrimSpace(t))] = true
		}
	}
	return f
}

// Apply devuelve los candidatos que pasan todos los filtros. No aplica Limit:
// el corte se hace después de ordenar.
func (f *Filter) Apply(cands []signals.Candidate) []signals.Candidate {
	result := make([]signals.Candidate, 0, len(cands))
	for _, c := range cands {
		if f.passes(c) {
			result = append(result, c)
		}
	}
	return result
}

// passes devuelve true si el candidato supera todos los criterios.
func (f *Filter) passes(c signals.Candidate) bool {
	ev := c.Evaluation
	if ev.AIScore < f.cfg.MinScore {
		return false
	}
	if ev.ShouldHide && !f.cfg.IncludeHidden {
		return false
	}
	if f.cfg.MinVolume > 0 && c.Window.TotalVolume < f.cfg.MinVolume {
		return false
	}
	if f.types != nil && !f.types[strings.ToLower(c.Window.MarketType)] {
		return false
	}
	return true
}
