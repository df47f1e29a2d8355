package scoring

import (
	"context"
	"time"

	"github.com/alejandrodnm/polysignal/internal/domain"
)

// Evaluation es la valoración completa de una ventana: score base, ajuste
// aprendido, confianza y buckets auxiliares.
type Evaluation struct {
	Result
	Adjustment
	Confidence float64
	Estimated  bool
	Keys       domain.PatternKeys
}

// Pipeline encadena scorer → ensemble → confianza con un mismo juego de reglas.
type Pipeline struct {
	rules    domain.Rules
	scorer   *Scorer
	ensemble *Ensemble
}

// NewPipeline crea el pipeline de scoring.
func NewPipeline(rules domain.Rules) *Pipeline {
	return &Pipeline{
		rules:    rules,
		scorer:   NewScorer(rules.Scoring),
		ensemble: NewEnsemble(rules.Scoring),
	}
}

// Evaluate puntúa una ventana detectada en at usando el snapshot de aprendizaje.
func (p *Pipeline) Evaluate(ctx context.Context, w domain.MarketWindow, winners WinnerLookup, snap domain.LearningSnapshot, at time.Time) Evaluation {
	res := p.scorer.Score(ctx, w, winners)
	keys := domain.BuildPatternKeys(w, at)
	names := res.FactorNames()

	adj := p.ensemble.Apply(res.BaseScore, names, keys, res.HasWinningWallet, snap)
	est, ok := EstimateConfidence(p.rules.Learning, names, keys, snap)

	return Evaluation{
		Result:     res,
		Adjustment: adj,
		Confidence: BlendConfidence(p.rules.Scoring, est, ok, adj.AIScore),
		Estimated:  ok,
		Keys:       keys,
	}
}
