// Package learning mantiene las estadísticas aprendidas a partir de señales
// liquidadas: factores, patrones auxiliares descubiertos y combos de factores.
//
// El almacén solo ofrece get-then-put, así que cada actualización es un
// read-modify-write del mapa agregado completo. Dentro del proceso se
// serializan con un mutex; entre procesos rige last-write-wins.
//
// Cada agregado (factores, cada dimensión de patrones, combos) guarda junto a
// sus contadores los ids de las últimas señales aplicadas, en la misma
// escritura. Reintentar la liquidación de una señal salta los agregados que ya
// la contaron, aunque el journal de la señal no llegara a guardarse.
//
// Los combos con menos de ComboKeepSamples muestras se podan solo cuando
// además llevan ComboStaleAfter sin actualizarse: podarlos en cada pasada
// borraría todo combo recién creado antes de su segunda muestra.
package learning

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/polysignal/internal/domain"
	"github.com/alejandrodnm/polysignal/internal/kv"
	"github.com/alejandrodnm/polysignal/internal/metrics"
	"github.com/alejandrodnm/polysignal/internal/ports"
)

const (
	keyFactors        = "learning:factors"
	keyPatternsPrefix = "learning:patterns:"
	keyDiscovered     = "learning:discovered"
	keyCombos         = "learning:combos"
)

// appliedMemory es cuántos ids de señal recuerda cada agregado.
const appliedMemory = 500

// aggregate es el formato persistido de cada clave de aprendizaje.
type aggregate[V any] struct {
	Items   map[string]V `json:"items"`
	Applied []string     `json:"applied,omitempty"`
}

func (a *aggregate[V]) has(signalID string) bool {
	if signalID == "" {
		return false
	}
	for _, id := range a.Applied {
		if id == signalID {
			return true
		}
	}
	return false
}

func (a *aggregate[V]) mark(signalID string) {
	if signalID == "" {
		return
	}
	a.Applied = append(a.Applied, signalID)
	if n := len(a.Applied); n > appliedMemory {
		a.Applied = append([]string(nil), a.Applied[n-appliedMemory:]...)
	}
}

// Discovery es la vista de patrones descubiertos.
type Discovery struct {
	Promoted      []domain.FactorStat
	NearPromotion []domain.PatternCandidate
}

// Store es el Factor Learning Store.
type Store struct {
	kv      ports.KVStore
	rules   domain.LearningRules
	metrics *metrics.Registry
	now     func() time.Time
	mu      sync.Mutex
}

// NewStore crea un Store sobre el KV dado. m puede ser nil.
func NewStore(store ports.KVStore, rules domain.LearningRules, m *metrics.Registry) *Store {
	return &Store{kv: store, rules: rules, metrics: m, now: time.Now}
}

// RecordSettlement es la única llamada que hace el lifecycle al liquidar una
// señal: actualiza factores, patrones y combos, y ejecuta el descubrimiento.
//
// Es idempotente por signalID: cada agregado que ya contó la señal se salta,
// así que un reintento tras un fallo parcial no cuenta dos veces. UNKNOWN no
// aprende nada.
func (s *Store) RecordSettlement(ctx context.Context, signalID string, factors []string, keys domain.PatternKeys, outcome domain.Outcome) error {
	if !outcome.Decisive() {
		return nil
	}

	names := append([]string(nil), factors...)
	// Los patrones ya promovidos siguen aprendiendo como factores.
	discovered, err := s.discoveredSet(ctx)
	if err != nil {
		return fmt.Errorf("learning.RecordSettlement: %w", err)
	}
	for _, n := range keys.Names() {
		if discovered[n] {
			names = append(names, n)
		}
	}
	if err := s.updateFactors(ctx, signalID, names, outcome); err != nil {
		return fmt.Errorf("learning.RecordSettlement: %w", err)
	}
	if err := s.trackPatterns(ctx, signalID, keys, outcome); err != nil {
		return fmt.Errorf("learning.RecordSettlement: %w", err)
	}
	if err := s.trackCombos(ctx, signalID, factors, outcome); err != nil {
		return fmt.Errorf("learning.RecordSettlement: %w", err)
	}

	// El descubrimiento es idempotente: un fallo aquí se reintenta en la
	// siguiente liquidación sin afectar a esta.
	if promoted, err := s.DiscoverNewPatterns(ctx); err != nil {
		s.degraded("discover patterns", err)
	} else {
		for _, p := range promoted {
			slog.Info("pattern promoted", "pattern", p.Name, "win_rate", p.WinRate, "samples", p.SampleSize)
		}
	}
	return nil
}

// UpdateFactorStats suma el outcome a cada factor y recalcula winRate y weight.
func (s *Store) UpdateFactorStats(ctx context.Context, factors []string, outcome domain.Outcome) error {
	return s.updateFactors(ctx, "", factors, outcome)
}

func (s *Store) updateFactors(ctx context.Context, signalID string, factors []string, outcome domain.Outcome) error {
	if !outcome.Decisive() || len(factors) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, err := s.readFactors(ctx)
	if err != nil {
		return fmt.Errorf("learning.UpdateFactorStats: %w", err)
	}
	if agg.has(signalID) {
		return nil
	}
	now := s.now()
	for _, name := range uniq(factors) {
		st := agg.Items[name]
		st.Name = name
		st.Apply(outcome, s.rules.FullConfidenceSamples, now)
		agg.Items[name] = st
	}
	agg.mark(signalID)
	if err := kv.PutJSON(ctx, s.kv, keyFactors, agg, 0); err != nil {
		return fmt.Errorf("learning.UpdateFactorStats: %w", err)
	}
	return nil
}

// TrackPatterns suma el outcome al bucket de cada dimensión de la señal.
func (s *Store) TrackPatterns(ctx context.Context, keys domain.PatternKeys, outcome domain.Outcome) error {
	return s.trackPatterns(ctx, "", keys, outcome)
}

// trackPatterns escribe cada dimensión por separado; una dimensión que ya
// contó la señal se salta.
func (s *Store) trackPatterns(ctx context.Context, signalID string, keys domain.PatternKeys, outcome domain.Outcome) error {
	if !outcome.Decisive() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, dim := range domain.Dimensions {
		bucket := keys.Get(dim)
		if bucket == "" {
			continue
		}
		agg, err := s.readPatterns(ctx, dim)
		if err != nil {
			return fmt.Errorf("learning.TrackPatterns: %s: %w", dim, err)
		}
		if agg.has(signalID) {
			continue
		}
		c := agg.Items[bucket]
		c.Dimension = dim
		c.Name = bucket
		c.Apply(outcome, now)
		agg.Items[bucket] = c
		agg.mark(signalID)
		if err := kv.PutJSON(ctx, s.kv, keyPatternsPrefix+dim, agg, 0); err != nil {
			return fmt.Errorf("learning.TrackPatterns: %s: %w", dim, err)
		}
	}
	return nil
}

// TrackFactorCombo suma el outcome a cada par no ordenado de factores. Al
// reescribir el mapa se podan los combos con menos de ComboKeepSamples muestras
// que no se han tocado en ComboStaleAfter.
func (s *Store) TrackFactorCombo(ctx context.Context, factors []string, outcome domain.Outcome) error {
	return s.trackCombos(ctx, "", factors, outcome)
}

func (s *Store) trackCombos(ctx context.Context, signalID string, factors []string, outcome domain.Outcome) error {
	if !outcome.Decisive() {
		return nil
	}
	pairs := domain.FactorPairs(factors)
	if len(pairs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, err := s.readCombos(ctx)
	if err != nil {
		return fmt.Errorf("learning.TrackFactorCombo: %w", err)
	}
	if agg.has(signalID) {
		return nil
	}
	now := s.now()
	for _, p := range pairs {
		key, a, b := domain.ComboKey(p[0], p[1])
		c := agg.Items[key]
		c.Key, c.A, c.B = key, a, b
		c.Apply(outcome, now)
		agg.Items[key] = c
	}
	for key, c := range agg.Items {
		if c.SampleSize() < s.rules.ComboKeepSamples && now.Sub(c.UpdatedAt) > s.rules.ComboStaleAfter {
			delete(agg.Items, key)
		}
	}
	agg.mark(signalID)
	if err := kv.PutJSON(ctx, s.kv, keyCombos, agg, 0); err != nil {
		return fmt.Errorf("learning.TrackFactorCombo: %w", err)
	}
	return nil
}

// DiscoverNewPatterns promueve a factor los buckets con muestra suficiente y
// win rate extremo. Un nombre promovido queda en el discovered-set y nunca se
// vuelve a evaluar. Devuelve los factores promovidos en esta pasada.
func (s *Store) DiscoverNewPatterns(ctx context.Context) ([]domain.FactorStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	discovered, err := s.discoveredSet(ctx)
	if err != nil {
		return nil, fmt.Errorf("learning.DiscoverNewPatterns: %w", err)
	}
	agg, err := s.readFactors(ctx)
	if err != nil {
		return nil, fmt.Errorf("learning.DiscoverNewPatterns: %w", err)
	}

	factors := agg.Items
	now := s.now()
	var promoted []domain.FactorStat
	setChanged := false
	for _, dim := range domain.Dimensions {
		patterns, err := s.readPatterns(ctx, dim)
		if err != nil {
			return nil, fmt.Errorf("learning.DiscoverNewPatterns: %s: %w", dim, err)
		}
		cands := patterns.Items
		for _, name := range sortedKeys(cands) {
			c := cands[name]
			if discovered[name] {
				continue
			}
			if existing, ok := factors[name]; ok {
				// Promovido en una pasada que no llegó a guardar el set.
				if existing.Discovered {
					discovered[name] = true
					setChanged = true
				}
				continue
			}
			if !s.promotable(c) {
				continue
			}
			f := c.ToFactor(s.rules.FullConfidenceSamples, now)
			factors[name] = f
			discovered[name] = true
			promoted = append(promoted, f)
			setChanged = true
		}
	}

	if len(promoted) > 0 {
		if err := kv.PutJSON(ctx, s.kv, keyFactors, agg, 0); err != nil {
			return nil, fmt.Errorf("learning.DiscoverNewPatterns: %w", err)
		}
	}
	if setChanged {
		if err := kv.PutJSON(ctx, s.kv, keyDiscovered, sortedKeys(discovered), 0); err != nil {
			return nil, fmt.Errorf("learning.DiscoverNewPatterns: %w", err)
		}
	}
	return promoted, nil
}

func (s *Store) promotable(c domain.PatternCandidate) bool {
	if c.SampleSize < s.rules.PromoteMinSamples {
		return false
	}
	return c.WinRate >= s.rules.PromoteHighWinRate || c.WinRate <= s.rules.PromoteLowWinRate
}

// Snapshot lee el estado aprendido para un scan. Cada lectura fallida degrada
// a "sin datos" para esa parte: el aprendizaje nunca bloquea la emisión de señales.
func (s *Store) Snapshot(ctx context.Context) domain.LearningSnapshot {
	snap := domain.EmptySnapshot()

	if agg, err := s.readFactors(ctx); err != nil {
		s.degraded("read factors", err)
	} else {
		snap.Factors = agg.Items
	}
	for _, dim := range domain.Dimensions {
		agg, err := s.readPatterns(ctx, dim)
		if err != nil {
			s.degraded("read patterns "+dim, err)
			continue
		}
		snap.Patterns[dim] = agg.Items
	}
	if agg, err := s.readCombos(ctx); err != nil {
		s.degraded("read combos", err)
	} else {
		snap.Combos = agg.Items
	}
	return snap
}

// FactorStats devuelve todos los factores ordenados por muestra y nombre.
func (s *Store) FactorStats(ctx context.Context) ([]domain.FactorStat, error) {
	agg, err := s.readFactors(ctx)
	if err != nil {
		return nil, fmt.Errorf("learning.FactorStats: %w", err)
	}
	out := make([]domain.FactorStat, 0, len(agg.Items))
	for _, f := range agg.Items {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SampleSize != out[j].SampleSize {
			return out[i].SampleSize > out[j].SampleSize
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// DiscoveredPatterns devuelve los patrones promovidos y los candidatos que van
// camino de promoción (muestra >= NearPromotionSamples con win rate extremo).
func (s *Store) DiscoveredPatterns(ctx context.Context) (Discovery, error) {
	var d Discovery
	factors, err := s.FactorStats(ctx)
	if err != nil {
		return d, fmt.Errorf("learning.DiscoveredPatterns: %w", err)
	}
	for _, f := range factors {
		if f.Discovered {
			d.Promoted = append(d.Promoted, f)
		}
	}

	discovered, err := s.discoveredSet(ctx)
	if err != nil {
		return d, fmt.Errorf("learning.DiscoveredPatterns: %w", err)
	}
	for _, dim := range domain.Dimensions {
		agg, err := s.readPatterns(ctx, dim)
		if err != nil {
			return d, fmt.Errorf("learning.DiscoveredPatterns: %s: %w", dim, err)
		}
		for _, c := range agg.Items {
			if discovered[c.Name] || c.SampleSize < s.rules.NearPromotionSamples || c.SampleSize >= s.rules.PromoteMinSamples {
				continue
			}
			if c.WinRate >= s.rules.PromoteHighWinRate || c.WinRate <= s.rules.PromoteLowWinRate {
				d.NearPromotion = append(d.NearPromotion, c)
			}
		}
	}
	sort.Slice(d.NearPromotion, func(i, j int) bool {
		if d.NearPromotion[i].SampleSize != d.NearPromotion[j].SampleSize {
			return d.NearPromotion[i].SampleSize > d.NearPromotion[j].SampleSize
		}
		return d.NearPromotion[i].Name < d.NearPromotion[j].Name
	})
	return d, nil
}

// --- helpers internos ---

func (s *Store) readFactors(ctx context.Context) (aggregate[domain.FactorStat], error) {
	return readAggregate[domain.FactorStat](ctx, s.kv, keyFactors)
}

func (s *Store) readPatterns(ctx context.Context, dim string) (aggregate[domain.PatternCandidate], error) {
	return readAggregate[domain.PatternCandidate](ctx, s.kv, keyPatternsPrefix+dim)
}

func (s *Store) readCombos(ctx context.Context) (aggregate[domain.FactorCombo], error) {
	return readAggregate[domain.FactorCombo](ctx, s.kv, keyCombos)
}

func readAggregate[V any](ctx context.Context, store ports.KVStore, key string) (aggregate[V], error) {
	agg, _, err := kv.GetJSON[aggregate[V]](ctx, store, key)
	if agg.Items == nil {
		agg.Items = make(map[string]V)
	}
	return agg, err
}

func (s *Store) discoveredSet(ctx context.Context) (map[string]bool, error) {
	names, _, err := kv.GetJSON[[]string](ctx, s.kv, keyDiscovered)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

func (s *Store) degraded(op string, err error) {
	slog.Warn("learning store degraded", "op", op, "err", err)
	s.metrics.StoreError("learning")
}

func uniq(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
