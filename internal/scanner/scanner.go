package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/polysignal/internal/aggregator"
	"github.com/alejandrodnm/polysignal/internal/domain"
	"github.com/alejandrodnm/polysignal/internal/kv"
	"github.com/alejandrodnm/polysignal/internal/learning"
	"github.com/alejandrodnm/polysignal/internal/metrics"
	"github.com/alejandrodnm/polysignal/internal/ports"
	"github.com/alejandrodnm/polysignal/internal/scoring"
	"github.com/alejandrodnm/polysignal/internal/signals"
	"github.com/alejandrodnm/polysignal/internal/wallets"
)

const keyLastRun = "scan:last_run"

// ErrScanSkipped indica que otro scan se ejecutó hace menos de MinGap.
var ErrScanSkipped = errors.New("scanner: scan skipped, previous run too recent")

// Config contiene la configuración del scanner.
type Config struct {
	ScanInterval time.Duration
	HoursBack    float64
	MinGap       time.Duration // separación mínima entre scans (guard de last run)
	FeedTimeout  time.Duration
	Filter       FilterConfig
	// MetadataWorkers es el tamaño del pool que consulta horarios de evento.
	MetadataWorkers int
	// SettleAfterScan ejecuta el barrido de pendientes al final de cada ciclo de Run.
	SettleAfterScan bool
	// DryRun ejecuta un solo ciclo.
	DryRun bool
}

// DefaultConfig devuelve una configuración sensata para producción.
func DefaultConfig() Config {
	return Config{
		ScanInterval:    5 * time.Minute,
		HoursBack:       6,
		MinGap:          2 * time.Minute,
		FeedTimeout:     45 * time.Second,
		Filter:          DefaultFilterConfig(),
		MetadataWorkers: 4,
		SettleAfterScan: true,
	}
}

// ScanRequest son los parámetros de un scan. Los campos a cero toman el valor
// de la configuración.
type ScanRequest struct {
	HoursBack float64
	MinScore  float64
	Filters   *FilterConfig
	// Force ignora el guard de last run.
	Force bool
}

// ScanResult es la salida de un scan.
type ScanResult struct {
	Signals     []domain.Signal // ordenadas por AI score y confianza
	Diagnostics aggregator.Diagnostics
	Windows     int
	Candidates  int // ventanas que pasaron los filtros
	Created     int
	Existing    int // mercados que ya tenían una señal pendiente
	Partial     bool
	StartedAt   time.Time
	Duration    time.Duration
}

// Deps agrupa las dependencias del scanner. Metadata, Notifier y Metrics son opcionales.
type Deps struct {
	Feed     ports.TradeFeed
	Metadata ports.MetadataProvider
	Store    ports.KVStore
	Wallets  *wallets.Ledger
	Learning *learning.Store
	Signals  *signals.Manager
	Notifier ports.Notifier
	Metrics  *metrics.Registry
}

// Scanner es el orquestador principal del loop de escaneo.
type Scanner struct {
	cfg        Config
	rules      domain.Rules
	deps       Deps
	pipeline   *scoring.Pipeline
	classifier domain.MarketClassifier
	now        func() time.Time
}

// New crea un Scanner con todas las dependencias inyectadas.
func New(cfg Config, rules domain.Rules, deps Deps) *Scanner {
	return &Scanner{
		cfg:        cfg,
		rules:      rules,
		deps:       deps,
		pipeline:   scoring.NewPipeline(rules),
		classifier: domain.NewRuleClassifier(rules.Aggregation.GamblingKeywords, rules.Aggregation.MarketTypes),
		now:        time.Now,
	}
}

// Run ejecuta el loop de escaneo hasta que el contexto se cancele.
// Si cfg.DryRun está activo, solo ejecuta un ciclo.
func (s *Scanner) Run(ctx context.Context) error {
	slog.Info("scanner starting",
		"interval", s.cfg.ScanInterval,
		"hours_back", s.cfg.HoursBack,
		"dry_run", s.cfg.DryRun,
	)

	if err := s.runCycle(ctx); err != nil {
		slog.Error("scan cycle failed", "err", err)
		if s.cfg.DryRun {
			return err
		}
	}

	if s.cfg.DryRun {
		return nil
	}

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scanner stopped")
			return nil
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				slog.Error("scan cycle failed", "err", err)
			}
		}
	}
}

// runCycle ejecuta un scan y, si está configurado, el barrido de liquidaciones.
func (s *Scanner) runCycle(ctx context.Context) error {
	res, err := s.RunScan(ctx, ScanRequest{})
	switch {
	case errors.Is(err, ErrScanSkipped):
		slog.Info("scan skipped", "min_gap", s.cfg.MinGap)
	case err != nil:
		return err
	default:
		slog.Info("scan cycle complete",
			"windows", res.Windows,
			"signals", len(res.Signals),
			"created", res.Created,
			"dropped", res.Diagnostics.DroppedTotal(),
			"partial", res.Partial,
			"duration", res.Duration.Round(time.Millisecond),
		)
	}

	if s.cfg.SettleAfterScan && s.deps.Signals != nil {
		report, err := s.deps.Signals.SettlePending(ctx)
		if err != nil {
			return fmt.Errorf("scanner.runCycle: settle: %w", err)
		}
		slog.Info("settlement sweep complete",
			"checked", report.Checked,
			"settled", report.Settled(),
			"pending", report.Pending,
			"failed", report.Failed,
		)
	}
	return nil
}

// RunScan ejecuta un scan completo: fetch → aggregate → score → filter → rank →
// persist → notify. Los fallos del feed degradan a un resultado vacío o parcial.
func (s *Scanner) RunScan(ctx context.Context, req ScanRequest) (ScanResult, error) {
	start := s.now()
	res := ScanResult{StartedAt: start}

	if !req.Force {
		skip, err := s.recentRun(ctx, start)
		if err != nil {
			slog.Warn("last run guard unavailable", "err", err)
			s.deps.Metrics.StoreError("scanner")
		}
		if skip {
			s.deps.Metrics.ObserveScan("skipped", 0)
			return res, ErrScanSkipped
		}
	}
	if err := kv.PutJSON(ctx, s.deps.Store, keyLastRun, start, 24*time.Hour); err != nil {
		slog.Warn("could not write last run", "err", err)
		s.deps.Metrics.StoreError("scanner")
	}

	hoursBack := req.HoursBack
	if hoursBack <= 0 {
		hoursBack = s.cfg.HoursBack
	}
	filters := s.cfg.Filter
	if req.Filters != nil {
		filters = *req.Filters
	}
	if req.MinScore > 0 {
		filters.MinScore = req.MinScore
	}
	lookback := time.Duration(hoursBack * float64(time.Hour))

	trades, partial := s.fetchTrades(ctx, start.Add(-lookback))
	res.Partial = partial

	windows, diag := aggregator.Aggregate(trades, aggregator.Options{
		Lookback:   lookback,
		Rules:      s.rules.Aggregation,
		Classifier: s.classifier,
	}, start)
	res.Diagnostics = diag
	res.Windows = len(windows)
	for reason, n := range diag.Dropped {
		s.deps.Metrics.Dropped(reason, n)
	}

	cands := s.evaluate(ctx, windows, start)
	cands = NewFilter(filters).Apply(cands)
	rankCandidates(cands)
	if filters.Limit > 0 && len(cands) > filters.Limit {
		cands = cands[:filters.Limit]
	}
	res.Candidates = len(cands)

	res.Signals = s.persist(ctx, cands, &res)

	if s.deps.Notifier != nil && len(res.Signals) > 0 {
		if err := s.deps.Notifier.NotifySignals(ctx, res.Signals); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}

	res.Duration = s.now().Sub(start)
	result := "ok"
	if res.Partial {
		result = "partial"
	}
	s.deps.Metrics.ObserveScan(result, res.Duration)
	return res, nil
}

// recentRun devuelve true si el último scan registrado es más reciente que MinGap.
func (s *Scanner) recentRun(ctx context.Context, now time.Time) (bool, error) {
	if s.cfg.MinGap <= 0 {
		return false, nil
	}
	last, found, err := kv.GetJSON[time.Time](ctx, s.deps.Store, keyLastRun)
	if err != nil || !found {
		return false, err
	}
	return now.Sub(last) < s.cfg.MinGap, nil
}

// fetchTrades pide el batch de trades con un timeout acotado. Un error no es
// fatal: se sigue con lo que se haya obtenido.
func (s *Scanner) fetchTrades(ctx context.Context, since time.Time) ([]domain.Trade, bool) {
	fctx := ctx
	if s.cfg.FeedTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, s.cfg.FeedTimeout)
		defer cancel()
	}
	trades, err := s.deps.Feed.FetchRecentTrades(fctx, since, s.rules.Aggregation.MinSizeUSD)
	if err != nil {
		slog.Warn("trade feed degraded", "trades", len(trades), "err", err)
		return trades, true
	}
	return trades, false
}

// evaluate puntúa las ventanas de una en una contra un único snapshot de
// aprendizaje tomado al inicio del scan.
func (s *Scanner) evaluate(ctx context.Context, windows []domain.MarketWindow, at time.Time) []signals.Candidate {
	snap := domain.EmptySnapshot()
	if s.deps.Learning != nil {
		snap = s.deps.Learning.Snapshot(ctx)
	}
	var winners scoring.WinnerLookup
	if s.deps.Wallets != nil {
		winners = s.deps.Wallets
	}
	times := fetchEventTimesConcurrent(ctx, s.deps.Metadata, windows, s.cfg.MetadataWorkers)

	cands := make([]signals.Candidate, 0, len(windows))
	for _, w := range windows {
		s.fillEventTimes(&w, times)
		ev := s.pipeline.Evaluate(ctx, w, winners, snap, at)
		slog.Debug("window scored",
			"market", w.Key,
			"base", ev.BaseScore,
			"ai", ev.AIScore,
			"confidence", ev.Confidence,
			"hidden", ev.ShouldHide,
		)
		cands = append(cands, signals.Candidate{Window: w, Evaluation: ev, DetectedAt: at})
	}
	return cands
}

// fillEventTimes estima inicio y fin del evento: primero metadata, después la
// fecha del slug a la hora UTC por defecto.
func (s *Scanner) fillEventTimes(w *domain.MarketWindow, times map[string]domain.EventTimes) {
	if t, ok := times[w.Slug]; ok {
		w.EventStart, w.EventEnd = t.Start, t.End
	}
	if w.EventStart.IsZero() {
		if start, ok := domain.EventDateFromSlug(w.Slug, s.rules.Scoring.DefaultEventUTC); ok {
			w.EventStart = start
		}
	}
	if w.EventEnd.IsZero() && !w.EventStart.IsZero() {
		w.EventEnd = w.EventStart.Add(s.rules.Settlement.DefaultEventDuration)
	}
}

// persist crea una señal por candidato. Si el mercado ya tiene una señal
// pendiente en la misma dirección se devuelve esa en lugar de crear otra.
func (s *Scanner) persist(ctx context.Context, cands []signals.Candidate, res *ScanResult) []domain.Signal {
	if s.deps.Signals == nil {
		return nil
	}
	open := make(map[string]domain.Signal)
	pending, err := s.deps.Signals.Pending(ctx)
	if err != nil {
		slog.Warn("pending signals unavailable", "err", err)
		s.deps.Metrics.StoreError("signals")
	}
	for _, p := range pending {
		open[p.MarketKey+"|"+p.Direction] = p
	}

	out := make([]domain.Signal, 0, len(cands))
	for _, c := range cands {
		key := c.Window.Key + "|" + c.Window.LargestOutcome
		if existing, ok := open[key]; ok {
			res.Existing++
			out = append(out, existing)
			continue
		}
		sig, err := s.deps.Signals.Create(ctx, c)
		if err != nil {
			slog.Warn("could not persist signal", "market", c.Window.Key, "err", err)
			s.deps.Metrics.StoreError("signals")
			continue
		}
		open[key] = sig
		res.Created++
		out = append(out, sig)
	}
	return out
}

// rankCandidates ordena por AI score descendente y, en empate, por confianza.
func rankCandidates(cands []signals.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i].Evaluation, cands[j].Evaluation
		if a.AIScore != b.AIScore {
			return a.AIScore > b.AIScore
		}
		return a.Confidence > b.Confidence
	})
}

// WalletStats devuelve el registro de reputación de una wallet.
func (s *Scanner) WalletStats(ctx context.Context, address string) (domain.WalletStat, error) {
	return s.deps.Wallets.WalletStats(ctx, address)
}

// WalletLeaderboard devuelve el ranking de wallets.
func (s *Scanner) WalletLeaderboard(ctx context.Context, limit int) ([]domain.WalletStat, error) {
	return s.deps.Wallets.Leaderboard(ctx, limit)
}

// FactorStats devuelve las estadísticas aprendidas de todos los factores.
func (s *Scanner) FactorStats(ctx context.Context) ([]domain.FactorStat, error) {
	return s.deps.Learning.FactorStats(ctx)
}

// DiscoveredPatterns devuelve los patrones promovidos y los cercanos a promoción.
func (s *Scanner) DiscoveredPatterns(ctx context.Context) (learning.Discovery, error) {
	return s.deps.Learning.DiscoveredPatterns(ctx)
}

// RecordSettlement intenta liquidar una señal. Es seguro llamarlo varias veces.
func (s *Scanner) RecordSettlement(ctx context.Context, id string) (domain.Outcome, error) {
	return s.deps.Signals.Settle(ctx, id)
}

// SettlePending ejecuta un barrido de liquidaciones.
func (s *Scanner) SettlePending(ctx context.Context) (signals.SweepReport, error) {
	return s.deps.Signals.SettlePending(ctx)
}

// DeduplicateWallets ejecuta la reparación de apuestas duplicadas del ledger.
func (s *Scanner) DeduplicateWallets(ctx context.Context) (wallets.DedupReport, error) {
	return s.deps.Wallets.DeduplicateWalletBets(ctx)
}
