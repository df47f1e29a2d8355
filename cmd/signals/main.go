package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/polysignal/config"
	"github.com/alejandrodnm/polysignal/internal/adapters/kafka"
	"github.com/alejandrodnm/polysignal/internal/adapters/notify"
	"github.com/alejandrodnm/polysignal/internal/adapters/polymarket"
	"github.com/alejandrodnm/polysignal/internal/adapters/storage"
	"github.com/alejandrodnm/polysignal/internal/learning"
	"github.com/alejandrodnm/polysignal/internal/metrics"
	"github.com/alejandrodnm/polysignal/internal/ports"
	"github.com/alejandrodnm/polysignal/internal/scanner"
	"github.com/alejandrodnm/polysignal/internal/signals"
	"github.com/alejandrodnm/polysignal/internal/wallets"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one scan cycle and exit")
	settle := flag.Bool("settle", false, "run one settlement sweep over pending signals and exit")
	leaderboard := flag.Bool("leaderboard", false, "print the wallet leaderboard and exit")
	factors := flag.Bool("factors", false, "print learned factor stats and discovered patterns and exit")
	dedupe := flag.Bool("dedupe", false, "repair duplicated wallet bets and exit")
	force := flag.Bool("force", false, "ignore the last-run guard for -once")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full signal table (default: compact 1-line)")
	limit := flag.Int("limit", 25, "rows for -leaderboard")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("polysignal starting",
		"config", *configPath,
		"interval", cfg.ScanInterval(),
		"store", cfg.Store.Backend,
		"kafka", cfg.Kafka.Enabled(),
		"once", *once,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open store", "err", err, "backend", cfg.Store.Backend)
		os.Exit(1)
	}
	defer store.Close()

	reg := metrics.NewRegistry()
	rules := cfg.Rules()
	client := polymarket.NewBreaker(polymarket.NewClient(cfg.API.DataBase, cfg.API.GammaBase))
	console := notify.NewConsole(*table)

	var publisher ports.SignalPublisher
	if cfg.Kafka.Enabled() {
		p, err := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			// Sin Kafka el motor sigue funcionando; solo se pierden los eventos.
			slog.Warn("kafka publisher disabled", "err", err, "brokers", cfg.Kafka.Brokers)
		} else {
			publisher = p
			defer p.Close()
		}
	}

	ledger := wallets.NewLedger(store, rules.Wallets, reg)
	learner := learning.NewStore(store, rules.Learning, reg)
	manager := signals.NewManager(signals.Deps{
		Store:     store,
		Wallets:   ledger,
		Learning:  learner,
		Games:     client,
		Prices:    client,
		Publisher: publisher,
		Metrics:   reg,
	}, rules)

	scanCfg := scanner.DefaultConfig()
	scanCfg.ScanInterval = cfg.ScanInterval()
	scanCfg.HoursBack = cfg.Scanner.HoursBack
	scanCfg.MinGap = cfg.MinGap()
	scanCfg.FeedTimeout = cfg.FeedTimeout()
	scanCfg.SettleAfterScan = !cfg.Scanner.SkipSettlement
	scanCfg.DryRun = *once
	scanCfg.Filter = scanner.FilterConfig{
		MinScore:      cfg.Scanner.MinScore,
		MarketTypes:   cfg.Scanner.MarketTypes,
		MinVolume:     cfg.Scanner.MinVolume,
		IncludeHidden: cfg.Scanner.IncludeHidden,
		Limit:         cfg.Scanner.Limit,
	}

	s := scanner.New(scanCfg, rules, scanner.Deps{
		Feed:     client,
		Metadata: client,
		Store:    store,
		Wallets:  ledger,
		Learning: learner,
		Signals:  manager,
		Notifier: console,
		Metrics:  reg,
	})

	switch {
	case *leaderboard:
		runLeaderboard(ctx, s, console, *limit)
		return
	case *factors:
		runFactors(ctx, s, console)
		return
	case *dedupe:
		runDedupe(ctx, s)
		return
	case *settle:
		runSettle(ctx, s)
		return
	case *once && *force:
		runForcedScan(ctx, s)
		return
	}

	if cfg.Metrics.Addr != "" && !*once {
		srv := startMetricsServer(cfg.Metrics.Addr, reg)
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := s.Run(ctx); err != nil {
		slog.Error("scanner exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("polysignal stopped cleanly")
}

func openStore(ctx context.Context, cfg config.StoreConfig) (ports.KVStore, error) {
	if cfg.Backend == "redis" {
		r, err := storage.NewRedisKV(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	db, err := storage.NewSQLiteKV(cfg.DSN)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func startMetricsServer(addr string, reg *metrics.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "err", err, "addr", addr)
		}
	}()
	slog.Info("metrics server listening", "addr", addr)
	return srv
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
