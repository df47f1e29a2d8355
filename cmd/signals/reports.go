package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/alejandrodnm/polysignal/internal/adapters/notify"
	"github.com/alejandrodnm/polysignal/internal/scanner"
)

func runForcedScan(ctx context.Context, s *scanner.Scanner) {
	res, err := s.RunScan(ctx, scanner.ScanRequest{Force: true})
	if err != nil {
		slog.Error("scan failed", "err", err)
		os.Exit(1)
	}
	slog.Info("scan complete",
		"windows", res.Windows,
		"signals", len(res.Signals),
		"created", res.Created,
		"partial", res.Partial,
		"duration", res.Duration,
	)
}

func runSettle(ctx context.Context, s *scanner.Scanner) {
	report, err := s.SettlePending(ctx)
	if err != nil {
		slog.Error("settlement sweep failed", "err", err)
		os.Exit(1)
	}
	slog.Info("settlement sweep complete",
		"checked", report.Checked,
		"won", report.Won,
		"lost", report.Lost,
		"unknown", report.Unknown,
		"pending", report.Pending,
		"failed", report.Failed,
		"dangling", report.Dangling,
	)
}

func runLeaderboard(ctx context.Context, s *scanner.Scanner, console *notify.Console, limit int) {
	stats, err := s.WalletLeaderboard(ctx, limit)
	if err != nil {
		slog.Error("leaderboard failed", "err", err)
		os.Exit(1)
	}
	console.PrintLeaderboard(stats)
}

func runFactors(ctx context.Context, s *scanner.Scanner, console *notify.Console) {
	stats, err := s.FactorStats(ctx)
	if err != nil {
		slog.Error("factor stats failed", "err", err)
		os.Exit(1)
	}
	console.PrintFactors(stats)

	discovery, err := s.DiscoveredPatterns(ctx)
	if err != nil {
		slog.Error("discovered patterns failed", "err", err)
		os.Exit(1)
	}
	console.PrintDiscovery(discovery.Promoted, discovery.NearPromotion)
}

func runDedupe(ctx context.Context, s *scanner.Scanner) {
	report, err := s.DeduplicateWallets(ctx)
	if err != nil {
		slog.Error("dedupe failed", "err", err)
		os.Exit(1)
	}
	slog.Info("wallet dedupe complete",
		"scanned", report.WalletsScanned,
		"changed", report.WalletsChanged,
		"bets_removed", report.BetsRemoved,
		"trades_removed", report.TradesRemoved,
	)
}
