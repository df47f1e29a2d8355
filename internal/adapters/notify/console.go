package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polysignal/internal/domain"
)

// Console implementa ports.Notifier y las vistas de consola del CLI
// (leaderboard, factores, patrones descubiertos).
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifySignals imprime las señales del scan en el modo configurado.
func (c *Console) NotifySignals(_ context.Context, signals []domain.Signal) error {
	if len(signals) == 0 {
		fmt.Fprintf(c.out, "[%s] no signals\n", time.Now().Format("15:04:05"))
		return nil
	}
	if c.table {
		c.printSignalTable(signals)
	} else {
		c.printCompact(signals)
	}
	return nil
}

// printCompact imprime una línea con las 4 mejores señales.
func (c *Console) printCompact(signals []domain.Signal) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d signals", time.Now().Format("15:04:05"), len(signals))
	for i, s := range signals {
		if i >= 4 {
			break
		}
		fmt.Fprintf(&sb, " | %s %s@%.0f%% ai%.0f conf%.0f",
			compactName(s.Title, 25), s.Direction, s.Price*100, s.AIScore, s.Confidence)
		if s.HasWinningWallet {
			sb.WriteString(" ★")
		}
	}
	fmt.Fprintln(c.out, sb.String())
}

func (c *Console) printSignalTable(signals []domain.Signal) {
	fmt.Fprintf(c.out, "\n[%s] %d signals\n", time.Now().Format("15:04:05"), len(signals))

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Market", "Type", "Pick", "Price", "Base", "×", "AI", "Conf", "Volume", "Wallets", "Timing", "Factors")
	for i, s := range signals {
		pick := s.Direction
		if s.HasWinningWallet {
			pick += " ★"
		}
		if s.ShouldHide {
			pick += " (fade)"
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			compactName(s.Title, 40),
			s.MarketType,
			pick,
			fmt.Sprintf("%.0f%%", s.Price*100),
			fmt.Sprintf("%.0f", s.BaseScore),
			fmt.Sprintf("%.2f", s.AIMultiplier),
			fmt.Sprintf("%.0f", s.AIScore),
			fmt.Sprintf("%.0f", s.Confidence),
			fmt.Sprintf("$%.0f", s.TotalVolume),
			fmt.Sprintf("%d", len(s.Wallets)),
			s.TimingWindow,
			strings.Join(s.FactorNames(), ","),
		)
	}
	table.Render()
	fmt.Fprintln(c.out, "  ★ = wallet ganadora | × = multiplicador aprendido | fade = factor con win rate histórico muy bajo")
}

// PrintLeaderboard imprime el ranking de wallets.
func (c *Console) PrintLeaderboard(stats []domain.WalletStat) {
	if len(stats) == 0 {
		fmt.Fprintln(c.out, "no tracked wallets")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Wallet", "Tier", "W", "L", "Pend", "Win%", "Volume", "Realized", "Unrealized", "Streak")
	for i, w := range stats {
		table.Append(
			fmt.Sprintf("%d", i+1),
			shortAddr(w.Address),
			string(w.Tier),
			fmt.Sprintf("%d", w.Wins),
			fmt.Sprintf("%d", w.Losses),
			fmt.Sprintf("%d", w.Pending),
			fmt.Sprintf("%.0f", w.WinRate),
			fmt.Sprintf("$%.0f", w.TotalVolume),
			fmt.Sprintf("$%.2f", w.RealizedPnL),
			fmt.Sprintf("$%.2f", w.UnrealizedPnL),
			fmt.Sprintf("%+d", w.CurrentStreak),
		)
	}
	table.Render()
}

// PrintFactors imprime las estadísticas aprendidas por factor.
func (c *Console) PrintFactors(stats []domain.FactorStat) {
	if len(stats) == 0 {
		fmt.Fprintln(c.out, "no factor stats yet")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Factor", "W", "L", "Win%", "Weight", "Samples", "Discovered")
	for _, f := range stats {
		disc := ""
		if f.Discovered {
			disc = "yes"
		}
		table.Append(
			f.Name,
			fmt.Sprintf("%d", f.Wins),
			fmt.Sprintf("%d", f.Losses),
			fmt.Sprintf("%.1f", f.WinRate),
			fmt.Sprintf("%.2f", f.Weight),
			fmt.Sprintf("%d", f.SampleSize),
			disc,
		)
	}
	table.Render()
}

// PrintDiscovery imprime los patrones promovidos y los candidatos cerca de promoción.
func (c *Console) PrintDiscovery(promoted []domain.FactorStat, near []domain.PatternCandidate) {
	fmt.Fprintf(c.out, "\n=== DISCOVERED PATTERNS (%d) ===\n", len(promoted))
	if len(promoted) > 0 {
		c.PrintFactors(promoted)
	}

	fmt.Fprintf(c.out, "\n=== NEAR PROMOTION (%d) ===\n", len(near))
	if len(near) == 0 {
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Dimension", "Pattern", "W", "L", "Win%", "Samples")
	for _, p := range near {
		table.Append(
			p.Dimension,
			p.Name,
			fmt.Sprintf("%d", p.Wins),
			fmt.Sprintf("%d", p.Losses),
			fmt.Sprintf("%.1f", p.WinRate),
			fmt.Sprintf("%d", p.SampleSize),
		)
	}
	table.Render()
}

func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if idx := strings.LastIndex(cut, " "); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}

func shortAddr(a string) string {
	if len(a) <= 12 {
		return a
	}
	return a[:6] + "…" + a[len(a)-4:]
}
