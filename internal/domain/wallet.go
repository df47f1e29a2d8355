package domain

import (
	"math"
	"time"
)

// Tier es la clasificación de reputación de una wallet.
type Tier string

const (
	TierNone    Tier = ""
	TierInsider Tier = "INSIDER"
	TierElite   Tier = "ELITE"
	TierStrong  Tier = "STRONG"
	TierAverage Tier = "AVERAGE"
	TierFade    Tier = "FADE"
)

// TierThreshold define los mínimos para alcanzar un tier.
type TierThreshold struct {
	Tier       Tier    `yaml:"tier"`
	MinWinRate float64 `yaml:"min_win_rate"`
	MinBets    int     `yaml:"min_bets"`
	MinVolume  float64 `yaml:"min_volume"`
}

// WalletBet es una entrada del ring buffer de apuestas recientes de una wallet.
type WalletBet struct {
	SignalID   string    `json:"signal_id,omitempty"`
	Market     string    `json:"market"`
	Direction  string    `json:"direction"`
	Amount     float64   `json:"amount"`
	Price      float64   `json:"price"`
	PlacedAt   time.Time `json:"placed_at"`         // timestamp del trade
	RecordedAt time.Time `json:"recorded_at"`       // cuándo entró en el ledger
	Outcome    Outcome   `json:"outcome,omitempty"` // vacío = pendiente
	PnL        float64   `json:"pnl,omitempty"`
}

// IsPending devuelve true si la apuesta aún no tiene resultado.
func (b WalletBet) IsPending() bool {
	return b.Outcome == ""
}

// WalletStat es el registro de reputación de una dirección.
type WalletStat struct {
	Address       string      `json:"address"`
	Wins          int         `json:"wins"`
	Losses        int         `json:"losses"`
	Pending       int         `json:"pending"`
	TotalBets     int         `json:"total_bets"`
	TotalVolume   float64     `json:"total_volume"`
	WinRate       float64     `json:"win_rate"`
	RealizedPnL   float64     `json:"realized_pnl"`
	UnrealizedPnL float64     `json:"unrealized_pnl"`
	CurrentStreak int         `json:"current_streak"` // >0 racha de wins, <0 racha de losses
	BestStreak    int         `json:"best_streak"`
	Tier          Tier        `json:"tier"`
	RecentBets    []WalletBet `json:"recent_bets"`
	FirstSeen     time.Time   `json:"first_seen"`
	LastBetAt     time.Time   `json:"last_bet_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Recount reestablece TotalBets y WinRate a partir de wins/losses.
// WinRate = round(wins/totalBets×100) cuando hay apuestas liquidadas.
func (w *WalletStat) Recount() {
	w.TotalBets = w.Wins + w.Losses
	if w.TotalBets > 0 {
		w.WinRate = math.Round(float64(w.Wins) / float64(w.TotalBets) * 100)
	} else {
		w.WinRate = 0
	}
}

// LedgerTrade es una posición del ledger de trades, usado para reconstruir P&L.
type LedgerTrade struct {
	SignalID   string     `json:"signal_id,omitempty"`
	Market     string     `json:"market"`
	Direction  string     `json:"direction"`
	Stake      float64    `json:"stake"`
	EntryPrice float64    `json:"entry_price"`
	MarkPrice  float64    `json:"mark_price"`
	OpenedAt   time.Time  `json:"opened_at"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
	Outcome    Outcome    `json:"outcome,omitempty"`
	Return     float64    `json:"return"`
	PnL        float64    `json:"pnl"`
}

// Unrealized devuelve el P&L latente de una posición abierta según su último precio.
func (t LedgerTrade) Unrealized() float64 {
	if t.EntryPrice <= 0 || t.MarkPrice <= 0 {
		return 0
	}
	return t.Stake/t.EntryPrice*t.MarkPrice - t.Stake
}

// WalletLedger separa las posiciones abiertas de las resueltas.
type WalletLedger struct {
	Open     []LedgerTrade `json:"open"`
	Resolved []LedgerTrade `json:"resolved"`
}

// SettlementReturn calcula el retorno bruto de una apuesta liquidada:
// WIN → stake/entryPrice, LOSS → 0, UNKNOWN → stake (anulada).
func SettlementReturn(outcome Outcome, stake, entryPrice float64) float64 {
	switch outcome {
	case OutcomeWin:
		if entryPrice <= 0 {
			return stake
		}
		return stake / entryPrice
	case OutcomeLoss:
		return 0
	default:
		return stake
	}
}
