package domain

import "time"

// Outcome es el resultado final de una señal liquidada.
type Outcome string

const (
	OutcomeWin     Outcome = "WIN"
	OutcomeLoss    Outcome = "LOSS"
	OutcomeUnknown Outcome = "UNKNOWN"
)

// Decisive devuelve true para WIN y LOSS. UNKNOWN queda fuera de los win rates.
func (o Outcome) Decisive() bool {
	return o == OutcomeWin || o == OutcomeLoss
}

// FactorRef es la representación única de un factor: nombre + metadata opcional.
// El scorer la produce, la señal la guarda y el learning store la consume por nombre.
type FactorRef struct {
	Name        string  `json:"name"`
	Points      float64 `json:"points"`
	Description string  `json:"description,omitempty"`
}

// FactorNames extrae los nombres de una lista de factores, sin duplicados.
func FactorNames(factors []FactorRef) []string {
	seen := make(map[string]bool, len(factors))
	names := make([]string, 0, len(factors))
	for _, f := range factors {
		if f.Name == "" || seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		names = append(names, f.Name)
	}
	return names
}

// Signal es un candidato puntuado y persistido.
// Ciclo de vida: Outcome == nil (pendiente) → exactamente una transición → fijo.
type Signal struct {
	ID         string `json:"id"`
	MarketID   string `json:"market_id"`
	MarketKey  string `json:"market_key"`
	Slug       string `json:"slug"`
	Title      string `json:"title"`
	MarketType string `json:"market_type"`

	Direction string  `json:"direction"` // outcome apostado por el dinero informado
	Price     float64 `json:"price"`     // precio mostrado (entrada de la apuesta dominante)

	BaseScore    float64 `json:"base_score"`
	AIScore      float64 `json:"ai_score"`
	AIMultiplier float64 `json:"ai_multiplier"`
	ShouldHide   bool    `json:"should_hide"`
	Confidence   float64 `json:"confidence"`

	Factors          []FactorRef `json:"factors"`
	TopTrades        []Trade     `json:"top_trades"`
	HasWinningWallet bool        `json:"has_winning_wallet"`
	TimingWindow     string      `json:"timing_window,omitempty"`
	Patterns         PatternKeys `json:"patterns"`

	TotalVolume float64  `json:"total_volume"`
	Wallets     []string `json:"wallets"`

	EventStart  time.Time `json:"event_start,omitempty"`
	EventEnd    time.Time `json:"event_end,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastTradeAt time.Time `json:"last_trade_at"`

	Outcome    *Outcome            `json:"outcome"`
	SettledAt  *time.Time          `json:"settled_at,omitempty"`
	Settlement *SettlementProgress `json:"settlement,omitempty"`
}

// IsPending devuelve true mientras la señal no tenga outcome.
func (s Signal) IsPending() bool {
	return s.Outcome == nil
}

// FactorNames devuelve los nombres de los factores de la señal.
func (s Signal) FactorNames() []string {
	return FactorNames(s.Factors)
}

// SettlementProgress es el journal de una liquidación en curso. Cada efecto se
// marca al completarse; un reintento salta los efectos ya aplicados y el Outcome
// de la señal solo se fija cuando todos terminaron.
type SettlementProgress struct {
	Resolved     Outcome         `json:"resolved"`
	Source       string          `json:"source"`
	ResolvedAt   time.Time       `json:"resolved_at"`
	WalletsDone  map[string]bool `json:"wallets_done,omitempty"`
	LearningDone bool            `json:"learning_done"`
}

// Resolution es la respuesta de una fuente de liquidación.
type Resolution struct {
	Resolved bool
	Outcome  Outcome
	Source   string
	// LastTradeAt es el último trade observado en el mercado (para el timeout de 12h).
	LastTradeAt time.Time
}

// GameResult es el resultado oficial de un partido.
type GameResult struct {
	Final     bool
	Winner    string // nombre del equipo ganador, vacío si empate
	HomeTeam  string
	AwayTeam  string
	HomeScore int
	AwayScore int
}

// MarketPrice es el precio actual de un outcome en el venue.
type MarketPrice struct {
	Outcome     string
	Price       float64
	Closed      bool
	LastTradeAt time.Time
}

// EventTimes son las estimaciones de inicio/fin de un evento.
type EventTimes struct {
	Start time.Time
	End   time.Time
}
