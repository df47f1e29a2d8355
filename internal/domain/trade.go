package domain

import (
	"strings"
	"time"
)

// Trade representa un trade individual del feed de la Data API.
// Es inmutable: el motor nunca modifica un Trade recibido.
type Trade struct {
	ID           string
	MarketID     string // condition_id
	Slug         string
	Title        string
	Outcome      string // etiqueta del outcome ("Yes", "No", nombre de equipo...)
	OutcomeIndex int
	Side         string  // "BUY" o "SELL"
	Price        float64 // (0, 1)
	Size         float64 // notional en USDC
	Wallet       string
	Timestamp    time.Time
}

// MarketKey devuelve la clave de agrupación del trade: slug, o el título si no hay slug.
func (t Trade) MarketKey() string {
	if k := strings.TrimSpace(t.Slug); k != "" {
		return k
	}
	return strings.TrimSpace(t.Title)
}

