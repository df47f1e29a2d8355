package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polysignal/internal/domain"
)

// TradeFeed obtiene el batch de trades recientes del venue.
type TradeFeed interface {
	// FetchRecentTrades devuelve los trades posteriores a since con notional >= minSize.
	// Si el fetch se corta a mitad (timeout, error de una página) devuelve lo
	// obtenido hasta ese punto junto con el error.
	FetchRecentTrades(ctx context.Context, since time.Time, minSize float64) ([]domain.Trade, error)
}
