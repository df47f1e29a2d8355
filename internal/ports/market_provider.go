package ports

import (
	"context"

	"github.com/alejandrodnm/polysignal/internal/domain"
)

// MetadataProvider estima inicio y fin de un evento a partir del slug del mercado.
type MetadataProvider interface {
	FetchEventTimes(ctx context.Context, slug string) (domain.EventTimes, error)
}

// MarketResolver es la fuente de liquidación por precio: devuelve el precio actual
// del outcome apostado (>= 0.95 ganó, <= 0.05 perdió).
type MarketResolver interface {
	FetchMarketPrice(ctx context.Context, marketID, outcome string) (domain.MarketPrice, error)
}

// GameResultProvider es la fuente de liquidación por marcador oficial.
// Cuando está disponible tiene prioridad sobre el precio.
type GameResultProvider interface {
	FetchGameResult(ctx context.Context, slug string) (domain.GameResult, error)
}
