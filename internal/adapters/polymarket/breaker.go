package polymarket

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/alejandrodnm/polysignal/internal/domain"
	"github.com/alejandrodnm/polysignal/internal/ports"
)

// Breaker protege las llamadas a Polymarket con un circuit breaker por endpoint:
// tras 3 fallos consecutivos (o >5% de fallos con 20+ requests) el circuito se
// abre 60s y las llamadas fallan rápido con gobreaker.ErrOpenState.
type Breaker struct {
	feed     ports.TradeFeed
	meta     ports.MetadataProvider
	resolver ports.MarketResolver
	games    ports.GameResultProvider

	feedCB  *gobreaker.CircuitBreaker
	gammaCB *gobreaker.CircuitBreaker
}

// NewBreaker envuelve el client con breakers independientes para Data API y Gamma.
func NewBreaker(c *Client) *Breaker {
	return &Breaker{
		feed:     c,
		meta:     c,
		resolver: c,
		games:    c,
		feedCB:   newCircuitBreaker("polymarket-data"),
		gammaCB:  newCircuitBreaker("polymarket-gamma"),
	}
}

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
	}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}
	// Un mercado inexistente o un contexto cancelado no indican que el upstream falle.
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrMarketNotFound) || errors.Is(err, context.Canceled)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
	}
	return gobreaker.NewCircuitBreaker(st)
}

// FetchRecentTrades conserva el resultado parcial aunque la llamada falle.
func (b *Breaker) FetchRecentTrades(ctx context.Context, since time.Time, minSize float64) ([]domain.Trade, error) {
	res, err := b.feedCB.Execute(func() (any, error) {
		return b.feed.FetchRecentTrades(ctx, since, minSize)
	})
	trades, _ := res.([]domain.Trade)
	return trades, err
}

func (b *Breaker) FetchEventTimes(ctx context.Context, slug string) (domain.EventTimes, error) {
	res, err := b.gammaCB.Execute(func() (any, error) {
		return b.meta.FetchEventTimes(ctx, slug)
	})
	et, _ := res.(domain.EventTimes)
	return et, err
}

func (b *Breaker) FetchMarketPrice(ctx context.Context, marketID, outcome string) (domain.MarketPrice, error) {
	res, err := b.gammaCB.Execute(func() (any, error) {
		return b.resolver.FetchMarketPrice(ctx, marketID, outcome)
	})
	mp, _ := res.(domain.MarketPrice)
	return mp, err
}

func (b *Breaker) FetchGameResult(ctx context.Context, slug string) (domain.GameResult, error) {
	res, err := b.gammaCB.Execute(func() (any, error) {
		return b.games.FetchGameResult(ctx, slug)
	})
	gr, _ := res.(domain.GameResult)
	return gr, err
}
