package polymarket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/alejandrodnm/polysignal/internal/domain"
)

// ErrMarketNotFound indica que Gamma no conoce el mercado o el outcome pedido.
var ErrMarketNotFound = errors.New("polymarket: market not found")

// FetchEventTimes estima inicio y fin del evento de un mercado a partir de su slug.
// Devuelve EventTimes vacío (sin error) si Gamma no tiene fechas.
func (c *Client) FetchEventTimes(ctx context.Context, slug string) (domain.EventTimes, error) {
	gm, err := c.fetchMarket(ctx, "slug", slug)
	if err != nil {
		return domain.EventTimes{}, fmt.Errorf("gamma.FetchEventTimes: %w", err)
	}
	return mapEventTimes(gm), nil
}

// FetchMarketPrice devuelve el precio actual del outcome apostado y el último
// trade observado en el mercado.
func (c *Client) FetchMarketPrice(ctx context.Context, marketID, outcome string) (domain.MarketPrice, error) {
	gm, err := c.fetchMarket(ctx, "condition_ids", marketID)
	if err != nil {
		return domain.MarketPrice{}, fmt.Errorf("gamma.FetchMarketPrice: %w", err)
	}

	label, price, ok := outcomePrice(gm, outcome)
	if !ok {
		return domain.MarketPrice{}, fmt.Errorf("gamma.FetchMarketPrice: outcome %q: %w", outcome, ErrMarketNotFound)
	}

	mp := domain.MarketPrice{Outcome: label, Price: price, Closed: gm.Closed}
	last, err := c.fetchLastTradeAt(ctx, marketID)
	if err != nil {
		// El último trade solo alimenta el timeout de 12h; sin él seguimos.
		slog.Debug("last trade lookup failed", "market", marketID, "err", err)
	} else {
		mp.LastTradeAt = last
	}
	return mp, nil
}

// FetchGameResult obtiene el marcador oficial de un evento deportivo.
func (c *Client) FetchGameResult(ctx context.Context, slug string) (domain.GameResult, error) {
	q := url.Values{}
	q.Set("slug", slug)

	var resp gammaEventsResponse
	if err := c.get(ctx, c.gammaLimiter, c.gammaBase+"/events?"+q.Encode(), &resp); err != nil {
		return domain.GameResult{}, fmt.Errorf("gamma.FetchGameResult: %w", err)
	}
	if len(resp) == 0 {
		return domain.GameResult{}, fmt.Errorf("gamma.FetchGameResult: %q: %w", slug, ErrMarketNotFound)
	}
	return mapGameResult(resp[0]), nil
}

// fetchMarket hace GET /markets filtrando por un único campo.
func (c *Client) fetchMarket(ctx context.Context, field, value string) (gammaMarket, error) {
	q := url.Values{}
	q.Set(field, value)
	q.Set("limit", "1")

	var resp gammaMarketsResponse
	if err := c.get(ctx, c.gammaLimiter, c.gammaBase+"/markets?"+q.Encode(), &resp); err != nil {
		return gammaMarket{}, err
	}
	if len(resp) == 0 {
		return gammaMarket{}, fmt.Errorf("%s=%q: %w", field, value, ErrMarketNotFound)
	}
	return resp[0], nil
}
