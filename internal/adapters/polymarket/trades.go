package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/alejandrodnm/polysignal/internal/domain"
)

const (
	tradesPerPage  = 500
	tradesMaxPages = 10
)

// FetchRecentTrades obtiene los trades posteriores a since con notional >= minSize
// usando la Data API pública. La API devuelve los trades del más reciente al más
// antiguo; se pagina hasta cruzar since o agotar tradesMaxPages.
//
// Si una página falla devuelve los trades obtenidos hasta ese momento junto con
// el error, para que el scan pueda seguir con datos parciales.
func (c *Client) FetchRecentTrades(ctx context.Context, since time.Time, minSize float64) ([]domain.Trade, error) {
	var all []domain.Trade

	for page := 0; page < tradesMaxPages; page++ {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(tradesPerPage))
		q.Set("offset", strconv.Itoa(page*tradesPerPage))
		q.Set("takerOnly", "true")
		if minSize > 0 {
			q.Set("filterType", "CASH")
			q.Set("filterAmount", strconv.FormatFloat(minSize, 'f', -1, 64))
		}

		var resp []dataTrade
		if err := c.get(ctx, c.dataLimiter, c.dataBase+"/trades?"+q.Encode(), &resp); err != nil {
			return all, fmt.Errorf("data-api.FetchRecentTrades: page %d: %w", page, err)
		}
		if len(resp) == 0 {
			break
		}

		crossed := false
		for _, rt := range resp {
			t := mapDataTrade(rt)
			if !t.Timestamp.IsZero() && t.Timestamp.Before(since) {
				crossed = true
				continue
			}
			all = append(all, t)
		}

		slog.Debug("fetched trades page",
			"page", page,
			"count", len(resp),
			"total", len(all),
		)

		if crossed || len(resp) < tradesPerPage {
			break
		}
	}

	return all, nil
}

// fetchLastTradeAt devuelve el timestamp del trade más reciente de un mercado.
func (c *Client) fetchLastTradeAt(ctx context.Context, conditionID string) (time.Time, error) {
	q := url.Values{}
	q.Set("market", conditionID)
	q.Set("limit", "1")

	var resp []dataTrade
	if err := c.get(ctx, c.dataLimiter, c.dataBase+"/trades?"+q.Encode(), &resp); err != nil {
		return time.Time{}, fmt.Errorf("data-api.fetchLastTradeAt: %w", err)
	}
	if len(resp) == 0 {
		return time.Time{}, nil
	}
	return parseTradeTimestamp(resp[0].Timestamp), nil
}
