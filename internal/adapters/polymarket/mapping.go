package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polysignal/internal/domain"
)

// mapDataTrade convierte un trade de la Data API a domain.Trade.
func mapDataTrade(rt dataTrade) domain.Trade {
	price, _ := rt.Price.Float64()
	shares, _ := rt.Size.Float64()

	slug := rt.Slug
	if slug == "" {
		slug = rt.EventSlug
	}
	id := rt.TransactionHash
	if id != "" && rt.Asset != "" {
		id += ":" + rt.Asset
	}

	return domain.Trade{
		ID:           id,
		MarketID:     rt.ConditionID,
		Slug:         slug,
		Title:        rt.Title,
		Outcome:      rt.Outcome,
		OutcomeIndex: rt.OutcomeIndex,
		Side:         strings.ToUpper(rt.Side),
		Price:        price,
		Size:         shares * price,
		Wallet:       strings.ToLower(rt.ProxyWallet),
		Timestamp:    parseTradeTimestamp(rt.Timestamp),
	}
}

// decodeStringArray decodifica campos tipo `"[\"Yes\", \"No\"]"`.
func decodeStringArray(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// outcomePrice busca el precio del outcome apostado. Acepta el label literal o,
// para mercados Yes/No tipo "A vs B", el nombre del equipo que resolvió el aggregator.
func outcomePrice(gm gammaMarket, outcome string) (label string, price float64, ok bool) {
	outcomes := decodeStringArray(gm.Outcomes)
	prices := decodeStringArray(gm.OutcomePrices)
	if len(outcomes) == 0 || len(outcomes) != len(prices) {
		return "", 0, false
	}

	idx := -1
	for i, o := range outcomes {
		if strings.EqualFold(strings.TrimSpace(o), strings.TrimSpace(outcome)) {
			idx = i
			break
		}
	}
	if idx < 0 {
		if a, b, found := domain.ParseTeams(gm.Question); found {
			switch {
			case strings.EqualFold(outcome, a):
				idx = indexOfFold(outcomes, "yes")
			case strings.EqualFold(outcome, b):
				idx = indexOfFold(outcomes, "no")
			}
		}
	}
	if idx < 0 {
		return "", 0, false
	}

	p, err := strconv.ParseFloat(prices[idx], 64)
	if err != nil {
		return "", 0, false
	}
	return outcomes[idx], p, true
}

func indexOfFold(list []string, v string) int {
	for i, s := range list {
		if strings.EqualFold(s, v) {
			return i
		}
	}
	return -1
}

// mapEventTimes extrae inicio y fin estimados de la metadata de Gamma.
// Para deportes gameStartTime es la referencia; si falta, eventStartTime.
func mapEventTimes(gm gammaMarket) domain.EventTimes {
	var et domain.EventTimes
	for _, s := range []string{gm.GameStartTime, gm.EventStartTime} {
		if t, ok := parseGammaTime(s); ok {
			et.Start = t
			break
		}
	}
	if t, ok := parseGammaTime(gm.EndDate); ok && (et.Start.IsZero() || t.After(et.Start)) {
		et.End = t
	}
	return et
}

// mapGameResult interpreta el marcador "H-A" de un evento de Gamma.
func mapGameResult(ev gammaEvent) domain.GameResult {
	home, away, ok := domain.ParseTeams(ev.Title)
	if !ok {
		return domain.GameResult{}
	}
	res := domain.GameResult{HomeTeam: home, AwayTeam: away}

	parts := strings.Split(strings.TrimSpace(ev.Score), "-")
	if len(parts) != 2 {
		return res
	}
	hs, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	as, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return res
	}
	res.HomeScore, res.AwayScore = hs, as
	res.Final = ev.Ended || strings.EqualFold(ev.Period, "final") || strings.EqualFold(ev.Period, "ft")

	switch {
	case hs > as:
		res.Winner = home
	case as > hs:
		res.Winner = away
	}
	return res
}

// parseGammaTime acepta los formatos que usa Gamma.
func parseGammaTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05-07",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02T15:04:05.000Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseTradeTimestamp(n json.Number) time.Time {
	s := n.String()
	// Unix en segundos o milisegundos
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.Unix(sec/1000, (sec%1000)*int64(time.Millisecond)).UTC()
		}
		return time.Unix(sec, 0).UTC()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}
	if t, ok := parseGammaTime(s); ok {
		return t
	}
	return time.Time{}
}
