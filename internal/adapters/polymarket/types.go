package polymarket

import "encoding/json"

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- Data API ---

// dataTrade es un item de GET /trades de la Data API.
// size viene en shares; el notional en USDC es size × price.
type dataTrade struct {
	ProxyWallet     string      `json:"proxyWallet"`
	Side            string      `json:"side"`
	Asset           string      `json:"asset"`
	ConditionID     string      `json:"conditionId"`
	Size            json.Number `json:"size"`
	Price           json.Number `json:"price"`
	Timestamp       json.Number `json:"timestamp"`
	Title           string      `json:"title"`
	Slug            string      `json:"slug"`
	EventSlug       string      `json:"eventSlug"`
	Outcome         string      `json:"outcome"`
	OutcomeIndex    int         `json:"outcomeIndex"`
	TransactionHash string      `json:"transactionHash"`
}

// --- Gamma API ---

// gammaMarketsResponse es la respuesta de GET /markets de Gamma.
type gammaMarketsResponse []gammaMarket

// gammaMarket contiene la metadata de un mercado.
// outcomes y outcomePrices llegan como arrays JSON serializados dentro de un string.
type gammaMarket struct {
	ConditionID    string      `json:"conditionId"`
	Question       string      `json:"question"`
	Slug           string      `json:"slug"`
	StartDate      string      `json:"startDate"`
	EndDate        string      `json:"endDate"`
	GameStartTime  string      `json:"gameStartTime"`
	EventStartTime string      `json:"eventStartTime"`
	Outcomes       string      `json:"outcomes"`
	OutcomePrices  string      `json:"outcomePrices"`
	LastTradePrice json.Number `json:"lastTradePrice"`
	Active         bool        `json:"active"`
	Closed         bool        `json:"closed"`
}

// gammaEventsResponse es la respuesta de GET /events de Gamma.
type gammaEventsResponse []gammaEvent

// gammaEvent es un evento deportivo con marcador. score tiene la forma "105-98"
// en el mismo orden que los equipos del título.
type gammaEvent struct {
	Slug   string `json:"slug"`
	Title  string `json:"title"`
	Score  string `json:"score"`
	Period string `json:"period"`
	Ended  bool   `json:"ended"`
	Closed bool   `json:"closed"`
}
