package domain

import "time"

// Rules agrupa todos los umbrales del motor. Se construye una sola vez al arrancar
// (config.Config.Rules) y se pasa explícitamente a cada componente; ningún
// componente lee estado global del proceso.
type Rules struct {
	Aggregation AggregationRules
	Scoring     ScoringRules
	Wallets     WalletRules
	Learning    LearningRules
	Settlement  SettlementRules
}

// AggregationRules controla qué trades entran en las ventanas de mercado.
type AggregationRules struct {
	MinSizeUSD       float64
	MaxPrice         float64 // >= se considera mercado ya resuelto
	MinPrice         float64 // <= se considera mercado ya resuelto
	MaxSampleTrades  int
	GamblingKeywords []string
	MarketTypes      []MarketTypeRule
}

// Bucket asigna puntos cuando el valor es >= Min. Los buckets se evalúan en orden.
type Bucket struct {
	Min    float64
	Points float64
	Name   string
}

// ConcentrationRule puntúa mercados con pocas wallets y volumen relevante.
type ConcentrationRule struct {
	MaxWallets int
	MinVolume  float64
	Points     float64
	Name       string
}

// PriceRule puntúa el precio de entrada de la apuesta dominante.
// Underdog: price <= Max. Favorito: price >= Min.
type PriceRule struct {
	Min    float64
	Max    float64
	Points float64
	Name   string
}

// TimingBucket puntúa la cercanía al inicio del evento (horas <= MaxHours).
type TimingBucket struct {
	MaxHours float64
	Points   float64
	Name     string
	Window   string // etiqueta legible guardada en la señal
}

// ScoringRules son los parámetros del scorer heurístico y del ensemble.
type ScoringRules struct {
	BetBuckets      []Bucket
	VolumeBuckets   []Bucket
	Concentration   []ConcentrationRule
	UnderdogPrices  []PriceRule
	FavoritePrices  []PriceRule
	TossupPoints    float64
	TimingBuckets   []TimingBucket
	WinnerBonus     float64
	DefaultEventUTC int // hora UTC estimada de inicio cuando solo se conoce la fecha del slug
	MaxTopTrades    int

	FadeFactors         []string
	FadeWinRate         float64
	MinSamplesForWeight int
	MultiplierMin       float64
	MultiplierMax       float64
	ComboMinSamples     int
	ComboStrongWinRate  float64
	ComboWeakWinRate    float64
	ComboBoost          float64
	ComboPenalty        float64

	ConfidenceFloor   float64
	ConfidenceCeiling float64
	LearnedShare      float64 // peso del estimador frente al baseline (0.6)
}

// WalletRules son los umbrales del ledger de reputación.
type WalletRules struct {
	Tiers             []TierThreshold
	MinBetsForTier    int
	WinningWinRate    float64
	KeepWinRate       float64
	KeepVolume        float64
	KeepRecency       time.Duration
	EvictMinBets      int
	EvictWinRate      float64
	DuplicateWindow   time.Duration
	DuplicateAmount   float64
	RecentBetsCap     int
	OpenTradesCap     int
	ResolvedTradesCap int
	WinnersCacheTTL   time.Duration
}

// LearningRules son los umbrales del learning store y del estimador de confianza.
type LearningRules struct {
	FullConfidenceSamples int
	PromoteMinSamples     int
	PromoteHighWinRate    float64
	PromoteLowWinRate     float64
	NearPromotionSamples  int
	ComboKeepSamples      int
	ComboStaleAfter       time.Duration // poda de combos con pocas muestras
	MinFactorSamples      int           // confianza: componente de factores
	MinDimensionSamples   int           // confianza: resto de componentes
}

// SettlementRules controlan la resolución de señales pendientes.
type SettlementRules struct {
	WinPrice             float64
	LossPrice            float64
	UnknownAfterEventEnd time.Duration
	UnknownAfterQuiet    time.Duration
	DefaultEventDuration time.Duration
	PendingTTL           time.Duration
	SettledTTL           time.Duration
}

// DefaultRules devuelve los umbrales de producción.
func DefaultRules() Rules {
	return Rules{
		Aggregation: AggregationRules{
			MinSizeUSD:      10,
			MaxPrice:        0.95,
			MinPrice:        0.05,
			MaxSampleTrades: 10,
			GamblingKeywords: []string{
				"15m", "5m", "1h", "up or down", "up-or-down", "hourly",
				"next 15 minutes", "next hour",
			},
			MarketTypes: DefaultMarketTypeRules(),
		},
		Scoring: ScoringRules{
			BetBuckets: []Bucket{
				{Min: 100_000, Points: 80, Name: "betMega"},
				{Min: 50_000, Points: 60, Name: "betWhale"},
				{Min: 25_000, Points: 45, Name: "betLarge"},
				{Min: 10_000, Points: 30, Name: "betBig"},
				{Min: 5_000, Points: 20, Name: "betMedium"},
				{Min: 3_000, Points: 10, Name: "betSmall"},
			},
			VolumeBuckets: []Bucket{
				{Min: 500_000, Points: 25, Name: "volumeHuge"},
				{Min: 250_000, Points: 20, Name: "volumeHigh"},
				{Min: 100_000, Points: 15, Name: "volumeLarge"},
				{Min: 50_000, Points: 10, Name: "volumeMedium"},
				{Min: 10_000, Points: 8, Name: "volumeModerate"},
				{Min: 0, Points: 5, Name: "volumeLow"},
			},
			Concentration: []ConcentrationRule{
				{MaxWallets: 1, MinVolume: 10_000, Points: 25, Name: "concentrationSingle"},
				{MaxWallets: 2, MinVolume: 5_000, Points: 20, Name: "concentrationPair"},
				{MaxWallets: 3, MinVolume: 5_000, Points: 15, Name: "concentrationFew"},
			},
			UnderdogPrices: []PriceRule{
				{Max: 0.15, Points: 35, Name: "priceDeepLongshot"},
				{Max: 0.30, Points: 25, Name: "priceLongshot"},
				{Max: 0.5, Points: 15, Name: "priceUnderdog"},
			},
			FavoritePrices: []PriceRule{
				{Min: 0.85, Points: 10, Name: "priceHeavyFavorite"},
				{Min: 0.70, Points: 15, Name: "priceFavorite"},
			},
			TossupPoints: 12,
			TimingBuckets: []TimingBucket{
				{MaxHours: 2, Points: 25, Name: "timingImminent", Window: "<2h"},
				{MaxHours: 6, Points: 20, Name: "timingHours", Window: "2-6h"},
				{MaxHours: 24, Points: 15, Name: "timingSameDay", Window: "6-24h"},
				{MaxHours: 48, Points: 10, Name: "timingDayBefore", Window: "day before"},
				{MaxHours: 72, Points: 5, Name: "timingEarly", Window: "2-3 days"},
				{MaxHours: -1, Points: 3, Name: "timingVeryEarly", Window: "3+ days"},
			},
			WinnerBonus:     30,
			DefaultEventUTC: 23,
			MaxTopTrades:    5,

			FadeFactors:         []string{"priceHeavyFavorite", "volumeLow", "betSmall", "timingVeryEarly"},
			FadeWinRate:         15,
			MinSamplesForWeight: 5,
			MultiplierMin:       0.3,
			MultiplierMax:       2.0,
			ComboMinSamples:     5,
			ComboStrongWinRate:  65,
			ComboWeakWinRate:    35,
			ComboBoost:          1.1,
			ComboPenalty:        0.9,

			ConfidenceFloor:   40,
			ConfidenceCeiling: 95,
			LearnedShare:      0.6,
		},
		Wallets: WalletRules{
			Tiers: []TierThreshold{
				{Tier: TierInsider, MinWinRate: 80, MinBets: 10, MinVolume: 50_000},
				{Tier: TierElite, MinWinRate: 70, MinBets: 8, MinVolume: 25_000},
				{Tier: TierStrong, MinWinRate: 60, MinBets: 5},
				{Tier: TierAverage, MinWinRate: 45, MinBets: 3},
				{Tier: TierFade, MinWinRate: 0, MinBets: 3},
			},
			MinBetsForTier:    3,
			WinningWinRate:    55,
			KeepWinRate:       55,
			KeepVolume:        50_000,
			KeepRecency:       7 * 24 * time.Hour,
			EvictMinBets:      5,
			EvictWinRate:      45,
			DuplicateWindow:   5 * time.Minute,
			DuplicateAmount:   10,
			RecentBetsCap:     50,
			OpenTradesCap:     100,
			ResolvedTradesCap: 200,
			WinnersCacheTTL:   5 * time.Minute,
		},
		Learning: LearningRules{
			FullConfidenceSamples: 10,
			PromoteMinSamples:     10,
			PromoteHighWinRate:    60,
			PromoteLowWinRate:     35,
			NearPromotionSamples:  5,
			ComboKeepSamples:      2,
			ComboStaleAfter:       7 * 24 * time.Hour,
			MinFactorSamples:      3,
			MinDimensionSamples:   5,
		},
		Settlement: SettlementRules{
			WinPrice:             0.95,
			LossPrice:            0.05,
			UnknownAfterEventEnd: 24 * time.Hour,
			UnknownAfterQuiet:    12 * time.Hour,
			DefaultEventDuration: 3 * time.Hour,
			PendingTTL:           7 * 24 * time.Hour,
			SettledTTL:           30 * 24 * time.Hour,
		},
	}
}
