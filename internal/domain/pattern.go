package domain

import (
	"strings"
	"time"
)

// Dimensiones auxiliares sobre las que se descubren patrones.
const (
	DimensionTimeOfDay   = "time_of_day"
	DimensionDayOfWeek   = "day_of_week"
	DimensionVolume      = "volume_bracket"
	DimensionWalletCount = "wallet_count"
	DimensionEventTiming = "event_timing"
	DimensionMarketType  = "market_type"
)

// Dimensions lista todas las dimensiones en orden estable.
var Dimensions = []string{
	DimensionTimeOfDay,
	DimensionDayOfWeek,
	DimensionVolume,
	DimensionWalletCount,
	DimensionEventTiming,
	DimensionMarketType,
}

// PatternKeys son los buckets auxiliares de una señal. Un campo vacío significa
// que la dimensión no aplica (p.ej. timing sin fecha de evento).
type PatternKeys struct {
	TimeOfDay   string `json:"time_of_day,omitempty"`
	DayOfWeek   string `json:"day_of_week,omitempty"`
	Volume      string `json:"volume,omitempty"`
	WalletCount string `json:"wallet_count,omitempty"`
	EventTiming string `json:"event_timing,omitempty"`
	MarketType  string `json:"market_type,omitempty"`
}

// Get devuelve el bucket de una dimensión.
func (k PatternKeys) Get(dimension string) string {
	switch dimension {
	case DimensionTimeOfDay:
		return k.TimeOfDay
	case DimensionDayOfWeek:
		return k.DayOfWeek
	case DimensionVolume:
		return k.Volume
	case DimensionWalletCount:
		return k.WalletCount
	case DimensionEventTiming:
		return k.EventTiming
	case DimensionMarketType:
		return k.MarketType
	}
	return ""
}

// Names devuelve los buckets no vacíos.
func (k PatternKeys) Names() []string {
	var out []string
	for _, d := range Dimensions {
		if v := k.Get(d); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// BuildPatternKeys calcula los buckets auxiliares de una ventana detectada en at.
func BuildPatternKeys(w MarketWindow, at time.Time) PatternKeys {
	at = at.UTC()
	keys := PatternKeys{
		TimeOfDay:   TimeOfDayBucket(at),
		DayOfWeek:   "dow_" + strings.ToLower(at.Weekday().String()[:3]),
		Volume:      VolumeBracket(w.TotalVolume),
		WalletCount: WalletCountBucket(w.WalletCount()),
	}
	if hours, ok := w.HoursToEvent(at); ok && hours >= 0 {
		keys.EventTiming = EventTimingBucket(hours)
	}
	if w.MarketType != "" {
		keys.MarketType = "type_" + w.MarketType
	}
	return keys
}

// TimeOfDayBucket agrupa la hora UTC en bloques de 6 horas.
func TimeOfDayBucket(t time.Time) string {
	switch h := t.UTC().Hour(); {
	case h < 6:
		return "tod_night"
	case h < 12:
		return "tod_morning"
	case h < 18:
		return "tod_afternoon"
	default:
		return "tod_evening"
	}
}

// VolumeBracket agrupa el volumen total del mercado.
func VolumeBracket(volume float64) string {
	switch {
	case volume >= 500_000:
		return "vol_500k_plus"
	case volume >= 100_000:
		return "vol_100k_500k"
	case volume >= 25_000:
		return "vol_25k_100k"
	case volume >= 10_000:
		return "vol_10k_25k"
	default:
		return "vol_under_10k"
	}
}

// WalletCountBucket agrupa el número de wallets distintas.
func WalletCountBucket(n int) string {
	switch {
	case n <= 1:
		return "wallets_1"
	case n <= 3:
		return "wallets_2_3"
	case n <= 10:
		return "wallets_4_10"
	default:
		return "wallets_10_plus"
	}
}

// EventTimingBucket agrupa las horas que faltan para el inicio del evento.
func EventTimingBucket(hours float64) string {
	switch {
	case hours <= 2:
		return "timing_under_2h"
	case hours <= 6:
		return "timing_2_6h"
	case hours <= 24:
		return "timing_6_24h"
	case hours <= 48:
		return "timing_day_before"
	case hours <= 72:
		return "timing_2_3d"
	default:
		return "timing_3d_plus"
	}
}
