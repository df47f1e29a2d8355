package wallets

import "github.com/alejandrodnm/polysignal/internal/domain"

// Classify asigna el tier de una wallet. Los umbrales se evalúan en orden
// (INSIDER > ELITE > STRONG > AVERAGE > FADE) y gana el primero que se cumple.
// Por debajo de minBets la wallet no tiene tier.
func Classify(winRate float64, totalBets int, totalVolume float64, tiers []domain.TierThreshold, minBets int) domain.Tier {
	if totalBets < minBets {
		return domain.TierNone
	}
	for _, t := range tiers {
		if winRate >= t.MinWinRate && totalBets >= t.MinBets && totalVolume >= t.MinVolume {
			return t.Tier
		}
	}
	return domain.TierNone
}
