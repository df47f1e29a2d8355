package learning_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polysignal/internal/adapters/storage"
	"github.com/alejandrodnm/polysignal/internal/domain"
	"github.com/alejandrodnm/polysignal/internal/learning"
	"github.com/alejandrodnm/polysignal/internal/ports"
)

func newStore(t *testing.T) *learning.Store {
	t.Helper()
	db, err := storage.NewSQLiteKV(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return learning.NewStore(db, domain.DefaultRules().Learning, nil)
}

// failingKV simula un almacén caído.
type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (failingKV) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (failingKV) Delete(context.Context, string) error { return errors.New("connection refused") }
func (failingKV) Close() error                         { return nil }

func statByName(t *testing.T, s *learning.Store, name string) domain.FactorStat {
	t.Helper()
	stats, err := s.FactorStats(context.Background())
	require.NoError(t, err)
	for _, st := range stats {
		if st.Name == name {
			return st
		}
	}
	t.Fatalf("factor %s not found", name)
	return domain.FactorStat{}
}

func TestUpdateFactorStats_SevenWinsThreeLosses(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, s.UpdateFactorStats(ctx, []string{"volumeHuge"}, domain.OutcomeWin))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, s.UpdateFactorStats(ctx, []string{"volumeHuge"}, domain.OutcomeLoss))
	}

	st := statByName(t, s, "volumeHuge")
	assert.Equal(t, 7, st.Wins)
	assert.Equal(t, 3, st.Losses)
	assert.Equal(t, 10, st.SampleSize)
	assert.InDelta(t, 70.0, st.WinRate, 0.0001)
	assert.InDelta(t, 1.55, st.Weight, 0.0001)
}

func TestUpdateFactorStats_UnknownIsIgnored(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.UpdateFactorStats(context.Background(), []string{"betMega"}, domain.OutcomeUnknown))

	stats, err := s.FactorStats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestUpdateFactorStats_DuplicatedNamesCountOnce(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.UpdateFactorStats(context.Background(), []string{"betMega", "betMega"}, domain.OutcomeWin))
	assert.Equal(t, 1, statByName(t, s, "betMega").Wins)
}

func TestDiscoverNewPatterns_PromotesOnceAndNeverReevaluates(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	keys := domain.PatternKeys{TimeOfDay: "tod_evening"}

	for i := 0; i < 9; i++ {
		require.NoError(t, s.TrackPatterns(ctx, keys, domain.OutcomeWin))
	}
	require.NoError(t, s.TrackPatterns(ctx, keys, domain.OutcomeLoss))

	promoted, err := s.DiscoverNewPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.Equal(t, "tod_evening", promoted[0].Name)
	assert.True(t, promoted[0].Discovered)
	assert.InDelta(t, 90.0, promoted[0].WinRate, 0.0001)

	// Segunda pasada: idempotente
	promoted, err = s.DiscoverNewPatterns(ctx)
	require.NoError(t, err)
	assert.Empty(t, promoted)

	// Muchas derrotas después: el patrón sigue promovido
	for i := 0; i < 20; i++ {
		require.NoError(t, s.TrackPatterns(ctx, keys, domain.OutcomeLoss))
	}
	_, err = s.DiscoverNewPatterns(ctx)
	require.NoError(t, err)

	d, err := s.DiscoveredPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, d.Promoted, 1)
	assert.Equal(t, "tod_evening", d.Promoted[0].Name)
}

func TestDiscoverNewPatterns_IgnoresMiddlingWinRates(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	keys := domain.PatternKeys{Volume: "vol_25k_100k"}

	for i := 0; i < 5; i++ {
		require.NoError(t, s.TrackPatterns(ctx, keys, domain.OutcomeWin))
		require.NoError(t, s.TrackPatterns(ctx, keys, domain.OutcomeLoss))
	}

	promoted, err := s.DiscoverNewPatterns(ctx)
	require.NoError(t, err)
	assert.Empty(t, promoted, "50% no es extremo")
}

func TestDiscoverNewPatterns_LowWinRateIsPromoted(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	keys := domain.PatternKeys{WalletCount: "wallets_10_plus"}

	for i := 0; i < 3; i++ {
		require.NoError(t, s.TrackPatterns(ctx, keys, domain.OutcomeWin))
	}
	for i := 0; i < 7; i++ {
		require.NoError(t, s.TrackPatterns(ctx, keys, domain.OutcomeLoss))
	}

	promoted, err := s.DiscoverNewPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.Less(t, promoted[0].Weight, 1.0)
}

func TestDiscoveredPatterns_NearPromotion(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, s.TrackPatterns(ctx, domain.PatternKeys{DayOfWeek: "dow_sat"}, domain.OutcomeWin))
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, s.TrackPatterns(ctx, domain.PatternKeys{DayOfWeek: "dow_sun"}, domain.OutcomeWin))
	}

	d, err := s.DiscoveredPatterns(ctx)
	require.NoError(t, err)
	assert.Empty(t, d.Promoted)
	require.Len(t, d.NearPromotion, 1)
	assert.Equal(t, "dow_sat", d.NearPromotion[0].Name)
	assert.Equal(t, domain.DimensionDayOfWeek, d.NearPromotion[0].Dimension)
}

func TestTrackFactorCombo_CountsPairsAndPrunesStale(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	learning.SetClock(s, func() time.Time { return now })

	require.NoError(t, s.TrackFactorCombo(ctx, []string{"priceLongshot", "betMega"}, domain.OutcomeWin))
	require.NoError(t, s.TrackFactorCombo(ctx, []string{"betMega", "priceLongshot"}, domain.OutcomeLoss))
	require.NoError(t, s.TrackFactorCombo(ctx, []string{"volumeLow", "betSmall"}, domain.OutcomeWin))

	snap := s.Snapshot(ctx)
	combo, ok := snap.Combo("betMega", "priceLongshot", 0)
	require.True(t, ok, "el orden de los factores no importa")
	assert.Equal(t, "betMega|priceLongshot", combo.Key)
	assert.Equal(t, 1, combo.Wins)
	assert.Equal(t, 1, combo.Losses)
	_, ok = snap.Combo("betSmall", "volumeLow", 0)
	assert.True(t, ok, "un combo nuevo con una muestra sobrevive a su propia pasada")

	// Ocho días después, otra liquidación reescribe el mapa
	now = now.Add(8 * 24 * time.Hour)
	require.NoError(t, s.TrackFactorCombo(ctx, []string{"betWhale", "volumeHuge"}, domain.OutcomeWin))

	snap = s.Snapshot(ctx)
	_, ok = snap.Combo("betSmall", "volumeLow", 0)
	assert.False(t, ok, "combo con 1 muestra y sin actividad se poda")
	_, ok = snap.Combo("betMega", "priceLongshot", 0)
	assert.True(t, ok, "combo con 2 muestras se conserva")
}

func TestRecordSettlement_SameSignalCountsOnce(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	factors := []string{"betMega", "priceDeepLongshot"}
	keys := domain.PatternKeys{TimeOfDay: "tod_night", MarketType: "type_nba"}

	require.NoError(t, s.RecordSettlement(ctx, "sig-1", factors, keys, domain.OutcomeWin))
	// Reintento de la misma señal: no se cuenta dos veces
	require.NoError(t, s.RecordSettlement(ctx, "sig-1", factors, keys, domain.OutcomeWin))

	assert.Equal(t, 1, statByName(t, s, "betMega").Wins)
	snap := s.Snapshot(ctx)
	assert.Equal(t, 1, snap.Patterns[domain.DimensionTimeOfDay]["tod_night"].Wins)
	combo, ok := snap.Combo("betMega", "priceDeepLongshot", 0)
	require.True(t, ok)
	assert.Equal(t, 1, combo.Wins)

	// Otra señal sí cuenta
	require.NoError(t, s.RecordSettlement(ctx, "sig-2", factors, keys, domain.OutcomeWin))
	assert.Equal(t, 2, statByName(t, s, "betMega").Wins)
}

// flakyKV falla una vez la escritura de la clave indicada.
type flakyKV struct {
	ports.KVStore
	failKey string
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == f.failKey {
		f.failKey = ""
		return errors.New("write timeout")
	}
	return f.KVStore.Set(ctx, key, value, ttl)
}

func TestRecordSettlement_PartialPatternWriteRetriesOnce(t *testing.T) {
	db, err := storage.NewSQLiteKV(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := &flakyKV{KVStore: db, failKey: "learning:patterns:" + domain.DimensionVolume}
	s := learning.NewStore(store, domain.DefaultRules().Learning, nil)
	ctx := context.Background()

	factors := []string{"betMega", "volumeHuge"}
	keys := domain.PatternKeys{TimeOfDay: "tod_night", Volume: "vol_500k_plus"}

	require.Error(t, s.RecordSettlement(ctx, "sig-1", factors, keys, domain.OutcomeWin))
	require.NoError(t, s.RecordSettlement(ctx, "sig-1", factors, keys, domain.OutcomeWin))

	snap := s.Snapshot(ctx)
	assert.Equal(t, 1, snap.Patterns[domain.DimensionTimeOfDay]["tod_night"].Wins)
	assert.Equal(t, 1, snap.Patterns[domain.DimensionVolume]["vol_500k_plus"].Wins)
	assert.Equal(t, 1, statByName(t, s, "betMega").Wins)
	combo, ok := snap.Combo("betMega", "volumeHuge", 0)
	require.True(t, ok)
	assert.Equal(t, 1, combo.Wins)
}

func TestRecordSettlement_DiscoveredPatternKeepsLearning(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	keys := domain.PatternKeys{TimeOfDay: "tod_morning"}

	for i := 0; i < 10; i++ {
		require.NoError(t, s.RecordSettlement(ctx, fmt.Sprintf("sig-%d", i), []string{"betBig"}, keys, domain.OutcomeWin))
	}
	st := statByName(t, s, "tod_morning")
	assert.True(t, st.Discovered)
	assert.Equal(t, 10, st.Wins)

	require.NoError(t, s.RecordSettlement(ctx, "sig-loss", []string{"betBig"}, keys, domain.OutcomeLoss))
	st = statByName(t, s, "tod_morning")
	assert.Equal(t, 1, st.Losses, "tras la promoción el patrón se actualiza como factor")
}

func TestSnapshot_DegradesOnStoreFailure(t *testing.T) {
	s := learning.NewStore(failingKV{}, domain.DefaultRules().Learning, nil)

	snap := s.Snapshot(context.Background())
	assert.Empty(t, snap.Factors)
	assert.Empty(t, snap.Combos)
	assert.NotNil(t, snap.Patterns)

	err := s.UpdateFactorStats(context.Background(), []string{"betMega"}, domain.OutcomeWin)
	assert.Error(t, err, "las escrituras reportan el fallo para que el lifecycle reintente")
}
