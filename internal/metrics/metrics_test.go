package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polysignal/internal/metrics"
)

func TestRegistry_Counters(t *testing.T) {
	r := metrics.NewRegistry()

	r.ObserveScan("ok", 2*time.Second)
	r.SignalCreated("nba")
	r.SignalCreated("nba")
	r.Settled("WIN")
	r.Dropped("stale", 3)
	r.Dropped("stale", 0)
	r.StoreError("learning")
	r.SetPending(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Scans.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.SignalsCreated.WithLabelValues("nba")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Settlements.WithLabelValues("WIN")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.TradesDropped.WithLabelValues("stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.StoreErrors.WithLabelValues("learning")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.PendingSignals))
}

func TestRegistry_NilIsNoop(t *testing.T) {
	var r *metrics.Registry
	assert.NotPanics(t, func() {
		r.ObserveScan("ok", time.Second)
		r.SignalCreated("nba")
		r.Settled("LOSS")
		r.Dropped("gambling", 1)
		r.StoreError("wallets")
		r.SetPending(1)
	})
}

func TestRegistry_Handler(t *testing.T) {
	r := metrics.NewRegistry()
	r.Settled("UNKNOWN")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `polysignal_settlements_total{outcome="UNKNOWN"} 1`)
}
