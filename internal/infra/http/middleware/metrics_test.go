package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestDomainMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDomainMetrics(reg)

	m.IdentityResolved("email")
	m.IdentityResolved("email")
	m.IdentityConflict("visitor_owned_elsewhere")
	m.BridgeConsumed(true)
	m.BridgeConsumed(false)
	m.BridgeConsumed(false)
	m.TouchpointCreated()
	m.FunnelUpdated("rdv_scheduled")
	m.PartialWrite("touchpoint")
	m.RetryProcessed("touchpoint", "ack")
	m.BridgePurged(3)

	assert.Equal(t, 2.0, counterValue(t, reg, "leadstitch_identity_resolutions_total", map[string]string{"matched_by": "email"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "leadstitch_identity_conflicts_total", map[string]string{"kind": "visitor_owned_elsewhere"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "leadstitch_bridge_consume_total", map[string]string{"result": "hit"}))
	assert.Equal(t, 2.0, counterValue(t, reg, "leadstitch_bridge_consume_total", map[string]string{"result": "miss"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "leadstitch_touchpoints_created_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "leadstitch_funnel_updates_total", map[string]string{"stage": "rdv_scheduled"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "leadstitch_partial_writes_total", map[string]string{"step": "touchpoint"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "leadstitch_retry_jobs_total", map[string]string{"kind": "touchpoint", "outcome": "ack"}))
	assert.Equal(t, 3.0, counterValue(t, reg, "leadstitch_bridge_purged_total", nil))
}

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/funnel/{visitorId}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/funnel/{visitorId}", routePattern(r))
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/funnel/v_123", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
