package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		activeConnections.Inc()
		defer activeConnections.Dec()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.statusCode)
		path := routePattern(r)

		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern usa o padrão do chi (/leads/{id}) para não explodir a
// cardinalidade com um label por visitor_id.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// DomainMetrics são os contadores de identidade, bridge, touchpoint e funil.
type DomainMetrics struct {
	identityResolved  *prometheus.CounterVec
	identityConflicts *prometheus.CounterVec
	bridgeConsumed    *prometheus.CounterVec
	touchpoints       prometheus.Counter
	funnelUpdates     *prometheus.CounterVec
	partialWrites     *prometheus.CounterVec
	retriesReplayed   *prometheus.CounterVec
	bridgePurged      prometheus.Counter
}

func NewDomainMetrics(reg prometheus.Registerer) *DomainMetrics {
	f := promauto.With(reg)
	return &DomainMetrics{
		identityResolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leadstitch_identity_resolutions_total",
			Help: "Identity resolutions by match path",
		}, []string{"matched_by"}),
		identityConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leadstitch_identity_conflicts_total",
			Help: "Identifiers left untouched because another lead owns them, and lost creation races",
		}, []string{"kind"}),
		bridgeConsumed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leadstitch_bridge_consume_total",
			Help: "Bridge consume attempts by result",
		}, []string{"result"}),
		touchpoints: f.NewCounter(prometheus.CounterOpts{
			Name: "leadstitch_touchpoints_created_total",
			Help: "Touchpoints written",
		}),
		funnelUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leadstitch_funnel_updates_total",
			Help: "Funnel updates by stage",
		}, []string{"stage"}),
		partialWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leadstitch_partial_writes_total",
			Help: "Secondary writes that failed during ingestion",
		}, []string{"step"}),
		retriesReplayed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leadstitch_retry_jobs_total",
			Help: "Retry queue jobs by kind and outcome",
		}, []string{"kind", "outcome"}),
		bridgePurged: f.NewCounter(prometheus.CounterOpts{
			Name: "leadstitch_bridge_purged_total",
			Help: "Expired bridge associations deleted by the sweeper",
		}),
	}
}

func (m *DomainMetrics) IdentityResolved(matchedBy string) {
	m.identityResolved.WithLabelValues(matchedBy).Inc()
}

func (m *DomainMetrics) IdentityConflict(kind string) {
	m.identityConflicts.WithLabelValues(kind).Inc()
}

func (m *DomainMetrics) BridgeConsumed(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.bridgeConsumed.WithLabelValues(result).Inc()
}

func (m *DomainMetrics) TouchpointCreated() {
	m.touchpoints.Inc()
}

func (m *DomainMetrics) FunnelUpdated(stage string) {
	m.funnelUpdates.WithLabelValues(stage).Inc()
}

func (m *DomainMetrics) PartialWrite(step string) {
	m.partialWrites.WithLabelValues(step).Inc()
}

func (m *DomainMetrics) RetryProcessed(kind, outcome string) {
	m.retriesReplayed.WithLabelValues(kind, outcome).Inc()
}

func (m *DomainMetrics) BridgePurged(n int64) {
	m.bridgePurged.Add(float64(n))
}
