package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xavierca1/leadstitch/internal/infra/http/handlers"
	httpmetrics "github.com/xavierca1/leadstitch/internal/infra/http/middleware"
)

type routes struct {
	Bridge         *handlers.BridgeHandler
	Touchpoints    *handlers.TouchpointHandler
	Funnel         *handlers.FunnelHandler
	Leads          *handlers.LeadHandler
	Events         *handlers.EventHandler
	Health         *handlers.HealthHandler
	BridgeLimiter  *handlers.RateLimiter
	AllowedOrigins []string

	// TrustProxyHeaders liga o middleware.RealIP.
	TrustProxyHeaders bool
}

func newRouter(rt routes) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if rt.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(httpmetrics.Metrics)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", rt.Health.Handle)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/bridge", func(r chi.Router) {
		r.With(rt.BridgeLimiter.Limit).Post("/associate", rt.Bridge.Associate)
		r.Post("/consume", rt.Bridge.Consume)
	})

	r.Route("/touchpoints", func(r chi.Router) {
		r.Post("/", rt.Touchpoints.Create)
		r.Get("/", rt.Touchpoints.List)
		r.Get("/{id}", rt.Touchpoints.Get)
	})
	r.Get("/visitors/{visitorId}/touchpoints", rt.Touchpoints.ListByVisitor)

	r.Get("/funnel/{visitorId}", rt.Funnel.Get)

	r.Route("/leads", func(r chi.Router) {
		r.Post("/resolve", rt.Leads.Resolve)
		r.Post("/merge", rt.Leads.Merge)
		r.Get("/{id}", rt.Leads.Get)
	})

	r.Post("/events", rt.Events.Handle)

	return r
}
