// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shortlink_http_requests_total",
		Help: "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shortlink_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	// Shortens counts shorten outcomes: created, existing, invalid, dead, capacity, error.
	Shortens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shortlink_shorten_total",
		Help: "Shorten requests by outcome.",
	}, []string{"outcome"})

	KeyCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shortlink_key_collisions_total",
		Help: "Generated keys that were already taken.",
	})

	// Resolves counts lookups by source: cache, store, miss, error.
	Resolves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shortlink_resolve_total",
		Help: "Short key lookups by source.",
	}, []string{"source"})

	// Visits counts visit writes: recorded, failed, dropped.
	Visits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shortlink_visits_total",
		Help: "Visit records by result.",
	}, []string{"result"})

	GeoLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shortlink_geo_lookups_total",
		Help: "Geo lookups by result: hit, miss, error.",
	}, []string{"result"})
)
