// Package metrics registers the Prometheus collectors the service exports
// on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	FeedRefreshes     *prometheus.CounterVec
	FeedRefreshTime   *prometheus.HistogramVec
	FeedIncidents     *prometheus.GaugeVec
	FeedSkipped       *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	LiveConnections   prometheus.Gauge
	NotificationsSent prometheus.Counter
}

// New creates collectors on a fresh registry so tests can build as many
// as they like.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FeedRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cc",
			Name:      "feed_refresh_total",
			Help:      "Feed refresh attempts by source and result.",
		}, []string{"source", "result"}),
		FeedRefreshTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cc",
			Name:      "feed_refresh_duration_seconds",
			Help:      "Time spent fetching and parsing a feed.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		FeedIncidents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cc",
			Name:      "feed_incidents",
			Help:      "Incidents in the current snapshot per source.",
		}, []string{"source"}),
		FeedSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cc",
			Name:      "feed_features_skipped_total",
			Help:      "Feed features dropped for missing or invalid geometry.",
		}, []string{"source"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cc",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		LiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cc",
			Name:      "live_connections",
			Help:      "Open live update websocket connections.",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cc",
			Name:      "notifications_created_total",
			Help:      "Notifications created from incident matches.",
		}),
	}
	m.registry.MustRegister(
		m.FeedRefreshes,
		m.FeedRefreshTime,
		m.FeedIncidents,
		m.FeedSkipped,
		m.HTTPRequests,
		m.LiveConnections,
		m.NotificationsSent,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
