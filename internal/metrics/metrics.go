// Package metrics holds the Prometheus collectors: HTTP traffic (fed by
// internal/middleware) and business events (fed by the services).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests, by route pattern, method and status.",
		},
		[]string{"route", "method", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency, by route pattern.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	UsersRegistered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "users_registered_total",
			Help: "Accounts created, by sign-up method.",
		},
		[]string{"method"}, // password|github|import
	)

	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logins_total",
			Help: "Login attempts, by outcome.",
		},
		[]string{"outcome"}, // ok|invalid
	)

	PlaylistsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playlists_created_total",
			Help: "Playlists created.",
		},
	)

	ItemsAdded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playlist_items_added_total",
			Help: "Items added to playlists, by item type.",
		},
		[]string{"type"}, // video|mp3
	)

	UploadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audio_upload_bytes_total",
			Help: "Bytes of audio accepted by the upload endpoint.",
		},
	)

	CatalogCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_requests_total",
			Help: "Catalog search cache lookups, by result.",
		},
		[]string{"result"}, // hit|miss|error
	)
)

// Handler serves the /metrics endpoint.
var Handler = promhttp.Handler

var initOnce sync.Once

// Init registers the collectors with the default registry.
// Safe to call more than once (tests build several servers).
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequests,
			HTTPDuration,
			UsersRegistered,
			LoginsTotal,
			PlaylistsCreated,
			ItemsAdded,
			UploadBytes,
			CatalogCache,
		)
	})
}
