// Package metrics exposes Prometheus counters for storage operations and a
// dedicated metrics listener, kept separate from the API listener so scrapes
// never compete with traffic.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OpsTotal counts storage operations by backend kind, operation and outcome.
	OpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_ops_total",
		Help: "Storage operations by backend kind, operation and outcome.",
	}, []string{"backend", "op", "outcome"})

	// RetriesTotal counts retry attempts beyond the first try.
	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_retries_total",
		Help: "Retry attempts performed after a transient failure.",
	})

	// DirCacheHits counts directory-existence checks answered from cache.
	DirCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_dircache_hits_total",
		Help: "Directory existence checks answered from cache.",
	})

	// DirCacheMisses counts directory-existence checks that required a
	// backend round-trip.
	DirCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_dircache_misses_total",
		Help: "Directory existence checks that required a backend round-trip.",
	})

	// FallbackTotal counts resolutions that degraded to the local backend
	// because the configured backend could not be constructed.
	FallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_resolve_fallback_total",
		Help: "Adapter resolutions that fell back to local storage.",
	})
)

// MetricsServer serves the Prometheus scrape endpoint.
type MetricsServer struct {
	srv *http.Server
}

var upOnce sync.Once

// New creates a metrics server listening on addr. The name is reported in the
// process up gauge.
func New(name, addr string) (*MetricsServer, error) {
	upOnce.Do(func() {
		promauto.NewGauge(prometheus.GaugeOpts{
			Name:        "up_info",
			Help:        "Always 1; labels carry service identity.",
			ConstLabels: prometheus.Labels{"service": name},
		}).Set(1)
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 5 * time.Second,
		},
	}, nil
}

// ListenAndServe serves the scrape endpoint until Shutdown.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown stops the listener gracefully.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
