// Package metrics defines the collector's metrics interfaces and the shared
// Prometheus registry. Implementations live in pkg/metrics/prometheus; the
// constructor indirection keeps this package free of prometheus imports so
// embedders that disable metrics pay nothing.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
)

// InitRegistry creates the shared Prometheus registry with the standard Go
// and process collectors. Must be called before any New*Metrics constructor
// for metrics to be enabled; calling it twice is a no-op.
func InitRegistry() {
	mu.Lock()
	defer mu.Unlock()
	if registry != nil {
		return
	}
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return registry != nil
}

// GetRegistry returns the shared registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}

// Handler returns an HTTP handler serving the shared registry, or nil when
// metrics are disabled.
func Handler() http.Handler {
	reg := GetRegistry()
	if reg == nil {
		return nil
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
