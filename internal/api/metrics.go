package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsHandler exposes Prometheus metrics at /metrics: the process's
// default registry, which internal/metrics' counters register
// themselves into as they're incremented from internal/roomstore,
// internal/edit, and internal/save.
func metricsHandler() http.Handler {
	return promhttp.Handler()
}
