// Package metrics wires prometheus/client_golang into each service's
// HTTP surface: one request counter by route and status, exposed at
// /metrics alongside the existing /health. It carries no domain
// semantics and is additive to every response the protocol specifies.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Requests counts HTTP requests by service, route, and status code.
var Requests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dgc_http_requests_total",
	Help: "Total HTTP requests handled, by service, route, and status code.",
}, []string{"service", "route", "status"})

// Handler wraps mux so every request increments Requests before being
// served, and registers /metrics on mux for prometheus/client_golang's
// default registry.
func Handler(service string, mux *http.ServeMux) http.Handler {
	mux.Handle("/metrics", promhttp.Handler())
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)
		Requests.WithLabelValues(service, r.URL.Path, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
