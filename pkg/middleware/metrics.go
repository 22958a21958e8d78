// Package middleware holds the HTTP middleware shared by the carsearch
// services: request IDs, Prometheus instrumentation, per-client rate limits
// and request deadlines.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/metrics"
)

// knownRoutes are the paths the services serve. Anything else is labelled
// "other" so scanners cannot inflate series cardinality.
var knownRoutes = map[string]struct{}{
	"/api/v1/search":            {},
	"/api/v1/listings":          {},
	"/api/v1/index/stats":       {},
	"/api/v1/cache/stats":       {},
	"/api/v1/cache/invalidate":  {},
	"/api/v1/analytics":         {},
	"/api/v1/analytics/history": {},
	"/health":                   {},
	"/health/live":              {},
	"/health/ready":             {},
	"/metrics":                  {},
}

// Metrics records request count, latency and the in-flight gauge.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			start := time.Now()
			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			route := routeLabel(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.code())).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routeLabel(path string) string {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	return "other"
}

// recorder remembers the first status written. A handler that only calls
// Write has implicitly sent 200.
type recorder struct {
	http.ResponseWriter
	status int
}

func (r *recorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *recorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *recorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
