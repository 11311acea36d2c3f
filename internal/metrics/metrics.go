// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records authentication and HTTP metrics.
type Collector struct {
	httpRequests       *prometheus.CounterVec
	httpLatency        prometheus.Histogram
	federationOutcomes *prometheus.CounterVec
	signins            *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harbor_http_requests_total",
			Help: "HTTP responses by status code.",
		}, []string{"status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "harbor_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		federationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harbor_federation_outcomes_total",
			Help: "Completed federation callbacks by terminal outcome.",
		}, []string{"outcome"}),
		signins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harbor_signins_total",
			Help: "Successful sign-ins by method.",
		}, []string{"method"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.federationOutcomes,
		c.signins,
	)

	return c
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

// RecordFederationOutcome records the terminal state of a federation
// callback: "logged_in", "linked", or an error kind.
func (c *Collector) RecordFederationOutcome(outcome string) {
	c.federationOutcomes.WithLabelValues(outcome).Inc()
}

// RecordSignin records a successful sign-in ("password", "passkey",
// "federation").
func (c *Collector) RecordSignin(method string) {
	c.signins.WithLabelValues(method).Inc()
}

// Middleware records status and latency for every request.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		c.RecordHTTPRequest(rec.status, time.Since(start))
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

// Handler returns the Prometheus scrape endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
