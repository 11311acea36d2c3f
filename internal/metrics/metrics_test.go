package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector(registry)

	c.RecordHTTPRequest(http.StatusOK, 5*time.Millisecond)
	c.RecordHTTPRequest(http.StatusNotFound, 1*time.Millisecond)
	c.RecordFederationOutcome("logged_in")
	c.RecordFederationOutcome("state_mismatch")
	c.RecordSignin("password")
	c.RecordSignin("password")

	assert.Equal(t, float64(1), testutil.ToFloat64(c.httpRequests.WithLabelValues("200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.httpRequests.WithLabelValues("404")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.federationOutcomes.WithLabelValues("logged_in")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.federationOutcomes.WithLabelValues("state_mismatch")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.signins.WithLabelValues("password")))
}

func TestCollector_Middleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector(registry)

	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(c.httpRequests.WithLabelValues("418")))
}

func TestHandler_Scrape(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector(registry)
	c.RecordSignin("passkey")

	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `harbor_signins_total{method="passkey"} 1`)
}
