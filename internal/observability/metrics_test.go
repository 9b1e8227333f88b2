package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistered(t *testing.T) {
	RequestsTotal.WithLabelValues("GET", "2xx").Add(0)
	RequestDuration.WithLabelValues("GET").Observe(0.1)
	ProviderRequestsTotal.WithLabelValues("google", StatusOK).Add(0)
	ProviderLatency.WithLabelValues("google").Observe(0.1)
	FallbacksTotal.WithLabelValues("google", "deepseek").Add(0)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	expected := map[string]bool{
		"chat_relay_requests_total":           false,
		"chat_relay_request_duration_seconds": false,
		"chat_relay_provider_requests_total":  false,
		"chat_relay_provider_latency_seconds": false,
		"chat_relay_fallbacks_total":          false,
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		require.True(t, found, "metric %s not registered", name)
	}
}

func TestMetricsMiddleware_RecordsStatusClass(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues(http.MethodPost, "5xx"))

	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.WriteHeader(http.StatusOK) // ignored: first status wins
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues(http.MethodPost, "5xx")))
}

func TestMetricsMiddleware_DefaultsToOK(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues(http.MethodGet, "2xx"))

	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues(http.MethodGet, "2xx")))
}
