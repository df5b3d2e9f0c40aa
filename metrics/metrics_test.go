package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Kufat/inspircd/metrics"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterServesRegistry(t *testing.T) {
	metrics.AdmissionDecisions.WithLabelValues("deny", "default").Inc()
	metrics.ExtensionDecodeFailures.WithLabelValues("msgallow").Inc()

	srv := httptest.NewServer(metrics.Router("/metrics"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `ircd_admission_decisions_total{result="deny",rule="default"}`)
	assert.Contains(t, string(body), `ircd_extension_decode_failures_total{item="msgallow"}`)

	resp, err = http.Get(srv.URL + "/other")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMiddlewareCounts(t *testing.T) {
	e := echo.New()
	e.Use(metrics.Middleware())
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	before := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("/healthz", http.MethodGet, "204"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	after := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("/healthz", http.MethodGet, "204"))
	assert.Equal(t, before+1, after)
}
