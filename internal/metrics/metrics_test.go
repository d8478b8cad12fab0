package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-session-coordinator/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.RecordRefresh("success")
	c.RecordRefresh("success")
	c.RecordRefresh("rejected")
	c.RecordBroadcast("no_receiver")
	c.RecordEntitlement("hit")
	c.RecordSignIn("password")
	c.RecordSignOut("user")

	count, err := testutil.GatherAndCount(reg, "coordinator_token_refreshes_total")
	require.NoError(t, err)
	require.Equal(t, 2, count) // two label series

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Equal(t, 6, n)
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg).RecordBroadcast("delivered")

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `coordinator_broadcasts_total{outcome="delivered"} 1`)
}
