package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Scheduled()
	m.ScheduleFailed("platform")
	m.Cancelled()
	m.RolledBack()
	m.Delivered("daily")
	m.SetLiveTriggers(3)
	m.ReconcileRun(1, 2, 3)
	require.Nil(t, m.Registry())
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Scheduled()
	m.Scheduled()
	m.ReconcileRun(2, 1, 0)
	m.SetLiveTriggers(4)

	require.Equal(t, 2.0, testutil.ToFloat64(m.scheduled))
	require.Equal(t, 2.0, testutil.ToFloat64(m.reconcileOutcome.WithLabelValues("rescheduled")))
	require.Equal(t, 4.0, testutil.ToFloat64(m.liveTriggers))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "medd_reminders_scheduled_total 2"))
}
