package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsAreIndependent(t *testing.T) {
	first := New()
	second := New()

	first.ConnectionOpened()
	first.ConnectionOpened()
	first.ConnectionClosed()
	first.Broadcast("user-joined")

	if got := testutil.ToFloat64(first.PushConnections); got != 1 {
		t.Fatalf("expected 1 open connection, got %v", got)
	}
	if got := testutil.ToFloat64(second.PushConnections); got != 0 {
		t.Fatalf("second registry should be untouched, got %v", got)
	}
	if got := testutil.ToFloat64(first.PushBroadcasts.WithLabelValues("user-joined")); got != 1 {
		t.Fatalf("expected one broadcast, got %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ConnectionOpened()
	m.RoomClosed()
	m.StoreFailure("heartbeat")
	m.StaleSessionClosed()
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.StaleSessionClosed()

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "focusroom_stale_sessions_closed_total 1") {
		t.Fatalf("metric missing from exposition:\n%s", recorder.Body.String())
	}
}
