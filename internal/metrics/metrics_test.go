package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("failed to read metrics: %v", err)
	}
	return string(body)
}

func TestObserveOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveOperation("contribute", "ok", 5*time.Millisecond)
	m.ObserveOperation("contribute", "ok", 5*time.Millisecond)
	m.ObserveOperation("contribute", "group_not_active", time.Millisecond)

	out := scrape(t, reg)
	for _, want := range []string{
		`crowdpay_operations_total{operation="contribute",result="ok"} 2`,
		`crowdpay_operations_total{operation="contribute",result="group_not_active"} 1`,
		`crowdpay_operation_duration_seconds_count{operation="contribute"} 3`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestSettledAndArchiveCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.AddSettled(300)
	m.ArchiveFailed()

	out := scrape(t, reg)
	for _, want := range []string{"crowdpay_settled_amount_total 300", "crowdpay_archive_failures_total 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
