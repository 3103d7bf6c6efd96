package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(w.Result().Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return w.Code, string(body)
}

// TestHandler_ExposesCatalogSeries はカタログ呼び出しのラベル付き系列がテキスト形式で公開されることを検証する。
func TestHandler_ExposesCatalogSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordCatalogRequest("cards", http.StatusOK, 120*time.Millisecond)
	c.RecordCatalogRequest("cards", http.StatusTooManyRequests, 5*time.Millisecond)
	c.RecordCatalogRetry("cards")

	status, body := scrape(t, Handler(reg), "/metrics")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}

	for _, want := range []string{
		`cardbinder_catalog_requests_total{endpoint="cards",status_code="200"} 1`,
		`cardbinder_catalog_requests_total{endpoint="cards",status_code="429"} 1`,
		`cardbinder_catalog_retries_total{endpoint="cards"} 1`,
		`cardbinder_catalog_latency_seconds_count{endpoint="cards"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output should contain %q", want)
		}
	}
}

// TestSetupMetricsRoute_OnlyServesMetricsPath は/metrics以外のパスを公開しないことを検証する。
func TestSetupMetricsRoute_OnlyServesMetricsPath(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordSetAdded(165)

	h := SetupMetricsRoute(reg)

	status, body := scrape(t, h, "/metrics")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if !strings.Contains(body, "cardbinder_sets_added_total 1") {
		t.Error("scrape output should contain cardbinder_sets_added_total 1")
	}

	if status, _ := scrape(t, h, "/api/sets"); status != http.StatusNotFound {
		t.Errorf("status for /api/sets = %d, want %d", status, http.StatusNotFound)
	}
}
