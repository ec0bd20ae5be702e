package observe

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMiddlewareRecordsRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	log := slog.New(slog.DiscardHandler)

	handler := Middleware(m, log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/call-status", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}

	rm := collect(t, reader)
	dur := findMetric(rm, "voceria.http.request.duration")
	if dur == nil {
		t.Fatal("http request duration metric missing")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatalf("http duration data = %T", dur.Data)
	}
	if hist.DataPoints[0].Count != 1 {
		t.Errorf("observations = %d, want 1", hist.DataPoints[0].Count)
	}
}

func TestMiddlewareDefaultsStatusToOK(t *testing.T) {
	m, _ := newTestMetrics(t)
	log := slog.New(slog.DiscardHandler)

	handler := Middleware(m, log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
