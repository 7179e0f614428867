package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/liamcoop/campaignrules/rules"
)

func TestObserveEvaluation(t *testing.T) {
	m := New()

	m.ObserveEvaluation("budget_exceeded", rules.StatusPaused, false, 5*time.Millisecond)
	m.ObserveEvaluation("", rules.StatusActive, true, time.Millisecond)
	m.ObserveEvaluation("", rules.StatusActive, true, time.Millisecond)

	if got := testutil.ToFloat64(m.evaluations.WithLabelValues("budget_exceeded", "paused", "false")); got != 1 {
		t.Errorf("budget_exceeded evaluations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.evaluations.WithLabelValues("none", "active", "true")); got != 2 {
		t.Errorf("fall-through evaluations = %v, want 2", got)
	}
}

func TestObserveFailure(t *testing.T) {
	m := New()
	m.ObserveFailure("persist")

	if got := testutil.ToFloat64(m.evaluationFailures.WithLabelValues("persist")); got != 1 {
		t.Errorf("persist failures = %v, want 1", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/campaigns/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/metrics", m.Handler().ServeHTTP)

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/campaigns/"+id, nil))
	}

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/campaigns/{id}", "404")); got != 3 {
		t.Errorf("requests for /campaigns/{id} = %v, want 3", got)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "campaignrules_http_requests_total") {
		t.Error("metrics output is missing the request counter")
	}
}
