package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareRecordsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Post("/v1/rpc", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := ts.Client().Post(ts.URL+"/v1/rpc", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()

	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/v1/rpc", "200"))
	if got != 1 {
		t.Fatalf("requests_total{/v1/rpc,200} = %v, want 1", got)
	}
	if inflight := testutil.ToFloat64(httpRequestsInFlight); inflight != 0 {
		t.Fatalf("in-flight gauge = %v after request completed", inflight)
	}
}

func TestMiddlewareLabelsErrorStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/boom")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/boom", "500"))
	if got != 1 {
		t.Fatalf("requests_total{/boom,500} = %v, want 1", got)
	}
}
