package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncRequests()
	m.IncLogin("accepted")
	m.AddBytesServed(10)
	m.SetViewers(3)
}

func TestHandler(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(RequestMiddleware(m))
	r.Get("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		m.Handler(func() { m.SetOrigins(2) }).ServeHTTP(w, r)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	m.IncLogin("name_in_use")
	m.IncModeTransition("faking")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		"watchalong_errors_total 1",
		"watchalong_origins 2",
		`watchalong_logins_total{result="name_in_use"} 1`,
		`watchalong_mode_transitions_total{to="faking"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
