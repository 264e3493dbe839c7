package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Sternrassler/fragcache/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
)

func TestGatherer_IncludesCacheMetrics(t *testing.T) {
	cache.CacheMisses.Inc()

	families, err := Gatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	found := false
	for _, mf := range families {
		if mf.GetName() == "fragcache_misses_total" {
			found = true
		}
	}
	if !found {
		t.Error("default gatherer should include fragcache_misses_total")
	}
}

func TestHandler_ServesGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fragcache_test_only_total",
		Help: "Counter registered on a private registry",
	})
	reg.MustRegister(counter)
	counter.Inc()

	prev := Gatherer
	Gatherer = reg
	t.Cleanup(func() { Gatherer = prev })

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "fragcache_test_only_total 1") {
		t.Errorf("handler output missing private registry metric:\n%s", body)
	}
	if strings.Contains(string(body), "fragcache_hits_total") {
		t.Error("handler should only serve Gatherer")
	}
}

func TestHandler_ExposesCacheMetrics(t *testing.T) {
	cache.CacheHits.Inc()
	cache.CacheErrors.WithLabelValues("put").Inc()

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	for _, name := range []string{"fragcache_hits_total", `fragcache_errors_total{operation="put"}`} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
