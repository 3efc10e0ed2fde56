package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsCountOutcomes(t *testing.T) {
	collectors, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("failed to build collectors: %v", err)
	}
	collectors.ObserveFetch("signals", nil)
	collectors.ObserveFetch("signals", errors.New("boom"))
	collectors.ObserveMutation("broadcast", nil)
	collectors.ObserveTranslation("failed")
	collectors.ObserveNotification()

	if got := testutil.ToFloat64(collectors.feedFetches.WithLabelValues("signals", "error")); got != 1 {
		t.Fatalf("expected one failed fetch, got %v", got)
	}
	if got := testutil.ToFloat64(collectors.mutations.WithLabelValues("broadcast", "ok")); got != 1 {
		t.Fatalf("expected one mutation, got %v", got)
	}
	if got := testutil.ToFloat64(collectors.notifications); got != 1 {
		t.Fatalf("expected one notification, got %v", got)
	}
}

func TestNilCollectorsAreSafe(t *testing.T) {
	var collectors *Collectors
	collectors.ObserveFetch("signals", nil)
	collectors.ObserveMutation("like", nil)
	collectors.ObserveTranslation("skipped")
	collectors.ObserveNotification()
	collectors.SetActiveViews(3)
}

func TestMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	collectors, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("failed to build collectors: %v", err)
	}
	engine := gin.New()
	engine.Use(collectors.Middleware())
	engine.GET("/signals/:id", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/signals/42", http.NoBody))

	if got := testutil.ToFloat64(collectors.httpRequests.WithLabelValues(http.MethodGet, "/signals/:id", "204")); got != 1 {
		t.Fatalf("expected request counted under route template, got %v", got)
	}
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	if _, err := New(registry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := New(registry); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
