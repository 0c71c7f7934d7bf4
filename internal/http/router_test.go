package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/hvac_dispatch/backend/internal/board"
	"github.com/hvac_dispatch/backend/internal/config"
	"github.com/hvac_dispatch/backend/internal/db"
	"github.com/hvac_dispatch/backend/internal/events"
	"github.com/hvac_dispatch/backend/internal/service"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := db.NewMemoryStore()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	cfg := config.Config{CORSAllowed: "*", RequestTimeout: time.Second, MaxUploadSizeMB: 1}
	return Router(cfg, store, service.New(store, store), board.New(store, store, zerolog.Nop()), bus, zerolog.Nop())
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("X-Request-Id"), "req_") {
		t.Fatalf("expected a generated request id, got %q", w.Header().Get("X-Request-Id"))
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Fatalf("expected prometheus output, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `dispatch_http_request_duration_seconds_count{method="GET",route="/healthz",status="200"}`) {
		t.Fatal("expected the healthz request to be recorded")
	}
}

func TestRouterKeepsCallerRequestID(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/technicians", nil)
	req.Header.Set("X-Request-Id", "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("X-Request-Id") != "abc" {
		t.Fatalf("expected 200 with request id abc, got %d %q", w.Code, w.Header().Get("X-Request-Id"))
	}
}

func TestRouterUnknownJob(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), `"code":"NOT_FOUND"`) {
		t.Fatalf("expected NOT_FOUND envelope, got %d: %s", w.Code, w.Body.String())
	}
}
