package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newObservedRouter — chi-маршрутизатор с метриками, журналом и аутентификацией.
func newObservedRouter(t *testing.T, buf *bytes.Buffer) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	auth := newTestAuth(t, generateTestKey(t), &fakeResolver{}, &fakeGuests{}, nil)

	r := chi.NewRouter()
	r.Use(MetricsMiddleware())
	r.Use(RequestLogger(logger))
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware())
		r.Get("/dossiers/{dossierId}/documenten", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("[]"))
		})
	})
	return r
}

func TestRequestLogger_RouteAndActor(t *testing.T) {
	var buf bytes.Buffer
	router := newObservedRouter(t, &buf)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dossiers/42/documenten?token="+guestToken, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d", w.Code)
	}

	if strings.Contains(buf.String(), guestToken) {
		t.Fatal("гостевой токен попал в журнал")
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("разбор записи журнала: %v (%s)", err, buf.String())
	}
	if entry["route"] != "/api/v1/dossiers/{dossierId}/documenten" {
		t.Errorf("route = %v", entry["route"])
	}
	if entry["path"] != "/api/v1/dossiers/42/documenten" {
		t.Errorf("path = %v", entry["path"])
	}
	if entry["actor"] != "guest:11" {
		t.Errorf("actor = %v, ожидается guest:11", entry["actor"])
	}
	if entry["bytes"] != float64(2) {
		t.Errorf("bytes = %v", entry["bytes"])
	}
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	var buf bytes.Buffer
	router := newObservedRouter(t, &buf)

	// Неизвестный токен: 401 без субъекта
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dossiers/42/documenten", nil)
	req.Header.Set(HeaderGuestToken, strings.Repeat("cd", 32))
	router.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("разбор записи журнала: %v", err)
	}
	if entry["level"] != "WARN" || entry["status"] != float64(401) {
		t.Errorf("level = %v, status = %v", entry["level"], entry["status"])
	}
	if _, ok := entry["actor"]; ok {
		t.Error("у неаутентифицированного запроса не должно быть actor")
	}
}

func TestMetricsMiddleware_RouteLabel(t *testing.T) {
	var buf bytes.Buffer
	router := newObservedRouter(t, &buf)

	const route = "/api/v1/dossiers/{dossierId}/documenten"
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, route, "200"))
	unmatchedBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404"))

	for _, id := range []string{"1", "2", "3"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/dossiers/"+id+"/documenten", nil)
		req.Header.Set(HeaderGuestToken, guestToken)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/onbekend", nil))

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, route, "200")) - before; got != 3 {
		t.Errorf("запросов по шаблону = %v, ожидается 3", got)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404")) - unmatchedBefore; got != 1 {
		t.Errorf("unmatched = %v, ожидается 1", got)
	}
	if v := testutil.ToFloat64(httpRequestsInFlight); v != 0 {
		t.Errorf("in-flight после завершения = %v", v)
	}
}
