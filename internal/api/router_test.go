package api

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func TestChainMiddlewarePreservesOrder(t *testing.T) {
	sequence := make([]string, 0, 5)
	wrap := func(name string) middlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				sequence = append(sequence, "before:"+name)
				next.ServeHTTP(w, r)
				sequence = append(sequence, "after:"+name)
			})
		}
	}

	handler := chainMiddleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sequence = append(sequence, "handler")
			w.WriteHeader(http.StatusNoContent)
		}),
		wrap("tracing"),
		wrap("project_root"),
	)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}

	want := []string{
		"before:tracing",
		"before:project_root",
		"handler",
		"after:project_root",
		"after:tracing",
	}
	if !reflect.DeepEqual(sequence, want) {
		t.Fatalf("unexpected middleware order: got %v want %v", sequence, want)
	}
}

func TestChainMiddlewareBuildsOnceAndReusesWrappedHandlers(t *testing.T) {
	builds := map[string]int{}
	calls := map[string]int{}
	wrap := func(name string) middlewareFunc {
		return func(next http.Handler) http.Handler {
			builds[name]++
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls[name]++
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := chainMiddleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls["handler"]++
			w.WriteHeader(http.StatusNoContent)
		}),
		wrap("tracing"),
		wrap("metrics"),
		wrap("logging"),
	)

	if got := builds["tracing"]; got != 1 {
		t.Fatalf("expected tracing middleware to be built once, got %d", got)
	}
	if got := builds["metrics"]; got != 1 {
		t.Fatalf("expected metrics middleware to be built once, got %d", got)
	}
	if got := builds["logging"]; got != 1 {
		t.Fatalf("expected logging middleware to be built once, got %d", got)
	}

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected status %d, got %d", i, http.StatusNoContent, rec.Code)
		}
	}

	if got := builds["tracing"]; got != 1 {
		t.Fatalf("expected tracing middleware build count to remain 1, got %d", got)
	}
	if got := builds["metrics"]; got != 1 {
		t.Fatalf("expected metrics middleware build count to remain 1, got %d", got)
	}
	if got := builds["logging"]; got != 1 {
		t.Fatalf("expected logging middleware build count to remain 1, got %d", got)
	}

	if got := calls["tracing"]; got != 3 {
		t.Fatalf("expected tracing middleware to run 3 times, got %d", got)
	}
	if got := calls["metrics"]; got != 3 {
		t.Fatalf("expected metrics middleware to run 3 times, got %d", got)
	}
	if got := calls["logging"]; got != 3 {
		t.Fatalf("expected logging middleware to run 3 times, got %d", got)
	}
	if got := calls["handler"]; got != 3 {
		t.Fatalf("expected base handler to run 3 times, got %d", got)
	}
}

func TestNewServerRegistersPprofBehindAdminAccess(t *testing.T) {
	server, _ := newTestServer(t, nil, ServerOptions{EnablePprof: true})

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("loopback pprof status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	req.RemoteAddr = "203.0.113.10:4000"
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("remote pprof status = %d, want 404", rec.Code)
	}
}

func TestRequestBodyLimitRejectsOversizedUpserts(t *testing.T) {
	server, driver := newTestServer(t, nil, ServerOptions{})

	body := bytes.Repeat([]byte("x"), int(maxAPIBodyBytes)+1)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/repos/repoA/branches/main/components", bytes.NewReader(body))
	req.Header.Set(defaultProjectRootHeader, t.TempDir())
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assertJSONError(t, rec, http.StatusRequestEntityTooLarge, "request body too large")
	if driver.Opens() != 0 {
		t.Fatalf("opens = %d, want 0", driver.Opens())
	}
}

func TestResponsesAreCompressedWhenAccepted(t *testing.T) {
	server, _ := newTestServer(t, nil, ServerOptions{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip body: %v", err)
	}
	if !strings.Contains(string(raw), "memorybank_http_requests_in_flight") {
		t.Fatalf("scrape output missing in-flight gauge")
	}
}
