package api

import (
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const apiTracerName = "github.com/odvcencio/memorybank/internal/api"

func requestTracingMiddleware(routes routeLabeler) middlewareFunc {
	return func(next http.Handler) http.Handler {
		return tracedHandler(otel.Tracer(apiTracerName), routes, next)
	}
}

func tracedHandler(tracer trace.Tracer, routes routeLabeler, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSkipRequestInstrumentation(r) {
			next.ServeHTTP(w, r)
			return
		}

		route := routes.label(r)
		spanName := fmt.Sprintf("%s %s", r.Method, route)

		ctx, span := tracer.Start(r.Context(), spanName, trace.WithSpanKind(trace.SpanKindServer))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			span.SetAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.Int("http.status_code", rec.status),
			)
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End()
		}()

		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

// annotateProjectSpan tags the request span with the memory bank the request
// operates on.
func annotateProjectSpan(r *http.Request, root string) {
	span := trace.SpanFromContext(r.Context())
	if !span.IsRecording() {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("memorybank.project_root", root)}
	if repo := r.PathValue("repo"); repo != "" {
		attrs = append(attrs,
			attribute.String("memorybank.repository", repo),
			attribute.String("memorybank.branch", r.PathValue("branch")),
		)
	}
	span.SetAttributes(attrs...)
}

// shouldSkipRequestInstrumentation excludes profiling and scrape traffic.
func shouldSkipRequestInstrumentation(r *http.Request) bool {
	if r == nil || r.URL == nil {
		return false
	}
	return r.URL.Path == "/metrics" || strings.HasPrefix(r.URL.Path, "/debug/pprof")
}
