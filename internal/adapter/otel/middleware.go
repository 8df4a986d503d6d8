package otel

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tenantHeader = "X-Tenant-ID"

// HTTPMiddleware traces API requests. Probes and the websocket upgrade are
// not traced. Once chi has routed the request the span is renamed to the
// route pattern so ids in the path do not explode span cardinality.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		named := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			span := trace.SpanFromContext(r.Context())
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if pattern := rc.RoutePattern(); pattern != "" {
					span.SetName(r.Method + " " + pattern)
					span.SetAttributes(attribute.String("http.route", pattern))
				}
			}
			if tid := r.Header.Get(tenantHeader); tid != "" {
				span.SetAttributes(attribute.String(AttrTenantID, tid))
			}
		})
		return otelhttp.NewHandler(named, serviceName, otelhttp.WithFilter(traced))
	}
}

func traced(r *http.Request) bool {
	switch {
	case r.URL.Path == "/health", r.URL.Path == "/ws":
		return false
	case strings.HasPrefix(r.URL.Path, "/metrics"):
		return false
	}
	return true
}
