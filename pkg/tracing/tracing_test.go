package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/psantana5/smartworking/pkg/logging"
)

func TestDisabledProvider(t *testing.T) {
	p, err := InitTracer(context.Background(), Config{Enabled: false}, logging.Nop())
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	_, span := p.StartSpan(context.Background(), "noop")
	if span.SpanContext().IsSampled() {
		t.Error("disabled provider should not sample")
	}
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestHTTPMiddlewareNamesSpansByRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	p := NewProvider(tp, "test")

	r := mux.NewRouter()
	r.Use(HTTPMiddleware(p))
	r.HandleFunc("/api/requests/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/requests/abc?token=secret", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if got := spans[0].Name(); got != "DELETE /api/requests/{id}" {
		t.Errorf("span name = %q", got)
	}
	for _, kv := range spans[0].Attributes() {
		if kv.Value.Emit() == "secret" {
			t.Errorf("attribute %s leaked the query string", kv.Key)
		}
	}
}
