package mycontext

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// CtxTraceContext is a context key for the trace context this (used by mylog)
type CtxTraceContext struct{}

// ContextFromHTTPRequest derives the request context and attaches the trace id used by mylog.
// The Cloud trace header wins over the span started by the otelhttp middleware.
func ContextFromHTTPRequest(r *http.Request) context.Context {
	var traceID string

	traceContext := r.Header.Get("X-Cloud-Trace-Context")
	traceParts := strings.Split(traceContext, "/")
	if len(traceParts) > 0 && len(traceParts[0]) > 0 {
		traceID = traceParts[0]
	} else if spanContext := trace.SpanContextFromContext(r.Context()); spanContext.HasTraceID() {
		traceID = spanContext.TraceID().String()
	}

	var traceName string
	if traceID != "" {
		traceName = fmt.Sprintf("projects/%s/traces/%s", os.Getenv("GOOGLE_CLOUD_PROJECT"), traceID)
	}

	return context.WithValue(r.Context(), CtxTraceContext{}, traceName)
}

// TraceFromContext returns the trace attached by ContextFromHTTPRequest, or "".
func TraceFromContext(c context.Context) string {
	traceName, _ := c.Value(CtxTraceContext{}).(string)
	return traceName
}
