package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
	"github.com/DarsanV/HackaThrone-team91/internal/metrics"
)

type contextKey string

// RequestIDKey holds the request ID in the request context.
const RequestIDKey contextKey = "requestID"

const (
	RequestIDHeader = "X-Request-ID"
	TraceIDHeader   = "X-Trace-ID"

	// OfficerIDHeader carries the acting officer, set by the upstream auth layer.
	OfficerIDHeader = "X-Officer-ID"
)

var (
	tracer = otel.Tracer("snapnearn/api")

	corsAllowHeaders  = strings.Join([]string{"Content-Type", "Authorization", OfficerIDHeader, RequestIDHeader, TraceIDHeader}, ", ")
	corsExposeHeaders = strings.Join([]string{RequestIDHeader, TraceIDHeader, "Retry-After"}, ", ")
)

// statusRecorder remembers the first status written.
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func record(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wrote {
		w.status = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// TracingMiddleware starts a span per request and echoes the request and
// trace IDs. Server errors mark the span failed.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
				attribute.String("request.id", requestID),
			),
		)
		defer span.End()

		traceID := requestID
		if sc := span.SpanContext(); sc.TraceID().IsValid() {
			traceID = sc.TraceID().String()
		}
		w.Header().Set(RequestIDHeader, requestID)
		w.Header().Set(TraceIDHeader, traceID)

		rec := record(w)
		next.ServeHTTP(rec, r.WithContext(context.WithValue(ctx, RequestIDKey, requestID)))

		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
	})
}

// LoggingMiddleware logs one line per request. Server errors log at
// error level and client errors at warn.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := record(w)
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		switch {
		case rec.status >= http.StatusInternalServerError:
			level = slog.LevelError
		case rec.status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if id, ok := r.Context().Value(RequestIDKey).(string); ok {
			attrs = append(attrs, "request_id", id)
		}
		if sc := trace.SpanContextFromContext(r.Context()); sc.TraceID().IsValid() {
			attrs = append(attrs, "trace_id", sc.TraceID().String())
		}
		if officer := OfficerID(r); officer != "" {
			attrs = append(attrs, "officer_id", officer)
		}
		slog.Log(r.Context(), level, "http request", attrs...)
	})
}

// MetricsMiddleware labels requests by chi route pattern so each report
// ID does not become its own series.
func MetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := record(w)
			next.ServeHTTP(rec, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.ObserveHTTP(r.Method, route, rec.status, time.Since(start))
		})
	}
}

// CORSMiddleware serves the citizen and officer web clients. Preflight
// requests stop here.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if origin := r.Header.Get("Origin"); origin != "" {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		} else {
			h.Set("Access-Control-Allow-Origin", "*")
		}
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Expose-Headers", corsExposeHeaders)

		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Max-Age", strconv.Itoa(int((24 * time.Hour).Seconds())))
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecoverMiddleware turns a panic into a 500 and forwards it to Sentry
// when a client is configured.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			slog.Error("panic recovered", "error", rec, "method", r.Method, "path", r.URL.Path)
			if hub := sentry.CurrentHub(); hub.Client() != nil {
				hub.WithScope(func(scope *sentry.Scope) {
					scope.SetRequest(r)
					scope.SetTag("method", r.Method)
					hub.Recover(rec)
				})
			}
			writeError(w, fmt.Errorf("panic: %v", rec))
		}()
		next.ServeHTTP(w, r)
	})
}

// RequireOfficer rejects requests without an X-Officer-ID header.
func RequireOfficer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if OfficerID(r) == "" {
			writeError(w, domain.NewValidationError("officerId", OfficerIDHeader+" header is required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// OfficerID returns the acting officer from the request header.
func OfficerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(OfficerIDHeader))
}
