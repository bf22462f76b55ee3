package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"mertoncli/internal/infrastructure"
)

// OTelMiddleware traces requests with otelhttp and records request metrics
// against the matched chi route pattern.
type OTelMiddleware struct {
	providers *infrastructure.OTelProviders
	metrics   *infrastructure.CalibrationMetrics
	logger    *slog.Logger
}

// NewOTelMiddleware creates a new OpenTelemetry middleware
func NewOTelMiddleware(providers *infrastructure.OTelProviders, metrics *infrastructure.CalibrationMetrics) *OTelMiddleware {
	logger := slog.Default()
	if providers != nil && providers.Logger != nil {
		logger = providers.Logger
	}
	return &OTelMiddleware{
		providers: providers,
		metrics:   metrics,
		logger:    logger.With(slog.String("component", "otel_middleware")),
	}
}

// Handler returns the middleware handler function
func (m *OTelMiddleware) Handler(next http.Handler) http.Handler {
	record := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		// Prefer the OpenTelemetry trace id for log correlation once a span exists
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() && infrastructure.GetTraceID(ctx) == "" {
			ctx = infrastructure.WithTraceID(ctx, sc.TraceID().String())
			r = r.WithContext(ctx)
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.metrics.RecordHTTPRequest(ctx, r.Method, routePattern(r), status, time.Since(start))
	})

	opts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/metrics"
		}),
	}
	if m.providers != nil && m.providers.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(m.providers.TracerProvider))
	}
	if m.providers != nil && m.providers.MeterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(m.providers.MeterProvider))
	}

	return otelhttp.NewHandler(record, "http.server", opts...)
}

// routePattern returns the chi pattern that matched, or the raw path before routing
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// GetRealIP extracts the client address, honouring proxy headers
func GetRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
