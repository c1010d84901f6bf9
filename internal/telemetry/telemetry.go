// Package telemetry provides observability with Prometheus metrics and structured logging.
package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for NeoQuery
type Metrics struct {
	// HTTP facade metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	InFlight     prometheus.Gauge

	// Router metrics
	RouterDecisions *prometheus.CounterVec

	// Cache metrics (response, query, aggregation)
	CacheLookups *prometheus.CounterVec

	// Upstream SQL service metrics
	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec

	// Agent metrics
	AgentTurns prometheus.Histogram
	ToolCalls  *prometheus.CounterVec

	// LLM transport metrics
	LLMRequests  *prometheus.CounterVec
	TokensInput  *prometheus.CounterVec
	TokensOutput *prometheus.CounterVec

	// Document index metrics
	IndexedDocuments *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neoquery_http_requests_total",
				Help: "Total HTTP requests by path, method and status",
			},
			[]string{"path", "method", "status"},
		),

		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "neoquery_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"path"},
		),

		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "neoquery_http_requests_in_flight",
				Help: "Number of requests currently being processed",
			},
		),

		RouterDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neoquery_router_decisions_total",
				Help: "Question routing decisions by tier",
			},
			[]string{"tier"},
		),

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neoquery_cache_lookups_total",
				Help: "Cache lookups by cache kind and outcome",
			},
			[]string{"cache", "outcome"},
		),

		UpstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neoquery_upstream_requests_total",
				Help: "Upstream data service requests by source and status",
			},
			[]string{"source", "status"},
		),

		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "neoquery_upstream_duration_seconds",
				Help:    "Upstream request duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 90, 120},
			},
			[]string{"source"},
		),

		AgentTurns: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "neoquery_agent_turns",
				Help:    "Turns used per agent run",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 20, 25},
			},
		),

		ToolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neoquery_tool_calls_total",
				Help: "Agent tool calls by tool and status",
			},
			[]string{"tool", "status"},
		),

		LLMRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neoquery_llm_requests_total",
				Help: "LLM API requests by provider and status",
			},
			[]string{"provider", "status"},
		),

		TokensInput: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neoquery_tokens_input_total",
				Help: "Total input tokens sent to the LLM",
			},
			[]string{"provider", "model"},
		),

		TokensOutput: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neoquery_tokens_output_total",
				Help: "Total output tokens generated by the LLM",
			},
			[]string{"provider", "model"},
		),

		IndexedDocuments: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "neoquery_indexed_documents",
				Help: "Documents held in the RAG index per collection",
			},
			[]string{"collection"},
		),
	}
}

// RecordRouterDecision records which tier served a question.
func (m *Metrics) RecordRouterDecision(tier string) {
	m.RouterDecisions.WithLabelValues(tier).Inc()
}

// RecordCacheLookup records a lookup against one of the caches.
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, outcome).Inc()
}

// RecordUpstream records an upstream data service call.
func (m *Metrics) RecordUpstream(source, status string, duration time.Duration) {
	m.UpstreamRequests.WithLabelValues(source, status).Inc()
	m.UpstreamDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordToolCall records an agent tool invocation.
func (m *Metrics) RecordToolCall(tool, status string) {
	m.ToolCalls.WithLabelValues(tool, status).Inc()
}

// RecordLLMRequest records one LLM API round trip.
func (m *Metrics) RecordLLMRequest(provider, model, status string, inputTokens, outputTokens int64) {
	m.LLMRequests.WithLabelValues(provider, status).Inc()
	if inputTokens > 0 {
		m.TokensInput.WithLabelValues(provider, model).Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.TokensOutput.WithLabelValues(provider, model).Add(float64(outputTokens))
	}
}

// RecordAgentRun records the turn count of a completed run.
func (m *Metrics) RecordAgentRun(turns int) {
	m.AgentTurns.Observe(float64(turns))
}

// RequestRecorder tracks a single HTTP request
type RequestRecorder struct {
	metrics   *Metrics
	path      string
	method    string
	startTime time.Time
}

// NewRequestRecorder creates a new request recorder
func (m *Metrics) NewRequestRecorder(path, method string) *RequestRecorder {
	m.InFlight.Inc()
	return &RequestRecorder{
		metrics:   m,
		path:      path,
		method:    method,
		startTime: time.Now(),
	}
}

// Done records the outcome of the request
func (r *RequestRecorder) Done(status string) {
	duration := time.Since(r.startTime).Seconds()
	r.metrics.InFlight.Dec()
	r.metrics.HTTPRequests.WithLabelValues(r.path, r.method, status).Inc()
	r.metrics.HTTPDuration.WithLabelValues(r.path).Observe(duration)
}

// Logger provides structured logging
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	With(fields ...any) Logger
}

// Context key for logger
type loggerContextKey struct{}

// LoggerFromContext retrieves logger from context
func LoggerFromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
		return l
	}
	return &noopLogger{}
}

// ContextWithLogger adds logger to context
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// noopLogger is a no-op logger
type noopLogger struct{}

func (noopLogger) Debug(msg string, fields ...any) {}
func (noopLogger) Info(msg string, fields ...any)  {}
func (noopLogger) Warn(msg string, fields ...any)  {}
func (noopLogger) Error(msg string, fields ...any) {}
func (l noopLogger) With(fields ...any) Logger     { return l }

// NopLogger returns a logger that discards everything.
func NopLogger() Logger { return &noopLogger{} }

// slogLogger wraps log/slog behind the Logger interface
type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, fields ...any) { s.l.Debug(msg, fields...) }
func (s *slogLogger) Info(msg string, fields ...any)  { s.l.Info(msg, fields...) }
func (s *slogLogger) Warn(msg string, fields ...any)  { s.l.Warn(msg, fields...) }
func (s *slogLogger) Error(msg string, fields ...any) { s.l.Error(msg, fields...) }
func (s *slogLogger) With(fields ...any) Logger       { return &slogLogger{l: s.l.With(fields...)} }

// NewLogger builds a slog-backed logger in the configured format and level.
func NewLogger(format, level, service string) Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &slogLogger{l: slog.New(handler).With("service", service)}
}

// Options configures telemetry initialization.
type Options struct {
	ServiceName    string
	MetricsEnabled bool
	LogFormat      string
	LogLevel       string
}

// Telemetry bundles the metrics registry and the root logger.
type Telemetry struct {
	Metrics *Metrics
	Logger  Logger

	registry *prometheus.Registry
}

// Init initializes the telemetry system. The returned cleanup flushes nothing
// today but keeps the shutdown shape uniform with the rest of the service.
func Init(opts Options) (*Telemetry, func(), error) {
	registry := prometheus.NewRegistry()
	t := &Telemetry{
		Metrics:  NewMetrics(registry),
		Logger:   NewLogger(opts.LogFormat, opts.LogLevel, opts.ServiceName),
		registry: registry,
	}
	if !opts.MetricsEnabled {
		t.Metrics = NewMetrics(prometheus.NewRegistry())
	}
	return t, func() {}, nil
}

// MetricsHandler serves the Prometheus scrape endpoint for this registry.
func (t *Telemetry) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}
