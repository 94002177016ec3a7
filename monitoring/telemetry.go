package monitoring

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

var (
	meterProvider          *sdkmetric.MeterProvider
	requestCounter         metric.Int64Counter
	latencyHist            metric.Float64Histogram
	externalCallCounter    metric.Int64Counter
	externalCallLatency    metric.Float64Histogram
	externalCallErrCounter metric.Int64Counter
	workflowStepCounter    metric.Int64Counter
	workflowDurationHist   metric.Float64Histogram
	workflowInFlight       metric.Int64UpDownCounter
	persistenceGapCounter  metric.Int64Counter
	traceFailureCounter    metric.Int64Counter
	dbLatencyHist          metric.Float64Histogram
	storeEventCounter      metric.Int64Counter
	initOnce               sync.Once
	httpHandler            http.Handler
)

// Config captures the setup parameters for the service meter.
type Config struct {
	ServiceName   string
	ResourceAttrs map[string]string
}

// Setup configures OpenTelemetry metrics with a Prometheus exporter and runtime instrumentation.
// The returned function shuts the meter provider down.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "pbm-authorization-service"
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	for k, v := range cfg.ResourceAttrs {
		attrs = append(attrs, attribute.String(k, v))
	}

	var initErr error

	initOnce.Do(func() {
		exp, err := prometheus.New(prometheus.WithoutUnits())
		if err != nil {
			initErr = err
			return
		}

		res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
		if err != nil {
			initErr = err
			return
		}

		meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(exp),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(meterProvider)
		httpHandler = promhttp.Handler()

		initErr = registerInstruments(meterProvider.Meter(cfg.ServiceName))
		if initErr != nil {
			return
		}

		_ = runtime.Start(
			runtime.WithMinimumReadMemStatsInterval(10*time.Second),
			runtime.WithMeterProvider(meterProvider),
		)
	})

	if initErr != nil {
		return nil, initErr
	}

	return func(ctx context.Context) error {
		if meterProvider != nil {
			return meterProvider.Shutdown(ctx)
		}
		return nil
	}, nil
}

func registerInstruments(meter metric.Meter) error {
	var err error

	if requestCounter, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests processed")); err != nil {
		return err
	}
	if latencyHist, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds")); err != nil {
		return err
	}
	if externalCallCounter, err = meter.Int64Counter("external_calls_total",
		metric.WithDescription("Calls to the external authorization service by operation")); err != nil {
		return err
	}
	if externalCallLatency, err = meter.Float64Histogram("external_call_duration_seconds",
		metric.WithDescription("Duration of external authorization service calls")); err != nil {
		return err
	}
	if externalCallErrCounter, err = meter.Int64Counter("external_call_errors_total",
		metric.WithDescription("Failed external authorization service calls")); err != nil {
		return err
	}
	if workflowStepCounter, err = meter.Int64Counter("authorization_workflow_steps_total",
		metric.WithDescription("Workflow steps by action and resulting state")); err != nil {
		return err
	}
	if workflowDurationHist, err = meter.Float64Histogram("authorization_workflow_duration_seconds",
		metric.WithDescription("Workflow step durations")); err != nil {
		return err
	}
	if workflowInFlight, err = meter.Int64UpDownCounter("authorization_workflow_inflight",
		metric.WithDescription("Workflow steps currently processing")); err != nil {
		return err
	}
	if persistenceGapCounter, err = meter.Int64Counter("authorization_persistence_failures_total",
		metric.WithDescription("Authorizations committed upstream but not persisted locally")); err != nil {
		return err
	}
	if traceFailureCounter, err = meter.Int64Counter("trace_record_failures_total",
		metric.WithDescription("Trace events that could not be written")); err != nil {
		return err
	}
	if dbLatencyHist, err = meter.Float64Histogram("db_latency_seconds",
		metric.WithDescription("Database latency by table and operation")); err != nil {
		return err
	}
	if storeEventCounter, err = meter.Int64Counter("workflow_store_lookups_total",
		metric.WithDescription("Workflow snapshot lookups by backend and result")); err != nil {
		return err
	}
	return nil
}

// Handler returns the Prometheus /metrics handler.
func Handler() http.Handler {
	if httpHandler != nil {
		return httpHandler
	}
	return http.NotFoundHandler()
}

// HTTPMetricsMiddleware records request counts and latency. The chi route
// pattern is used as the route label so path parameters do not explode cardinality.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestCounter == nil || latencyHist == nil {
			next.ServeHTTP(w, r)
			return
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		attrs := metric.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", recorder.status),
		)
		requestCounter.Add(r.Context(), 1, attrs)
		latencyHist.Record(r.Context(), time.Since(start).Seconds(), attrs)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(statusCode int) {
	s.status = statusCode
	s.ResponseWriter.WriteHeader(statusCode)
}

// RecordExternalCall tracks latency and errors for calls to the external authorization service.
func RecordExternalCall(ctx context.Context, target, operation string, duration time.Duration, err error) {
	if externalCallCounter == nil || externalCallLatency == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("external.target", target),
		attribute.String("external.operation", operation),
		attribute.Bool("external.success", err == nil),
	)

	externalCallCounter.Add(ctx, 1, attrs)
	externalCallLatency.Record(ctx, duration.Seconds(), attrs)

	if err != nil && externalCallErrCounter != nil {
		externalCallErrCounter.Add(ctx, 1, attrs)
	}
}

// RecordWorkflowStep counts a finished workflow step and its duration.
// state is the resulting workflow state, or "FAILED" for infrastructure failures.
func RecordWorkflowStep(ctx context.Context, action, state string, duration time.Duration) {
	if workflowStepCounter == nil {
		return
	}

	workflowStepCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow.action", action),
		attribute.String("workflow.state", state),
	))

	if workflowDurationHist != nil {
		workflowDurationHist.Record(ctx, duration.Seconds(), metric.WithAttributes(
			attribute.String("workflow.action", action),
		))
	}
}

// WorkflowInFlightAdd adjusts the in-flight counter (delta +1 / -1).
func WorkflowInFlightAdd(ctx context.Context, action string, delta int64) {
	if workflowInFlight == nil {
		return
	}

	workflowInFlight.Add(ctx, delta, metric.WithAttributes(
		attribute.String("workflow.action", action),
	))
}

// RecordPersistenceFailure counts an upstream commit that has no local record.
func RecordPersistenceFailure(ctx context.Context, operation string) {
	if persistenceGapCounter == nil {
		return
	}

	persistenceGapCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("db.operation", operation),
	))
}

// RecordTraceFailure counts a swallowed trace write failure.
func RecordTraceFailure(ctx context.Context, actionType string) {
	if traceFailureCounter == nil {
		return
	}

	traceFailureCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trace.action_type", actionType),
	))
}

// RecordDBLatency records datastore read/write duration.
func RecordDBLatency(ctx context.Context, table, operation string, duration time.Duration) {
	if dbLatencyHist == nil {
		return
	}

	dbLatencyHist.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("db.table", table),
		attribute.String("db.operation", operation),
	))
}

// RecordStoreLookup counts workflow snapshot hits and misses.
func RecordStoreLookup(ctx context.Context, backend string, hit bool) {
	if storeEventCounter == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}

	storeEventCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("store.backend", backend),
		attribute.String("store.result", result),
	))
}
