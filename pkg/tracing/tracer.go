// Package tracing wires OpenTelemetry for the processing pipeline. The task
// envelope carries W3C trace context across the queue and sampling is
// parent-based: a span with a parent follows the parent's decision. Jobs
// are created by a database trigger and the queue bridge injects the
// context of its own polling loop, which holds no span, so worker task
// spans start their own traces rather than joining the intake request's.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	instrumentationName = "github.com/global-credit/credit_core"
	serviceName         = "credit-core"
	serviceVersion      = "1.0.0"

	// SpanProcessTask is the root span of one worker task execution
	SpanProcessTask = "process_credit_application"
)

// Attribute keys shared by pipeline spans. Country and provider mirror the
// circuit-breaker key so a trace can be correlated with breaker state.
var (
	AttrApplicationID = attribute.Key("credit.application_id")
	AttrCountry       = attribute.Key("credit.country")
	AttrProvider      = attribute.Key("credit.provider")
	AttrTaskStatus    = attribute.Key("credit.task_status")
	AttrQueueHandle   = attribute.Key("credit.queue_handle")
)

// Config holds tracing configuration
type Config struct {
	Enabled      bool
	CollectorURL string // OTLP gRPC collector endpoint
	Environment  string
	SampleRate   float64 // root-span sampling ratio, 0.0 to 1.0
	Insecure     bool    // plaintext collector connection (development only)
}

// Init installs the global tracer provider and the W3C propagator the
// queue bridge and worker pool rely on. The returned function flushes and
// stops the exporter.
func Init(ctx context.Context, cfg Config, logger *zap.Logger) (func(context.Context) error, error) {
	// The propagator is installed even when export is disabled: task
	// envelopes still carry trace context between processes that do trace.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		logger.Info("Tracing disabled, spans will not be exported")
		otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample())))
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracing resource: %w", err)
	}

	grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.CollectorURL)}
	if cfg.Insecure {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(grpcOpts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	// Parent-based: the ratio decides for root spans, worker task spans
	// included; spans with a parent follow the parent's decision.
	var root sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		root = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0.0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(root)),
	)
	otel.SetTracerProvider(provider)

	logger.Info("Tracing initialized",
		zap.String("collector_url", cfg.CollectorURL),
		zap.Float64("sample_rate", cfg.SampleRate),
		zap.Bool("insecure", cfg.Insecure))

	return provider.Shutdown, nil
}

// Tracer returns the pipeline tracer
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartTaskSpan opens the root span for one worker task, tagged with the
// application it processes. The caller context should already carry the
// extracted envelope trace context.
func StartTaskSpan(ctx context.Context, applicationID, queueHandle string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, SpanProcessTask, trace.WithAttributes(
		AttrApplicationID.String(applicationID),
		AttrQueueHandle.String(queueHandle),
	))
}
