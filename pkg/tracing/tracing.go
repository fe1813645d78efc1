package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "uplinkpolicy"

// TracerProvider wraps OpenTelemetry tracer provider
type TracerProvider struct {
	tp *tracesdk.TracerProvider
}

type Config struct {
	Enabled     bool
	ServiceName string
	JaegerURL   string
	Environment string
	SampleRate  float64
}

// Init installs a Jaeger-backed global tracer provider. With tracing
// disabled it returns a provider whose Shutdown is a no-op.
func Init(cfg Config) (*TracerProvider, error) {
	if !cfg.Enabled {
		return &TracerProvider{}, nil
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerURL)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
		tracesdk.WithSampler(tracesdk.ParentBased(tracesdk.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{tp: tp}, nil
}

func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.tp != nil {
		return tp.tp.Shutdown(ctx)
	}
	return nil
}

func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

func AddSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// RecordError records an error in the current span
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

var (
	PolicyKey        = attribute.Key("policy.name")
	RuleIndexKey     = attribute.Key("policy.rule_index")
	FallbackKey      = attribute.Key("policy.fallback")
	ParticipantsKey  = attribute.Key("uplink.participants")
	BitrateKey       = attribute.Key("uplink.bitrate_kbps")
	ActiveStreamsKey = attribute.Key("uplink.active_streams")
	SessionIDKey     = attribute.Key("session.id")
	SenderIDKey      = attribute.Key("sender.id")
)

// TraceMatch spans one policy lookup; callers add the outcome with
// RecordMatchResult.
func TraceMatch(ctx context.Context, policy string, participants, bitrateKbps int) (context.Context, trace.Span) {
	return StartSpan(ctx, "policy.match",
		trace.WithAttributes(
			PolicyKey.String(policy),
			ParticipantsKey.Int(participants),
			BitrateKey.Int(bitrateKbps),
		),
	)
}

func RecordMatchResult(ctx context.Context, ruleIndex int, fallback bool, activeStreams string) {
	AddSpanAttributes(ctx,
		RuleIndexKey.Int(ruleIndex),
		FallbackKey.Bool(fallback),
		ActiveStreamsKey.String(activeStreams),
	)
}

func TraceUplinkReport(ctx context.Context, sessionID, senderID string, uplinkKbps int) (context.Context, trace.Span) {
	return StartSpan(ctx, "uplink.report",
		trace.WithAttributes(
			SessionIDKey.String(sessionID),
			SenderIDKey.String(senderID),
			BitrateKey.Int(uplinkKbps),
		),
	)
}

func TraceHTTPRequest(ctx context.Context, method, route string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("http.%s", method),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPMethodKey.String(method),
			semconv.HTTPRouteKey.String(route),
		),
	)
}

func TraceWebSocketMessage(ctx context.Context, messageType, senderID string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("websocket.%s", messageType),
		trace.WithAttributes(
			attribute.String("websocket.message_type", messageType),
			SenderIDKey.String(senderID),
		),
	)
}

func TracePolicyStore(ctx context.Context, operation, policy string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("policy_store.%s", operation),
		trace.WithAttributes(PolicyKey.String(policy)),
	)
}
