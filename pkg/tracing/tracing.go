package tracing

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

var ServiceName = "personal-finance-tracker"

type Config struct {
	GRPCEndpoint   string `mapstructure:"grpc_endpoint"`
	AuthKey        string `mapstructure:"auth_key"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	Environment    string `mapstructure:"environment"`
}

// InitTraceProvider installs the global tracer provider. Spans are exported
// over OTLP gRPC or to Jaeger when an endpoint is configured and dropped
// otherwise.
func InitTraceProvider(servicename string, cfg Config) (shutdown func(context.Context) error, err error) {
	ServiceName = servicename

	env := cfg.Environment
	if env == "" {
		env = "production"
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(servicename),
		semconv.DeploymentEnvironmentKey.String(env),
	)

	var exp sdktrace.SpanExporter
	switch {
	case cfg.GRPCEndpoint != "":
		log.Info().Str("endpoint", cfg.GRPCEndpoint).Msg("New GRPC TraceProvider")
		exp, err = otlptracegrpc.New(
			context.Background(),
			otlptracegrpc.WithEndpoint(cfg.GRPCEndpoint),
			otlptracegrpc.WithHeaders(map[string]string{
				"Authorization": cfg.AuthKey,
			}),
		)
	case cfg.JaegerEndpoint != "":
		log.Info().Str("endpoint", cfg.JaegerEndpoint).Msg("New Jaeger TraceProvider")
		exp, err = jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerEndpoint)))
	}
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if exp != nil {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	provider := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return provider.Shutdown, nil
}

func NewSpan(name string, ctx context.Context) (context.Context, trace.Span) {
	tracer := otel.Tracer(ServiceName)
	return tracer.Start(ctx, name)
}
