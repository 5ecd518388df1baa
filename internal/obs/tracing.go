package obs

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// TracingConfig controls tracer provider initialisation.
type TracingConfig struct {
	ServiceName   string
	Version       string
	Environment   string
	Exporter      string // "otlp" or "none"
	Endpoint      string
	SamplingRatio float64
}

// InitTracer installs the global tracer provider and W3C propagators. The
// "none" exporter keeps propagation and span contexts but ships nothing, which
// lets log lines still carry trace ids in local runs. The returned function
// flushes pending spans.
func InitTracer(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(samplingRatio(cfg.SamplingRatio)))),
	}
	switch exporter := strings.ToLower(strings.TrimSpace(cfg.Exporter)); exporter {
	case "", "otlp":
		var httpOpts []otlptracehttp.Option
		if ep := strings.TrimSpace(cfg.Endpoint); ep != "" {
			httpOpts = append(httpOpts, otlptracehttp.WithEndpointURL(ep))
		}
		exp, err := otlptracehttp.New(ctx, httpOpts...)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	case "none":
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q", exporter)
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName(cfg.ServiceName)),
		semconv.DeploymentEnvironment(cfg.Environment),
	}
	if cfg.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}
	tp := sdktrace.NewTracerProvider(append(opts, sdktrace.WithResource(res))...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func samplingRatio(r float64) float64 {
	if r <= 0 || r > 1 {
		return 1
	}
	return r
}

func serviceName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return "backend-quote"
}
