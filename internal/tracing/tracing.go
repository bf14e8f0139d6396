// Package tracing installs the OpenTelemetry tracer provider that the
// executor and world model report their spans to.
package tracing

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// #region config

// Config selects where spans are exported. Disabled tracing leaves the
// global no-op provider in place.
type Config struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"` // host:port of an OTLP/HTTP collector
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"` // fraction of traces kept; 0 keeps none
}

// DefaultConfig returns tracing switched off.
func DefaultConfig() Config {
	return Config{
		ServiceName: "worldmodel",
		SampleRate:  1.0,
	}
}

// #endregion config

// #region setup

// Shutdown flushes pending spans.
type Shutdown func(context.Context) error

// Setup exports spans over OTLP/HTTP. With tracing disabled it does nothing
// and returns a no-op Shutdown.
func Setup(ctx context.Context, cfg Config, agentID string) (Shutdown, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	var opts []otlptracehttp.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	provider, err := NewProvider(cfg, agentID, sdktrace.WithBatcher(exporter))
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(provider)
	log.Printf("[TRACE] exporting spans to %s (sample=%.2f)", endpointOrDefault(cfg.Endpoint), cfg.SampleRate)
	return provider.Shutdown, nil
}

// NewProvider builds a tracer provider tagged with the service and agent.
// Extra options attach span processors.
func NewProvider(cfg Config, agentID string, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	name := cfg.ServiceName
	if name == "" {
		name = DefaultConfig().ServiceName
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", name),
			attribute.String("worldmodel.agent_id", agentID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace resource: %w", err)
	}

	opts = append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	}, opts...)
	return sdktrace.NewTracerProvider(opts...), nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

func endpointOrDefault(endpoint string) string {
	if endpoint == "" {
		return "the OTLP default endpoint"
	}
	return endpoint
}

// #endregion setup
