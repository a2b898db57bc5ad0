// Package telemetry OpenTelemetry 链路追踪初始化
package telemetry

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"rental-admin/internal/config"
)

// Shutdown 刷新并关闭 TracerProvider
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Setup 初始化全局 TracerProvider
//
// Endpoint 为空时不导出，返回空操作的 Shutdown；导出器创建失败只记日志，不影响启动。
func Setup(ctx context.Context, cfg config.TelemetryConfig) Shutdown {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	if cfg.Endpoint == "" {
		return noop
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		log.Printf("[telemetry] otel exporter error: %v", err)
		return noop
	}

	name := cfg.ServiceName
	if name == "" {
		name = "rental-admin"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(name)))
	if err != nil {
		log.Printf("[telemetry] otel resource error: %v", err)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(provider)
	log.Printf("[telemetry] exporting traces to %s (service=%s, ratio=%.2f)", cfg.Endpoint, name, ratio)

	return provider.Shutdown
}
