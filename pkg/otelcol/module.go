package otelcol

import (
	"context"

	"github.com/founoun2/FollowMe/pkg/config"
	"github.com/founoun2/FollowMe/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module wires the OTLP exporter into a global tracer provider.
var Module = fx.Module("otelcol",
	fx.Provide(
		provideExporter,
		provideTracerProvider,
	),
	fx.Invoke(registerTracerProvider),
)

func provideExporter(cfg *config.Config) (trace.SpanExporter, error) {
	return exporters.ProvideGrpc(cfg)
}

func provideTracerProvider(exporter trace.SpanExporter) *trace.TracerProvider {
	return ProvideTrace(exporter)
}

func registerTracerProvider(lc fx.Lifecycle, tp *trace.TracerProvider) {
	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
}
