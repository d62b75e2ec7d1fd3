//go:build otel

package cmd

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/auraxis/internal/config"
	"github.com/nextlevelbuilder/auraxis/internal/tracing/otelexport"
)

// initTracing creates the OTLP exporter when telemetry is enabled. Only
// compiled with -tags otel. The returned provider is nil when export is off.
func initTracing(ctx context.Context, cfg *config.Config) (trace.TracerProvider, func()) {
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint == "" {
		slog.Debug("OTel export available but not enabled (set telemetry.enabled + telemetry.endpoint)")
		return nil, func() {}
	}

	exp, err := otelexport.New(ctx, otelexport.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		Protocol:    cfg.Telemetry.Protocol,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
		Headers:     cfg.Telemetry.Headers,
	})
	if err != nil {
		slog.Warn("failed to create OTel exporter", "error", err)
		return nil, func() {}
	}

	slog.Info("OpenTelemetry OTLP export enabled",
		"endpoint", cfg.Telemetry.Endpoint,
		"protocol", cfg.Telemetry.Protocol,
	)
	return exp.TracerProvider(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := exp.Shutdown(ctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}
}
