//go:build !otel

package cmd

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/auraxis/internal/config"
)

// initTracing is a no-op when built without the "otel" tag.
// Build with `go build -tags otel` to enable OpenTelemetry export.
func initTracing(_ context.Context, cfg *config.Config) (trace.TracerProvider, func()) {
	if cfg.Telemetry.Enabled {
		slog.Warn("telemetry.enabled is set but this binary was built without -tags otel")
	}
	return nil, func() {}
}
