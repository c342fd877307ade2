package telemetry

import (
	"context"

	"github.com/fibgame/fibs/internal/setup/config"
	"github.com/uptrace/uptrace-go/uptrace"
	"go.uber.org/zap"
)

// ConfigureTracing installs the Uptrace exporter as the global OpenTelemetry
// provider. Without a DSN nothing is installed and spans are dropped by the
// default no-op provider. The returned func flushes pending spans.
func ConfigureTracing(cfg *config.Telemetry, serviceName, version string, logger *zap.Logger) func(context.Context) {
	if cfg.UptraceDSN == "" {
		logger.Debug("Tracing export disabled")
		return func(context.Context) {}
	}

	opts := []uptrace.Option{
		uptrace.WithDSN(cfg.UptraceDSN),
		uptrace.WithServiceName(serviceName),
		uptrace.WithServiceVersion(version),
	}
	if cfg.Environment != "" {
		opts = append(opts, uptrace.WithDeploymentEnvironment(cfg.Environment))
	}
	uptrace.ConfigureOpentelemetry(opts...)

	logger.Info("Tracing export enabled",
		zap.String("service", serviceName),
		zap.String("environment", cfg.Environment))

	return func(ctx context.Context) {
		if err := uptrace.Shutdown(ctx); err != nil {
			logger.Error("Failed to flush traces", zap.Error(err))
		}
	}
}
