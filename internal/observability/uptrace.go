package observability

import (
	"context"
	"strings"

	"github.com/matchwatch/pipeline/internal/config"
	"github.com/matchwatch/pipeline/internal/platform/logging"
	"github.com/uptrace/uptrace-go/uptrace"
)

// InitUptrace configures global OpenTelemetry providers for Uptrace.
func InitUptrace(cfg config.Config, logger *logging.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = logging.Default()
	}

	if !cfg.Observability.Uptrace.Enabled {
		logger.Info("uptrace disabled", "reason", "observability.uptrace.enabled=false")
		return func(context.Context) error { return nil }, nil
	}

	if strings.TrimSpace(cfg.Observability.Uptrace.DSN) == "" {
		logger.Info("uptrace disabled", "reason", "UPTRACE_DSN empty")
		return func(context.Context) error { return nil }, nil
	}

	uptrace.ConfigureOpentelemetry(
		uptrace.WithDSN(cfg.Observability.Uptrace.DSN),
		uptrace.WithServiceName(cfg.App.ServiceName),
		uptrace.WithServiceVersion(cfg.App.ServiceVersion),
		uptrace.WithDeploymentEnvironment(cfg.App.Env),
	)

	logger.Info("uptrace enabled",
		"service_name", cfg.App.ServiceName,
		"service_version", cfg.App.ServiceVersion,
		"environment", cfg.App.Env,
	)

	return uptrace.Shutdown, nil
}
