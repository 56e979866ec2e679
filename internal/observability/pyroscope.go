package observability

import (
	"log/slog"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/matchwatch/pipeline/internal/config"
)

// InitPyroscope starts continuous profiling when enabled.
func InitPyroscope(cfg config.Config, logger *slog.Logger) (func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if !cfg.Observability.Pyroscope.Enabled {
		logger.Info("pyroscope disabled", "reason", "observability.pyroscope.enabled=false")
		return func() error { return nil }, nil
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.Observability.Pyroscope.AppName,
		ServerAddress:   cfg.Observability.Pyroscope.ServerAddress,
		AuthToken:       cfg.Observability.Pyroscope.AuthToken,
		UploadRate:      time.Duration(cfg.Observability.Pyroscope.UploadRate),
		Tags: map[string]string{
			"env":     cfg.App.Env,
			"service": cfg.App.ServiceName,
		},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexCount,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockCount,
			pyroscope.ProfileBlockDuration,
		},
	})
	if err != nil {
		return nil, err
	}

	logger.Info("pyroscope enabled",
		"server_address", cfg.Observability.Pyroscope.ServerAddress,
		"application", cfg.Observability.Pyroscope.AppName,
	)

	return profiler.Stop, nil
}
