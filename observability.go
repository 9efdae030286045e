package meter

import (
	"context"
	"log/slog"

	"github.com/ongoingai/meter/internal/observability"
	"github.com/ongoingai/meter/internal/version"
)

// ObservabilityConfig selects the OTLP export pipeline the library reports
// spans and metrics through. Leave Enabled false to keep metering local:
// spans still flow to whatever global tracer provider the host application
// installed.
type ObservabilityConfig struct {
	Enabled                bool
	Endpoint               string
	Insecure               bool
	ServiceName            string
	TracesEnabled          bool
	MetricsEnabled         bool
	SamplingRatio          float64
	ExportTimeoutMS        int
	MetricExportIntervalMS int
}

// ObservabilityRuntime owns the exporter pipeline started by
// SetupObservability. Shut it down on process exit to flush pending spans.
type ObservabilityRuntime struct {
	inner *observability.Runtime
}

// SetupObservability installs OTLP trace and metric export with credential
// scrubbing, and registers the resulting providers globally. Every span the
// library produces passes through the scrubbing exporter before leaving the
// process.
func SetupObservability(ctx context.Context, cfg ObservabilityConfig, log *slog.Logger) (*ObservabilityRuntime, error) {
	if log == nil {
		log = logger()
	}
	runtime, err := observability.Setup(ctx, observability.Config{
		Enabled:                cfg.Enabled,
		Endpoint:               cfg.Endpoint,
		Insecure:               cfg.Insecure,
		ServiceName:            cfg.ServiceName,
		TracesEnabled:          cfg.TracesEnabled,
		MetricsEnabled:         cfg.MetricsEnabled,
		SamplingRatio:          cfg.SamplingRatio,
		ExportTimeoutMS:        cfg.ExportTimeoutMS,
		MetricExportIntervalMS: cfg.MetricExportIntervalMS,
	}, version.Version, log)
	if err != nil {
		return nil, err
	}
	return &ObservabilityRuntime{inner: runtime}, nil
}

// Enabled reports whether the export pipeline is active.
func (r *ObservabilityRuntime) Enabled() bool {
	return r != nil && r.inner.Enabled()
}

// Shutdown flushes and stops the export pipeline.
func (r *ObservabilityRuntime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.inner.Shutdown(ctx)
}
