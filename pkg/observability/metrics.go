// Package observability wires OpenTelemetry metrics and tracing for the
// orchestrator. Metrics are exported through the Prometheus exporter and
// served by the CLI's /metrics endpoint; tracing ships spans over OTLP/gRPC
// and stays a noop unless explicitly enabled.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// InitMetrics builds the Prometheus-backed recorder. With Enabled=false it
// returns an empty recorder whose methods are no-ops.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("maestro")

	runDuration, err := meter.Float64Histogram(
		"maestro_workflow_run_duration_seconds",
		metric.WithDescription("End-to-end workflow run duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run duration histogram: %w", err)
	}

	runsTotal, err := meter.Int64Counter(
		"maestro_workflow_runs_total",
		metric.WithDescription("Total workflow runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runs counter: %w", err)
	}

	stepDuration, err := meter.Float64Histogram(
		"maestro_step_duration_seconds",
		metric.WithDescription("Per-step execution duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create step duration histogram: %w", err)
	}

	stepsTotal, err := meter.Int64Counter(
		"maestro_steps_total",
		metric.WithDescription("Total executed steps"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create steps counter: %w", err)
	}

	agentCallDuration, err := meter.Float64Histogram(
		"maestro_agent_call_duration_seconds",
		metric.WithDescription("Agent JSON-RPC call duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent call duration histogram: %w", err)
	}

	agentCallsTotal, err := meter.Int64Counter(
		"maestro_agent_calls_total",
		metric.WithDescription("Total agent JSON-RPC calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent calls counter: %w", err)
	}

	registryRequests, err := meter.Int64Counter(
		"maestro_registry_requests_total",
		metric.WithDescription("Total OCI registry requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry requests counter: %w", err)
	}

	cacheLookups, err := meter.Int64Counter(
		"maestro_discovery_cache_lookups_total",
		metric.WithDescription("Discovery cache lookups, labeled hit or miss"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache lookups counter: %w", err)
	}

	return NewPrometheusMetrics(
		runDuration,
		runsTotal,
		stepDuration,
		stepsTotal,
		agentCallDuration,
		agentCallsTotal,
		registryRequests,
		cacheLookups,
	), nil
}
