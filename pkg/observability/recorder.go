package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

// Metrics is the recorder surface the engine, discovery, and registry client
// report into. Implementations must be safe for concurrent use and tolerate
// a nil receiver so call sites never need guards.
type Metrics interface {
	RecordWorkflowRun(ctx context.Context, workflowID string, duration time.Duration, err error)
	RecordStep(ctx context.Context, stepType string, duration time.Duration, err error)
	RecordAgentCall(ctx context.Context, skill string, duration time.Duration, err error)
	RecordRegistryRequest(ctx context.Context, operation string, status int)
	RecordCacheLookup(ctx context.Context, cache string, hit bool)
}

type PrometheusMetrics struct {
	runDuration       metric.Float64Histogram
	runsTotal         metric.Int64Counter
	stepDuration      metric.Float64Histogram
	stepsTotal        metric.Int64Counter
	agentCallDuration metric.Float64Histogram
	agentCallsTotal   metric.Int64Counter
	registryRequests  metric.Int64Counter
	cacheLookups      metric.Int64Counter
}

func NewPrometheusMetrics(
	runDuration metric.Float64Histogram,
	runsTotal metric.Int64Counter,
	stepDuration metric.Float64Histogram,
	stepsTotal metric.Int64Counter,
	agentCallDuration metric.Float64Histogram,
	agentCallsTotal metric.Int64Counter,
	registryRequests metric.Int64Counter,
	cacheLookups metric.Int64Counter,
) *PrometheusMetrics {
	return &PrometheusMetrics{
		runDuration:       runDuration,
		runsTotal:         runsTotal,
		stepDuration:      stepDuration,
		stepsTotal:        stepsTotal,
		agentCallDuration: agentCallDuration,
		agentCallsTotal:   agentCallsTotal,
		registryRequests:  registryRequests,
		cacheLookups:      cacheLookups,
	}
}

func statusAttr(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("status", "error")
	}
	return attribute.String("status", "ok")
}

func (m *PrometheusMetrics) RecordWorkflowRun(ctx context.Context, workflowID string, duration time.Duration, err error) {
	if m == nil || m.runDuration == nil || m.runsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("workflow_id", workflowID),
		statusAttr(err),
	}
	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.runsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *PrometheusMetrics) RecordStep(ctx context.Context, stepType string, duration time.Duration, err error) {
	if m == nil || m.stepDuration == nil || m.stepsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("step_type", stepType),
		statusAttr(err),
	}
	m.stepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.stepsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *PrometheusMetrics) RecordAgentCall(ctx context.Context, skill string, duration time.Duration, err error) {
	if m == nil || m.agentCallDuration == nil || m.agentCallsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("skill", skill),
		statusAttr(err),
	}
	m.agentCallDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.agentCallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *PrometheusMetrics) RecordRegistryRequest(ctx context.Context, operation string, status int) {
	if m == nil || m.registryRequests == nil {
		return
	}

	m.registryRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Int("status", status),
	))
}

func (m *PrometheusMetrics) RecordCacheLookup(ctx context.Context, cache string, hit bool) {
	if m == nil || m.cacheLookups == nil {
		return
	}

	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache", cache),
		attribute.Bool("hit", hit),
	))
}

// SetGlobalMetrics installs the process-wide recorder.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the installed recorder. Before SetGlobalMetrics
// runs it returns an empty PrometheusMetrics, so call sites never check.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	if globalMetrics == nil {
		return (*PrometheusMetrics)(nil)
	}
	return globalMetrics
}
