// SPDX-License-Identifier: Apache-2.0
// Package telemetry provides observability for the Melior pipelines.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	pipelineMetricsOnce sync.Once

	taskCounter       metric.Int64Counter
	taskLatencyMs     metric.Float64Histogram
	gatewayFallbacks  metric.Int64Counter
	researchTopics    metric.Int64Counter
	proposalsCreated  metric.Int64Counter
	proposalsRejected metric.Int64Counter
)

func initPipelineMetrics() {
	pipelineMetricsOnce.Do(func() {
		meter := otel.Meter("melior/pipeline")
		taskCounter, _ = meter.Int64Counter("melior.task.count",
			metric.WithDescription("Task executions by agent and outcome"))
		taskLatencyMs, _ = meter.Float64Histogram("melior.task.latency_ms",
			metric.WithDescription("Task execution wall-clock latency"))
		gatewayFallbacks, _ = meter.Int64Counter("melior.gateway.fallback.count",
			metric.WithDescription("Reasoning gateway provider fallbacks"))
		researchTopics, _ = meter.Int64Counter("melior.research.topics.count",
			metric.WithDescription("Research topics investigated per agent"))
		proposalsCreated, _ = meter.Int64Counter("melior.triage.proposals.count",
			metric.WithDescription("Improvement requests created by triage"))
		proposalsRejected, _ = meter.Int64Counter("melior.triage.filtered.count",
			metric.WithDescription("Opportunities filtered out by triage"))
	})
}

// RecordTask records one task execution outcome.
func RecordTask(ctx context.Context, agentID string, success bool, durationMs float64) {
	initPipelineMetrics()
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("agent_id", agentID),
		attribute.String("outcome", outcome),
	)
	taskCounter.Add(ctx, 1, attrs)
	taskLatencyMs.Record(ctx, durationMs, attrs)
}

// RecordGatewayFallback records that the primary reasoning provider failed
// and a fallback was attempted.
func RecordGatewayFallback(ctx context.Context, fromProvider string) {
	initPipelineMetrics()
	gatewayFallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", fromProvider),
	))
}

// RecordResearchTopic records one investigated research topic.
func RecordResearchTopic(ctx context.Context, agentID string) {
	initPipelineMetrics()
	researchTopics.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent_id", agentID),
	))
}

// RecordTriage records a triage decision for one opportunity.
func RecordTriage(ctx context.Context, agentID string, created bool) {
	initPipelineMetrics()
	attrs := metric.WithAttributes(attribute.String("agent_id", agentID))
	if created {
		proposalsCreated.Add(ctx, 1, attrs)
		return
	}
	proposalsRejected.Add(ctx, 1, attrs)
}
