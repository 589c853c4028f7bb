// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for graph operations.
var (
	tracer = otel.Tracer("asgstore.graph")
	meter  = otel.Meter("asgstore.graph")
)

// Metrics for persistence and indexing.
var (
	persistLatency      metric.Float64Histogram
	persistTotal        metric.Int64Counter
	persistNodes        metric.Int64Histogram
	reverseBuildLatency metric.Float64Histogram
	reverseBuildNodes   metric.Int64Histogram
	nodesCreated        metric.Int64Counter
	nodesDestroyed      metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		persistLatency, err = meter.Float64Histogram(
			"asg_persist_duration_seconds",
			metric.WithDescription("Duration of graph save and load operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		persistTotal, err = meter.Int64Counter(
			"asg_persist_total",
			metric.WithDescription("Total number of graph save and load operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		persistNodes, err = meter.Int64Histogram(
			"asg_persist_nodes",
			metric.WithDescription("Number of nodes saved or loaded per operation"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		reverseBuildLatency, err = meter.Float64Histogram(
			"asg_reverse_edges_build_duration_seconds",
			metric.WithDescription("Duration of reverse edge index builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		reverseBuildNodes, err = meter.Int64Histogram(
			"asg_reverse_edges_build_nodes",
			metric.WithDescription("Number of nodes indexed per reverse edge build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesCreated, err = meter.Int64Counter(
			"asg_nodes_created_total",
			metric.WithDescription("Total number of nodes created, including nodes recreated by load"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesDestroyed, err = meter.Int64Counter(
			"asg_nodes_destroyed_total",
			metric.WithDescription("Total number of nodes destroyed, excluding Clear"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordPersistMetrics records metrics for a save or load.
func recordPersistMetrics(ctx context.Context, op string, duration time.Duration, nodeCount int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("success", success),
	)

	persistLatency.Record(ctx, duration.Seconds(), attrs)
	persistTotal.Add(ctx, 1, attrs)

	if success {
		persistNodes.Record(ctx, int64(nodeCount), metric.WithAttributes(attribute.String("op", op)))
	}
}

// recordReverseBuildMetrics records metrics for a reverse edge index build.
func recordReverseBuildMetrics(ctx context.Context, duration time.Duration, nodeCount int) {
	if err := initMetrics(); err != nil {
		return
	}

	reverseBuildLatency.Record(ctx, duration.Seconds())
	reverseBuildNodes.Record(ctx, int64(nodeCount))
}

// recordNodeMetrics adds to the node lifecycle counters.
func recordNodeMetrics(ctx context.Context, created, destroyed int) {
	if err := initMetrics(); err != nil {
		return
	}

	if created > 0 {
		nodesCreated.Add(ctx, int64(created))
	}
	if destroyed > 0 {
		nodesDestroyed.Add(ctx, int64(destroyed))
	}
}

// startPersistSpan creates a span for a save or load.
func startPersistSpan(ctx context.Context, name string, nodeCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.Int("asg.node_count", nodeCount),
		),
	)
}

// setPersistSpanResult records the outcome on a persistence span.
func setPersistSpanResult(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
