// Copyright (C) 2025 Flowsmith Labs (dev@flowsmith.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the diagrammer
// service: batch and variant counters plus external-call latency
// histograms. Metrics are exposed via the /metrics endpoint.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "flowsmith"
	pipelineSubsystem = "pipeline"
)

// PipelineMetrics holds all Prometheus metrics for flowchart generation.
//
// All operations are thread-safe via Prometheus's internal locking.
type PipelineMetrics struct {
	// BatchesTotal counts completed batches by classification.
	// Labels: status (success, partial_failure, total_failure, no_results)
	BatchesTotal *prometheus.CounterVec

	// VariantsTotal counts processed variants by outcome.
	// Labels: status (success, error)
	VariantsTotal *prometheus.CounterVec

	// RenderDurationSeconds measures render-service call latency.
	// Labels: format (svg, png)
	RenderDurationSeconds *prometheus.HistogramVec

	// GenerationDurationSeconds measures LLM generation latency.
	GenerationDurationSeconds prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metrics     *PipelineMetrics
)

// InitMetrics registers all pipeline metrics with the default registry.
// Safe to call more than once; registration happens exactly once.
func InitMetrics() *PipelineMetrics {
	metricsOnce.Do(func() {
		metrics = &PipelineMetrics{
			BatchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "batches_total",
				Help:      "Completed generation batches by classification.",
			}, []string{"status"}),
			VariantsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "variants_total",
				Help:      "Processed diagram variants by outcome.",
			}, []string{"status"}),
			RenderDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "render_duration_seconds",
				Help:      "Latency of rendering-service calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"format"}),
			GenerationDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "generation_duration_seconds",
				Help:      "Latency of LLM generation calls.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			}),
		}
	})
	return metrics
}

// RecordBatch increments the batch counter for a classification.
// No-op when metrics are not initialized (e.g. unit tests).
func RecordBatch(status string) {
	if metrics == nil {
		return
	}
	metrics.BatchesTotal.WithLabelValues(status).Inc()
}

// RecordVariant increments the variant counter.
func RecordVariant(failed bool) {
	if metrics == nil {
		return
	}
	status := "success"
	if failed {
		status = "error"
	}
	metrics.VariantsTotal.WithLabelValues(status).Inc()
}

// ObserveRender records one rendering-service call's latency.
func ObserveRender(format string, seconds float64) {
	if metrics == nil {
		return
	}
	metrics.RenderDurationSeconds.WithLabelValues(format).Observe(seconds)
}

// ObserveGeneration records one LLM generation call's latency.
func ObserveGeneration(seconds float64) {
	if metrics == nil {
		return
	}
	metrics.GenerationDurationSeconds.Observe(seconds)
}
