// Copyright (C) 2025 Flowsmith Labs (dev@flowsmith.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services provides business logic services for the diagrammer.
//
// This package contains the batch coordinator and the per-variant
// generation pipeline, separated from HTTP handlers. Services are:
//   - Testable: dependencies are injected via constructors
//   - Traceable: all methods accept context for distributed tracing
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowsmith/flowsmith/pkg/outputstore"
	"github.com/flowsmith/flowsmith/services/diagrammer/datatypes"
	"github.com/flowsmith/flowsmith/services/diagrammer/observability"
	"github.com/flowsmith/flowsmith/services/llm"
	"github.com/flowsmith/flowsmith/services/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// batchTracer is the OpenTelemetry tracer for batch operations.
var batchTracer = otel.Tracer("flowsmith.diagrammer.services.batch")

// BatchService coordinates one generation batch: it enforces output-store
// capacity once, runs the variant pipeline sequentially for each variant
// id, and aggregates the ordered outcomes into a classified BatchResult.
//
// The service is stateless across runs; all per-run state lives in the
// BatchResult it returns. It is safe for concurrent use as long as
// concurrent batches use distinct output stores: variants within a batch
// write variant-scoped filenames, but two batches sharing a store would
// overwrite each other's artifacts.
type BatchService struct {
	llmClient       llm.LLMClient
	renderer        *render.KrokiClient
	store           *outputstore.Store
	variantCount    int
	generateTimeout time.Duration
}

// NewBatchService creates a BatchService with the provided dependencies.
//
//   - llmClient: text-generation backend. Its output is treated as
//     untrusted text, never as pre-validated structured data.
//   - renderer: client for the external rendering service.
//   - store: capacity-bounded artifact store.
//   - variantCount: number of variants per batch; values below 1 fall back
//     to datatypes.DefaultVariantCount.
//   - generateTimeout: deadline for each LLM generation call; values below
//     1s fall back to 2 minutes.
func NewBatchService(
	llmClient llm.LLMClient,
	renderer *render.KrokiClient,
	store *outputstore.Store,
	variantCount int,
	generateTimeout time.Duration,
) *BatchService {
	if variantCount < 1 {
		variantCount = datatypes.DefaultVariantCount
	}
	if generateTimeout < time.Second {
		generateTimeout = 2 * time.Minute
	}
	return &BatchService{
		llmClient:       llmClient,
		renderer:        renderer,
		store:           store,
		variantCount:    variantCount,
		generateTimeout: generateTimeout,
	}
}

// VariantCount returns the fixed number of variants per batch.
func (s *BatchService) VariantCount() int {
	return s.variantCount
}

// Store returns the output store backing this service.
func (s *BatchService) Store() *outputstore.Store {
	return s.store
}

// Run executes one full batch for the given request and returns the
// ordered, classified result.
//
// Processing is sequential: variant i+1 starts only after variant i has
// persisted its outcome. A variant failure never aborts the others; every
// stage error is captured in that variant's outcome and the loop continues.
// The returned error is non-nil only for request validation failures, which
// are detected before any variant runs.
func (s *BatchService) Run(ctx context.Context, req *datatypes.GenerateRequest) (*datatypes.BatchResult, error) {
	ctx, span := batchTracer.Start(ctx, "BatchService.Run")
	defer span.End()

	req.EnsureDefaults()
	span.SetAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.Int("batch.variant_count", s.variantCount),
	)

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	slog.Info("Starting flowchart batch",
		"request_id", req.RequestID,
		"variant_count", s.variantCount,
	)

	// Capacity is enforced once per batch, before any variant writes, so
	// eviction never races an in-flight artifact.
	s.store.EnsureCapacity()

	result := &datatypes.BatchResult{
		RequestID: req.RequestID,
		Variants:  make([]datatypes.VariantOutcome, 0, s.variantCount),
	}

	for id := 1; id <= s.variantCount; id++ {
		outcome := s.processVariant(ctx, req.Description, id)
		observability.RecordVariant(outcome.Failed())
		result.Variants = append(result.Variants, outcome)
	}

	status := result.Classify()
	observability.RecordBatch(string(status))
	span.SetAttributes(attribute.String("batch.status", string(status)))
	slog.Info("Flowchart batch finished",
		"request_id", req.RequestID,
		"status", status,
	)

	return result, nil
}
