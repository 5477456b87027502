// Copyright (C) 2025 Flowsmith Labs (dev@flowsmith.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the diagrammer service.
//
// This file contains the request, per-variant outcome, and batch result
// types for flowchart generation.
package datatypes

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxDescriptionBytes is the maximum size of a flowchart description.
	// Bounds prompt size and blocks memory-exhaustion payloads.
	MaxDescriptionBytes = 8 * 1024 // 8KB

	// DefaultVariantCount is the number of independently generated diagram
	// variants per batch.
	DefaultVariantCount = 3
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// flowchartValidate is the validator instance for flowchart datatypes.
var flowchartValidate *validator.Validate

func init() {
	flowchartValidate = validator.New()
}

// =============================================================================
// Request
// =============================================================================

// GenerateRequest is the immutable input to one batch run: the user's
// free-text flowchart description plus identifiers populated by
// EnsureDefaults for audit and tracing.
type GenerateRequest struct {
	// RequestID uniquely identifies this batch run (UUID v4).
	RequestID string `json:"request_id" validate:"omitempty,uuid4"`

	// Timestamp is the Unix timestamp in milliseconds (UTC) when the
	// request was created.
	Timestamp int64 `json:"timestamp"`

	// Description is the free-text flowchart description the variants are
	// generated from. Required, at most MaxDescriptionBytes bytes.
	Description string `json:"description" form:"description" validate:"required,max=8192"`
}

// EnsureDefaults populates RequestID and Timestamp if absent. Safe to call
// multiple times; existing values are preserved.
func (r *GenerateRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// Validate checks the request against its validation rules.
func (r *GenerateRequest) Validate() error {
	return flowchartValidate.Struct(r)
}

// =============================================================================
// Outcomes
// =============================================================================

// VariantOutcome is the result of processing one diagram variant. Exactly
// one of the artifact path pair or the error message is populated — never
// both, never neither.
type VariantOutcome struct {
	Id      int    `json:"id"`
	Name    string `json:"name"`
	SvgPath string `json:"svg_path,omitempty"`
	PngPath string `json:"png_path,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Failed reports whether this variant ended in an error.
func (o VariantOutcome) Failed() bool {
	return o.Error != ""
}

// BatchStatus classifies a completed batch for the presentation layer.
type BatchStatus string

const (
	// BatchNoResults means the batch produced zero outcomes.
	BatchNoResults BatchStatus = "no_results"

	// BatchTotalFailure means every variant errored.
	BatchTotalFailure BatchStatus = "total_failure"

	// BatchPartialFailure means at least one but not all variants errored.
	BatchPartialFailure BatchStatus = "partial_failure"

	// BatchSuccess means no variant errored.
	BatchSuccess BatchStatus = "success"
)

// BatchResult is the ordered sequence of variant outcomes for one run.
// Position corresponds to variant id and is preserved for display and for
// download-by-id lookups.
type BatchResult struct {
	RequestID string           `json:"request_id,omitempty"`
	Variants  []VariantOutcome `json:"variants"`
}

// Classify reduces the batch to a status the presentation layer can render
// decisions on. It is the only classification the handlers need.
func (b *BatchResult) Classify() BatchStatus {
	if len(b.Variants) == 0 {
		return BatchNoResults
	}
	failed := 0
	for _, v := range b.Variants {
		if v.Failed() {
			failed++
		}
	}
	switch failed {
	case 0:
		return BatchSuccess
	case len(b.Variants):
		return BatchTotalFailure
	default:
		return BatchPartialFailure
	}
}

// AggregateError joins every variant error into one message. Used when the
// whole batch failed and no primary result is shown.
func (b *BatchResult) AggregateError() string {
	msgs := make([]string, 0, len(b.Variants))
	for _, v := range b.Variants {
		if v.Failed() {
			msgs = append(msgs, v.Error)
		}
	}
	return strings.Join(msgs, "; ")
}
