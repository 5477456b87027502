// Copyright (C) 2025 Flowsmith Labs (dev@flowsmith.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/flowsmith/flowsmith/pkg/mermaid"
	"github.com/flowsmith/flowsmith/services/diagrammer/datatypes"
	"github.com/flowsmith/flowsmith/services/diagrammer/observability"
	"github.com/flowsmith/flowsmith/services/llm"
	"github.com/flowsmith/flowsmith/services/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// pipelineTracer is the OpenTelemetry tracer for the per-variant pipeline.
var pipelineTracer = otel.Tracer("flowsmith.diagrammer.services.pipeline")

// defaultTemperature is the sampling temperature for variant generation.
// High enough that three prompts over the same description produce
// structurally distinct diagrams.
const defaultTemperature float32 = 0.7

// =============================================================================
// Artifact Naming
// =============================================================================

// PayloadFileName returns the stored name of a variant's raw/cleaned
// generation payload.
func PayloadFileName(id int) string {
	return fmt.Sprintf("mermaid_code_variant%d.json", id)
}

// ArtifactFileName returns the stored name of a variant's rendered artifact
// for a format ("svg" or "png").
func ArtifactFileName(id int, format string) string {
	return fmt.Sprintf("flowchart_output_variant%d.%s", id, format)
}

// SummaryFileName returns the stored name of a variant's outcome summary.
func SummaryFileName(id int) string {
	return fmt.Sprintf("flowchart_result_variant%d.json", id)
}

// =============================================================================
// Variant Pipeline
// =============================================================================

// processVariant runs the full pipeline for one variant id: generate,
// persist the raw payload, clean, parse, validate, render both formats,
// persist the artifacts. It never returns an error; every failure is folded
// into the outcome so the coordinator can keep going.
//
// The outcome summary file is written on every exit path, success or not,
// so the output directory always records what happened to each variant.
func (s *BatchService) processVariant(ctx context.Context, description string, id int) (outcome datatypes.VariantOutcome) {
	ctx, span := pipelineTracer.Start(ctx, "BatchService.processVariant")
	defer span.End()
	span.SetAttributes(attribute.Int("variant.id", id))

	outcome = datatypes.VariantOutcome{Id: id, Name: fmt.Sprintf("Variant %d", id)}
	defer func() {
		if outcome.Failed() {
			span.SetStatus(codes.Error, outcome.Error)
			slog.Warn("Variant failed", "variant_id", id, "error", outcome.Error)
		}
		s.persistSummary(id, outcome)
	}()

	// Stage 1: generate.
	raw, err := s.generate(ctx, description, id)
	if err != nil {
		outcome.Error = fmt.Sprintf("generation failed: %v", err)
		return outcome
	}

	// Stage 2: persist the raw payload, then clean it in place. The raw
	// form is gone after a successful clean; only the extracted JSON
	// object survives on disk.
	payloadPath := s.store.Path(PayloadFileName(id))
	if err := s.store.Write(PayloadFileName(id), []byte(raw)); err != nil {
		outcome.Error = fmt.Sprintf("failed to persist generation payload: %v", err)
		return outcome
	}
	if err := mermaid.CleanFile(payloadPath); err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	// Stage 3: parse the cleaned payload and smoke-test the diagram source.
	cleaned, err := os.ReadFile(payloadPath)
	if err != nil {
		outcome.Error = fmt.Sprintf("failed to read cleaned payload: %v", err)
		return outcome
	}
	var payload mermaid.Payload
	if err := json.Unmarshal(cleaned, &payload); err != nil {
		outcome.Error = fmt.Sprintf("cleaned payload is not a valid generation object: %v", err)
		return outcome
	}
	if !mermaid.Validate(payload.MermaidCode) {
		outcome.Error = "invalid or empty mermaid code generated"
		return outcome
	}

	// Stage 4: render both formats. The first failing format aborts the
	// variant; a diagram the renderer rejects as SVG will not fare better
	// as PNG, and half a variant is not a success.
	svgName := ArtifactFileName(id, string(render.FormatSVG))
	if err := s.renderAndPersist(ctx, payload.MermaidCode, render.FormatSVG, svgName); err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	pngName := ArtifactFileName(id, string(render.FormatPNG))
	if err := s.renderAndPersist(ctx, payload.MermaidCode, render.FormatPNG, pngName); err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	outcome.SvgPath = s.store.RelPath(svgName)
	outcome.PngPath = s.store.RelPath(pngName)
	slog.Info("Variant completed",
		"variant_id", id,
		"svg_path", outcome.SvgPath,
		"png_path", outcome.PngPath,
	)
	return outcome
}

// generate calls the LLM backend with the variant prompt under the
// configured deadline and returns its raw text output.
func (s *BatchService) generate(ctx context.Context, description string, id int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.generateTimeout)
	defer cancel()

	temperature := defaultTemperature
	params := llm.GenerationParams{Temperature: &temperature}

	start := time.Now()
	raw, err := s.llmClient.Generate(ctx, buildPrompt(description, id, s.variantCount), params)
	observability.ObserveGeneration(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	return raw, nil
}

// renderAndPersist renders the diagram source in one format and writes the
// result into the output store.
func (s *BatchService) renderAndPersist(ctx context.Context, source string, format render.Format, name string) error {
	start := time.Now()
	content, err := s.renderer.Render(ctx, source, format)
	observability.ObserveRender(string(format), time.Since(start).Seconds())
	if err != nil {
		return err
	}
	if err := s.store.Write(name, content); err != nil {
		return fmt.Errorf("failed to persist %s artifact: %w", format, err)
	}
	return nil
}

// persistSummary writes the variant's outcome summary next to its
// artifacts. Best effort: a summary write failure is logged but never
// alters the outcome it describes.
func (s *BatchService) persistSummary(id int, outcome datatypes.VariantOutcome) {
	content, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		slog.Warn("Failed to encode variant summary", "variant_id", id, "error", err)
		return
	}
	if err := s.store.Write(SummaryFileName(id), content); err != nil {
		slog.Warn("Failed to persist variant summary", "variant_id", id, "error", err)
	}
}

// buildPrompt composes the per-variant generation prompt. Each variant is
// told its position in the batch and instructed to pick a structure distinct
// from its siblings, so the batch covers more than one reading of the same
// description.
func buildPrompt(description string, id, total int) string {
	return fmt.Sprintf(
		"Based on the user-provided flowchart description, generate a unique Mermaid flowchart in JSON format:\n"+
			"Description: %s\n"+
			"This is variant %d of %d. Create a distinct logical structure (e.g., linear, decision-based, or parallel processes) "+
			"that differs from the other variants but aligns with the description's intent. "+
			"Use simple Mermaid syntax (e.g., graph TD; A[Start] --> B[Process] --> C[End]) and minimal styling "+
			"(%%%%{init: {'theme': 'base'}}%%%%). Ensure the code is valid and renderable. "+
			"Output only a pure JSON object with a single key 'mermaid_code' containing the Mermaid code as a string, "+
			"e.g., {\"mermaid_code\": \"graph TD; A[Start] --> B[Process] --> C[End]\"}. "+
			"Do not include ```json or ``` markers, comments, or any other text outside the JSON object.",
		description, id, total,
	)
}
