// Copyright (C) 2025 Flowsmith Labs (dev@flowsmith.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mermaid handles the untrusted text a generative model returns
// when asked for Mermaid diagram code: extracting the JSON payload out of
// surrounding prose, normalizing it in place, and smoke-testing the
// extracted diagram source before it is sent to a renderer.
//
// The package is deliberately split into a non-failing heuristic extractor
// (ExtractJSON) and a strict cleaning stage (CleanFile) that is allowed to
// fail with a typed error. The heuristic can be tuned without touching the
// failure semantics downstream code depends on.
package mermaid

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Payload is the JSON object the generator is instructed to produce.
type Payload struct {
	MermaidCode string `json:"mermaid_code"`
}

// =============================================================================
// Extraction
// =============================================================================

// ExtractJSON pulls the first well-formed-looking JSON object out of raw
// model output. Models wrap their payloads in prose, markdown fences, or
// both, so this takes the greedy "outermost braces" span: everything from
// the first '{' to the last '}'.
//
// When no such span exists the trimmed original text is returned unchanged;
// the strict JSON parse in CleanFile is the validation gate. ExtractJSON
// itself never fails.
func ExtractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(raw[start : end+1])
}

// =============================================================================
// Cleaning Stage
// =============================================================================

// CleanReason identifies why a cleaning pass rejected a payload file.
type CleanReason string

const (
	// ReasonMissingOrEmpty means the payload file does not exist or has
	// zero length.
	ReasonMissingOrEmpty CleanReason = "missing_or_empty"

	// ReasonEmptyAfterTrim means the file contained only whitespace.
	ReasonEmptyAfterTrim CleanReason = "empty_after_trim"

	// ReasonInvalidJSON means the extracted candidate failed a strict
	// JSON parse.
	ReasonInvalidJSON CleanReason = "invalid_json"
)

// CleanError reports a failed cleaning pass. It is a variant-scoped error:
// callers convert it into a per-variant outcome rather than aborting the
// batch.
type CleanError struct {
	Path   string
	Reason CleanReason
	Detail string
}

func (e *CleanError) Error() string {
	switch e.Reason {
	case ReasonMissingOrEmpty:
		return fmt.Sprintf("payload file %s is missing or empty", e.Path)
	case ReasonEmptyAfterTrim:
		return fmt.Sprintf("payload file %s is empty after trimming", e.Path)
	case ReasonInvalidJSON:
		return fmt.Sprintf("payload file %s contains invalid JSON: %s", e.Path, e.Detail)
	default:
		return fmt.Sprintf("payload file %s failed cleaning: %s", e.Path, e.Detail)
	}
}

// CleanFile normalizes a generation payload file in place: it extracts the
// outermost JSON object from whatever the model wrote, verifies it parses
// as strict JSON, and overwrites the file with just that object.
//
// This is destructive. After a successful clean the pre-clean content is
// gone; callers must not re-read expecting the raw model output. Applied to
// its own successful output the operation is idempotent.
//
// Failures return a *CleanError with a distinct reason per stage; CleanFile
// never panics on malformed input.
func CleanFile(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return &CleanError{Path: path, Reason: ReasonMissingOrEmpty}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return &CleanError{Path: path, Reason: ReasonMissingOrEmpty, Detail: err.Error()}
	}

	if strings.TrimSpace(string(content)) == "" {
		return &CleanError{Path: path, Reason: ReasonEmptyAfterTrim}
	}

	candidate := ExtractJSON(string(content))

	var parsed json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return &CleanError{Path: path, Reason: ReasonInvalidJSON, Detail: err.Error()}
	}

	// A rewrite failure is storage I/O, not a payload defect.
	if err := os.WriteFile(path, []byte(candidate), 0o644); err != nil {
		return fmt.Errorf("failed to rewrite payload file %s: %w", path, err)
	}
	return nil
}
