// Copyright (C) 2025 Flowsmith Labs (dev@flowsmith.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mermaid

import (
	"regexp"
	"strings"
)

var (
	// directionPattern matches a graph/flowchart declaration followed by a
	// direction keyword, e.g. "graph TD" or "flowchart LR".
	directionPattern = regexp.MustCompile(`(?i)\b(graph|flowchart)\s+(TB|TD|BT|RL|LR)\b`)

	// bracketNodePattern matches a bracketed node definition, e.g. "A[Start]".
	bracketNodePattern = regexp.MustCompile(`[A-Za-z0-9_]+\[[^\]]*\]`)

	// plainEdgePattern matches a bare identifier feeding a connector,
	// e.g. "A -->". Diagrams made only of unlabeled nodes hit this path.
	plainEdgePattern = regexp.MustCompile(`[A-Za-z0-9_]+\s*(-->|---)`)
)

// Validate smoke-tests Mermaid flowchart source before a render call is
// spent on it. It returns false, never an error, when the source is empty,
// lacks a direction keyword after the graph/flowchart declaration, lacks a
// connector token, or shows none of the three "this looks like a diagram"
// signals: a bracketed node, a subgraph, or a bare identifier feeding a
// connector.
//
// This is intentionally an under-constrained syntactic check. The rendering
// service is the authoritative grammar checker; Validate only rejects
// obviously empty or garbage output before the network call.
func Validate(source string) bool {
	if strings.TrimSpace(source) == "" {
		return false
	}
	if !directionPattern.MatchString(source) {
		return false
	}
	if !strings.Contains(source, "-->") && !strings.Contains(source, "---") {
		return false
	}
	if bracketNodePattern.MatchString(source) {
		return true
	}
	if strings.Contains(strings.ToLower(source), "subgraph") {
		return true
	}
	return plainEdgePattern.MatchString(source)
}
