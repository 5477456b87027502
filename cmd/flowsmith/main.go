// Copyright (C) 2025 Flowsmith Labs (dev@flowsmith.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command flowsmith starts the Flowsmith diagram generation service or
// runs one-off generation batches from the terminal.
//
// # Environment Variables
//
//   - FLOWSMITH_PORT: HTTP server port (default: 12260)
//   - LLM_BACKEND_TYPE: LLM provider - gemini, openai, ollama (default: gemini)
//   - FLOWSMITH_OUTPUT_DIR: artifact directory (default: ./static/outputs)
//   - FLOWSMITH_MAX_OUTPUT_FILES: output directory capacity (default: 40)
//   - KROKI_URL: rendering service base URL (default: https://kroki.io)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: flowsmith-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o flowsmith ./cmd/flowsmith
//
//	# Run the server
//	./flowsmith serve
//
//	# One-off batch from the terminal
//	./flowsmith generate "user signs in, adds an item, checks out"
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
