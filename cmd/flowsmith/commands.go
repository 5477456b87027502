// Copyright (C) 2025 Flowsmith Labs (dev@flowsmith.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/flowsmith/flowsmith/services/diagrammer"
	"github.com/flowsmith/flowsmith/services/diagrammer/datatypes"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// --- Global Command Variables ---
var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "flowsmith",
		Short: "A service that turns free-text descriptions into Mermaid flowchart variants",
		Long: `Flowsmith generates multiple Mermaid flowchart variants from a plain-text
description, renders each one to SVG and PNG via Kroki, and serves the
results over HTTP or writes them straight to disk from the terminal.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the Flowsmith HTTP server",
		Run:   runServe,
	}

	generateCmd = &cobra.Command{
		Use:   "generate [description]",
		Short: "Run one generation batch and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		Run:   runGenerate,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to an optional YAML config file; environment variables override it")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
}

// fileConfig mirrors diagrammer.Config for YAML loading.
type fileConfig struct {
	Port            int    `yaml:"port"`
	LLMBackend      string `yaml:"llm_backend"`
	OutputDir       string `yaml:"output_dir"`
	MaxOutputFiles  int    `yaml:"max_output_files"`
	VariantCount    int    `yaml:"variant_count"`
	KrokiURL        string `yaml:"kroki_url"`
	RenderTimeout   string `yaml:"render_timeout"`
	GenerateTimeout string `yaml:"generate_timeout"`
	OTelEndpoint    string `yaml:"otel_endpoint"`
	GinMode         string `yaml:"gin_mode"`
}

// buildConfig layers configuration: YAML file first (when given), then
// environment variables on top.
func buildConfig() (diagrammer.Config, error) {
	var cfg diagrammer.Config

	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
		cfg = diagrammer.Config{
			Port:           fc.Port,
			LLMBackend:     fc.LLMBackend,
			OutputDir:      fc.OutputDir,
			MaxOutputFiles: fc.MaxOutputFiles,
			VariantCount:   fc.VariantCount,
			KrokiURL:       fc.KrokiURL,
			OTelEndpoint:   fc.OTelEndpoint,
			GinMode:        fc.GinMode,
		}
		cfg.RenderTimeout = parseDurationOr(fc.RenderTimeout, 0)
		cfg.GenerateTimeout = parseDurationOr(fc.GenerateTimeout, 0)
		slog.Info("Configuration loaded from file", "path", configPath)
	}

	cfg.Port = getEnvInt("FLOWSMITH_PORT", cfg.Port)
	cfg.LLMBackend = getEnvString("LLM_BACKEND_TYPE", cfg.LLMBackend)
	cfg.OutputDir = getEnvString("FLOWSMITH_OUTPUT_DIR", cfg.OutputDir)
	cfg.MaxOutputFiles = getEnvInt("FLOWSMITH_MAX_OUTPUT_FILES", cfg.MaxOutputFiles)
	cfg.VariantCount = getEnvInt("FLOWSMITH_VARIANT_COUNT", cfg.VariantCount)
	cfg.KrokiURL = getEnvString("KROKI_URL", cfg.KrokiURL)
	cfg.OTelEndpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTelEndpoint)
	cfg.RenderTimeout = getEnvDuration("FLOWSMITH_RENDER_TIMEOUT", cfg.RenderTimeout)
	cfg.GenerateTimeout = getEnvDuration("FLOWSMITH_GENERATE_TIMEOUT", cfg.GenerateTimeout)

	return cfg, nil
}

// runServe starts the HTTP server and blocks until it exits.
func runServe(cmd *cobra.Command, args []string) {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := buildConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	svc, err := diagrammer.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create diagrammer service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Diagrammer error: %v", err)
	}
}

// runGenerate runs one batch for the given description and prints the
// classified result to stdout. Logs go to stderr so stdout stays parseable.
func runGenerate(cmd *cobra.Command, args []string) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := buildConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	svc, err := diagrammer.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create diagrammer service: %v", err)
	}

	req := &datatypes.GenerateRequest{Description: strings.Join(args, " ")}
	result, err := svc.Batch().Run(context.Background(), req)
	if err != nil {
		log.Fatalf("Generation rejected: %v", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
	fmt.Println(string(out))

	if result.Classify() == datatypes.BatchTotalFailure {
		os.Exit(1)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// parseDurationOr parses s as a duration, returning fallback on empty or
// malformed input.
func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
