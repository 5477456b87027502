// Copyright (C) 2025 Flowsmith Labs (dev@flowsmith.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package diagrammer provides the core flowchart generation service for
// Flowsmith.
//
// This package contains the main service type that coordinates all
// components: HTTP routing, the LLM client, the rendering client, the
// capacity-bounded output store, and observability infrastructure.
//
// # Usage
//
//	cfg := diagrammer.Config{Port: 12260, LLMBackend: "gemini"}
//	svc, err := diagrammer.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package diagrammer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowsmith/flowsmith/pkg/outputstore"
	"github.com/flowsmith/flowsmith/services/diagrammer/datatypes"
	"github.com/flowsmith/flowsmith/services/diagrammer/observability"
	"github.com/flowsmith/flowsmith/services/diagrammer/routes"
	"github.com/flowsmith/flowsmith/services/diagrammer/services"
	"github.com/flowsmith/flowsmith/services/llm"
	"github.com/flowsmith/flowsmith/services/render"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the diagrammer service.
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	// Callers must not modify the router after construction.
	Router() *gin.Engine

	// Batch returns the batch coordinator, for embedding the pipeline in
	// non-HTTP frontends such as the CLI.
	Batch() *services.BatchService
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds diagrammer configuration options. All fields are optional;
// zero values get defaults applied by New().
type Config struct {
	// Port is the HTTP server port. Default: 12260
	Port int

	// LLMBackend specifies the LLM provider.
	// Valid values: "gemini", "openai", "ollama"
	// Default: "gemini"
	LLMBackend string

	// OutputDir is the directory generated artifacts are written to.
	// Default: "./static/outputs"
	OutputDir string

	// MaxOutputFiles bounds the output directory; the oldest files are
	// evicted past this count. Values below 1 disable eviction.
	// Default: 40
	MaxOutputFiles int

	// VariantCount is the number of diagram variants per batch.
	// Default: 3
	VariantCount int

	// KrokiURL is the base URL of the rendering service.
	// Default: "https://kroki.io"
	KrokiURL string

	// RenderTimeout bounds each render call including retries.
	// Default: 60s
	RenderTimeout time.Duration

	// GenerateTimeout bounds each LLM generation call.
	// Default: 2m
	GenerateTimeout time.Duration

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "flowsmith-otel-collector:4317"
	OTelEndpoint string

	// EnableMetrics enables the Prometheus metrics endpoint.
	// Default: true
	EnableMetrics bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use. All fields are read-only
// after New() returns.
type service struct {
	config        Config
	router        *gin.Engine
	llmClient     llm.LLMClient
	renderer      *render.KrokiClient
	store         *outputstore.Store
	batch         *services.BatchService
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new diagrammer Service with the given configuration.
//
// New initializes all components in dependency order:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Creates the output store and rendering client
//  5. Creates the LLM client based on backend type
//  6. Wires the batch coordinator and HTTP routes
//
// LLM client creation fails if the chosen provider's environment is not
// configured (missing API key or base URL).
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	// Initialize OpenTelemetry tracer
	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	// Initialize Prometheus metrics
	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for pipeline")
	}

	// Initialize artifact storage
	s.store, err = outputstore.New(s.config.OutputDir, s.config.MaxOutputFiles)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize output store: %w", err)
	}

	// Initialize rendering client
	s.renderer = render.NewKrokiClient(s.config.KrokiURL, s.config.RenderTimeout)

	// Initialize LLM client
	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	s.batch = services.NewBatchService(
		s.llmClient,
		s.renderer,
		s.store,
		s.config.VariantCount,
		s.config.GenerateTimeout,
	)

	// Setup HTTP router
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
// Cleanup is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting diagrammer server",
		"port", s.config.Port,
		"llm_backend", s.config.LLMBackend,
		"kroki_url", s.config.KrokiURL,
	)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Batch returns the batch coordinator.
func (s *service) Batch() *services.BatchService {
	return s.batch
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12260
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "gemini"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "./static/outputs"
	}
	if cfg.MaxOutputFiles == 0 {
		cfg.MaxOutputFiles = 40
	}
	if cfg.VariantCount == 0 {
		cfg.VariantCount = datatypes.DefaultVariantCount
	}
	if cfg.KrokiURL == "" {
		cfg.KrokiURL = "https://kroki.io"
	}
	if cfg.RenderTimeout == 0 {
		cfg.RenderTimeout = 60 * time.Second
	}
	if cfg.GenerateTimeout == 0 {
		cfg.GenerateTimeout = 2 * time.Minute
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "flowsmith-otel-collector:4317"
	}
	cfg.EnableMetrics = true

	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing via an OTLP
// exporter. Uses an insecure gRPC connection, appropriate for internal
// networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("diagrammer-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initLLMClient creates the appropriate LLM client for the configured
// backend. Required environment variables are documented on each client
// constructor.
func (s *service) initLLMClient() error {
	var err error

	switch s.config.LLMBackend {
	case "gemini":
		s.llmClient, err = llm.NewGeminiClient(context.Background())
		slog.Info("Using Gemini LLM backend")
	case "openai":
		s.llmClient, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "ollama":
		s.llmClient, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	default:
		slog.Warn("Unknown LLM backend, defaulting to gemini", "backend", s.config.LLMBackend)
		s.llmClient, err = llm.NewGeminiClient(context.Background())
	}

	return err
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("diagrammer-service"))

	routes.SetupRoutes(s.router, s.batch)
}

// cleanup releases all resources held by the service. Called when Run()
// exits or on initialization failure.
func (s *service) cleanup() {
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
