// Package render provides the client for the Kroki diagram rendering
// service. Kroki converts raw Mermaid source into SVG or PNG via a plain
// HTTP POST per format.
package render

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("flowsmith.render.kroki")

// Format is an output format accepted by the rendering service.
type Format string

const (
	FormatSVG Format = "svg"
	FormatPNG Format = "png"
)

// Valid reports whether f is a format the rendering service accepts.
func (f Format) Valid() bool {
	return f == FormatSVG || f == FormatPNG
}

// RenderError reports a non-success response from the rendering service.
// The response body is preserved because Kroki returns its grammar
// diagnostics there, and those are what the variant outcome surfaces to
// the user.
type RenderError struct {
	Format     Format
	StatusCode int
	Body       string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("rendering %s failed with status %d: %s", e.Format, e.StatusCode, e.Body)
}

// KrokiClient submits diagram source to a Kroki endpoint.
//
// Transport failures and 5xx responses are retried with backoff; 4xx
// responses are not, since a grammar rejection will not improve on retry.
// Every call carries an explicit deadline — the upstream service gives no
// latency guarantees and an unbounded render call would wedge the whole
// sequential batch.
type KrokiClient struct {
	client  *retryablehttp.Client
	baseURL string
	timeout time.Duration
}

// NewKrokiClient creates a client for the rendering service at baseURL
// (e.g. "https://kroki.io"). timeout bounds each render call including
// retries; values below 1s fall back to 60s.
func NewKrokiClient(baseURL string, timeout time.Duration) *KrokiClient {
	if timeout < time.Second {
		timeout = 60 * time.Second
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil // Quiet; callers log outcomes.

	return &KrokiClient{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
	}
}

// Render POSTs raw Mermaid source to the service and returns the rendered
// bytes for the requested format. SVG responses are text, PNG responses are
// binary; both come back verbatim.
//
// A non-success status yields a *RenderError carrying the response body.
// An empty success body is also an error: the service occasionally returns
// 200 with nothing, and persisting a zero-byte artifact would poison the
// download surface.
func (k *KrokiClient) Render(ctx context.Context, source string, format Format) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "KrokiClient.Render")
	defer span.End()
	span.SetAttributes(attribute.String("render.format", string(format)))

	if !format.Valid() {
		err := fmt.Errorf("unsupported render format %q", format)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/mermaid/%s", k.baseURL, format)
	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", url, strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("failed to create render request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	start := time.Now()
	resp, err := k.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Render call failed", "format", format, "url", url, "error", err)
		return nil, fmt.Errorf("render call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read render response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		renderErr := &RenderError{Format: format, StatusCode: resp.StatusCode, Body: string(body)}
		span.SetAttributes(attribute.Int("render.status_code", resp.StatusCode))
		span.SetStatus(codes.Error, renderErr.Error())
		slog.Error("Rendering service rejected diagram",
			"format", format,
			"status_code", resp.StatusCode,
			"body", string(body),
		)
		return nil, renderErr
	}

	if len(body) == 0 {
		err := fmt.Errorf("rendering service returned an empty %s body", format)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("render.bytes", len(body)))
	slog.Debug("Rendered diagram",
		"format", format,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return body, nil
}
