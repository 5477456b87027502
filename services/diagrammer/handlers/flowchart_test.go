// Copyright (C) 2025 Flowsmith Labs (dev@flowsmith.io)
// Tests for the flowchart generation handler

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flowsmith/flowsmith/pkg/outputstore"
	"github.com/flowsmith/flowsmith/services/diagrammer/services"
	"github.com/flowsmith/flowsmith/services/llm"
	"github.com/flowsmith/flowsmith/services/render"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubLLM returns the same canned text for every call.
type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	return s.response, s.err
}

func newGenerateRouter(t *testing.T, client llm.LLMClient, renderURL string) *gin.Engine {
	t.Helper()
	store, err := outputstore.New(filepath.Join(t.TempDir(), "outputs"), 40)
	require.NoError(t, err)
	batch := services.NewBatchService(client, render.NewKrokiClient(renderURL, 5*time.Second), store, 3, time.Minute)

	router := gin.New()
	router.POST("/v1/flowcharts", HandleGenerateFlowchart(batch))
	return router
}

func postDescription(router *gin.Engine, description string) *httptest.ResponseRecorder {
	form := url.Values{}
	form.Set("description", description)
	req, _ := http.NewRequest("POST", "/v1/flowcharts", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleGenerateFlowchart_EmptyDescription(t *testing.T) {
	router := newGenerateRouter(t, &stubLLM{}, "http://unused.invalid")

	for _, desc := range []string{"", "   \n\t  "} {
		w := postDescription(router, desc)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Please provide a flowchart description.")
	}
}

func TestHandleGenerateFlowchart_OversizedDescription(t *testing.T) {
	router := newGenerateRouter(t, &stubLLM{}, "http://unused.invalid")

	w := postDescription(router, strings.Repeat("x", 9000))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGenerateFlowchart_Success(t *testing.T) {
	renderSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/png") {
			w.Write([]byte("\x89PNG\r\n\x1a\npng"))
			return
		}
		w.Write([]byte("<svg/>"))
	}))
	defer renderSrv.Close()

	client := &stubLLM{response: `{"mermaid_code": "graph TD; A[Start] --> B[End]"}`}
	router := newGenerateRouter(t, client, renderSrv.URL)

	w := postDescription(router, "user logs in and checks out")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status    string `json:"status"`
		RequestID string `json:"request_id"`
		Variants  []struct {
			Id      int    `json:"id"`
			SvgPath string `json:"svg_path"`
			PngPath string `json:"png_path"`
			Error   string `json:"error"`
		} `json:"variants"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.NotEmpty(t, resp.RequestID)
	assert.Empty(t, resp.Error)
	require.Len(t, resp.Variants, 3)
	for i, v := range resp.Variants {
		assert.Equal(t, i+1, v.Id)
		assert.NotEmpty(t, v.SvgPath)
		assert.NotEmpty(t, v.PngPath)
		assert.Empty(t, v.Error)
	}
}

func TestHandleGenerateFlowchart_TotalFailureSuppressesVariants(t *testing.T) {
	renderSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "bad graph")
	}))
	defer renderSrv.Close()

	client := &stubLLM{response: `{"mermaid_code": "graph TD; A[Start] --> B[End]"}`}
	router := newGenerateRouter(t, client, renderSrv.URL)

	w := postDescription(router, "a flow")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "total_failure", resp["status"])
	assert.Contains(t, resp["error"], "Errors occurred in all variants:")
	assert.NotContains(t, resp, "variants")
}

func TestHandleGenerateFlowchart_PartialFailureKeepsVariants(t *testing.T) {
	// The model returns garbage for the second variant only.
	var calls int
	renderSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/png") {
			w.Write([]byte("\x89PNG\r\n\x1a\npng"))
			return
		}
		w.Write([]byte("<svg/>"))
	}))
	defer renderSrv.Close()

	client := &sequenceLLM{responses: []string{
		`{"mermaid_code": "graph TD; A[Start] --> B[End]"}`,
		"no json here",
		`{"mermaid_code": "graph LR; A[Start] --> B[End]"}`,
	}, calls: &calls}
	router := newGenerateRouter(t, client, renderSrv.URL)

	w := postDescription(router, "a flow")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "partial_failure", resp["status"])
	assert.Equal(t, "Some variants failed to generate. Check the details below.", resp["error"])
	variants, ok := resp["variants"].([]any)
	require.True(t, ok)
	assert.Len(t, variants, 3)
}

// sequenceLLM returns one response per call, in order.
type sequenceLLM struct {
	responses []string
	calls     *int
}

func (s *sequenceLLM) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	i := *s.calls
	*s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}
