// Copyright (C) 2025 Flowsmith Labs (dev@flowsmith.io)
// Tests for the artifact download handler

package handlers

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/flowsmith/flowsmith/pkg/outputstore"
	"github.com/flowsmith/flowsmith/services/diagrammer/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDownloadRouter(t *testing.T) (*gin.Engine, *outputstore.Store) {
	t.Helper()
	store, err := outputstore.New(filepath.Join(t.TempDir(), "outputs"), 40)
	require.NoError(t, err)

	router := gin.New()
	router.GET("/v1/flowcharts/:variantId/:format", HandleDownload(store, 3))
	return router, store
}

func getDownload(router *gin.Engine, variantId, format string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", "/v1/flowcharts/"+variantId+"/"+format, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleDownload_InvalidParams(t *testing.T) {
	router, _ := newDownloadRouter(t)

	tests := []struct {
		name      string
		variantId string
		format    string
	}{
		{name: "non-numeric variant", variantId: "abc", format: "svg"},
		{name: "variant zero", variantId: "0", format: "svg"},
		{name: "variant out of range", variantId: "4", format: "svg"},
		{name: "unknown format", variantId: "1", format: "pdf"},
		{name: "negative variant", variantId: "-1", format: "png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := getDownload(router, tt.variantId, tt.format)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "Invalid file type or variant ID")
		})
	}
}

func TestHandleDownload_FileNotFound(t *testing.T) {
	router, _ := newDownloadRouter(t)

	w := getDownload(router, "2", "svg")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "SVG file not found for variant 2")
}

func TestHandleDownload_EmptyFile(t *testing.T) {
	router, store := newDownloadRouter(t)
	require.NoError(t, store.Write(services.ArtifactFileName(1, "png"), []byte{}))

	w := getDownload(router, "1", "png")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "PNG file is empty for variant 1")
}

func TestHandleDownload_CorruptContent(t *testing.T) {
	router, store := newDownloadRouter(t)

	// An HTML error page saved where a PNG should be.
	require.NoError(t, store.Write(services.ArtifactFileName(1, "png"), []byte("<html>502 Bad Gateway</html>")))
	w := getDownload(router, "1", "png")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid PNG file for variant 1")

	require.NoError(t, store.Write(services.ArtifactFileName(2, "svg"), []byte("plain text, no markup")))
	w = getDownload(router, "2", "svg")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid SVG file for variant 2")
}

func TestHandleDownload_Success(t *testing.T) {
	router, store := newDownloadRouter(t)

	svg := []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"/>`)
	require.NoError(t, store.Write(services.ArtifactFileName(3, "svg"), svg))
	png := append([]byte("\x89PNG\r\n\x1a\n"), []byte("imagedata")...)
	require.NoError(t, store.Write(services.ArtifactFileName(3, "png"), png))

	w := getDownload(router, "3", "svg")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, svg, w.Body.Bytes())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "flowchart_output_variant3.svg")

	w = getDownload(router, "3", "png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, png, w.Body.Bytes())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "flowchart_output_variant3.png")
}

func TestHandleDownload_UppercaseFormatAccepted(t *testing.T) {
	router, store := newDownloadRouter(t)
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`)
	require.NoError(t, store.Write(services.ArtifactFileName(1, "svg"), svg))

	w := getDownload(router, "1", "SVG")
	assert.Equal(t, http.StatusOK, w.Code)
}
