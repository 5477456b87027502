// Copyright (C) 2025 Flowsmith Labs (dev@flowsmith.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/flowsmith/flowsmith/pkg/outputstore"
	"github.com/flowsmith/flowsmith/services/diagrammer/services"
	"github.com/gin-gonic/gin"
)

// pngMagic is the fixed 8-byte PNG file signature.
var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// HandleDownload serves a stored rendered artifact as an attachment.
//
// The three failure modes stay distinct on purpose: an unknown variant id
// or format token is the caller's mistake (400), a missing file means the
// variant never rendered (404 not found), and an existing-but-unusable
// file (zero bytes, or content that fails the signature check) gets its
// own 404 message so a corrupted render is not mistaken for a never-run
// one.
func HandleDownload(store *outputstore.Store, variantCount int) gin.HandlerFunc {
	return func(c *gin.Context) {
		format := strings.ToLower(c.Param("format"))
		variantId, err := strconv.Atoi(c.Param("variantId"))
		if err != nil || variantId < 1 || variantId > variantCount ||
			(format != "svg" && format != "png") {
			slog.Warn("Invalid download request",
				"variant_id", c.Param("variantId"),
				"format", c.Param("format"),
			)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file type or variant ID"})
			return
		}

		name := services.ArtifactFileName(variantId, format)
		path := store.Path(name)
		upper := strings.ToUpper(format)

		info, err := os.Stat(path)
		if err != nil {
			slog.Warn("Download failed, file not found", "path", path)
			c.JSON(http.StatusNotFound, gin.H{
				"error": fmt.Sprintf("%s file not found for variant %d", upper, variantId),
			})
			return
		}
		if info.Size() == 0 {
			slog.Warn("Download failed, file is empty", "path", path)
			c.JSON(http.StatusNotFound, gin.H{
				"error": fmt.Sprintf("%s file is empty for variant %d", upper, variantId),
			})
			return
		}

		if err := checkArtifactHeader(path, format); err != nil {
			slog.Warn("Download failed, content check rejected file", "path", path, "error", err)
			c.JSON(http.StatusNotFound, gin.H{
				"error": fmt.Sprintf("Invalid %s file for variant %d", upper, variantId),
			})
			return
		}

		c.FileAttachment(path, name)
	}
}

// checkArtifactHeader sniffs the first bytes of an artifact and rejects
// content that does not match the claimed format. The renderer has been
// seen returning HTML error pages with a success status; serving those as
// images would confuse every downstream consumer.
func checkArtifactHeader(path, format string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, 50)
	n, err := f.Read(header)
	if err != nil {
		return err
	}
	header = header[:n]

	switch format {
	case "png":
		if !bytes.HasPrefix(header, pngMagic) {
			return fmt.Errorf("missing PNG signature")
		}
	case "svg":
		head := strings.ToLower(string(header))
		if !strings.Contains(head, "<?xml") && !strings.Contains(head, "<svg") {
			return fmt.Errorf("missing SVG or XML header")
		}
	}
	return nil
}
