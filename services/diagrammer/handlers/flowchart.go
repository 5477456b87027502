// Copyright (C) 2025 Flowsmith Labs (dev@flowsmith.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/flowsmith/flowsmith/services/diagrammer/datatypes"
	"github.com/flowsmith/flowsmith/services/diagrammer/services"
	"github.com/gin-gonic/gin"
)

// HandleGenerateFlowchart runs one generation batch for the posted
// description and reports the classified result.
//
// A completed batch always answers 200, whatever its classification; the
// status field tells the client how it went. Only a request the service
// refuses to run at all (missing or oversized description) answers 400.
func HandleGenerateFlowchart(batch *services.BatchService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.GenerateRequest
		if err := c.ShouldBind(&req); err != nil {
			slog.Warn("Malformed flowchart request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Please provide a flowchart description."})
			return
		}

		req.Description = strings.TrimSpace(req.Description)
		if req.Description == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Please provide a flowchart description."})
			return
		}

		result, err := batch.Run(c.Request.Context(), &req)
		if err != nil {
			slog.Warn("Flowchart request rejected", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		status := result.Classify()
		switch status {
		case datatypes.BatchSuccess:
			c.JSON(http.StatusOK, gin.H{
				"status":     status,
				"request_id": result.RequestID,
				"variants":   result.Variants,
			})
		case datatypes.BatchPartialFailure:
			c.JSON(http.StatusOK, gin.H{
				"status":     status,
				"request_id": result.RequestID,
				"variants":   result.Variants,
				"error":      "Some variants failed to generate. Check the details below.",
			})
		case datatypes.BatchTotalFailure:
			// The primary result is suppressed; only the aggregate error
			// is shown.
			c.JSON(http.StatusOK, gin.H{
				"status":     status,
				"request_id": result.RequestID,
				"error":      "Errors occurred in all variants: " + result.AggregateError(),
			})
		default:
			c.JSON(http.StatusOK, gin.H{
				"status":     datatypes.BatchNoResults,
				"request_id": result.RequestID,
				"error":      "No flowchart variants were generated. Check server logs for details.",
			})
		}
	}
}
