// Copyright (C) 2025 Flowsmith Labs (dev@flowsmith.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/flowsmith/flowsmith/services/diagrammer/handlers"
	"github.com/flowsmith/flowsmith/services/diagrammer/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes wires all diagrammer endpoints onto the router.
func SetupRoutes(router *gin.Engine, batch *services.BatchService) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Generated artifacts are also browsable directly, matching the
	// relative paths surfaced in variant outcomes.
	router.Static("/static/outputs", batch.Store().Dir())

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/flowcharts", handlers.HandleGenerateFlowchart(batch))
		v1.GET("/flowcharts/:variantId/:format", handlers.HandleDownload(batch.Store(), batch.VariantCount()))
	}
}
