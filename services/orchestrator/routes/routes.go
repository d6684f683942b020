// Casewise
// Copyright (C) 2025 Casewise (engineering@casewise.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes registers the orchestrator's HTTP surface.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/casewise/casewise/pkg/extensions"
	"github.com/casewise/casewise/services/orchestrator/handlers"
	"github.com/casewise/casewise/services/orchestrator/middleware"
)

// SetupRoutes wires all endpoints onto the given router.
//
// # Description
//
// Registers the liveness probe, the Prometheus scrape endpoint (when
// metrics are enabled), and the authenticated AI chat endpoint. The
// auth provider comes from ServiceOptions so hosted deployments can
// swap in real token validation without touching this package.
//
// # Inputs
//
//   - router: Gin engine to register routes on
//   - chat: chat handler serving POST /api/ai/chat
//   - opts: extension points (auth provider, audit logger)
//   - enableMetrics: expose GET /metrics when true
func SetupRoutes(router *gin.Engine, chat handlers.ChatHandler,
	opts extensions.ServiceOptions, enableMetrics bool) {

	router.GET("/healthz", handlers.HealthCheck)

	if enableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/ai")
	api.Use(middleware.AuthMiddleware(opts.AuthProvider))
	{
		api.POST("/chat", chat.HandleChat)
	}
}
