// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes the Scanner over HTTP: POST /v1/nova/scan for
// one-shot batch scans, GET /v1/nova/health for liveness, and
// GET /v1/nova/stream for a long-running scan's verdicts pushed over a
// websocket as they're produced. Modeled on services/trace/routes.go
// and cmd/trace/main.go's router wiring.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/nova-sec/nova/internal/nova/pattern"
	"github.com/nova-sec/nova/internal/nova/scanner"
)

// ErrorResponse is the JSON body for every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// verdictSink is the subset of sink.Sink's API the server needs, kept as
// a local interface so server doesn't import internal/nova/sink just to
// depend on one method — the same narrow-interface convention the
// evaluator package uses for its plug-in seams.
type verdictSink interface {
	RecordVerdict(scanID, ruleName string, v *pattern.Verdict, ts time.Time)
}

// Handlers binds the Scanner instance each HTTP handler operates on.
// A Handlers is reused across requests; Scanner itself is safe for
// concurrent use since its Matchers hold no per-request state.
type Handlers struct {
	scanner *scanner.Scanner
	logger  *slog.Logger
	sink    verdictSink
}

// NewHandlers builds a Handlers over an already-constructed Scanner.
// Pass nil for logger to use slog.Default().
func NewHandlers(s *scanner.Scanner, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{scanner: s, logger: logger}
}

// WithSink attaches an optional verdict sink: every scanned verdict is
// recorded to it after the response is written. Returns h for chaining.
func (h *Handlers) WithSink(s verdictSink) *Handlers {
	h.sink = s
	return h
}

// RegisterRoutes registers every /v1/nova/* endpoint on rg, mirroring
// trace.RegisterRoutes's shape: one group per service, handlers supplied
// by the caller rather than constructed here.
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	nova := rg.Group("/nova")
	{
		nova.GET("/health", h.HandleHealth)
		nova.POST("/scan", h.HandleScan)
		nova.GET("/stream", h.HandleStream)
	}
}

// NewRouter builds a gin.Engine with Recovery, otelgin tracing, and every
// /v1/nova/* route registered — the same middleware stack cmd/trace/main.go
// assembles for the trace service's own router.
func NewRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("nova"))

	v1 := router.Group("/v1")
	RegisterRoutes(v1, h)
	return router
}

// HandleHealth handles GET /v1/nova/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
