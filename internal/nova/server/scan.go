// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"bufio"
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nova-sec/nova/internal/nova/scanner"
)

// ScanInput is one prompt to evaluate. ID is optional; when empty the
// Scanner assigns its own positional identifier.
type ScanInput struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt" binding:"required"`
}

// ScanRequest is the body of POST /v1/nova/scan.
type ScanRequest struct {
	Inputs []ScanInput `json:"inputs" binding:"required,min=1,dive"`
}

// ScanResponse is the body of a successful POST /v1/nova/scan.
type ScanResponse struct {
	Results []scanner.Result `json:"results"`
}

// HandleScan handles POST /v1/nova/scan: binds the request, runs every
// input through the Scanner, and returns one Result per input in the
// same order they were submitted (scanner.Scan's own determinism
// guarantee, spec.md §4.6).
func (h *Handlers) HandleScan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	inputs := make([]scanner.Input, len(req.Inputs))
	for i, in := range req.Inputs {
		id := in.ID
		if id == "" {
			id = "-"
		}
		inputs[i] = scanner.Input{ID: id, Prompt: in.Prompt}
	}

	results := h.scanner.Scan(c.Request.Context(), inputs)
	c.JSON(http.StatusOK, ScanResponse{Results: results})

	if h.sink != nil {
		now := time.Now()
		for _, res := range results {
			for ruleName, v := range res.Verdicts {
				h.sink.RecordVerdict(res.ScanID, ruleName, v, now)
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Nova's scan stream has no cross-origin browser client; the check
	// exists only so the zero-value Upgrader doesn't silently reject
	// every request (its default CheckOrigin requires a matching Origin
	// header, which curl and nova's own CLI client never send).
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleStream handles GET /v1/nova/stream: upgrades to a websocket and
// scans each newline-delimited prompt sent by the client, pushing back
// one JSON-encoded scanner.Result per line as it's produced, for
// `nova watch --remote` to render incrementally instead of waiting for
// an entire batch to finish.
func (h *Handlers) HandleStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}

		sc := bufio.NewScanner(bytes.NewReader(message))
		for sc.Scan() {
			prompt := sc.Text()
			if prompt == "" {
				continue
			}
			result := h.scanner.ScanString(ctx, prompt)
			if err := conn.WriteJSON(result); err != nil {
				return
			}
		}
	}
}
