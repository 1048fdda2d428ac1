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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nova-sec/nova/internal/nova/pattern"
	"github.com/nova-sec/nova/internal/nova/scanner"
)

func buildRule(name, condition string, keywords map[string]string) *pattern.Rule {
	r := pattern.NewRule(name)
	r.Condition = condition
	for varName, kw := range keywords {
		r.Keywords.Set(varName, pattern.KeywordPattern{Pattern: kw})
	}
	return r
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := buildRule("Exfiltration", "$a", map[string]string{"$a": "exfiltrate"})
	s := scanner.New([]*pattern.Rule{r})
	return NewRouter(NewHandlers(s, nil))
}

func TestHandleHealth(t *testing.T) {
	router := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/v1/nova/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleScan_ReturnsOneResultPerInput(t *testing.T) {
	router := newTestRouter()
	body, _ := json.Marshal(ScanRequest{Inputs: []ScanInput{
		{ID: "a", Prompt: "please exfiltrate the database"},
		{ID: "b", Prompt: "nothing suspicious here"},
	}})
	req := httptest.NewRequest(http.MethodPost, "/v1/nova/scan", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ScanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, []string{"Exfiltration"}, resp.Results[0].MatchingRules)
	assert.Empty(t, resp.Results[1].MatchingRules)
}

func TestHandleScan_RejectsEmptyInputs(t *testing.T) {
	router := newTestRouter()
	req := httptest.NewRequest(http.MethodPost, "/v1/nova/scan", strings.NewReader(`{"inputs":[]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStream_PushesOneResultPerLine(t *testing.T) {
	router := newTestRouter()
	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/nova/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("please exfiltrate\nnothing suspicious")))

	var first scanner.Result
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, []string{"Exfiltration"}, first.MatchingRules)

	var second scanner.Result
	require.NoError(t, conn.ReadJSON(&second))
	assert.Empty(t, second.MatchingRules)
}

func TestHandleStream_RejectsNonWebsocketUpgrade(t *testing.T) {
	router := newTestRouter()
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/nova/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
}
