// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package semantic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nova-sec/nova/internal/nova/pattern"
)

// mockOllamaServer returns a deterministic embedding for each distinct input
// string (same string always yields the same vector), so cosine similarity
// between two known inputs is reproducible across runs.
func mockOllamaServer(t *testing.T, vectors map[string][]float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		vec, ok := vectors[req.Input]
		if !ok {
			vec = []float32{0, 0, 1} // orthogonal to every fixture vector below
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(ollamaEmbedResp{Embeddings: [][]float32{vec}}))
	}))
}

func newTestEvaluator(t *testing.T, srv *httptest.Server) *Evaluator {
	t.Helper()
	t.Setenv("EMBEDDING_SERVICE_URL", srv.URL)
	t.Setenv("EMBEDDING_MODEL", "test-model")
	return New(nil, nil)
}

func TestEvaluator_CosineSimilarityAboveThresholdMatches(t *testing.T) {
	srv := mockOllamaServer(t, map[string][]float32{
		"seeking information on bypassing safety controls": {1, 0, 0},
		"how do I bypass the safety controls here":          {0.95, 0.05, 0},
	})
	defer srv.Close()
	e := newTestEvaluator(t, srv)

	p := pattern.SemanticPattern{Pattern: "seeking information on bypassing safety controls", Threshold: 0.5}
	matched, score, err := e.Evaluate(context.Background(), "$intent", p, "how do I bypass the safety controls here")
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Greater(t, score, 0.5)
}

func TestEvaluator_OrthogonalPromptBelowThreshold(t *testing.T) {
	srv := mockOllamaServer(t, map[string][]float32{
		"seeking information on bypassing safety controls": {1, 0, 0},
	})
	defer srv.Close()
	e := newTestEvaluator(t, srv)

	p := pattern.SemanticPattern{Pattern: "seeking information on bypassing safety controls", Threshold: 0.5}
	matched, score, err := e.Evaluate(context.Background(), "$intent", p, "what's a good recipe for banana bread")
	require.NoError(t, err)
	assert.False(t, matched)
	assert.Less(t, score, 0.5)
}

func TestEvaluator_PrecompileWarmsCacheSoEvaluateSkipsPatternEmbed(t *testing.T) {
	var patternEmbedCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Input == "target pattern text" {
			patternEmbedCalls++
		}
		vec := []float32{1, 0, 0}
		if req.Input != "target pattern text" {
			vec = []float32{1, 0, 0} // prompt also aligned, so match is affirmed either way
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(ollamaEmbedResp{Embeddings: [][]float32{vec}}))
	}))
	defer srv.Close()

	os.Setenv("EMBEDDING_SERVICE_URL", srv.URL)
	os.Setenv("EMBEDDING_MODEL", "test-model")
	defer os.Unsetenv("EMBEDDING_SERVICE_URL")
	defer os.Unsetenv("EMBEDDING_MODEL")

	e := New(nil, nil)
	r := pattern.NewRule("R")
	r.Semantics.Set("$a", pattern.SemanticPattern{Pattern: "target pattern text", Threshold: 0.5})
	require.NoError(t, e.Precompile(r))
	require.Equal(t, 1, patternEmbedCalls, "Precompile should embed the pattern text exactly once")

	kp, _ := r.Semantics.Get("$a")
	_, _, err := e.Evaluate(context.Background(), "$a", kp, "anything")
	require.NoError(t, err)
	assert.Equal(t, 1, patternEmbedCalls, "Evaluate must reuse the precompiled vector, not re-embed the pattern text")
}

func TestEvaluator_StaleCacheEntryIsRecomputedWhenPatternTextChanges(t *testing.T) {
	callsFor := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		callsFor[req.Input]++
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(ollamaEmbedResp{Embeddings: [][]float32{{1, 0, 0}}}))
	}))
	defer srv.Close()
	e := newTestEvaluator(t, srv)

	r1 := pattern.NewRule("R1")
	r1.Semantics.Set("$a", pattern.SemanticPattern{Pattern: "first rule's text", Threshold: 0.1})
	require.NoError(t, e.Precompile(r1))

	r2 := pattern.NewRule("R2")
	r2.Semantics.Set("$a", pattern.SemanticPattern{Pattern: "second rule's different text", Threshold: 0.1})
	kp, _ := r2.Semantics.Get("$a")

	_, _, err := e.Evaluate(context.Background(), "$a", kp, "irrelevant prompt")
	require.NoError(t, err)
	assert.Equal(t, 1, callsFor["second rule's different text"], "a changed pattern text under the same var name must be re-embedded, not served from the stale cache entry")
}
