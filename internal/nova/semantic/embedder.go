// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package semantic implements evaluator.Semantic against an Ollama embedding
// endpoint: each $var's pattern text is embedded once and cached, each
// prompt is embedded per call, and the two vectors are compared by cosine
// similarity against the pattern's threshold.
package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nova-sec/nova/internal/nova/pattern"
)

const (
	warmConcurrency = 10
	queryTimeout    = 3 * time.Second
)

type ollamaEmbedReq struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResp struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Store persists unit-normalized pattern embedding vectors across restarts,
// keyed by a caller-chosen corpus hash (see ComputeCorpusHash). A nil Store
// is valid: the Evaluator falls back to in-memory-only, recomputing vectors
// via Ollama every time the process restarts.
type Store interface {
	LoadEmbeddings(ctx context.Context, corpusHash string) (map[string][]float32, error)
	SaveEmbeddings(ctx context.Context, corpusHash string, vectors map[string][]float32) error
}

// cachedVector pairs a unit-normalized embedding with the exact pattern
// text it was computed from, so a cache populated by one rule's $var is
// never served to a different rule that happens to reuse the same $var
// name for different text when both rules share one Evaluator instance.
type cachedVector struct {
	text string
	vec  []float32
}

// Evaluator implements evaluator.Semantic. It pre-computes the embedding
// for every $var's Pattern text the first time it's asked to evaluate a
// rule's semantics section, then compares each prompt's embedding against
// those cached vectors by cosine similarity.
type Evaluator struct {
	mu      sync.RWMutex
	vectors map[string]cachedVector // $varName -> vector, tagged with its source text

	url    string
	model  string
	client *http.Client
	logger *slog.Logger
	store  Store
}

// New builds an Evaluator reading EMBEDDING_SERVICE_URL / EMBEDDING_MODEL
// from the environment, falling back to Ollama's own defaults.
func New(logger *slog.Logger, store Store) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	url := os.Getenv("EMBEDDING_SERVICE_URL")
	if url == "" {
		url = "http://host.containers.internal:11434/api/embed"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = "nomic-embed-text-v2-moe"
	}
	return &Evaluator{
		vectors: make(map[string]cachedVector),
		url:     url,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
		store:   store,
	}
}

// Precompile warms the embedding cache for every $var in rule.Semantics,
// satisfying evaluator.RulePrecompiler so Matcher.bind() can call it the
// same way it calls KeywordEvaluator.Precompile.
func (e *Evaluator) Precompile(rule *pattern.Rule) error {
	if rule.Semantics.Len() == 0 {
		return nil
	}
	ctx := context.Background()

	var items []corpusItem
	texts := make(map[string]string, rule.Semantics.Len())
	rule.Semantics.Range(func(name string, p pattern.SemanticPattern) bool {
		items = append(items, corpusItem{key: name, text: p.Pattern})
		texts[name] = p.Pattern
		return true
	})

	hash := computeCorpusHash(items, e.model)
	if e.store != nil {
		cached, err := e.store.LoadEmbeddings(ctx, hash)
		if err != nil {
			e.logger.Warn("semantic cache: store load failed", slog.String("error", err.Error()))
		} else if len(cached) > 0 {
			e.mu.Lock()
			for k, v := range cached {
				e.vectors[k] = cachedVector{text: texts[k], vec: v}
			}
			e.mu.Unlock()
			return nil
		}
	}

	type result struct {
		key string
		vec []float32
	}
	resultCh := make(chan result, len(items))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, warmConcurrency)

	for _, it := range items {
		it := it
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			vec, err := e.embed(gctx, it.text)
			if err != nil {
				e.logger.Warn("semantic cache: failed to embed pattern", slog.String("key", it.key), slog.Any("error", err))
				return nil
			}
			resultCh <- result{key: it.key, vec: vec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("semantic precompile: %w", err)
	}
	close(resultCh)

	e.mu.Lock()
	toSave := make(map[string][]float32)
	for r := range resultCh {
		unit := unitNormalize(r.vec)
		if unit != nil {
			e.vectors[r.key] = cachedVector{text: texts[r.key], vec: unit}
			toSave[r.key] = unit
		}
	}
	e.mu.Unlock()

	if e.store != nil && len(toSave) > 0 {
		if err := e.store.SaveEmbeddings(ctx, hash, toSave); err != nil {
			e.logger.Warn("semantic cache: persist failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Evaluate embeds prompt and compares it by cosine similarity against the
// cached vector for varName's pattern text, precompiling on demand if
// Precompile was never called for this rule.
func (e *Evaluator) Evaluate(ctx context.Context, varName string, p pattern.SemanticPattern, prompt string) (bool, float64, error) {
	e.mu.RLock()
	cached, ok := e.vectors[varName]
	e.mu.RUnlock()

	var vec []float32
	if ok && cached.text == p.Pattern {
		vec = cached.vec
	} else {
		computed, err := e.embed(ctx, p.Pattern)
		if err != nil {
			return false, 0, fmt.Errorf("embed pattern for %s: %w", varName, err)
		}
		vec = unitNormalize(computed)
		if vec == nil {
			return false, 0, fmt.Errorf("pattern for %s embedded to the zero vector", varName)
		}
		e.mu.Lock()
		e.vectors[varName] = cachedVector{text: p.Pattern, vec: vec}
		e.mu.Unlock()
	}

	embedCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	promptVec, err := e.embed(embedCtx, prompt)
	if err != nil {
		return false, 0, fmt.Errorf("embed prompt: %w", err)
	}
	promptUnit := unitNormalize(promptVec)
	if promptUnit == nil {
		return false, 0, nil
	}

	score := float64(dotProduct(vec, promptUnit))
	return score >= p.Threshold, score, nil
}

func (e *Evaluator) embed(ctx context.Context, text string) ([]float32, error) {
	return ollamaEmbed(ctx, e.client, e.url, e.model, text)
}

// ollamaEmbed calls an Ollama-compatible /api/embed endpoint for a single
// piece of text. Factored out of Evaluator.embed so WeaviateEvaluator can
// reuse the same embedding call without duplicating the HTTP plumbing.
func ollamaEmbed(ctx context.Context, client *http.Client, url, model, text string) ([]float32, error) {
	reqBody, err := json.Marshal(ollamaEmbedReq{Model: model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed HTTP call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed service returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed ollamaEmbedResp
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if len(parsed.Embeddings) == 0 || len(parsed.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embed service returned empty vector")
	}
	return parsed.Embeddings[0], nil
}

func unitNormalize(v []float32) []float32 {
	norm := l2Norm(v)
	if norm == 0 {
		return nil
	}
	unit := make([]float32, len(v))
	for i, x := range v {
		unit[i] = x / float32(norm)
	}
	return unit
}

func l2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func dotProduct(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
