// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llmjudge implements evaluator.LLM against a provider-agnostic
// langchaingo chat model: the judge prompt and the target text are sent
// as a single user turn at Temperature = pattern.Threshold, and the reply
// is parsed for a yes/no verdict with a confidence score.
package llmjudge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/nova-sec/nova/internal/nova/nlog"
	"github.com/nova-sec/nova/internal/nova/pattern"
)

// judgeSystemPrompt instructs the model to answer strictly as JSON so
// Evaluate can parse a verdict without scraping free-form prose.
const judgeSystemPrompt = `You are a precise content classifier. You will be given a judging instruction and a piece of text to judge against it.

Respond with a single JSON object and nothing else:
{"matched": true|false, "confidence": 0.0-1.0, "details": "one sentence explaining the verdict"}

"matched" is true iff the text satisfies the judging instruction. "confidence" reflects how certain you are of that verdict.`

// Evaluator implements evaluator.LLM against any langchaingo llms.Model
// (Anthropic, OpenAI, Gemini, Ollama, ...) — the caller is responsible
// for constructing and authenticating that model.
type Evaluator struct {
	model  llms.Model
	logger *slog.Logger
}

// New builds an Evaluator around an already-configured langchaingo model.
func New(model llms.Model, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{model: model, logger: logger}
}

type verdictPayload struct {
	Matched    bool    `json:"matched"`
	Confidence float64 `json:"confidence"`
	Details    string  `json:"details"`
}

// Evaluate sends p.Pattern (the judge prompt) plus prompt (the target
// text) as one user turn at Temperature = p.Threshold (spec.md §3.1),
// and parses the reply into a normalised verdict. Any failure — request
// error, non-JSON reply, provider auth failure — surfaces as
// (false, 0.0, {error}, err), matching the LLM evaluator contract of
// spec.md §6.2.
func (e *Evaluator) Evaluate(ctx context.Context, varName string, p pattern.LLMPattern, prompt string) (bool, float64, string, error) {
	userTurn := fmt.Sprintf("Judging instruction: %s\n\nText to judge:\n%s", p.Pattern, prompt)

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, judgeSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userTurn),
	}

	resp, err := e.model.GenerateContent(ctx, messages, llms.WithTemperature(p.Threshold))
	if err != nil {
		// Provider client errors sometimes echo the outgoing request,
		// auth header included, so redact before this reaches a handler.
		safe := nlog.Redact(err.Error())
		e.logger.Error("llm judge call failed", slog.String("var", varName), slog.String("error", safe))
		return false, 0, safe, fmt.Errorf("llm judge %s: %s", varName, safe)
	}
	if len(resp.Choices) == 0 {
		return false, 0, "empty response", fmt.Errorf("llm judge %s: provider returned no choices", varName)
	}

	verdict, err := parseVerdict(resp.Choices[0].Content)
	if err != nil {
		e.logger.Error("llm judge verdict parse failed", slog.String("var", varName), slog.Any("error", err))
		return false, 0, err.Error(), fmt.Errorf("llm judge %s: %w", varName, err)
	}

	return verdict.Matched, verdict.Confidence, verdict.Details, nil
}

// parseVerdict extracts the {matched, confidence, details} JSON object
// from a reply, tolerating a model that wraps it in prose or a fenced
// code block despite being asked not to.
func parseVerdict(reply string) (verdictPayload, error) {
	jsonStr := extractJSONObject(reply)
	if jsonStr == "" {
		return verdictPayload{}, fmt.Errorf("no JSON object found in judge reply")
	}

	var v verdictPayload
	if err := json.Unmarshal([]byte(jsonStr), &v); err != nil {
		return verdictPayload{}, fmt.Errorf("decode judge verdict: %w", err)
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	return v, nil
}

// extractJSONObject returns the first balanced {...} substring in s, or
// "" if none is found. Handles the common case of a model fencing its
// answer in ```json ... ``` or prefacing it with commentary.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
