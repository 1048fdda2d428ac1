// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/nova-sec/nova/internal/nova/evaluator"
	"github.com/nova-sec/nova/internal/nova/llmjudge"
	"github.com/nova-sec/nova/internal/nova/matcher"
	"github.com/nova-sec/nova/internal/nova/pattern"
	"github.com/nova-sec/nova/internal/nova/ruleparse"
	"github.com/nova-sec/nova/internal/nova/secret"
	"github.com/nova-sec/nova/internal/nova/semantic"
)

// loadRules parses every *.nova file in dir and fails the command if any
// rule is malformed, matching "nova validate"'s stricter sibling commands
// (scan/serve/watch all need a rule set they can trust before running).
func loadRules(dir string) ([]*pattern.Rule, error) {
	rules, errs := ruleparse.ParseDirFlat(dir)
	if err := ruleparse.ErrorsToError(errs); err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("no .nova rules found in %s", dir)
	}
	return rules, nil
}

// matcherOptions builds the shared Matcher options every command needs:
// the credential store feeding provider API keys, and lazy factories for
// the semantic and LLM evaluators so a rule set with no $semantics or
// $llm predicates never pays for either one.
func matcherOptions(secrets *secret.Store, logger *slog.Logger) []matcher.Option {
	return []matcher.Option{
		matcher.WithLogger(logger),
		matcher.WithDefaultSemanticFactory(func() (evaluator.Semantic, error) {
			return newSemanticFromEnv(logger)
		}),
		matcher.WithDefaultLLMFactory(func() (evaluator.LLM, error) {
			return newJudgeFromEnv(secrets, logger)
		}),
	}
}

// newSemanticFromEnv selects the $semantics backend by NOVA_SEMANTIC_BACKEND:
// "weaviate" runs pattern vectors through a Weaviate nearVector search via
// NOVA_WEAVIATE_HOST, anything else (including unset) keeps the default
// in-process Ollama-embedding-plus-cosine-similarity evaluator.
func newSemanticFromEnv(logger *slog.Logger) (evaluator.Semantic, error) {
	if os.Getenv("NOVA_SEMANTIC_BACKEND") != "weaviate" {
		return semantic.New(logger, nil), nil
	}
	host := os.Getenv("NOVA_WEAVIATE_HOST")
	if host == "" {
		host = "localhost:8080"
	}
	return semantic.NewWeaviateEvaluator(host, os.Getenv("NOVA_WEAVIATE_SCHEME"), logger)
}

// newJudgeFromEnv selects an LLM provider by which API key secret.Store
// actually holds, preferring Anthropic then OpenAI, the same provider
// preference order the trace service's role config falls back through.
func newJudgeFromEnv(secrets *secret.Store, logger *slog.Logger) (*llmjudge.Evaluator, error) {
	if secrets.Has(secret.AnthropicAPIKey) {
		var model *anthropic.LLM
		var err error
		secrets.View(secret.AnthropicAPIKey, func(key []byte) {
			model, err = anthropic.New(anthropic.WithToken(string(key)))
		})
		if err != nil {
			return nil, fmt.Errorf("constructing anthropic client: %w", err)
		}
		return llmjudge.New(model, logger), nil
	}
	if secrets.Has(secret.OpenAIAPIKey) {
		var model *openai.LLM
		var err error
		secrets.View(secret.OpenAIAPIKey, func(key []byte) {
			model, err = openai.New(openai.WithToken(string(key)))
		})
		if err != nil {
			return nil, fmt.Errorf("constructing openai client: %w", err)
		}
		return llmjudge.New(model, logger), nil
	}
	return nil, &evaluator.EvaluatorAbsent{Section: evaluator.SectionLLM, Reason: "no ANTHROPIC_API_KEY or OPENAI_API_KEY configured"}
}

// loadSecrets locks every provider credential Nova knows about into
// guarded memory, leaving any unset ones absent rather than erroring —
// a rule set with no $llm predicates should run with zero keys configured.
func loadSecrets() (*secret.Store, error) {
	s := secret.New()
	if err := s.LoadFromEnv(secret.AnthropicAPIKey, secret.OpenAIAPIKey, secret.EmbeddingToken); err != nil {
		return nil, err
	}
	return s, nil
}

