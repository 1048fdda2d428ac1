// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evaluator

import (
	"context"

	"github.com/nova-sec/nova/internal/nova/pattern"
)

// Keyword evaluates literal/regex substring predicates (spec.md §4.4).
// varName identifies the pattern within its rule, for precompilation
// caching and for tagging EvaluatorFailure.
type Keyword interface {
	Evaluate(ctx context.Context, varName string, p pattern.KeywordPattern, prompt string) (bool, error)
}

// Fuzzy evaluates approximate-substring predicates.
type Fuzzy interface {
	Evaluate(ctx context.Context, varName string, p pattern.FuzzyPattern, prompt string) (bool, error)
}

// Semantic evaluates embedding cosine-similarity predicates. It is an
// external-collaborator plug-in seam (spec.md §6.2); implementations live
// in internal/nova/semantic.
type Semantic interface {
	Evaluate(ctx context.Context, varName string, p pattern.SemanticPattern, prompt string) (matched bool, score float64, err error)
}

// LLM evaluates judge-prompt predicates. An external-collaborator plug-in
// seam; implementations live in internal/nova/llmjudge.
type LLM interface {
	Evaluate(ctx context.Context, varName string, p pattern.LLMPattern, prompt string) (matched bool, confidence float64, details string, err error)
}

// RulePrecompiler is implemented by evaluators that hold state scoped to a
// rule (regex compilation, warmed embedding caches). Matcher.SetRule calls
// Precompile once per evaluator whenever the bound rule changes, matching
// spec.md §4.5's "re-precompiles regex patterns" contract.
type RulePrecompiler interface {
	Precompile(rule *pattern.Rule) error
}
