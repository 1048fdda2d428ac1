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
	"fmt"
	"regexp"
	"strings"

	"github.com/nova-sec/nova/internal/nova/pattern"
)

// KeywordEvaluator is the default Keyword implementation: a literal
// (case-folded unless CaseSensitive) substring test, or a RE2-compatible
// regex search when IsRegex is set. Nova has no PCRE binding anywhere in
// its dependency surface, so regex keywords compile against the standard
// library's regexp package; the anchors, classes, quantifiers, alternation
// and non-capturing groups spec.md §3.1 requires are all RE2-expressible.
//
// Not safe for concurrent use across prompts for the same rule instance,
// matching the Matcher's single-threaded-per-instance contract (spec.md
// §5); independent KeywordEvaluators (one per Matcher) may run in parallel.
type KeywordEvaluator struct {
	compiled map[string]*regexp.Regexp
}

// NewKeywordEvaluator returns a KeywordEvaluator with an empty regex cache.
func NewKeywordEvaluator() *KeywordEvaluator {
	return &KeywordEvaluator{compiled: map[string]*regexp.Regexp{}}
}

// Precompile rebuilds the regex cache for every regex keyword pattern in
// rule. It is called once by Matcher.SetRule; Evaluate never compiles on
// the hot path.
func (e *KeywordEvaluator) Precompile(rule *pattern.Rule) error {
	fresh := make(map[string]*regexp.Regexp, rule.Keywords.Len())
	var firstErr error
	rule.Keywords.Range(func(name string, p pattern.KeywordPattern) bool {
		if !p.IsRegex {
			return true
		}
		re, err := compileKeywordRegex(p)
		if err != nil {
			if firstErr == nil {
				firstErr = &EvaluatorFailure{Section: SectionKeywords, VarName: name, Err: err}
			}
			return true
		}
		fresh[name] = re
		return true
	})
	e.compiled = fresh
	return firstErr
}

func compileKeywordRegex(p pattern.KeywordPattern) (*regexp.Regexp, error) {
	body := p.Pattern
	if !p.CaseSensitive {
		body = "(?i)" + body
	}
	re, err := regexp.Compile(body)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", p.Pattern, err)
	}
	return re, nil
}

// Evaluate implements Keyword.
func (e *KeywordEvaluator) Evaluate(_ context.Context, varName string, p pattern.KeywordPattern, prompt string) (bool, error) {
	if !p.IsRegex {
		haystack, needle := prompt, p.Pattern
		if !p.CaseSensitive {
			haystack = strings.ToLower(haystack)
			needle = strings.ToLower(needle)
		}
		return strings.Contains(haystack, needle), nil
	}

	re := e.compiled[varName]
	if re == nil {
		// Precompile was never called (programmatic rule construction) or
		// the pattern failed to compile; compile lazily so Evaluate still
		// has a well-defined result instead of silently matching nothing.
		compiled, err := compileKeywordRegex(p)
		if err != nil {
			return false, &EvaluatorFailure{Section: SectionKeywords, VarName: varName, Err: err}
		}
		re = compiled
		e.compiled[varName] = re
	}
	return re.MatchString(prompt), nil
}
