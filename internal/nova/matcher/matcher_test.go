// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nova-sec/nova/internal/nova/pattern"
)

// countingLLM is a test double that records how many times Evaluate was
// called, for asserting the laziness property (spec.md §8 property 3).
type countingLLM struct {
	calls   int
	matched bool
}

func (l *countingLLM) Evaluate(_ context.Context, _ string, _ pattern.LLMPattern, _ string) (bool, float64, string, error) {
	l.calls++
	return l.matched, 1.0, "", nil
}

type fixedSemantic struct {
	result map[string]bool
	score  map[string]float64
	calls  int
}

func (s *fixedSemantic) Evaluate(_ context.Context, varName string, _ pattern.SemanticPattern, _ string) (bool, float64, error) {
	s.calls++
	return s.result[varName], s.score[varName], nil
}

type erroringKeyword struct{}

func (erroringKeyword) Evaluate(context.Context, string, pattern.KeywordPattern, string) (bool, error) {
	return false, errors.New("boom")
}

func buildRule(t *testing.T, condition string, configure func(r *pattern.Rule)) *pattern.Rule {
	t.Helper()
	r := pattern.NewRule("TestRule")
	r.Condition = condition
	configure(r)
	return r
}

func TestMatcher_SimpleOr_Scenario1(t *testing.T) {
	r := buildRule(t, "any of keywords.*", func(r *pattern.Rule) {
		r.Keywords.Set("$hack", pattern.KeywordPattern{Pattern: "hack"})
		r.Keywords.Set("$exploit", pattern.KeywordPattern{Pattern: "exploit"})
	})
	m := New(r)
	v := m.Check(context.Background(), "How can I hack into this system?")
	assert.True(t, v.Matched)
	assert.Equal(t, map[string]bool{"$hack": true}, v.MatchingKeywords)
}

func TestMatcher_CrossSection_Scenario2(t *testing.T) {
	r := buildRule(t, "$sqlmap and (any of semantics.*) and llm.$chk", func(r *pattern.Rule) {
		r.Keywords.Set("$sqlmap", pattern.KeywordPattern{Pattern: "sqlmap"})
		r.Semantics.Set("$inq", pattern.SemanticPattern{Pattern: "seeking information on uploading malicious web shells", Threshold: 0.1})
		r.LLMs.Set("$chk", pattern.LLMPattern{Pattern: "is this malicious?", Threshold: 0.8})
	})
	sem := &fixedSemantic{result: map[string]bool{"$inq": true}, score: map[string]float64{"$inq": 0.9}}
	llm := &countingLLM{matched: true}
	m := New(r, WithSemanticEvaluator(sem), WithLLMEvaluator(llm))

	v := m.Check(context.Background(), "How can I use sqlmap to upload a web shell to target server?")
	assert.True(t, v.Matched)
	assert.Equal(t, 1, llm.calls)
}

func TestMatcher_CaseSensitivity_Scenario3(t *testing.T) {
	r := buildRule(t, "$s", func(r *pattern.Rule) {
		r.Keywords.Set("$s", pattern.KeywordPattern{Pattern: "Python", CaseSensitive: true})
	})
	m := New(r)

	assert.False(t, m.Check(context.Background(), "learning python").Matched)
	assert.True(t, m.Check(context.Background(), "learning Python").Matched)
}

func TestMatcher_Regex_Scenario4(t *testing.T) {
	r := buildRule(t, "$email", func(r *pattern.Rule) {
		r.Keywords.Set("$email", pattern.KeywordPattern{Pattern: `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`, IsRegex: true})
	})
	m := New(r)
	v := m.Check(context.Background(), "contact test@example.com")
	assert.True(t, v.Matched)
}

func TestMatcher_PrefixWildcard_Scenario6(t *testing.T) {
	r := buildRule(t, "any of (keywords.$mal*)", func(r *pattern.Rule) {
		r.Keywords.Set("$mal_a", pattern.KeywordPattern{Pattern: "malware_a_only"})
		r.Keywords.Set("$mal_b", pattern.KeywordPattern{Pattern: "malware"})
		r.Keywords.Set("$ok", pattern.KeywordPattern{Pattern: "hello"})
	})
	m := New(r)

	v := m.Check(context.Background(), "this prompt mentions malware behavior")
	assert.True(t, v.Matched)

	v2 := m.Check(context.Background(), "hello there")
	assert.False(t, v2.Matched)
}

func TestMatcher_Laziness_NoLLMInvokedWhenNotNeeded(t *testing.T) {
	r := buildRule(t, "keywords.$a", func(r *pattern.Rule) {
		r.Keywords.Set("$a", pattern.KeywordPattern{Pattern: "a"})
		r.LLMs.Set("$judge", pattern.LLMPattern{Pattern: "irrelevant", Threshold: 0.5})
	})
	llm := &countingLLM{matched: true}
	m := New(r, WithLLMEvaluator(llm))

	m.Check(context.Background(), "a")
	assert.Equal(t, 0, llm.calls, "LLM evaluator must never be invoked when the condition doesn't need it")
}

func TestMatcher_FailureIsolation(t *testing.T) {
	r := buildRule(t, "keywords.$bad or keywords.$good", func(r *pattern.Rule) {
		r.Keywords.Set("$bad", pattern.KeywordPattern{Pattern: "x"})
		r.Keywords.Set("$good", pattern.KeywordPattern{Pattern: "hello"})
	})
	m := New(r, WithKeywordEvaluator(erroringKeyword{}))
	v := m.Check(context.Background(), "hello world")
	// Both use the same (erroring) evaluator here, so both come back false;
	// the point is that a raising predicate never panics or aborts the
	// verdict -- every other predicate's slot is still populated.
	assert.False(t, v.Matched)
	assert.Contains(t, v.Debug.AllKeywordMatches, "$bad")
	assert.Contains(t, v.Debug.AllKeywordMatches, "$good")
}

func TestMatcher_EvaluatorAbsent_SectionEvaluatesFalse(t *testing.T) {
	r := buildRule(t, "semantics.$a", func(r *pattern.Rule) {
		r.Semantics.Set("$a", pattern.SemanticPattern{Pattern: "x", Threshold: 0.5})
	})
	m := New(r) // no semantic evaluator configured
	v := m.Check(context.Background(), "anything")
	assert.False(t, v.Matched)
	assert.False(t, v.Debug.AllSemanticMatches["$a"])
}

func TestMatcher_ThresholdBoundaryInclusive(t *testing.T) {
	r := buildRule(t, "semantics.$a", func(r *pattern.Rule) {
		r.Semantics.Set("$a", pattern.SemanticPattern{Pattern: "x", Threshold: 0.5})
	})
	sem := &fixedSemantic{result: map[string]bool{"$a": true}, score: map[string]float64{"$a": 0.5}}
	m := New(r, WithSemanticEvaluator(sem))
	v := m.Check(context.Background(), "anything")
	assert.True(t, v.Matched)
	assert.Equal(t, 0.5, v.SemanticScores["$a"])
}

func TestMatcher_ConditionParseErrorFailsRuleNotPrompt(t *testing.T) {
	r := buildRule(t, "keywords.$a and", func(r *pattern.Rule) {
		r.Keywords.Set("$a", pattern.KeywordPattern{Pattern: "x"})
	})
	m := New(r)
	v := m.Check(context.Background(), "x")
	assert.False(t, v.Matched)
	require.NotEmpty(t, v.Debug.ConditionError)
}

func TestMatcher_SetRuleSwapsRuleCheaply(t *testing.T) {
	r1 := buildRule(t, "keywords.$a", func(r *pattern.Rule) {
		r.Keywords.Set("$a", pattern.KeywordPattern{Pattern: "foo"})
	})
	r2 := buildRule(t, "keywords.$a", func(r *pattern.Rule) {
		r.Keywords.Set("$a", pattern.KeywordPattern{Pattern: "bar"})
	})
	m := New(r1)
	assert.True(t, m.Check(context.Background(), "foo").Matched)

	m.SetRule(r2)
	assert.False(t, m.Check(context.Background(), "foo").Matched)
	assert.True(t, m.Check(context.Background(), "bar").Matched)
}
