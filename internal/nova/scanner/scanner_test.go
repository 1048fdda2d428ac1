// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nova-sec/nova/internal/nova/pattern"
)

func buildRule(name, condition string, keywords map[string]string) *pattern.Rule {
	r := pattern.NewRule(name)
	r.Condition = condition
	for varName, kw := range keywords {
		r.Keywords.Set(varName, pattern.KeywordPattern{Pattern: kw})
	}
	return r
}

func TestScanner_DeterministicOrder(t *testing.T) {
	r1 := buildRule("RuleA", "$a", map[string]string{"$a": "hack"})
	r2 := buildRule("RuleB", "$b", map[string]string{"$b": "exploit"})

	s := New([]*pattern.Rule{r1, r2})
	inputs := []Input{
		{ID: "in1", Prompt: "let's hack this"},
		{ID: "in2", Prompt: "let's exploit that"},
		{ID: "in3", Prompt: "nothing interesting"},
	}
	results := s.Scan(context.Background(), inputs)

	require.Len(t, results, 3)
	assert.Equal(t, "in1", results[0].InputID)
	assert.Equal(t, "in2", results[1].InputID)
	assert.Equal(t, "in3", results[2].InputID)

	assert.Equal(t, []string{"RuleA"}, results[0].MatchingRules)
	assert.Equal(t, []string{"RuleB"}, results[1].MatchingRules)
	assert.Empty(t, results[2].MatchingRules)

	for _, res := range results {
		assert.NotEmpty(t, res.ScanID)
		assert.Contains(t, res.Verdicts, "RuleA")
		assert.Contains(t, res.Verdicts, "RuleB")
	}
}

func TestScanner_ReusesMatcherAcrossInputs(t *testing.T) {
	r := buildRule("R", "$a", map[string]string{"$a": "danger"})
	s := New([]*pattern.Rule{r})
	require.Len(t, s.matchers, 1)

	before := s.matchers[0]
	_ = s.Scan(context.Background(), []Input{{ID: "1", Prompt: "danger"}, {ID: "2", Prompt: "danger again"}})
	assert.Same(t, before, s.matchers[0], "Scan must not rebuild Matchers per input")
}

func TestScanner_SetRulesPreservesMatcherForUnchangedName(t *testing.T) {
	r1 := buildRule("R", "$a", map[string]string{"$a": "foo"})
	s := New([]*pattern.Rule{r1})
	original := s.matchers[0]

	r2 := buildRule("R", "$a", map[string]string{"$a": "bar"})
	s.SetRules([]*pattern.Rule{r2})

	assert.Same(t, original, s.matchers[0], "SetRules should reuse the Matcher for a rule with the same name")
	v := s.ScanString(context.Background(), "bar")
	assert.True(t, v.Verdicts["R"].Matched)
}

func TestScanner_ScanFileSkipsBlankLinesAndTagsLineNumbers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.txt")
	require.NoError(t, os.WriteFile(path, []byte("hack the planet\n\nexploit this\n"), 0o644))

	r := buildRule("R", "any of keywords.*", map[string]string{"$a": "hack", "$b": "exploit"})
	s := New([]*pattern.Rule{r})

	results, err := s.ScanFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, path+":1", results[0].InputID)
	assert.Equal(t, path+":3", results[1].InputID)
}
