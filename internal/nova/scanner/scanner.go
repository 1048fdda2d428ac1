// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scanner implements the batch facade over Parser + Matcher
// (spec.md §4.6): given a set of rules and a set of inputs, it yields
// (input, matching rule names, per-rule verdict) results in deterministic
// order, reusing one Matcher per rule across every input.
package scanner

import (
	"bufio"
	"context"
	"os"
	"strconv"

	"github.com/google/uuid"

	"github.com/nova-sec/nova/internal/nova/matcher"
	"github.com/nova-sec/nova/internal/nova/metrics"
	"github.com/nova-sec/nova/internal/nova/pattern"
	"github.com/nova-sec/nova/internal/nova/telemetry"
)

// Input is one named prompt to scan. ID is typically a file path plus
// line number, or a caller-supplied identifier for programmatic inputs.
type Input struct {
	ID     string
	Prompt string
}

// Result is one (input, rule) verdict pair. ScanID tags every Result
// produced by the same Scan call with a shared UUIDv4, the same role
// google/uuid plays for request correlation elsewhere in the codebase.
type Result struct {
	ScanID        string
	InputID       string
	MatchingRules []string
	Verdicts      map[string]*pattern.Verdict
}

// Scanner amortises Matcher construction across many inputs by keeping
// exactly one Matcher per rule (spec.md §4.6).
type Scanner struct {
	matchers []*matcher.Matcher
	rules    []*pattern.Rule
	opts     []matcher.Option
}

// New builds a Scanner over rules, constructing one Matcher per rule with
// the given shared options (evaluator overrides, logger, etc).
func New(rules []*pattern.Rule, opts ...matcher.Option) *Scanner {
	s := &Scanner{rules: rules, opts: opts}
	s.matchers = make([]*matcher.Matcher, len(rules))
	for i, r := range rules {
		s.matchers[i] = matcher.New(r, opts...)
	}
	metrics.LoadedRuleCount.Set(float64(len(rules)))
	return s
}

// SetRules swaps in a new rule set, reusing Matchers for rules that are
// still present (matched by name) and discarding ones that are gone.
func (s *Scanner) SetRules(rules []*pattern.Rule) {
	byName := make(map[string]*matcher.Matcher, len(s.rules))
	for i, r := range s.rules {
		byName[r.Name] = s.matchers[i]
	}

	newMatchers := make([]*matcher.Matcher, len(rules))
	for i, r := range rules {
		if m, ok := byName[r.Name]; ok {
			m.SetRule(r)
			newMatchers[i] = m
		} else {
			newMatchers[i] = matcher.New(r, s.opts...)
		}
	}
	s.rules = rules
	s.matchers = newMatchers
	metrics.LoadedRuleCount.Set(float64(len(rules)))
}

// Scan evaluates every input against every rule, in rule-declaration
// order within each input, and input order across the batch (spec.md
// §4.6's determinism guarantee).
func (s *Scanner) Scan(ctx context.Context, inputs []Input) []Result {
	ctx, span := telemetry.StartScan(ctx, len(inputs), len(s.rules))
	defer span.End()

	results := make([]Result, len(inputs))
	for i, in := range inputs {
		results[i] = Result{
			ScanID:   uuid.NewString(),
			InputID:  in.ID,
			Verdicts: make(map[string]*pattern.Verdict, len(s.rules)),
		}
		for j, m := range s.matchers {
			v := m.Check(ctx, in.Prompt)
			results[i].Verdicts[s.rules[j].Name] = v
			if v.Matched {
				results[i].MatchingRules = append(results[i].MatchingRules, s.rules[j].Name)
			}
		}
	}
	return results
}

// ScanString is a convenience wrapper for a single ad-hoc prompt.
func (s *Scanner) ScanString(ctx context.Context, prompt string) Result {
	return s.Scan(ctx, []Input{{ID: "-", Prompt: prompt}})[0]
}

// ScanFile reads one prompt per line from path and scans each line as an
// independent input, tagging each with "path:lineNumber".
func (s *Scanner) ScanFile(ctx context.Context, path string) ([]Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var inputs []Input
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" {
			continue
		}
		inputs = append(inputs, Input{ID: lineID(path, line), Prompt: text})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return s.Scan(ctx, inputs), nil
}

func lineID(path string, line int) string {
	return path + ":" + strconv.Itoa(line)
}
