// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package matcher implements Nova's lazy, demand-driven matching engine
// (spec.md §4.5): given a rule and a prompt, it evaluates only the
// predicates the condition actually needs, isolates per-predicate
// failures, and assembles a structured Verdict.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nova-sec/nova/internal/nova/condition"
	"github.com/nova-sec/nova/internal/nova/evaluator"
	"github.com/nova-sec/nova/internal/nova/metrics"
	"github.com/nova-sec/nova/internal/nova/pattern"
)

// Option configures a Matcher at construction time, in the functional
// options style the trace service's symbol index uses for its own
// optional-capability configuration.
type Option func(*options)

type options struct {
	keyword  evaluator.Keyword
	fuzzy    evaluator.Fuzzy
	semantic evaluator.Semantic
	llm      evaluator.LLM

	defaultSemantic func() (evaluator.Semantic, error)
	defaultLLM      func() (evaluator.LLM, error)

	createLLMIfMissing bool
	logger             *slog.Logger
}

// WithKeywordEvaluator overrides the default keyword evaluator.
func WithKeywordEvaluator(k evaluator.Keyword) Option {
	return func(o *options) { o.keyword = k }
}

// WithFuzzyEvaluator overrides the default fuzzy evaluator.
func WithFuzzyEvaluator(f evaluator.Fuzzy) Option {
	return func(o *options) { o.fuzzy = f }
}

// WithSemanticEvaluator supplies the semantic evaluator instance to use
// when the rule requires one. Semantic has no safe parameterless default
// (it is an external-collaborator plug-in, spec.md §6.2), so omitting
// this when a rule needs semantics leaves that section EvaluatorAbsent.
func WithSemanticEvaluator(s evaluator.Semantic) Option {
	return func(o *options) { o.semantic = s }
}

// WithLLMEvaluator supplies the LLM evaluator instance, for the same
// reason WithSemanticEvaluator exists.
func WithLLMEvaluator(l evaluator.LLM) Option {
	return func(o *options) { o.llm = l }
}

// WithDefaultSemanticFactory supplies a lazily-invoked constructor used
// only when the rule needs semantics and no explicit override was given
// (spec.md §4.5 construction policy step 4: "prefer a caller-supplied
// override; else instantiate the default").
func WithDefaultSemanticFactory(f func() (evaluator.Semantic, error)) Option {
	return func(o *options) { o.defaultSemantic = f }
}

// WithDefaultLLMFactory is WithDefaultSemanticFactory for the LLM section.
func WithDefaultLLMFactory(f func() (evaluator.LLM, error)) Option {
	return func(o *options) { o.defaultLLM = f }
}

// WithCreateLLMIfMissing controls whether a default LLM evaluator is
// instantiated at all when one is needed (spec.md §4.5 step 5). When
// false, a required LLM evaluation short-circuits to false even if a
// default factory was supplied.
func WithCreateLLMIfMissing(create bool) Option {
	return func(o *options) { o.createLLMIfMissing = create }
}

// WithLogger overrides the matcher's logger (defaults to slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Matcher binds one Rule to a set of evaluator instances and answers
// check(prompt) queries against it. Not safe for concurrent use against
// the same instance (spec.md §5); one Matcher per rule, used from one
// goroutine at a time, is the supported shape.
type Matcher struct {
	opts options
	rule *pattern.Rule

	keywordEval  evaluator.Keyword
	fuzzyEval    evaluator.Fuzzy
	semanticEval evaluator.Semantic
	llmEval      evaluator.LLM

	needFuzzy    bool
	needSemantic bool
	needLLM      bool

	conditionExpr  condition.Expr
	conditionErr   error
	warnedAbsences map[evaluator.Section]bool
}

// New constructs a Matcher bound to rule.
func New(rule *pattern.Rule, opts ...Option) *Matcher {
	o := options{createLLMIfMissing: true}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	m := &Matcher{opts: o, warnedAbsences: map[evaluator.Section]bool{}}
	m.SetRule(rule)
	return m
}

// SetRule rebinds the Matcher to a new rule, retaining its evaluator
// instances and re-precompiling keyword regex state (spec.md §4.5).
func (m *Matcher) SetRule(rule *pattern.Rule) {
	m.rule = rule
	m.bind()
}

func (m *Matcher) bind() {
	rule := m.rule

	if m.keywordEval == nil {
		if m.opts.keyword != nil {
			m.keywordEval = m.opts.keyword
		} else {
			m.keywordEval = evaluator.NewKeywordEvaluator()
		}
	}
	if pc, ok := m.keywordEval.(evaluator.RulePrecompiler); ok {
		if err := pc.Precompile(rule); err != nil {
			m.opts.logger.Warn("keyword precompilation failed", "rule", rule.Name, "error", err)
		}
	}

	condText := rule.Condition
	m.needFuzzy = rule.Fuzzy.Len() > 0 || strings.Contains(condText, "fuzzy")
	m.needSemantic = rule.Semantics.Len() > 0 || strings.Contains(condText, "semantics")
	m.needLLM = rule.LLMs.Len() > 0 || strings.Contains(condText, "llm")

	if m.needFuzzy && m.fuzzyEval == nil {
		switch {
		case m.opts.fuzzy != nil:
			m.fuzzyEval = m.opts.fuzzy
		default:
			m.fuzzyEval = evaluator.NewFuzzyEvaluator()
		}
	}

	if m.needSemantic && m.semanticEval == nil {
		var absent *evaluator.EvaluatorAbsent
		switch {
		case m.opts.semantic != nil:
			m.semanticEval = m.opts.semantic
		case m.opts.defaultSemantic != nil:
			sem, err := m.opts.defaultSemantic()
			if err != nil {
				absent = &evaluator.EvaluatorAbsent{Section: evaluator.SectionSemantics, Reason: err.Error()}
			} else {
				m.semanticEval = sem
			}
		default:
			absent = &evaluator.EvaluatorAbsent{Section: evaluator.SectionSemantics, Reason: "no semantic evaluator configured"}
		}
		m.warnAbsent(absent)
	}
	if pc, ok := m.semanticEval.(evaluator.RulePrecompiler); ok {
		if err := pc.Precompile(rule); err != nil {
			m.opts.logger.Warn("semantic precompilation failed", "rule", rule.Name, "error", err)
		}
	}

	if m.needLLM && m.llmEval == nil {
		var absent *evaluator.EvaluatorAbsent
		switch {
		case m.opts.llm != nil:
			m.llmEval = m.opts.llm
		case !m.opts.createLLMIfMissing:
			absent = &evaluator.EvaluatorAbsent{Section: evaluator.SectionLLM, Reason: "create_llm_if_missing is false"}
		case m.opts.defaultLLM != nil:
			llm, err := m.opts.defaultLLM()
			if err != nil {
				absent = &evaluator.EvaluatorAbsent{Section: evaluator.SectionLLM, Reason: err.Error()}
			} else {
				m.llmEval = llm
			}
		default:
			absent = &evaluator.EvaluatorAbsent{Section: evaluator.SectionLLM, Reason: "no llm evaluator configured"}
		}
		m.warnAbsent(absent)
	}

	if condText == "" {
		m.conditionExpr, m.conditionErr = nil, nil
		return
	}
	m.conditionExpr, m.conditionErr = condition.Parse(condText)
}

func (m *Matcher) warnAbsent(absent *evaluator.EvaluatorAbsent) {
	if absent == nil || m.warnedAbsences[absent.Section] {
		return
	}
	m.warnedAbsences[absent.Section] = true
	m.opts.logger.Warn("evaluator absent, section will evaluate to false", "rule", m.rule.Name, "section", absent.Section, "reason", absent.Reason)
}

// Check evaluates prompt against the bound rule and returns a Verdict.
func (m *Matcher) Check(ctx context.Context, prompt string) *pattern.Verdict {
	rule := m.rule
	verdict := pattern.NewVerdict(rule.Name, rule.MetaMap())
	verdict.Debug.Condition = rule.Condition

	if m.conditionErr != nil {
		verdict.Debug.ConditionError = m.conditionErr.Error()
		verdict.Matched = false
		return verdict
	}

	var needed *condition.Needed
	if m.conditionExpr != nil {
		needed = condition.Analyze(m.conditionExpr, rule)
	} else {
		needed = condition.NewNeeded()
	}

	m.evaluateKeywords(ctx, prompt, needed, verdict)
	m.evaluateFuzzy(ctx, prompt, needed, verdict)
	m.evaluateSemantics(ctx, prompt, needed, verdict)
	m.evaluateLLM(ctx, prompt, needed, verdict)

	match := &condition.Matches{
		Keywords:  verdict.Debug.AllKeywordMatches,
		Fuzzy:     verdict.Debug.AllFuzzyMatches,
		Semantics: verdict.Debug.AllSemanticMatches,
		LLM:       verdict.Debug.AllLLMMatches,
	}

	if m.conditionExpr != nil {
		result := condition.Evaluate(m.conditionExpr, match)
		verdict.Debug.ConditionResult = result
		verdict.Matched = result
	} else {
		verdict.Matched = anyTrue(verdict.Debug.AllKeywordMatches) ||
			anyTrue(verdict.Debug.AllSemanticMatches) ||
			anyTrue(verdict.Debug.AllLLMMatches)
	}

	for name, ok := range verdict.Debug.AllKeywordMatches {
		if ok {
			verdict.MatchingKeywords[name] = true
		}
	}
	for name, ok := range verdict.Debug.AllFuzzyMatches {
		if ok {
			verdict.MatchingFuzzy[name] = true
		}
	}
	for name, ok := range verdict.Debug.AllSemanticMatches {
		if ok {
			verdict.MatchingSemantics[name] = true
		}
	}
	for name, ok := range verdict.Debug.AllLLMMatches {
		if ok {
			verdict.MatchingLLM[name] = true
		}
	}

	metrics.RecordScan(rule.Name, verdict.Matched)
	return verdict
}

func anyTrue(m map[string]bool) bool {
	for _, v := range m {
		if v {
			return true
		}
	}
	return false
}

func (m *Matcher) evaluateKeywords(ctx context.Context, prompt string, needed *condition.Needed, v *pattern.Verdict) {
	wildcard := needed.SectionWildcards[pattern.SectionKeywords]
	m.rule.Keywords.Range(func(name string, p pattern.KeywordPattern) bool {
		if !wildcard && !needed.Keywords[name] {
			return true
		}
		start := time.Now()
		result, err := m.keywordEval.Evaluate(ctx, name, p, prompt)
		status := "ok"
		if err != nil {
			m.opts.logger.Error("keyword evaluation failed", "rule", m.rule.Name, "var", name, "error", err)
			result = false
			status = "error"
		}
		metrics.RecordEvaluatorCall("keywords", status, time.Since(start).Seconds())
		v.Debug.AllKeywordMatches[name] = result
		return true
	})
}

func (m *Matcher) evaluateFuzzy(ctx context.Context, prompt string, needed *condition.Needed, v *pattern.Verdict) {
	if !m.needFuzzy {
		return
	}
	wildcard := needed.SectionWildcards[pattern.SectionFuzzy]
	m.rule.Fuzzy.Range(func(name string, p pattern.FuzzyPattern) bool {
		if !wildcard && !needed.Fuzzy[name] {
			return true
		}
		if m.fuzzyEval == nil {
			v.Debug.AllFuzzyMatches[name] = false
			v.Debug.Warnings = append(v.Debug.Warnings, fmt.Sprintf("fuzzy evaluator absent for %s", name))
			metrics.RecordEvaluatorCall("fuzzy", "absent", 0)
			return true
		}
		start := time.Now()
		result, err := m.fuzzyEval.Evaluate(ctx, name, p, prompt)
		status := "ok"
		if err != nil {
			m.opts.logger.Error("fuzzy evaluation failed", "rule", m.rule.Name, "var", name, "error", err)
			result = false
			status = "error"
		}
		metrics.RecordEvaluatorCall("fuzzy", status, time.Since(start).Seconds())
		v.Debug.AllFuzzyMatches[name] = result
		return true
	})
}

func (m *Matcher) evaluateSemantics(ctx context.Context, prompt string, needed *condition.Needed, v *pattern.Verdict) {
	if !m.needSemantic {
		return
	}
	wildcard := needed.SectionWildcards[pattern.SectionSemantics]
	m.rule.Semantics.Range(func(name string, p pattern.SemanticPattern) bool {
		if !wildcard && !needed.Semantics[name] {
			return true
		}
		if m.semanticEval == nil {
			v.Debug.AllSemanticMatches[name] = false
			v.SemanticScores[name] = 0.0
			v.Debug.Warnings = append(v.Debug.Warnings, fmt.Sprintf("semantic evaluator absent for %s", name))
			metrics.RecordEvaluatorCall("semantics", "absent", 0)
			return true
		}
		start := time.Now()
		result, score, err := m.semanticEval.Evaluate(ctx, name, p, prompt)
		status := "ok"
		if err != nil {
			m.opts.logger.Error("semantic evaluation failed", "rule", m.rule.Name, "var", name, "error", err)
			result, score = false, 0.0
			status = "error"
		}
		metrics.RecordEvaluatorCall("semantics", status, time.Since(start).Seconds())
		v.Debug.AllSemanticMatches[name] = result
		v.SemanticScores[name] = score
		return true
	})
}

func (m *Matcher) evaluateLLM(ctx context.Context, prompt string, needed *condition.Needed, v *pattern.Verdict) {
	if !m.needLLM {
		return
	}
	wildcard := needed.SectionWildcards[pattern.SectionLLM]
	m.rule.LLMs.Range(func(name string, p pattern.LLMPattern) bool {
		if !wildcard && !needed.LLM[name] {
			return true
		}
		if m.llmEval == nil {
			v.Debug.AllLLMMatches[name] = false
			v.LLMScores[name] = 0.0
			v.Debug.Warnings = append(v.Debug.Warnings, fmt.Sprintf("llm evaluator absent for %s", name))
			metrics.RecordEvaluatorCall("llm", "absent", 0)
			return true
		}
		start := time.Now()
		result, confidence, _, err := m.llmEval.Evaluate(ctx, name, p, prompt)
		status := "ok"
		if err != nil {
			m.opts.logger.Error("llm evaluation failed", "rule", m.rule.Name, "var", name, "error", err)
			result, confidence = false, 0.0
			status = "error"
		}
		metrics.RecordEvaluatorCall("llm", status, time.Since(start).Seconds())
		v.Debug.AllLLMMatches[name] = result
		v.LLMScores[name] = confidence
		return true
	})
}

// Rule returns the currently bound rule.
func (m *Matcher) Rule() *pattern.Rule {
	return m.rule
}
