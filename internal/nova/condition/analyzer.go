// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package condition

import (
	"strings"

	"github.com/nova-sec/nova/internal/nova/pattern"
)

// Needed is the output of the Condition Analyzer (spec.md §4.2): the
// minimal set of pattern variables a condition actually requires, so the
// Matcher never invokes an expensive evaluator for an irrelevant pattern.
// Variable names are stored with their leading "$", matching
// pattern.OrderedPatterns keys directly.
type Needed struct {
	Keywords         map[string]bool
	Fuzzy            map[string]bool
	Semantics        map[string]bool
	LLM              map[string]bool
	SectionWildcards map[pattern.Section]bool
}

// NewNeeded returns an empty Needed with every map initialized.
func NewNeeded() *Needed {
	return &Needed{
		Keywords:         map[string]bool{},
		Fuzzy:            map[string]bool{},
		Semantics:        map[string]bool{},
		LLM:              map[string]bool{},
		SectionWildcards: map[pattern.Section]bool{},
	}
}

func (n *Needed) setFor(section pattern.Section) map[string]bool {
	switch section {
	case pattern.SectionKeywords:
		return n.Keywords
	case pattern.SectionFuzzy:
		return n.Fuzzy
	case pattern.SectionSemantics:
		return n.Semantics
	case pattern.SectionLLM:
		return n.LLM
	default:
		return nil
	}
}

// sectionOrder is the fixed search order for resolving a bare $name
// reference across sections (spec.md §4.2 rule 4, §9 open question 2).
var sectionOrder = []pattern.Section{
	pattern.SectionKeywords,
	pattern.SectionSemantics,
	pattern.SectionLLM,
	pattern.SectionFuzzy,
}

func ruleHas(rule *pattern.Rule, section pattern.Section, varName string) bool {
	switch section {
	case pattern.SectionKeywords:
		return rule.Keywords.Has(varName)
	case pattern.SectionFuzzy:
		return rule.Fuzzy.Has(varName)
	case pattern.SectionSemantics:
		return rule.Semantics.Has(varName)
	case pattern.SectionLLM:
		return rule.LLMs.Has(varName)
	default:
		return false
	}
}

func ruleNames(rule *pattern.Rule, section pattern.Section) []string {
	switch section {
	case pattern.SectionKeywords:
		return rule.Keywords.Names()
	case pattern.SectionFuzzy:
		return rule.Fuzzy.Names()
	case pattern.SectionSemantics:
		return rule.Semantics.Names()
	case pattern.SectionLLM:
		return rule.LLMs.Names()
	default:
		return nil
	}
}

// Analyze walks expr and returns the variables it requires, resolved
// against rule's declared patterns.
func Analyze(expr Expr, rule *pattern.Rule) *Needed {
	n := NewNeeded()
	analyze(expr, rule, n)
	return n
}

func analyze(e Expr, rule *pattern.Rule, n *Needed) {
	switch v := e.(type) {
	case *And:
		analyze(v.Left, rule, n)
		analyze(v.Right, rule, n)
	case *Or:
		analyze(v.Left, rule, n)
		analyze(v.Right, rule, n)
	case *Not:
		analyze(v.X, rule, n)
	case *SectionWildcard:
		n.SectionWildcards[v.Section] = true
	case *AnyOfPrefix:
		for _, section := range sectionOrder {
			addPrefixMatches(n, rule, section, v.Prefix)
		}
	case *VarRef:
		if v.HasSection {
			if v.Wildcard {
				addPrefixMatches(n, rule, v.Section, v.Name)
				return
			}
			set := n.setFor(v.Section)
			set["$"+v.Name] = true
			return
		}
		// Bare $name: resolve via the fixed cross-section search order.
		for _, section := range sectionOrder {
			if ruleHas(rule, section, "$"+v.Name) {
				n.setFor(section)["$"+v.Name] = true
				return
			}
		}
	}
}

func addPrefixMatches(n *Needed, rule *pattern.Rule, section pattern.Section, prefix string) {
	set := n.setFor(section)
	for _, name := range ruleNames(rule, section) {
		if strings.HasPrefix(strings.TrimPrefix(name, "$"), prefix) {
			set[name] = true
		}
	}
}
