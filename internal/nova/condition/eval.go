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

// Matches holds the per-section boolean results the Matcher has already
// computed (spec.md §4.3.2): only entries for variables the Analyzer
// flagged as needed are present; a missing entry is "false".
type Matches struct {
	Keywords  map[string]bool
	Fuzzy     map[string]bool
	Semantics map[string]bool
	LLM       map[string]bool
}

// NewMatches returns an empty Matches with every map initialized.
func NewMatches() *Matches {
	return &Matches{
		Keywords:  map[string]bool{},
		Fuzzy:     map[string]bool{},
		Semantics: map[string]bool{},
		LLM:       map[string]bool{},
	}
}

func (m *Matches) mapFor(section pattern.Section) map[string]bool {
	switch section {
	case pattern.SectionKeywords:
		return m.Keywords
	case pattern.SectionFuzzy:
		return m.Fuzzy
	case pattern.SectionSemantics:
		return m.Semantics
	case pattern.SectionLLM:
		return m.LLM
	default:
		return nil
	}
}

// Evaluate computes the boolean result of expr against m. Evaluation
// never fails at this stage: any malformed reference was already rejected
// at Parse time, and a reference to an unevaluated or undefined variable
// is simply false (spec.md §4.3.2).
func Evaluate(expr Expr, m *Matches) bool {
	switch v := expr.(type) {
	case *And:
		return Evaluate(v.Left, m) && Evaluate(v.Right, m)
	case *Or:
		return Evaluate(v.Left, m) || Evaluate(v.Right, m)
	case *Not:
		return !Evaluate(v.X, m)
	case *SectionWildcard:
		for _, ok := range m.mapFor(v.Section) {
			if ok {
				return true
			}
		}
		return false
	case *AnyOfPrefix:
		for _, section := range sectionOrder {
			if anyPrefixTrue(m.mapFor(section), v.Prefix) {
				return true
			}
		}
		return false
	case *VarRef:
		if v.HasSection {
			if v.Wildcard {
				return anyPrefixTrue(m.mapFor(v.Section), v.Name)
			}
			return m.mapFor(v.Section)["$"+v.Name]
		}
		for _, section := range sectionOrder {
			if val, ok := m.mapFor(section)["$"+v.Name]; ok {
				return val
			}
		}
		return false
	default:
		return false
	}
}

func anyPrefixTrue(section map[string]bool, prefix string) bool {
	for name, ok := range section {
		if ok && strings.HasPrefix(strings.TrimPrefix(name, "$"), prefix) {
			return true
		}
	}
	return false
}
