// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package condition implements Nova's boolean condition language: the
// grammar over section-qualified pattern variables, prefix wildcards,
// section wildcards and "any of" quantifiers (spec.md §4.3), plus the
// analyzer that computes the minimal variable set a condition needs
// before any predicate is evaluated (spec.md §4.2).
//
// The condition string is parsed once, into the AST below, at Rule
// construction time rather than re-scanned on every check() call.
package condition

import "github.com/nova-sec/nova/internal/nova/pattern"

// Expr is a node in a parsed condition expression.
type Expr interface {
	isExpr()
}

// And is a left-associative boolean conjunction.
type And struct {
	Left, Right Expr
}

// Or is a left-associative boolean disjunction.
type Or struct {
	Left, Right Expr
}

// Not negates a single operand. Nested Nots are legal and not simplified
// by the parser (not not x parses to Not{Not{x}}); the evaluator computes
// the right answer either way.
type Not struct {
	X Expr
}

// VarRef names one pattern variable, optionally qualified by section.
// Wildcard marks a "section.$prefix*" reference, in which case Name holds
// the prefix rather than a full variable name.
type VarRef struct {
	HasSection bool
	Section    pattern.Section
	Name       string
	Wildcard   bool
}

// SectionWildcard is "section.*" or the equivalent "any of section.*".
type SectionWildcard struct {
	Section pattern.Section
}

// AnyOfPrefix is "any of ($prefix*)": true iff any variable in any
// section whose name starts with Prefix evaluates true.
type AnyOfPrefix struct {
	Prefix string
}

func (*And) isExpr()             {}
func (*Or) isExpr()              {}
func (*Not) isExpr()             {}
func (*VarRef) isExpr()          {}
func (*SectionWildcard) isExpr() {}
func (*AnyOfPrefix) isExpr()     {}
