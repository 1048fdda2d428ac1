// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ruleparse turns ".nova" rule source text into pattern.Rule values
// (spec.md §4.1). Parsing is hand-rolled recursive descent over a single
// position-tracking scanner rather than a generated grammar: the language is
// small, and a handful of its constructs (regex keyword bodies, the raw
// condition text) need context the scanner can't express as plain tokens.
package ruleparse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nova-sec/nova/internal/nova/pattern"
)

// ParseFile parses every rule block in src and returns the rules that parsed
// successfully alongside a ParseError for each rule block that didn't. A
// malformed rule never prevents the rules around it from parsing (spec.md
// §7): after a failure the parser resynchronizes at the next top-level
// "rule" keyword and keeps going.
func ParseFile(file, src string) ([]*pattern.Rule, []*ParseError) {
	s := newScanner(file, src)
	var rules []*pattern.Rule
	var errs []*ParseError

	for {
		if err := s.skipSpaceAndComments(); err != nil {
			errs = append(errs, err.(*ParseError))
			return rules, errs
		}
		if s.eof() {
			return rules, errs
		}
		rule, err := parseRule(s)
		if err != nil {
			pe, ok := err.(*ParseError)
			if !ok {
				pe = newParseError(file, s.line, s.col, "%s", err.Error())
			}
			errs = append(errs, pe)
			if !resyncToNextRule(s) {
				return rules, errs
			}
			continue
		}
		rules = append(rules, rule)
	}
}

// resyncToNextRule advances s to the start of the next top-level "rule"
// keyword so ParseFile can keep parsing after a malformed block. It returns
// false when no further rule block exists.
func resyncToNextRule(s *scanner) bool {
	for !s.eof() {
		if s.startsWith("rule") {
			afterLen := s.pos + len("rule")
			atWordStart := s.pos == 0 || s.src[s.pos-1] == '\n' || s.src[s.pos-1] == ' ' || s.src[s.pos-1] == '\t'
			atWordEnd := afterLen >= len(s.src) || !isIdentPart(rune(s.src[afterLen]))
			if atWordStart && atWordEnd {
				return true
			}
		}
		s.advance()
	}
	return false
}

// parseRule parses a single "rule NAME { ... }" block starting at the
// cursor (which must already be positioned past leading whitespace).
func parseRule(s *scanner) (*pattern.Rule, error) {
	startLine := s.line
	kw, err := s.readIdent()
	if err != nil {
		return nil, err
	}
	if kw != "rule" {
		return nil, s.errf("expected 'rule', found %q", kw)
	}
	if err := s.skipSpaceAndComments(); err != nil {
		return nil, err
	}
	name, err := s.readIdent()
	if err != nil {
		return nil, s.errf("expected rule name after 'rule'")
	}
	r := pattern.NewRule(name)
	r.SourceFile = s.file
	r.SourceLine = startLine

	if err := s.skipSpaceAndComments(); err != nil {
		return nil, err
	}
	if c, _ := s.peekRune(); c != '{' {
		return nil, s.errf("expected '{' to open rule %q", name)
	}
	s.advance()

	declared := map[string]bool{}
	sawCondition := false

	for {
		if err := s.skipSpaceAndComments(); err != nil {
			return nil, err
		}
		c, _ := s.peekRune()
		if c == '}' {
			s.advance()
			break
		}
		if s.eof() {
			return nil, s.errf("unterminated rule %q: missing '}'", name)
		}
		section, err := s.readIdent()
		if err != nil {
			return nil, s.errf("expected a section name (meta, keywords, fuzzy, semantics, llm, condition)")
		}
		if err := s.skipSpaceAndComments(); err != nil {
			return nil, err
		}
		if c, _ := s.peekRune(); c != ':' {
			return nil, s.errf("expected ':' after section %q", section)
		}
		s.advance()

		switch section {
		case "meta":
			if err := parseMetaSection(s, r); err != nil {
				return nil, err
			}
		case "keywords":
			if err := parseKeywordSection(s, r, declared); err != nil {
				return nil, err
			}
		case "fuzzy":
			if err := parseFuzzySection(s, r, declared); err != nil {
				return nil, err
			}
		case "semantics":
			if err := parseSemanticSection(s, r, declared); err != nil {
				return nil, err
			}
		case "llm":
			if err := parseLLMSection(s, r, declared); err != nil {
				return nil, err
			}
		case "condition":
			text, err := parseConditionSection(s)
			if err != nil {
				return nil, err
			}
			r.Condition = text
			sawCondition = true
		default:
			return nil, s.errf("unknown section %q (expected meta, keywords, fuzzy, semantics, llm or condition)", section)
		}
	}

	if !sawCondition {
		return nil, newParseError(s.file, startLine, 1, "rule %q has no condition section", name)
	}
	if r.Condition == "" {
		return nil, newParseError(s.file, startLine, 1, "rule %q has an empty condition", name)
	}
	return r, nil
}

// atSectionBoundary reports whether the cursor is at the end of the
// enclosing rule block or at the start of a new section header ("ident:"),
// without consuming anything. It is used by every per-section loop to know
// when to stop reading pairs.
func atSectionBoundary(s *scanner) (bool, error) {
	if err := s.skipSpaceAndComments(); err != nil {
		return false, err
	}
	c, _ := s.peekRune()
	if c == '}' || s.eof() {
		return true, nil
	}
	if !isIdentStart(c) {
		return false, nil
	}
	snap := *s
	ident, err := s.readIdent()
	if err != nil {
		*s = snap
		return false, nil
	}
	_ = s.skipSpaceAndComments()
	next, _ := s.peekRune()
	*s = snap
	if next == ':' && isKnownSection(ident) {
		return true, nil
	}
	return false, nil
}

func isKnownSection(name string) bool {
	switch name {
	case "meta", "keywords", "fuzzy", "semantics", "llm", "condition":
		return true
	default:
		return false
	}
}

func parseMetaSection(s *scanner, r *pattern.Rule) error {
	for {
		done, err := atSectionBoundary(s)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		key, err := s.readIdent()
		if err != nil {
			return s.errf("expected a meta key")
		}
		if err := s.skipSpaceAndComments(); err != nil {
			return err
		}
		if c, _ := s.peekRune(); c != '=' {
			return s.errf("expected '=' after meta key %q", key)
		}
		s.advance()
		if err := s.skipSpaceAndComments(); err != nil {
			return err
		}
		val, err := s.readString()
		if err != nil {
			return s.errf("expected a quoted string value for meta key %q", key)
		}
		r.Meta = append(r.Meta, pattern.MetaEntry{Key: key, Value: val})
	}
}

// parseCaseSuffix looks for an optional "case:true"/"case:false" marker
// immediately following a keyword/fuzzy value's closing delimiter. It must
// not be confused with a following section header, so it only consumes
// input when the next identifier is literally "case".
func parseCaseSuffix(s *scanner, defaultCase bool) (bool, error) {
	if err := s.skipSpaceAndComments(); err != nil {
		return defaultCase, err
	}
	c, _ := s.peekRune()
	if !isIdentStart(c) {
		return defaultCase, nil
	}
	snap := *s
	ident, err := s.readIdent()
	if err != nil || ident != "case" {
		*s = snap
		return defaultCase, nil
	}
	if err := s.skipSpaceAndComments(); err != nil {
		return defaultCase, err
	}
	if c, _ := s.peekRune(); c != ':' {
		*s = snap
		return defaultCase, nil
	}
	s.advance()
	if err := s.skipSpaceAndComments(); err != nil {
		return defaultCase, err
	}
	val, err := s.readIdent()
	if err != nil {
		return defaultCase, s.errf("expected 'true' or 'false' after 'case:'")
	}
	switch val {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return defaultCase, s.errf("invalid case marker %q (expected 'true' or 'false')", val)
	}
}

func declareOnce(declared map[string]bool, section, varName string) error {
	key := section + "." + varName
	if declared[key] {
		return fmt.Errorf("duplicate variable %s in section %s", varName, section)
	}
	declared[key] = true
	return nil
}

func parseKeywordSection(s *scanner, r *pattern.Rule, declared map[string]bool) error {
	for {
		done, err := atSectionBoundary(s)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		varName, err := s.readVar()
		if err != nil {
			return s.errf("expected a '$name' keyword variable")
		}
		if err := declareOnce(declared, "keywords", varName); err != nil {
			return s.errf("%s", err.Error())
		}
		if err := s.skipSpaceAndComments(); err != nil {
			return err
		}
		if c, _ := s.peekRune(); c != '=' {
			return s.errf("expected '=' after %s", varName)
		}
		s.advance()
		if err := s.skipSpaceAndComments(); err != nil {
			return err
		}
		c, _ := s.peekRune()
		var kp pattern.KeywordPattern
		switch c {
		case '"':
			lit, err := s.readString()
			if err != nil {
				return err
			}
			kp = pattern.KeywordPattern{Pattern: lit, IsRegex: false}
		case '/':
			body, err := s.readRegexBody()
			if err != nil {
				return err
			}
			kp = pattern.KeywordPattern{Pattern: body, IsRegex: true}
		default:
			return s.errf("expected a quoted string or /regex/ for %s", varName)
		}
		caseSensitive, err := parseCaseSuffix(s, false)
		if err != nil {
			return err
		}
		kp.CaseSensitive = caseSensitive
		r.Keywords.Set(varName, kp)
	}
}

func parseFuzzySection(s *scanner, r *pattern.Rule, declared map[string]bool) error {
	for {
		done, err := atSectionBoundary(s)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		varName, err := s.readVar()
		if err != nil {
			return s.errf("expected a '$name' fuzzy variable")
		}
		if err := declareOnce(declared, "fuzzy", varName); err != nil {
			return s.errf("%s", err.Error())
		}
		if err := s.skipSpaceAndComments(); err != nil {
			return err
		}
		if c, _ := s.peekRune(); c != '=' {
			return s.errf("expected '=' after %s", varName)
		}
		s.advance()
		if err := s.skipSpaceAndComments(); err != nil {
			return err
		}
		lit, err := s.readString()
		if err != nil {
			return s.errf("expected a quoted string for %s", varName)
		}
		caseSensitive, err := parseCaseSuffix(s, false)
		if err != nil {
			return err
		}
		threshold, err := parseIntThreshold(s, varName, 0, 100)
		if err != nil {
			return err
		}
		r.Fuzzy.Set(varName, pattern.FuzzyPattern{Pattern: lit, CaseSensitive: caseSensitive, Threshold: threshold})
	}
}

func parseSemanticSection(s *scanner, r *pattern.Rule, declared map[string]bool) error {
	for {
		done, err := atSectionBoundary(s)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		varName, err := s.readVar()
		if err != nil {
			return s.errf("expected a '$name' semantics variable")
		}
		if err := declareOnce(declared, "semantics", varName); err != nil {
			return s.errf("%s", err.Error())
		}
		if err := s.skipSpaceAndComments(); err != nil {
			return err
		}
		if c, _ := s.peekRune(); c != '=' {
			return s.errf("expected '=' after %s", varName)
		}
		s.advance()
		if err := s.skipSpaceAndComments(); err != nil {
			return err
		}
		lit, err := s.readString()
		if err != nil {
			return s.errf("expected a quoted string for %s", varName)
		}
		threshold, err := parseFloatThreshold(s, varName, 0, 1)
		if err != nil {
			return err
		}
		r.Semantics.Set(varName, pattern.SemanticPattern{Pattern: lit, Threshold: threshold})
	}
}

func parseLLMSection(s *scanner, r *pattern.Rule, declared map[string]bool) error {
	for {
		done, err := atSectionBoundary(s)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		varName, err := s.readVar()
		if err != nil {
			return s.errf("expected a '$name' llm variable")
		}
		if err := declareOnce(declared, "llm", varName); err != nil {
			return s.errf("%s", err.Error())
		}
		if err := s.skipSpaceAndComments(); err != nil {
			return err
		}
		if c, _ := s.peekRune(); c != '=' {
			return s.errf("expected '=' after %s", varName)
		}
		s.advance()
		if err := s.skipSpaceAndComments(); err != nil {
			return err
		}
		lit, err := s.readString()
		if err != nil {
			return s.errf("expected a quoted string for %s", varName)
		}
		threshold, err := parseFloatThreshold(s, varName, 0, 1)
		if err != nil {
			return err
		}
		r.LLMs.Set(varName, pattern.LLMPattern{Pattern: lit, Threshold: threshold})
	}
}

func parseIntThreshold(s *scanner, varName string, lo, hi int) (int, error) {
	if err := s.skipSpaceAndComments(); err != nil {
		return 0, err
	}
	if c, _ := s.peekRune(); c != '(' {
		return 0, s.errf("expected '(' threshold after %s", varName)
	}
	s.advance()
	if err := s.skipSpaceAndComments(); err != nil {
		return 0, err
	}
	numStr, err := s.readNumber()
	if err != nil {
		return 0, s.errf("expected an integer threshold for %s", varName)
	}
	if err := s.skipSpaceAndComments(); err != nil {
		return 0, err
	}
	if c, _ := s.peekRune(); c != ')' {
		return 0, s.errf("expected ')' after threshold for %s", varName)
	}
	s.advance()
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return 0, s.errf("invalid integer threshold %q for %s", numStr, varName)
	}
	if n < lo || n > hi {
		return 0, s.errf("threshold %d for %s out of range [%d,%d]", n, varName, lo, hi)
	}
	return n, nil
}

func parseFloatThreshold(s *scanner, varName string, lo, hi float64) (float64, error) {
	if err := s.skipSpaceAndComments(); err != nil {
		return 0, err
	}
	if c, _ := s.peekRune(); c != '(' {
		return 0, s.errf("expected '(' threshold after %s", varName)
	}
	s.advance()
	if err := s.skipSpaceAndComments(); err != nil {
		return 0, err
	}
	numStr, err := s.readNumber()
	if err != nil {
		return 0, s.errf("expected a numeric threshold for %s", varName)
	}
	if err := s.skipSpaceAndComments(); err != nil {
		return 0, err
	}
	if c, _ := s.peekRune(); c != ')' {
		return 0, s.errf("expected ')' after threshold for %s", varName)
	}
	s.advance()
	f, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, s.errf("invalid numeric threshold %q for %s", numStr, varName)
	}
	if f < lo || f > hi {
		return 0, s.errf("threshold %g for %s out of range [%g,%g]", f, varName, lo, hi)
	}
	return f, nil
}

// parseConditionSection reads raw condition text up to (but not including)
// the rule's closing '}'. The condition grammar (spec.md §4.3.1) never
// itself uses braces, so the closing brace of the rule block is
// unambiguously the end of the condition text. Whitespace is collapsed to
// single spaces per spec.md §4.1.
func parseConditionSection(s *scanner) (string, error) {
	if err := s.skipSpaceAndComments(); err != nil {
		return "", err
	}
	var b strings.Builder
	for {
		if s.eof() {
			return "", s.errf("unterminated condition: missing '}'")
		}
		c, _ := s.peekRune()
		if c == '}' {
			break
		}
		if c == '/' && s.startsWith("//") {
			for !s.eof() && s.advance() != '\n' {
			}
			b.WriteRune(' ')
			continue
		}
		if c == '/' && s.startsWith("/*") {
			s.advance()
			s.advance()
			for !s.eof() && !s.startsWith("*/") {
				s.advance()
			}
			if s.eof() {
				return "", s.errf("unterminated block comment in condition")
			}
			s.advance()
			s.advance()
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(s.advance())
	}
	fields := strings.Fields(b.String())
	return strings.Join(fields, " "), nil
}
